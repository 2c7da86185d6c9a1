package ids

// GlobalMap is the bidirectional local↔global id map described in
// spec.md §3/§4.3: learned via a "bound id" event pairing (local,
// global). Grounded on
// original_source/crates/client/src/state.rs's GlobalMap.
type GlobalMap struct {
	localToGlobal map[uint32]uint32
	globalToLocal map[uint32]uint32
}

// NewGlobalMap returns an empty GlobalMap.
func NewGlobalMap() *GlobalMap {
	return &GlobalMap{
		localToGlobal: make(map[uint32]uint32),
		globalToLocal: make(map[uint32]uint32),
	}
}

// Insert records a (local, global) pairing, overwriting any prior
// pairing that shared either id.
func (m *GlobalMap) Insert(local, global uint32) {
	if oldGlobal, ok := m.localToGlobal[local]; ok {
		delete(m.globalToLocal, oldGlobal)
	}
	if oldLocal, ok := m.globalToLocal[global]; ok {
		delete(m.localToGlobal, oldLocal)
	}
	m.localToGlobal[local] = global
	m.globalToLocal[global] = local
}

// ByLocal returns the global id paired with local, if any.
func (m *GlobalMap) ByLocal(local uint32) (uint32, bool) {
	g, ok := m.localToGlobal[local]
	return g, ok
}

// ByGlobal returns the local id paired with global, if any.
func (m *GlobalMap) ByGlobal(global uint32) (uint32, bool) {
	l, ok := m.globalToLocal[global]
	return l, ok
}

// RemoveByGlobal removes the pairing for global, if any, and reports
// whether one existed.
func (m *GlobalMap) RemoveByGlobal(global uint32) bool {
	local, ok := m.globalToLocal[global]
	if !ok {
		return false
	}
	delete(m.globalToLocal, global)
	delete(m.localToGlobal, local)
	return true
}

// RemoveByLocal removes the pairing for local, if any, and reports
// whether one existed.
func (m *GlobalMap) RemoveByLocal(local uint32) bool {
	global, ok := m.localToGlobal[local]
	if !ok {
		return false
	}
	delete(m.localToGlobal, local)
	delete(m.globalToLocal, global)
	return true
}
