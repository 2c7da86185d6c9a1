package pod

// Well-known object-type and property-key identifiers, per spec.md §6
// "POD object schemas". Grounded on
// original_source/crates/pod/src/id.rs's id namespace.
const (
	// Object types.
	ObjectPropInfo     uint32 = 1
	ObjectProps        uint32 = 2
	ObjectFormat       uint32 = 3
	ObjectParamBuffers uint32 = 4
	ObjectParamMeta    uint32 = 5
	ObjectParamIO      uint32 = 6
	ObjectParamProfile uint32 = 7
	ObjectParamRoute   uint32 = 8
	ObjectParamLatency uint32 = 9
	ObjectParamTag     uint32 = 10
)

// Format object property keys.
const (
	FormatMediaType    uint32 = 1
	FormatMediaSubtype uint32 = 2
	FormatAudioFormat  uint32 = 3
	FormatAudioRate    uint32 = 4
	FormatAudioChannels uint32 = 5
	FormatAudioPosition uint32 = 6
)

// ParamBuffers object property keys.
const (
	ParamBuffersBuffers uint32 = 1
	ParamBuffersBlocks  uint32 = 2
	ParamBuffersSize    uint32 = 3
	ParamBuffersStride  uint32 = 4
	ParamBuffersAlign   uint32 = 5
)

// ParamMeta object property keys.
const (
	ParamMetaType uint32 = 1
	ParamMetaSize uint32 = 2
)

// ParamIO object property keys.
const (
	ParamIOID   uint32 = 1
	ParamIOSize uint32 = 2
)

// Props object property keys.
const (
	PropsVolume         uint32 = 1
	PropsMute           uint32 = 2
	PropsChannelVolumes uint32 = 3
)

// PropInfo object property keys.
const (
	PropInfoID     uint32 = 1
	PropInfoName   uint32 = 2
	PropInfoType   uint32 = 3
	PropInfoLabels uint32 = 4
)

// MediaType/MediaSubtype enumerants relevant to raw planar float32
// audio, the only format this core negotiates per spec.md §1 "Non-goals".
const (
	MediaTypeAudio        uint32 = 1
	MediaSubtypeRaw       uint32 = 1
	AudioFormatF32Planar  uint32 = 1
)

// IoType values used in ClientNode SetIO events, per spec.md §4.4.
type IoType uint32

// IoType enumerants.
const (
	IoTypeControl IoType = iota + 1
	IoTypeClock
	IoTypePosition
	IoTypeBuffers
)

// ParamID identifies which parameter list a SetParam/Object belongs to.
type ParamID uint32

// Well-known ParamIDs.
const (
	ParamIDPropInfo ParamID = iota + 1
	ParamIDProps
	ParamIDFormat
	ParamIDBuffers
	ParamIDMeta
	ParamIDIO
	ParamIDProfile
	ParamIDRoute
	ParamIDLatency
	ParamIDTag
)
