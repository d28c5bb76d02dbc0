package value

// Tag identifies which variant a boxed Value holds. Float64 values never
// carry a Tag at all -- they are recognized by NOT matching the boxed-NaN
// marker, so TagFloat exists only so callers have a name for "not boxed".
type Tag uint8

const (
	TagFloat Tag = iota
	TagInt
	TagBool
	TagUnit
	TagStr
	TagList
	TagTuple
	TagDict
	TagSet
	TagStruct
	TagEnum
	TagOptionSome
	TagFunction
	TagFile
	TagRange
	TagBuilder
)

func (t Tag) String() string {
	switch t {
	case TagFloat:
		return "Float"
	case TagInt:
		return "Int"
	case TagBool:
		return "Bool"
	case TagUnit:
		return "Unit"
	case TagStr:
		return "Str"
	case TagList:
		return "List"
	case TagTuple:
		return "Tuple"
	case TagDict:
		return "Dict"
	case TagSet:
		return "Set"
	case TagStruct:
		return "Struct"
	case TagEnum:
		return "Enum"
	case TagOptionSome:
		return "OptionSome"
	case TagFunction:
		return "Function"
	case TagFile:
		return "File"
	case TagRange:
		return "Range"
	case TagBuilder:
		return "Builder"
	default:
		return "Unknown"
	}
}

// IsHandle reports whether values of this tag carry an ObjectId into the
// heap rather than an inline payload.
func (t Tag) IsHandle() bool {
	switch t {
	case TagStr, TagList, TagTuple, TagDict, TagSet, TagStruct, TagEnum,
		TagOptionSome, TagFunction, TagFile, TagRange, TagBuilder:
		return true
	default:
		return false
	}
}
