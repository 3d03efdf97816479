package artemis

import "time"

// BodyType enumerates the exact set of message body types this client
// supports. Constructing a Message with any other Go type fails with a
// KindConfiguration error; a nil body fails the same way.
type BodyType int

const (
	BodyTypeUnknown BodyType = iota
	BodyTypeString
	BodyTypeChar
	BodyTypeInt8
	BodyTypeUint8
	BodyTypeInt16
	BodyTypeUint16
	BodyTypeInt32
	BodyTypeUint32
	BodyTypeInt64
	BodyTypeUint64
	BodyTypeFloat32
	BodyTypeFloat64
	BodyTypeBool
	BodyTypeUUID
	BodyTypeTimestamp
	BodyTypeBinary
	BodyTypeList
)

// UUID is a 16-byte universally unique identifier body value, kept as
// its own named type (rather than reusing satori/go.uuid's type
// directly in the public body enum) so the message package has no hard
// dependency on a particular UUID library's wire representation.
type UUID [16]byte

// Char is a single AMQP character value. Go has no distinct "char"
// type, so this is a named uint8 to keep it distinguishable from a
// plain byte/uint8 body in the type switch below.
type Char uint8

// Message is an AMQP message with a body restricted to the enumerated
// BodyType set, plus the per-producer metadata (priority, TTL) the
// producer attaches at send time.
type Message struct {
	bodyType BodyType
	body     interface{}

	Priority *uint8
	TTL      *time.Duration
	Headers  map[string]interface{}
}

// NewMessage constructs a Message from a supported Go value. Supported
// types: string, Char, int8/uint8/int16/uint16/int32/uint32/
// int64/uint64, float32, float64, bool, UUID, time.Time (timestamp),
// []byte (binary), []interface{} (typed list).
//
// A nil body fails with a KindConfiguration "message body must not be
// nil" error. Any other type fails with a KindConfiguration
// "unsupported message body type" error.
func NewMessage(body interface{}) (*Message, error) {
	if body == nil {
		return nil, NewError(KindConfiguration, "message body must not be nil")
	}
	bt, ok := classify(body)
	if !ok {
		return nil, NewError(KindConfiguration, "unsupported message body type %T", body)
	}
	return &Message{bodyType: bt, body: body}, nil
}

func classify(body interface{}) (BodyType, bool) {
	switch body.(type) {
	case string:
		return BodyTypeString, true
	case Char:
		return BodyTypeChar, true
	case int8:
		return BodyTypeInt8, true
	case int16:
		return BodyTypeInt16, true
	case uint16:
		return BodyTypeUint16, true
	case int32:
		return BodyTypeInt32, true
	case uint32:
		return BodyTypeUint32, true
	case int64:
		return BodyTypeInt64, true
	case uint64:
		return BodyTypeUint64, true
	case uint8:
		return BodyTypeUint8, true
	case float32:
		return BodyTypeFloat32, true
	case float64:
		return BodyTypeFloat64, true
	case bool:
		return BodyTypeBool, true
	case UUID:
		return BodyTypeUUID, true
	case time.Time:
		return BodyTypeTimestamp, true
	case []byte:
		return BodyTypeBinary, true
	case []interface{}:
		return BodyTypeList, true
	default:
		return BodyTypeUnknown, false
	}
}

// BodyType reports the stored body's type tag.
func (m *Message) BodyType() BodyType { return m.bodyType }

// GetBody returns the message body cast to T when the stored type
// matches, or the zero value of T otherwise. It never errors, per
// spec: a type mismatch is not exceptional, it's a typed miss.
func GetBody[T any](m *Message) T {
	var zero T
	if m == nil {
		return zero
	}
	if v, ok := m.body.(T); ok {
		return v
	}
	return zero
}
