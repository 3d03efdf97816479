package artemis

import (
	"reflect"
	"testing"
	"time"
)

func TestNewMessageRejectsNilBody(t *testing.T) {
	_, err := NewMessage(nil)
	if !IsKind(err, KindConfiguration) {
		t.Fatalf("expected KindConfiguration, got %v", err)
	}
}

func TestNewMessageRejectsUnsupportedType(t *testing.T) {
	_, err := NewMessage(struct{ X int }{1})
	if !IsKind(err, KindConfiguration) {
		t.Fatalf("expected KindConfiguration, got %v", err)
	}
}

func TestGetBodyRoundTrip(t *testing.T) {
	cases := []interface{}{
		"hello",
		Char('q'),
		int8(-1), int16(-2), uint16(3), int32(-4), uint32(5),
		int64(-6), uint64(7), uint8(8),
		float32(1.5), float64(2.5),
		true,
		UUID{1, 2, 3},
		time.Unix(0, 0),
		[]byte("binary"),
		[]interface{}{"a", int32(1)},
	}
	for _, body := range cases {
		msg, err := NewMessage(body)
		if err != nil {
			t.Fatalf("NewMessage(%#v): %v", body, err)
		}
		switch v := body.(type) {
		case string:
			if got := GetBody[string](msg); got != v {
				t.Errorf("round trip mismatch: got %v, want %v", got, v)
			}
		case Char:
			if got := GetBody[Char](msg); got != v {
				t.Errorf("round trip mismatch: got %v, want %v", got, v)
			}
		case int8:
			if got := GetBody[int8](msg); got != v {
				t.Errorf("round trip mismatch: got %v, want %v", got, v)
			}
		case int16:
			if got := GetBody[int16](msg); got != v {
				t.Errorf("round trip mismatch: got %v, want %v", got, v)
			}
		case uint16:
			if got := GetBody[uint16](msg); got != v {
				t.Errorf("round trip mismatch: got %v, want %v", got, v)
			}
		case int32:
			if got := GetBody[int32](msg); got != v {
				t.Errorf("round trip mismatch: got %v, want %v", got, v)
			}
		case uint32:
			if got := GetBody[uint32](msg); got != v {
				t.Errorf("round trip mismatch: got %v, want %v", got, v)
			}
		case int64:
			if got := GetBody[int64](msg); got != v {
				t.Errorf("round trip mismatch: got %v, want %v", got, v)
			}
		case uint64:
			if got := GetBody[uint64](msg); got != v {
				t.Errorf("round trip mismatch: got %v, want %v", got, v)
			}
		case uint8:
			if got := GetBody[uint8](msg); got != v {
				t.Errorf("round trip mismatch: got %v, want %v", got, v)
			}
		case float32:
			if got := GetBody[float32](msg); got != v {
				t.Errorf("round trip mismatch: got %v, want %v", got, v)
			}
		case float64:
			if got := GetBody[float64](msg); got != v {
				t.Errorf("round trip mismatch: got %v, want %v", got, v)
			}
		case bool:
			if got := GetBody[bool](msg); got != v {
				t.Errorf("round trip mismatch: got %v, want %v", got, v)
			}
		case UUID:
			if got := GetBody[UUID](msg); got != v {
				t.Errorf("round trip mismatch: got %v, want %v", got, v)
			}
		case time.Time:
			if got := GetBody[time.Time](msg); !got.Equal(v) {
				t.Errorf("round trip mismatch: got %v, want %v", got, v)
			}
		case []byte:
			if got := GetBody[[]byte](msg); string(got) != string(v) {
				t.Errorf("round trip mismatch: got %v, want %v", got, v)
			}
		case []interface{}:
			if got := GetBody[[]interface{}](msg); !reflect.DeepEqual(got, v) {
				t.Errorf("round trip mismatch: got %v, want %v", got, v)
			}
		default:
			t.Fatalf("case %#v has no round-trip assertion", body)
		}
	}
}

func TestGetBodyMismatchReturnsZeroValue(t *testing.T) {
	msg, err := NewMessage("hello")
	if err != nil {
		t.Fatal(err)
	}
	if got := GetBody[int32](msg); got != 0 {
		t.Errorf("expected zero value on type mismatch, got %v", got)
	}
}

func TestGetBodyNilMessageReturnsZeroValue(t *testing.T) {
	if got := GetBody[string](nil); got != "" {
		t.Errorf("expected zero value for nil message, got %q", got)
	}
}

func TestMessageBodyTypeClassification(t *testing.T) {
	msg, err := NewMessage(int32(42))
	if err != nil {
		t.Fatal(err)
	}
	if msg.BodyType() != BodyTypeInt32 {
		t.Errorf("got %v, want BodyTypeInt32", msg.BodyType())
	}
}
