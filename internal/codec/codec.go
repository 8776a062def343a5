// Package codec defines the encode/decode boundary between typed Go values
// and the opaque byte payloads carried inside an Envelope.
//
// The core never hard-wires a particular serialization library: Codec is an
// interface, and callers obtain typed values back out of an envelope via the
// package-level Extract helper (and build envelopes with CreateMessage),
// which use generics instead of the
// reflection-heavy `interface{}` unmarshal pattern the teacher's JSON-RPC
// layer used.
package codec

import (
	"errors"
	"fmt"

	"github.com/tenzoki/mcpbroker/internal/envelope"
)

// Kind classifies a SerializationError.
type Kind int

const (
	Encode Kind = iota
	Decode
	UnsupportedFormat
)

func (k Kind) String() string {
	switch k {
	case Encode:
		return "Encode"
	case Decode:
		return "Decode"
	case UnsupportedFormat:
		return "UnsupportedFormat"
	default:
		return "Unknown"
	}
}

// SerializationError is the one typed error the core surfaces, raised only
// at the codec boundary. The broker itself never originates or propagates
// one of these; callers of CreateMessage/Extract catch and log it.
type SerializationError struct {
	Kind   Kind
	Detail string
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("codec: %s: %s", e.Kind, e.Detail)
}

// Codec encodes typed values to bytes under a content-type tag and decodes
// the reverse. Implementations must be safe for concurrent use by multiple
// goroutines: the same Codec instance is shared by every provider and
// subscriber that chose its format tag.
type Codec interface {
	// FormatTag returns the content-type string stamped into envelopes
	// produced with this codec, e.g. "application/msgpack".
	FormatTag() string

	// EncodeValue produces a byte buffer from a typed Go value. Fails with
	// a SerializationError{Kind: Encode} on any internal marshal error.
	EncodeValue(value any) ([]byte, error)

	// DecodeValue is the inverse of EncodeValue: out must be a pointer to
	// the destination type. Fails with SerializationError{Kind: Decode} on
	// nil/empty input, truncated input, or a type mismatch.
	DecodeValue(data []byte, out any) error
}

// CreateMessage composes Codec.EncodeValue and envelope construction: the
// generic convenience described by the core's create_message operation.
func CreateMessage[T any](c Codec, topic string, senderID int64, value T) (*envelope.Envelope, error) {
	data, err := c.EncodeValue(value)
	if err != nil {
		return nil, &SerializationError{Kind: Encode, Detail: err.Error()}
	}
	return envelope.New(topic, senderID, c.FormatTag(), data), nil
}

// Extract checks that env.Format matches c's tag and decodes the payload
// into T. A nil envelope or a zero-length payload always fails.
func Extract[T any](c Codec, env *envelope.Envelope) (T, error) {
	var zero T
	if env == nil || len(env.Payload) == 0 {
		return zero, &SerializationError{Kind: Decode, Detail: "nil envelope or empty payload"}
	}
	if env.Format != c.FormatTag() {
		return zero, &SerializationError{
			Kind:   UnsupportedFormat,
			Detail: fmt.Sprintf("envelope format %q does not match codec tag %q", env.Format, c.FormatTag()),
		}
	}
	var out T
	if err := c.DecodeValue(env.Payload, &out); err != nil {
		var serr *SerializationError
		if errors.As(err, &serr) {
			return zero, serr
		}
		return zero, &SerializationError{Kind: Decode, Detail: err.Error()}
	}
	return out, nil
}
