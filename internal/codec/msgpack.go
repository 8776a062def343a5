package codec

import (
	"github.com/vmihailenco/msgpack/v5"
)

// MsgpackFormatTag is the content-type tag stamped by MsgpackCodec.
const MsgpackFormatTag = "application/msgpack"

// MsgpackCodec is the core's required primary codec. It supports integers,
// doubles, strings, byte blobs, homogeneous sequences of these, and
// string-keyed maps of these, which is exactly what msgpack.Marshal/
// Unmarshal already handle for Go's built-in types and tagged structs.
type MsgpackCodec struct{}

// NewMsgpackCodec returns the primary codec instance. The zero value is
// already usable; the constructor exists for symmetry with JSONCodec and to
// leave room for future options (e.g. a shared buffer pool).
func NewMsgpackCodec() *MsgpackCodec {
	return &MsgpackCodec{}
}

func (MsgpackCodec) FormatTag() string {
	return MsgpackFormatTag
}

func (MsgpackCodec) EncodeValue(value any) ([]byte, error) {
	return msgpack.Marshal(value)
}

func (MsgpackCodec) DecodeValue(data []byte, out any) error {
	if len(data) == 0 {
		return &SerializationError{Kind: Decode, Detail: "empty payload"}
	}
	if err := msgpack.Unmarshal(data, out); err != nil {
		return &SerializationError{Kind: Decode, Detail: err.Error()}
	}
	return nil
}
