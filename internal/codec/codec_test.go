package codec_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tenzoki/mcpbroker/internal/codec"
)

type sample struct {
	Name  string `msgpack:"name" json:"name"`
	Count int    `msgpack:"count" json:"count"`
}

func TestMsgpackRoundTrip(t *testing.T) {
	c := codec.NewMsgpackCodec()
	require.Equal(t, codec.MsgpackFormatTag, c.FormatTag())

	env, err := codec.CreateMessage(c, "test/topic", 1, sample{Name: "hello", Count: 3})
	require.NoError(t, err)
	assert.Equal(t, "test/topic", env.Topic)
	assert.Equal(t, codec.MsgpackFormatTag, env.Format)

	got, err := codec.Extract[sample](c, env)
	require.NoError(t, err)
	assert.Equal(t, sample{Name: "hello", Count: 3}, got)
}

func TestJSONRoundTrip(t *testing.T) {
	c := codec.NewJSONCodec()
	env, err := codec.CreateMessage(c, "test/topic", 1, sample{Name: "world", Count: 7})
	require.NoError(t, err)

	got, err := codec.Extract[sample](c, env)
	require.NoError(t, err)
	assert.Equal(t, sample{Name: "world", Count: 7}, got)
}

func TestExtractFormatMismatch(t *testing.T) {
	mp := codec.NewMsgpackCodec()
	js := codec.NewJSONCodec()

	env, err := codec.CreateMessage(js, "t", 1, sample{Name: "x"})
	require.NoError(t, err)

	_, err = codec.Extract[sample](mp, env)
	require.Error(t, err)

	var serr *codec.SerializationError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, codec.UnsupportedFormat, serr.Kind)
}

// TestDecodeValueWrapsUnderlyingError asserts the Codec interface contract
// directly: DecodeValue itself, not just the Extract convenience, must
// return a *SerializationError{Kind: Decode} on truncated/malformed input.
func TestDecodeValueWrapsUnderlyingError(t *testing.T) {
	mp := codec.NewMsgpackCodec()
	var out sample
	err := mp.DecodeValue([]byte{0xff, 0xff, 0xff}, &out)
	require.Error(t, err)
	var serr *codec.SerializationError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, codec.Decode, serr.Kind)

	js := codec.NewJSONCodec()
	err = js.DecodeValue([]byte("not json"), &out)
	require.Error(t, err)
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, codec.Decode, serr.Kind)
}

func TestExtractNilOrEmptyPayload(t *testing.T) {
	mp := codec.NewMsgpackCodec()

	_, err := codec.Extract[sample](mp, nil)
	require.Error(t, err)

	env, err := codec.CreateMessage(mp, "t", 1, sample{})
	require.NoError(t, err)
	env.Payload = nil

	_, err = codec.Extract[sample](mp, env)
	require.Error(t, err)
	var serr *codec.SerializationError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, codec.Decode, serr.Kind)
}
