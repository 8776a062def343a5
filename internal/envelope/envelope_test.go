package envelope_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tenzoki/mcpbroker/internal/envelope"
)

func TestNewDefaultsPriorityNormal(t *testing.T) {
	e := envelope.New("t", 1, "application/msgpack", []byte("payload"))
	assert.Equal(t, envelope.PriorityNormal, e.Priority)
	assert.Equal(t, "t", e.Topic)
	assert.EqualValues(t, 1, e.SenderID)
	assert.Equal(t, 7, e.Size())
	assert.NotZero(t, e.MessageID)
	assert.False(t, e.Timestamp.IsZero())
}

func TestWithPriorityDoesNotMutateOriginal(t *testing.T) {
	e := envelope.New("t", 1, "application/msgpack", []byte("x"))
	high := e.WithPriority(envelope.PriorityHigh)

	assert.Equal(t, envelope.PriorityNormal, e.Priority)
	assert.Equal(t, envelope.PriorityHigh, high.Priority)
	assert.Equal(t, e.Topic, high.Topic)
	assert.NotSame(t, e, high)
}

func TestDistinctMessageIDs(t *testing.T) {
	a := envelope.New("t", 1, "application/msgpack", []byte("x"))
	b := envelope.New("t", 1, "application/msgpack", []byte("x"))
	assert.NotEqual(t, a.MessageID, b.MessageID)
}
