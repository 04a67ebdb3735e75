package mqtt

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doorworks/prox/card"
)

func TestCardPayload(t *testing.T) {
	bits, err := card.ParseBits("0 01101011 0111101001101001 1")
	require.NoError(t, err)
	c := card.Decode(bits)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	payload, err := cardPayload(c, at)
	require.NoError(t, err)

	var m scanMessage
	require.NoError(t, json.Unmarshal(payload, &m))
	assert.Equal(t, "H10301", m.Format)
	assert.Equal(t, uint32(107), m.Facility)
	assert.Equal(t, uint64(31337), m.Number)
	assert.Equal(t, 26, m.Bits)
	assert.True(t, m.ParityOK)
	assert.Equal(t, "00110101101111010011010011", m.Raw)
	assert.True(t, m.Time.Equal(at))
}

func TestContactPayload(t *testing.T) {
	at := time.Now()
	payload, err := contactPayload(true, at)
	require.NoError(t, err)

	var m contactMessage
	require.NoError(t, json.Unmarshal(payload, &m))
	assert.True(t, m.Closed)
	assert.True(t, m.Time.Equal(at))
}
