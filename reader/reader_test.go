package reader

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doorworks/prox/card"
	"doorworks/prox/wiegand"
)

func testCard(t *testing.T) card.Card {
	t.Helper()
	bits, err := card.ParseBits("0 01101011 0111101001101001 1")
	require.NoError(t, err)
	return card.Decode(bits)
}

func TestStatusSnapshot(t *testing.T) {
	s := &Status{
		started: time.Now(),
		stats: func() wiegand.Stats {
			return wiegand.Stats{BitsDropped: 2, Overflows: 1}
		},
	}

	empty := s.snapshot()
	assert.Equal(t, uint64(0), empty.Scans)
	assert.Nil(t, empty.Last)

	c := testCard(t)
	s.record(c, time.Now())
	s.record(c, time.Now())

	snap := s.snapshot()
	assert.Equal(t, uint64(2), snap.Scans)
	assert.Equal(t, uint64(2), snap.BitsDropped)
	assert.Equal(t, uint64(1), snap.Overflows)
	require.NotNil(t, snap.Last)
	assert.Equal(t, "H10301", snap.Last.Format)
	assert.Equal(t, uint32(107), snap.Last.Facility)
	assert.Equal(t, uint64(31337), snap.Last.Number)
}

func TestLastScanHandler(t *testing.T) {
	s := &Status{started: time.Now()}
	s.record(testCard(t), time.Now())
	sctx := &ServerCtx{Status: s}

	w := httptest.NewRecorder()
	sctx.last_scan_handler(w, httptest.NewRequest("GET", last_scan_url, nil))

	require.Equal(t, 200, w.Code)
	var reply lastScanReply
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reply))
	assert.Equal(t, uint64(1), reply.Scans)
	require.NotNil(t, reply.Last)
	assert.Equal(t, uint64(31337), reply.Last.Number)

	// Wrong method:
	w = httptest.NewRecorder()
	sctx.last_scan_handler(w, httptest.NewRequest("POST", last_scan_url, nil))
	assert.Equal(t, 404, w.Code)
}

func TestTestScanHandler(t *testing.T) {
	scans := make(chan HTTPTestScan, 1)
	sctx := &ServerCtx{TestScans: scans}

	// Stand in for the main loop:
	go func() {
		rq := <-scans
		rq.Reply <- card.Decode(rq.Bits)
		close(rq.Reply)
	}()

	form := "bits=" + strings.Repeat("01", 13)
	rq := httptest.NewRequest("POST", test_scan_url, strings.NewReader(form))
	rq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	sctx.test_scan_handler(w, rq)

	require.Equal(t, 200, w.Code)
	var rec scanRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, 26, rec.Bits)
	assert.Equal(t, "H10301", rec.Format)
}

func TestTestScanHandlerBadRequests(t *testing.T) {
	sctx := &ServerCtx{TestScans: make(chan HTTPTestScan)}

	// Wrong method:
	w := httptest.NewRecorder()
	sctx.test_scan_handler(w, httptest.NewRequest("GET", test_scan_url, nil))
	assert.Equal(t, 404, w.Code)

	// Missing form key:
	rq := httptest.NewRequest("POST", test_scan_url, strings.NewReader("nope=1"))
	rq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w = httptest.NewRecorder()
	sctx.test_scan_handler(w, rq)
	assert.Equal(t, 400, w.Code)

	// Garbage bits:
	rq = httptest.NewRequest("POST", test_scan_url, strings.NewReader("bits=01x1"))
	rq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w = httptest.NewRecorder()
	sctx.test_scan_handler(w, rq)
	assert.Equal(t, 400, w.Code)
}

func TestHealthHandler(t *testing.T) {
	sctx := &ServerCtx{}
	w := httptest.NewRecorder()
	sctx.health_handler(w, httptest.NewRequest("GET", health_url, nil))
	assert.Equal(t, 200, w.Code)
	assert.Equal(t, "OK", w.Body.String())
}
