package notify

import (
	"crypto/sha512"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doorworks/prox/card"
)

var test_key = []byte("super secret device key")

// envelope is what the receiving end sees.
type envelope struct {
	Data     json.RawMessage `json:"data"`
	Device   string          `json:"device"`
	Checksum string          `json:"checksum"`
}

func testCard(t *testing.T) card.Card {
	t.Helper()
	bits, err := card.ParseBits("0 01101011 0111101001101001 1")
	require.NoError(t, err)
	return card.Decode(bits)
}

func okBody() string {
	return `{"data": {"response": true}, "response": true, "version": "1"}`
}

func TestNotifyPostsCheckedPayload(t *testing.T) {
	var got envelope
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "POST", r.Method)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			fmt.Fprint(w, okBody())
		}))
	defer srv.Close()

	n := &Notifier{
		Device:    "front-door",
		DeviceKey: test_key,
		URL:       srv.URL,
		Client:    srv.Client(),
	}
	require.NoError(t, n.Notify(testCard(t), time.Now()))

	assert.Equal(t, "front-door", got.Device)

	// The checksum is the hash of the key and the data object's
	// exact bytes.
	h := sha512.New()
	h.Write(test_key)
	h.Write(got.Data)
	assert.Equal(t, fmt.Sprintf("%X", h.Sum(nil)), got.Checksum)

	var d map[string]interface{}
	require.NoError(t, json.Unmarshal(got.Data, &d))
	assert.Equal(t, "card_scan", d["operation"])
	assert.Equal(t, "H10301", d["format"])
	assert.Equal(t, float64(107), d["facility"])
	assert.Equal(t, float64(31337), d["number"])
	assert.Equal(t, float64(26), d["bits"])
	assert.Equal(t, true, d["parity_ok"])
	assert.Equal(t, "00110101101111010011010011", d["raw"])
}

func TestNotifyServerRejects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"data": {"response": false, "error": "unknown device"}, "response": true, "version": "1"}`)
		}))
	defer srv.Close()

	n := &Notifier{Device: "x", DeviceKey: test_key, URL: srv.URL, Client: srv.Client()}
	err := n.Notify(testCard(t), time.Now())
	require.Error(t, err)
	nerr, ok := err.(*Error)
	require.True(t, ok)
	assert.Contains(t, nerr.Msg, "unknown device")
}

func TestNotifyOuterRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"data": "bad checksum", "response": false, "version": "1"}`)
		}))
	defer srv.Close()

	n := &Notifier{Device: "x", DeviceKey: test_key, URL: srv.URL, Client: srv.Client()}
	err := n.Notify(testCard(t), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad checksum")
}

func TestNotifyHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", http.StatusInternalServerError)
		}))
	defer srv.Close()

	n := &Notifier{Device: "x", DeviceKey: test_key, URL: srv.URL, Client: srv.Client()}
	err := n.Notify(testCard(t), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP code 500")
}

func TestNotifyPayloadsDiffer(t *testing.T) {
	// The random values keep two scans of the same card from hashing
	// identically.
	var sums []string
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			var got envelope
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			sums = append(sums, got.Checksum)
			fmt.Fprint(w, okBody())
		}))
	defer srv.Close()

	n := &Notifier{Device: "x", DeviceKey: test_key, URL: srv.URL, Client: srv.Client()}
	at := time.Now()
	require.NoError(t, n.Notify(testCard(t), at))
	require.NoError(t, n.Notify(testCard(t), at))
	require.Len(t, sums, 2)
	assert.NotEqual(t, sums[0], sums[1])
}
