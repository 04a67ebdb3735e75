package notify

// This package posts card-scan events to an HTTP endpoint using a
// shared-device-key checksum scheme: the JSON "data" object is hashed
// together with the device key, and the hex digest rides alongside so
// the receiver can spot tampering or a misconfigured key.  The
// receiver replies with a {data, response, version} envelope; a false
// response carries an error message.

import (
	"bytes"
	"crypto/sha512"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"log"
	"math/rand"
	"net/http"
	"time"

	"doorworks/prox/card"
)

// Notifier contains parameters for the scan webhook.
type Notifier struct {
	// The name of the device
	Device string
	// The device key
	DeviceKey []byte
	// The URL of the receiving endpoint
	URL string
	// Set true for more verbose logging
	Verbose bool
	// The HTTP client (if a custom one is needed)
	Client *http.Client
}

// scanData is the "data" object for a card scan event.
type scanData struct {
	Bits      int    `json:"bits"`
	Facility  uint32 `json:"facility"`
	Format    string `json:"format"`
	Number    uint64 `json:"number"`
	Operation string `json:"operation"`
	ParityOK  bool   `json:"parity_ok"`
	Random    []int  `json:"random"`
	Raw       string `json:"raw"`
	Time      string `json:"time"`
	Version   int    `json:"version"`
	// These fields must remain in sorted order for the checksum.
}

// Response is the envelope a receiver replies with.
type Response struct {
	Data     json.RawMessage `json:"data"`
	Response *bool           `json:"response"`
	Version  string          `json:"version"`
}

// RespData contains the body of a reply.  Not all fields will always
// be used.
type RespData struct {
	Response bool   `json:"response"`
	Data     string `json:"data"`
	Error    string `json:"error"`
}

// An error reported by the receiving endpoint.
type Error struct {
	// The message text (which may be directly from the server, or may
	// be a summary from some flag that is set):
	Msg string
	// The actual response that produced this error:
	Resp *RespData
}

func (err *Error) Error() string {
	return fmt.Sprintf("notify endpoint reported error: %s", err.Msg)
}

// Notify posts one card scan to the endpoint.  The returned error is
// informational - scans are never retried, and the caller is expected
// to log and move on.
func (n *Notifier) Notify(c card.Card, at time.Time) error {
	d := scanData{
		Bits:      c.BitCount,
		Facility:  c.Facility,
		Format:    c.Format.String(),
		Number:    c.Number,
		Operation: "card_scan",
		ParityOK:  c.ParityOK,
		Random:    randomValues(),
		Raw:       c.BitString(),
		Time:      at.UTC().Format(time.RFC3339),
		Version:   1,
	}
	cs, err := checksum(n.DeviceKey, d)
	if err != nil {
		return err
	}

	msg := map[string]interface{}{
		"data":     d,
		"device":   n.Device,
		"checksum": fmt.Sprintf("%X", cs),
	}

	resp_bytes, err := n.post(msg)
	if err != nil {
		return err
	}

	var resp Response
	if err := json.Unmarshal(resp_bytes, &resp); err != nil {
		return err
	}
	_, err = DecodeAndCheck(&resp)
	return err
}

// post POSTs a message to the endpoint, returning the reply body.
func (n *Notifier) post(data interface{}) ([]byte, error) {
	msg_json, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	if n.Verbose {
		log.Printf("Notify: POST to %s: %s", n.URL, msg_json)
	}

	client := n.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Post(n.URL, "application/json", bytes.NewBuffer(msg_json))
	if err != nil {
		return nil, err
	}
	body, err := ioutil.ReadAll(resp.Body)
	defer resp.Body.Close()
	if n.Verbose {
		log.Printf("Notify: HTTP %d, %s", resp.StatusCode, body)
	}
	if resp.StatusCode != 200 {
		return nil, &Error{
			Msg:  fmt.Sprintf("HTTP code %d", resp.StatusCode),
			Resp: nil,
		}
	}
	if err != nil {
		return nil, err
	}

	return body, nil
}

// DecodeAndCheck attempts to parse a Response into RespData.
//
// Returns an error if this fails.  Errors may be from JSON
// unmarshaling, or may be a notify.Error.
func DecodeAndCheck(r *Response) (*RespData, error) {

	if r.Response != nil && !(*r.Response) {
		var s string
		if err := json.Unmarshal(r.Data, &s); err != nil {
			return nil, err
		}
		return nil, &Error{Msg: s, Resp: nil}
	}

	var data RespData
	if err := json.Unmarshal(r.Data, &data); err != nil {
		return nil, err
	}

	if !data.Response {
		msg := data.Error
		if msg == "" {
			msg = data.Data
		}
		return nil, &Error{Msg: msg, Resp: &data}
	}

	return &data, nil
}

// randomValues returns an array with 16 random values (0-255), so no
// two scan payloads for the same card hash identically.
func randomValues() []int {
	vals := make([]int, 16)
	for i := range vals {
		vals[i] = rand.Intn(256)
	}
	return vals
}

// checksumRaw returns the SHA-512 checksum for a given device key and data.
func checksumRaw(key []byte, data []byte) []byte {
	h := sha512.New()
	h.Write(key)
	h.Write(data)
	return h.Sum(nil)
}

// checksum returns the SHA-512 checksum for some device key, and JSON data.
//
// This attempts to turn 'data' to JSON, and then computes the
// checksum over the device key and this data.
func checksum(key []byte, data interface{}) ([]byte, error) {
	data_json, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return checksumRaw(key, data_json), nil
}
