package reader

// reader is the high-level service that connects the Wiegand card
// pipeline to its consumers: MQTT, the scan webhook, the feedback
// beeper/LED, and a small HTTP server for status and installer test
// scans.

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/stianeikeland/go-rpio/v4"
	"github.com/warthog618/gpiod"

	"doorworks/prox/card"
	"doorworks/prox/mqtt"
	"doorworks/prox/notify"
	"doorworks/prox/sensor"
	"doorworks/prox/wiegand"
)

const (
	// URL for injecting a test scan:
	test_scan_url = "/test_scan"
	// URL for the latest scan + pipeline counters:
	last_scan_url = "/last_scan"
	// URL for liveness checks:
	health_url = "/healthz"
	// Form key for the test scan bit string:
	test_scan_key_bits = "bits"
)

// HTTPTestScan is a request (received via HTTP) to run a bit string
// through the same decode-and-dispatch path a wire scan takes.
//
// Whoever receives this request must send the decoded card back over
// 'Reply'.  Once this is done, the entire channel should be closed.
type HTTPTestScan struct {
	Bits  []byte
	Reply chan<- card.Card
}

// Some state/context for HTTP server:
type ServerCtx struct {
	// A test scan request will be sent on this channel:
	TestScans chan<- HTTPTestScan
	// Snapshot of the latest scan and counters:
	Status *Status
}

// Status is the snapshot HTTP handlers read while the main loop
// writes.  Everything heavier stays in the main loop; this is just
// the last card and a few counters behind a mutex.
type Status struct {
	mu      sync.Mutex
	last    *card.Card
	last_at time.Time
	scans   uint64
	started time.Time
	stats   func() wiegand.Stats
}

func (s *Status) record(c card.Card, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = &c
	s.last_at = at
	s.scans++
}

// scanRecord is the JSON form of one scan.
type scanRecord struct {
	Format   string    `json:"format"`
	Facility uint32    `json:"facility"`
	Number   uint64    `json:"number"`
	Bits     int       `json:"bits"`
	ParityOK bool      `json:"parity_ok"`
	Raw      string    `json:"raw"`
	Time     time.Time `json:"time"`
}

// lastScanReply is the JSON reply for /last_scan.
type lastScanReply struct {
	Scans       uint64      `json:"scans"`
	BitsDropped uint64      `json:"bits_dropped"`
	Overflows   uint64      `json:"overflows"`
	UptimeSec   int64       `json:"uptime_sec"`
	Last        *scanRecord `json:"last"`
}

func recordFor(c card.Card, at time.Time) *scanRecord {
	return &scanRecord{
		Format:   c.Format.String(),
		Facility: c.Facility,
		Number:   c.Number,
		Bits:     c.BitCount,
		ParityOK: c.ParityOK,
		Raw:      c.BitString(),
		Time:     at,
	}
}

func (s *Status) snapshot() lastScanReply {
	s.mu.Lock()
	defer s.mu.Unlock()
	reply := lastScanReply{
		Scans:     s.scans,
		UptimeSec: int64(time.Since(s.started).Seconds()),
	}
	if s.stats != nil {
		st := s.stats()
		reply.BitsDropped = st.BitsDropped
		reply.Overflows = st.Overflows
	}
	if s.last != nil {
		reply.Last = recordFor(*s.last, s.last_at)
	}
	return reply
}

func Run(cfg *Config) {
	use_rpio := cfg.PinBeeper >= 0 || cfg.PinLED >= 0 || cfg.PinContact >= 0
	beep_pin := rpio.Pin(cfg.PinBeeper)
	led_pin := rpio.Pin(cfg.PinLED)
	if use_rpio {
		if err := rpio.Open(); err != nil {
			log.Fatal(err)
		}
		defer rpio.Close()
	}
	if cfg.PinBeeper >= 0 && cfg.PinLED >= 0 {
		beep_pin.Output()
		led_pin.Output()
		for x := 0; x < 5; x++ {
			beep_pin.Toggle()
			led_pin.Toggle()
			time.Sleep(time.Millisecond * 20)
		}
		// Both are active-low; make sure they end up off, and stay
		// off when we exit:
		beep_pin.High()
		led_pin.High()
		defer beep_pin.High()
		defer led_pin.High()
	}

	chip, err := gpiod.NewChip(cfg.Chip)
	if err != nil {
		log.Fatal(err)
	}
	defer chip.Close()

	log.Printf("Listening for cards on %s lines %d/%d...",
		cfg.Chip, cfg.PinD0, cfg.PinD1)
	rdr, err := wiegand.NewReader(context.Background(),
		chip, cfg.PinD0, cfg.PinD1, cfg.wiegandConfig())
	if err != nil {
		log.Fatal(err)
	}

	var client MQTT.Client
	if cfg.MQTT.BrokerAddr != "" {
		log.Printf("Using MQTT broker: %s", cfg.MQTT.BrokerAddr)
		client = mqtt.NewClient(cfg.MQTT)
	}

	var notifier *notify.Notifier
	if cfg.NotifyURL != "" {
		notifier = &notify.Notifier{
			Device:    cfg.NotifyDevice,
			DeviceKey: []byte(cfg.NotifyKey),
			URL:       cfg.NotifyURL,
			Verbose:   cfg.Verbose,
			Client: &http.Client{
				// Avoid transient network issues blocking forever:
				Timeout: 15 * time.Second,
			},
		}
		log.Printf("Using notify endpoint: %s", notifier.URL)
	}

	// nil channel if no contact pin - blocks forever in the select.
	var contact <-chan bool
	if cfg.PinContact >= 0 {
		pin := rpio.Pin(cfg.PinContact)
		pin.Input()
		pin.PullUp()
		settle := time.Duration(cfg.ContactSettleMS) * time.Millisecond
		contact = sensor.ListenContact(pin, settle)
	}

	test_scans := make(chan HTTPTestScan)
	status := &Status{
		started: time.Now(),
		stats:   rdr.Stats,
	}

	// Start HTTP server:
	sctx := ServerCtx{
		TestScans: test_scans,
		Status:    status,
	}
	http.HandleFunc(test_scan_url, sctx.test_scan_handler)
	http.HandleFunc(last_scan_url, sctx.last_scan_handler)
	http.HandleFunc(health_url, sctx.health_handler)
	go func() {
		srv := &http.Server{
			Addr:         cfg.ListenAddr,
			ReadTimeout:  20 * time.Second,
			WriteTimeout: 20 * time.Second,
		}
		log.Printf("Starting HTTP server on %s...", cfg.ListenAddr)
		log.Fatal(srv.ListenAndServe())
	}()

	// Scans from the wire and test scans from HTTP go through the
	// same dispatch path. They intentionally block each other.
	log.Printf("Starting main loop...")
	for {
		select {
		// Card scan from the reader:
		case c, ok := <-rdr.Cards():
			if !ok {
				log.Fatal("Main loop: card pipeline stopped")
			}
			handle_scan(cfg, c, status, client, notifier, beep_pin)

		// Test scan over HTTP:
		case rq := <-test_scans:
			c := rdr.Decode(rq.Bits)
			log.Printf("Main loop: Test scan of %d bits", c.BitCount)
			handle_scan(cfg, c, status, client, notifier, beep_pin)
			rq.Reply <- c
			close(rq.Reply)

		// Contact sensor transition:
		case closed := <-contact:
			state := "open"
			if closed {
				state = "closed"
			}
			log.Printf("Main loop: Contact %s", state)
			if client != nil && cfg.MQTT.TopicContact != "" {
				if err := mqtt.PublishContact(client, cfg.MQTT.TopicContact, closed); err != nil {
					log.Printf("Main loop: Contact publish failed, %s", err)
				}
			}

		// Blink LED to indicate that we're idle:
		case <-time.After(1000 * time.Millisecond):
			if cfg.PinLED >= 0 {
				go func() {
					led_pin.Low()
					<-time.After(50 * time.Millisecond)
					led_pin.High()
				}()
			}
		}
	}
}

// handle_scan dispatches one decoded card: log it, update the HTTP
// snapshot, beep for trusted reads, and hand it to MQTT and the
// notify endpoint.  Decode quality never stops dispatch - a parity
// failure or unknown format is the consumer's call to make.
func handle_scan(cfg *Config, c card.Card, status *Status,
	client MQTT.Client, notifier *notify.Notifier, beep_pin rpio.Pin) {

	now := time.Now()
	if cfg.Verbose {
		log.Printf("Main loop: Received scan: %+v", c)
	}

	switch {
	case c.Format == card.FormatUnknown:
		log.Printf("Main loop: Unknown format, %d bits, raw %d",
			c.BitCount, c.Number)
	case !c.ParityOK:
		log.Printf("Main loop: %s card %s, parity FAILED", c.Format, c)
	default:
		log.Printf("Main loop: %s card %s", c.Format, c)
	}

	status.record(c, now)

	// Short confirm beep, but only for reads we'd trust:
	if cfg.PinBeeper >= 0 && c.ParityOK && c.Format != card.FormatUnknown {
		go func() {
			beep_pin.Low()
			<-time.After(100 * time.Millisecond)
			beep_pin.High()
		}()
	}

	if client != nil && cfg.MQTT.TopicCard != "" {
		if err := mqtt.PublishCard(client, cfg.MQTT.TopicCard, c); err != nil {
			log.Printf("Main loop: Card publish failed, %s", err)
		}
	}

	if notifier != nil {
		if err := notifier.Notify(c, now); err != nil {
			log.Printf("Main loop: Notify failed, %s", err)
		}
	}
}

// HTTP handler for a request to /test_scan:
func (c *ServerCtx) test_scan_handler(w http.ResponseWriter, r *http.Request) {
	// Various sanity checks:
	if r.Method != "POST" {
		log.Printf("%s: Unsupported HTTP %s", test_scan_url, r.Method)
		http.Error(w, "Method is not supported.", http.StatusNotFound)
		return
	}

	if err := r.ParseForm(); err != nil {
		errstr := fmt.Sprintf("Error parsing form: %s", err)
		log.Printf("%s: %s", test_scan_url, errstr)
		http.Error(w, errstr, http.StatusBadRequest)
		return
	}

	raw, ok := r.Form[test_scan_key_bits]
	if !ok {
		errstr := fmt.Sprintf("Form key '%s' is missing", test_scan_key_bits)
		log.Printf("%s: %s", test_scan_url, errstr)
		http.Error(w, errstr, http.StatusBadRequest)
		return
	}

	bits, err := card.ParseBits(raw[0])
	if err != nil {
		errstr := fmt.Sprintf("Error parsing bits: %s", err)
		log.Printf("%s: %s", test_scan_url, errstr)
		http.Error(w, errstr, http.StatusBadRequest)
		return
	}

	// Finally, turn this to a request for the main loop:
	reply := make(chan card.Card)
	rq := HTTPTestScan{
		Bits:  bits,
		Reply: reply,
	}

	// Attempt to send the request to the main loop (which might be
	// busy handling something else):
	select {
	case c.TestScans <- rq:
		// Do nothing else - main loop read our request.
	case <-time.After(15 * time.Second):
		errstr := "Timed out waiting on main loop"
		log.Printf("%s: %s", test_scan_url, errstr)
		http.Error(w, errstr, http.StatusServiceUnavailable)
		return
	}

	// Wait around for the main loop's reply:
	select {
	case decoded := <-reply:
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(recordFor(decoded, time.Now())); err != nil {
			log.Printf("%s: Error writing reply: %s", test_scan_url, err)
		}
	case <-time.After(30 * time.Second):
		// This shouldn't ever happen - the main loop replies as soon
		// as it reads the request.
		errstr := "Main loop received request, but didn't reply?"
		log.Printf("%s: %s", test_scan_url, errstr)
		http.Error(w, errstr, http.StatusInternalServerError)
		return
	}
}

// HTTP handler for a request to /last_scan:
func (c *ServerCtx) last_scan_handler(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		http.Error(w, "Method is not supported.", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(c.Status.snapshot()); err != nil {
		log.Printf("%s: Error writing reply: %s", last_scan_url, err)
	}
}

// HTTP handler for a request to /healthz:
func (c *ServerCtx) health_handler(w http.ResponseWriter, r *http.Request) {
	fmt.Fprintf(w, "OK")
}
