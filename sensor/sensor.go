package sensor

import (
	"time"

	"github.com/stianeikeland/go-rpio/v4"
)

// Polling interval while the pin is steady.
const poll_interval = 10 * time.Millisecond

// ListenContact watches pin 'p' for contact (door/tamper switch)
// changes, allowing the given amount of time for the pin's state to
// settle after a transition.  Returns a channel which will send a
// 'true' every time the contact closes (pin reads high after
// settling) and a 'false' every time it opens.
//
// The caller is responsible for rpio.Open() and for configuring the
// pin as an input with the appropriate pull.
func ListenContact(p rpio.Pin, settle time.Duration) <-chan bool {

	ch := make(chan bool)

	go func() {
		last_sent := false
		state := false

		for {
			prev := state
			state = p.Read() == rpio.High

			if state != prev {
				// Let the contact stop bouncing before trusting it.
				<-time.After(settle)
				continue
			}

			if state != last_sent {
				ch <- state
				last_sent = state
			}
			<-time.After(poll_interval)
		}
	}()

	return ch
}
