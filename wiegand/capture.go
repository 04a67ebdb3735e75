package wiegand

import (
	"sync/atomic"
	"time"

	"github.com/warthog618/gpiod"
)

// Bit is one Wiegand bit as captured from the data lines.
type Bit struct {
	// 0 or 1, depending on which line pulsed.
	Value byte
	// When the falling edge was observed (monotonic).
	Time time.Time
}

// Capture turns falling edges on the two Wiegand data lines into Bit
// values on a bounded queue.  A pulse on D0 is a 0 bit, a pulse on D1
// is a 1 bit.  No debouncing or validation happens here - every edge
// becomes a bit, and it is the assembler's job to make sense of them.
//
// The gpiod event handlers are this system's "interrupt context":
// they never block and do no I/O.  If the queue is full the bit is
// dropped and counted; the mangled frame then fails length or parity
// checks downstream like any other bad read.
//
// If both lines pulse within the same capture window, the two bits
// are queued in whichever order the handlers ran; order across the
// queue is otherwise strictly arrival order.
//
// All state is per-instance, so independent captures on different
// line pairs can coexist in one process.
type Capture struct {
	bits    chan Bit
	d0      *gpiod.Line
	d1      *gpiod.Line
	dropped uint64
}

// NewCapture requests the two data lines from the chip and starts
// edge detection.  Pins are GPIO line offsets on the given chip.  The
// lines idle high (readers pulse them low), so they are requested
// with pull-up bias.
func NewCapture(chip *gpiod.Chip, d0_pin, d1_pin int, queue_depth int) (*Capture, error) {
	if queue_depth <= 0 {
		queue_depth = DefaultQueueDepth
	}
	c := &Capture{bits: make(chan Bit, queue_depth)}

	var err error
	c.d0, err = chip.RequestLine(d0_pin,
		gpiod.WithPullUp,
		gpiod.WithFallingEdge,
		gpiod.WithEventHandler(func(gpiod.LineEvent) { c.push(0) }))
	if err != nil {
		return nil, err
	}

	c.d1, err = chip.RequestLine(d1_pin,
		gpiod.WithPullUp,
		gpiod.WithFallingEdge,
		gpiod.WithEventHandler(func(gpiod.LineEvent) { c.push(1) }))
	if err != nil {
		c.d0.Close()
		return nil, err
	}

	return c, nil
}

// push runs in gpiod's event goroutine and must never block.
func (c *Capture) push(v byte) {
	select {
	case c.bits <- Bit{Value: v, Time: time.Now()}:
	default:
		atomic.AddUint64(&c.dropped, 1)
	}
}

// Bits is the queue the assembler drains.
func (c *Capture) Bits() <-chan Bit {
	return c.bits
}

// Dropped reports how many bits were discarded because the queue was
// full.
func (c *Capture) Dropped() uint64 {
	return atomic.LoadUint64(&c.dropped)
}

// Close releases both lines.  No more bits will be queued, but bits
// already queued remain readable.
func (c *Capture) Close() error {
	err := c.d0.Close()
	if err2 := c.d1.Close(); err == nil {
		err = err2
	}
	return err
}
