package wiegand

import (
	"context"
	"sync/atomic"
	"time"

	"doorworks/prox/card"
)

const (
	// DefaultTimeout is the quiet period after the last bit that
	// marks a frame as complete.  Wiegand has no framing of its own,
	// so this is a policy knob: lower values detect cards sooner but
	// risk splitting a slowly-clocked reader's frame in two.
	DefaultTimeout = 250 * time.Millisecond

	// DefaultMaxFrameBits bounds frame growth.  Comfortably above
	// any real card format; hitting it means a wiring fault or a
	// runaway line, and the frame is discarded rather than decoded.
	DefaultMaxFrameBits = 128

	// DefaultQueueDepth is the capacity of the bit queue between the
	// edge handlers and the assembler.
	DefaultQueueDepth = 64
)

// Config holds the tuning knobs for a reader.
type Config struct {
	// Quiet period before a frame is considered complete.
	Timeout time.Duration
	// Frames growing past this many bits are discarded.
	MaxFrameBits int
	// Bit queue capacity.
	QueueDepth int
	// Formats to decode; card.DefaultLayouts() if empty.
	Layouts []card.Layout
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxFrameBits <= 0 {
		c.MaxFrameBits = DefaultMaxFrameBits
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = DefaultQueueDepth
	}
	return c
}

// Frame is one complete Wiegand transmission, delimited by a quiet
// period.  Bits are in arrival order, one byte per bit.
type Frame struct {
	Bits      []byte
	StartedAt time.Time
	LastBitAt time.Time
}

// Assembler accumulates queued bits into Frames.  It is the single
// consumer of the bit queue and owns all frame state, so it needs no
// locking: the only synchronization in the whole pipeline is the
// queue itself.
//
// States: idle (no bits buffered), accumulating (buffering bits,
// inactivity timer armed), completing (frame handed off, back to
// idle).  An empty quiet line never emits a frame.
type Assembler struct {
	timeout   time.Duration
	max_bits  int
	bits      <-chan Bit
	frames    chan Frame
	overflows uint64
}

// NewAssembler builds an assembler reading from the given bit queue.
// Call Run to start it.
func NewAssembler(cfg Config, bits <-chan Bit) *Assembler {
	cfg = cfg.withDefaults()
	return &Assembler{
		timeout:  cfg.Timeout,
		max_bits: cfg.MaxFrameBits,
		bits:     bits,
		frames:   make(chan Frame),
	}
}

// Frames delivers one Frame per completed transmission.  Closed when
// Run returns.
func (a *Assembler) Frames() <-chan Frame {
	return a.frames
}

// Overflows reports how many frames were discarded for exceeding the
// bit limit.
func (a *Assembler) Overflows() uint64 {
	return atomic.LoadUint64(&a.overflows)
}

// Run drains the bit queue until ctx is cancelled or the queue is
// closed.  If the queue closes mid-frame, the partial frame is
// flushed before the frames channel closes.
func (a *Assembler) Run(ctx context.Context) {
	defer close(a.frames)

	// Timer is armed only while accumulating.
	timer := time.NewTimer(a.timeout)
	stopTimer(timer)

	var frame Frame
	for {
		if len(frame.Bits) == 0 {
			// Idle: nothing to time out, just wait for a bit.
			select {
			case <-ctx.Done():
				return
			case b, ok := <-a.bits:
				if !ok {
					return
				}
				frame = Frame{
					Bits:      append(make([]byte, 0, 64), b.Value),
					StartedAt: b.Time,
					LastBitAt: b.Time,
				}
				timer.Reset(a.timeout)
			}
			continue
		}

		select {
		case <-ctx.Done():
			return

		case b, ok := <-a.bits:
			if !ok {
				a.emit(ctx, frame)
				return
			}
			frame.Bits = append(frame.Bits, b.Value)
			frame.LastBitAt = b.Time
			if len(frame.Bits) > a.max_bits {
				// Runaway signal.  Drop the frame and go idle;
				// the next bit starts a fresh one.
				atomic.AddUint64(&a.overflows, 1)
				frame = Frame{}
				stopTimer(timer)
				continue
			}
			stopTimer(timer)
			timer.Reset(a.timeout)

		case <-timer.C:
			// Quiet period elapsed - frame is done.
			if !a.emit(ctx, frame) {
				return
			}
			frame = Frame{}
		}
	}
}

func (a *Assembler) emit(ctx context.Context, f Frame) bool {
	select {
	case a.frames <- f:
		return true
	case <-ctx.Done():
		return false
	}
}

// stopTimer stops a timer and swallows any already-fired tick so a
// later Reset starts clean.
func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}
