package wiegand

// The wiegand package reads proximity cards from badge readers using
// the Wiegand protocol: falling edges on two GPIO data lines encode
// 0 and 1 bits, with nothing but a quiet period to mark the end of a
// transmission.  Edge capture runs in gpiod's event goroutine and
// feeds a bounded queue; a single assembler goroutine turns queued
// bits into frames and decodes them with the card package.

import (
	"context"

	"github.com/warthog618/gpiod"

	"doorworks/prox/card"
)

// Stats is a snapshot of the pipeline's drop counters.  Nothing in
// the pipeline is fatal; these are how trouble shows up.
type Stats struct {
	// Bits dropped because the capture queue was full.
	BitsDropped uint64
	// Frames discarded for exceeding MaxFrameBits.
	Overflows uint64
}

// Reader is one capture + assembler + decoder pipeline on a pair of
// data lines.
type Reader struct {
	capture *Capture
	asm     *Assembler
	decoder *card.Decoder
	cards   chan card.Card
}

// NewReader claims the data lines and starts the pipeline.  One card
// is delivered on Cards() per completed frame; overflowed frames are
// discarded and counted instead.  The pipeline stops when ctx is
// cancelled, closing Cards() and releasing the lines.
func NewReader(ctx context.Context, chip *gpiod.Chip, d0_pin, d1_pin int, cfg Config) (*Reader, error) {
	cfg = cfg.withDefaults()

	capture, err := NewCapture(chip, d0_pin, d1_pin, cfg.QueueDepth)
	if err != nil {
		return nil, err
	}

	r := &Reader{
		capture: capture,
		asm:     NewAssembler(cfg, capture.Bits()),
		decoder: card.NewDecoder(cfg.Layouts...),
		cards:   make(chan card.Card),
	}

	go r.asm.Run(ctx)
	go func() {
		defer close(r.cards)
		defer r.capture.Close()
		for f := range r.asm.Frames() {
			select {
			case r.cards <- r.decoder.Decode(f.Bits):
			case <-ctx.Done():
				return
			}
		}
	}()

	return r, nil
}

// Cards delivers one decoded card per completed frame.
func (r *Reader) Cards() <-chan card.Card {
	return r.cards
}

// Decode runs an arbitrary bit sequence through this reader's layout
// table, exactly as if it had arrived on the wire.
func (r *Reader) Decode(bits []byte) card.Card {
	return r.decoder.Decode(bits)
}

// Stats snapshots the drop counters.
func (r *Reader) Stats() Stats {
	return Stats{
		BitsDropped: r.capture.Dropped(),
		Overflows:   r.asm.Overflows(),
	}
}

// ListenCards is the simple entry point: start a reader with the
// given config and return its card channel.
//
// The pins d0_pin and d1_pin should be given as GPIO line offsets on
// the chip.
func ListenCards(ctx context.Context, chip *gpiod.Chip, d0_pin, d1_pin int, cfg Config) (<-chan card.Card, error) {
	r, err := NewReader(ctx, chip, d0_pin, d1_pin, cfg)
	if err != nil {
		return nil, err
	}
	return r.Cards(), nil
}
