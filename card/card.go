package card

// The card package parses completed Wiegand bit sequences into card
// data.  Formats are described by Layout tables rather than hard-coded
// bit twiddling, since (especially for 36-bit cards) the exact field
// boundaries vary by vendor.

import (
	"fmt"
	"strings"
)

// Minimum length worth attempting field extraction on.  Anything
// shorter is reported as FormatUnknown with just the raw value.
const min_frame_bits = 8

// Format identifies a recognized card layout.
type Format int

const (
	FormatUnknown Format = iota
	FormatH10301
	FormatCorporate1000
)

func (f Format) String() string {
	switch f {
	case FormatH10301:
		return "H10301"
	case FormatCorporate1000:
		return "Corporate1000"
	default:
		return "Unknown"
	}
}

// Card is the result of decoding one completed Wiegand frame.
//
// Facility is only meaningful when Format is not FormatUnknown.  For
// unrecognized bit counts, Number holds the raw bits read as an
// unsigned big-endian integer (the low 64 bits, for very long frames)
// so the consumer still has something to log or match against.
//
// ParityOK being false does not suppress Facility/Number: both are
// still extracted from the (possibly corrupt) bits, and it is up to
// the consumer to decide whether to trust the read.
type Card struct {
	Format   Format
	Facility uint32
	Number   uint64
	Bits     []byte
	BitCount int
	ParityOK bool
}

func (c Card) String() string {
	if c.Format == FormatUnknown {
		return fmt.Sprintf("raw %d (%d bits)", c.Number, c.BitCount)
	}
	return fmt.Sprintf("%d-%d", c.Facility, c.Number)
}

// BitString renders the raw bits as a string like "0100110...",
// first received bit leftmost.
func (c Card) BitString() string {
	var sb strings.Builder
	for _, b := range c.Bits {
		if b > 0 {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}

// ParseBits converts a string like "0 1001101 ..." to a bit slice.
// Spaces are allowed as visual separators; anything else besides '0'
// and '1' is an error.
func ParseBits(s string) ([]byte, error) {
	bits := make([]byte, 0, len(s))
	for _, r := range s {
		switch r {
		case '0':
			bits = append(bits, 0)
		case '1':
			bits = append(bits, 1)
		case ' ':
		default:
			return nil, fmt.Errorf("bad bit character %q", r)
		}
	}
	return bits, nil
}
