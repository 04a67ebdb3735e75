package card

// ParityRule declares one parity check over a contiguous bit range.
// The range includes the parity bit itself: for even parity the
// popcount of the whole range must be even, for odd parity it must be
// odd.
type ParityRule struct {
	// First bit index covered (0-indexed from the first received bit).
	Start int
	// Number of bits covered.
	Len int
	// True for odd parity, false for even.
	Odd bool
}

func (p ParityRule) check(bits []byte) bool {
	var ones int
	for _, b := range bits[p.Start : p.Start+p.Len] {
		if b > 0 {
			ones++
		}
	}
	if p.Odd {
		return ones%2 == 1
	}
	return ones%2 == 0
}

// Layout describes one card format as data: which bit count selects
// it, where the facility code and card number live, and which parity
// rules apply.  Vendor-variant formats (notably 36-bit "Corporate
// 1000" style cards) should be expressed as alternate Layout values
// rather than edits to the decode logic.
type Layout struct {
	Name   string
	Format Format
	// Total frame length that selects this layout.
	Bits int
	// Facility code bit range.
	FacilityStart, FacilityLen int
	// Card number bit range.
	NumberStart, NumberLen int
	// Parity rules; all must pass for ParityOK.
	Parity []ParityRule
}

// H10301 is the standard HID 26-bit layout:
// 1 even-parity bit, 8-bit facility, 16-bit number, 1 odd-parity bit.
// The leading parity covers the first 13 bits, the trailing parity
// the last 13.
func H10301() Layout {
	return Layout{
		Name:          "H10301",
		Format:        FormatH10301,
		Bits:          26,
		FacilityStart: 1, FacilityLen: 8,
		NumberStart: 9, NumberLen: 16,
		Parity: []ParityRule{
			{Start: 0, Len: 13, Odd: false},
			{Start: 13, Len: 13, Odd: true},
		},
	}
}

// Corporate1000 is a common 36-bit layout:
// 1 even-parity bit, 14-bit facility, 20-bit number, 1 odd-parity
// bit, with the parities covering the first and last 18 bits.  Actual
// 36-bit cards vary by vendor; register your own Layout if yours
// differs.
func Corporate1000() Layout {
	return Layout{
		Name:          "Corporate1000",
		Format:        FormatCorporate1000,
		Bits:          36,
		FacilityStart: 1, FacilityLen: 14,
		NumberStart: 15, NumberLen: 20,
		Parity: []ParityRule{
			{Start: 0, Len: 18, Odd: false},
			{Start: 18, Len: 18, Odd: true},
		},
	}
}

// DefaultLayouts returns the layouts a Decoder uses when none are
// given explicitly.
func DefaultLayouts() []Layout {
	return []Layout{H10301(), Corporate1000()}
}

// Decoder turns completed bit sequences into Cards using a table of
// layouts keyed by bit count.  Decoding is a pure function of the
// bits: the same input always yields the same Card.
type Decoder struct {
	layouts map[int]Layout
}

// NewDecoder builds a decoder for the given layouts.  With no
// arguments the default table is used.  A later layout with the same
// bit count replaces an earlier one.
func NewDecoder(layouts ...Layout) *Decoder {
	if len(layouts) == 0 {
		layouts = DefaultLayouts()
	}
	d := &Decoder{layouts: make(map[int]Layout, len(layouts))}
	for _, l := range layouts {
		d.layouts[l.Bits] = l
	}
	return d
}

// Decode parses one completed frame.  Unrecognized or too-short
// frames come back as FormatUnknown with the raw value; parity
// failures still extract all fields but clear ParityOK.
func (d *Decoder) Decode(bits []byte) Card {
	c := Card{
		Format:   FormatUnknown,
		Bits:     append([]byte(nil), bits...),
		BitCount: len(bits),
	}

	l, ok := d.layouts[len(bits)]
	if !ok || len(bits) < min_frame_bits {
		// Whatever the case, try to read the value.
		c.Number = field(bits, 0, len(bits))
		return c
	}

	c.Format = l.Format
	c.Facility = uint32(field(bits, l.FacilityStart, l.FacilityLen))
	c.Number = field(bits, l.NumberStart, l.NumberLen)
	c.ParityOK = true
	for _, p := range l.Parity {
		if !p.check(bits) {
			c.ParityOK = false
		}
	}
	return c
}

// Decode parses one completed frame with the default layout table.
func Decode(bits []byte) Card {
	return default_decoder.Decode(bits)
}

var default_decoder = NewDecoder()

// field reads bits[start:start+n] as an unsigned big-endian integer.
// Values wider than 64 bits keep the low 64.
func field(bits []byte, start, n int) uint64 {
	var val uint64
	for _, b := range bits[start : start+n] {
		val <<= 1
		if b > 0 {
			val |= 1
		}
	}
	return val
}
