package discount

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

var (
	// ErrEmptyTable is returned when a slab table has no rows.
	ErrEmptyTable = errors.New("discount: slab table is empty")
	// ErrSlabGap indicates slabs are not contiguous.
	ErrSlabGap = errors.New("discount: slabs must be contiguous")
	// ErrSlabBand indicates a slab band is out of range or inverted.
	ErrSlabBand = errors.New("discount: invalid slab band")
	// ErrSlabOrder indicates bands decrease as volume grows.
	ErrSlabOrder = errors.New("discount: slab bands must not decrease with volume")
)

// Slab maps a contiguous unit range to a discount percentage band.
// MaxUnits of zero means the slab is open-ended.
type Slab struct {
	MinUnits   int             `json:"minUnits"`
	MaxUnits   int             `json:"maxUnits"`
	MinPercent decimal.Decimal `json:"minPercent"`
	MaxPercent decimal.Decimal `json:"maxPercent"`
}

// Contains reports whether the unit count falls inside the slab.
func (s Slab) Contains(units int) bool {
	if units < s.MinUnits {
		return false
	}
	return s.MaxUnits == 0 || units <= s.MaxUnits
}

// Label renders the slab range, e.g. "11-25" or "101+".
func (s Slab) Label() string {
	if s.MaxUnits == 0 {
		return strconv.Itoa(s.MinUnits) + "+"
	}
	return strconv.Itoa(s.MinUnits) + "-" + strconv.Itoa(s.MaxUnits)
}

// InBand reports whether pct lies within [MinPercent, MaxPercent].
func (s Slab) InBand(pct decimal.Decimal) bool {
	return !pct.LessThan(s.MinPercent) && !pct.GreaterThan(s.MaxPercent)
}

// SlabTable is an ordered list of slabs, lowest volume first.
type SlabTable []Slab

func pct(v string) decimal.Decimal { return decimal.RequireFromString(v) }

// DefaultSlabs is used when a tenant has not configured its own table.
func DefaultSlabs() SlabTable {
	return SlabTable{
		{MinUnits: 1, MaxUnits: 10, MinPercent: pct("0"), MaxPercent: pct("0")},
		{MinUnits: 11, MaxUnits: 25, MinPercent: pct("2"), MaxPercent: pct("3")},
		{MinUnits: 26, MaxUnits: 50, MinPercent: pct("3"), MaxPercent: pct("5")},
		{MinUnits: 51, MaxUnits: 100, MinPercent: pct("5"), MaxPercent: pct("7")},
		{MinUnits: 101, MaxUnits: 0, MinPercent: pct("7"), MaxPercent: pct("10")},
	}
}

// Validate checks contiguity, band ranges and monotonic bands. The lowest
// slab must carry a zero band floor.
func (t SlabTable) Validate() error {
	if len(t) == 0 {
		return ErrEmptyTable
	}
	hundred := decimal.NewFromInt(100)
	if !t[0].MinPercent.IsZero() {
		return fmt.Errorf("%w: lowest slab must start at 0%%", ErrSlabBand)
	}
	for i, s := range t {
		if s.MinPercent.IsNegative() || s.MaxPercent.GreaterThan(hundred) || s.MinPercent.GreaterThan(s.MaxPercent) {
			return fmt.Errorf("%w: slab %s", ErrSlabBand, s.Label())
		}
		if s.MaxUnits != 0 && s.MaxUnits < s.MinUnits {
			return fmt.Errorf("%w: slab %s", ErrSlabGap, s.Label())
		}
		if i == 0 {
			continue
		}
		prev := t[i-1]
		if prev.MaxUnits == 0 || s.MinUnits != prev.MaxUnits+1 {
			return fmt.Errorf("%w: %s then %s", ErrSlabGap, prev.Label(), s.Label())
		}
		if s.MinPercent.LessThan(prev.MinPercent) || s.MaxPercent.LessThan(prev.MaxPercent) {
			return fmt.Errorf("%w: %s then %s", ErrSlabOrder, prev.Label(), s.Label())
		}
	}
	return nil
}

// Find returns the slab containing units.
func (t SlabTable) Find(units int) (Slab, bool) {
	for _, s := range t {
		if s.Contains(units) {
			return s, true
		}
	}
	return Slab{}, false
}
