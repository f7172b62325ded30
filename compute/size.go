package compute

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

type Size struct {
	Value uint64
	Unit  SizeUnit
}

func NewSize(value uint64, unit SizeUnit) Size {
	return Size{value, unit}
}

// MaxSizeMiB is the largest MiB count whose byte size fits in uint64.
const MaxSizeMiB = math.MaxUint64 >> 20

// ParseSize treats a bare number as MiB, anything else goes through
// humanize ("2GiB", "512 MiB", "1G").
func ParseSize(input string) (Size, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return Size{}, fmt.Errorf("empty size")
	}
	if value, err := strconv.ParseUint(input, 10, 64); err == nil {
		if value > MaxSizeMiB {
			return Size{}, fmt.Errorf("size %s MiB does not fit in 64 bits of bytes", input)
		}
		return NewSize(value, SizeUnitM), nil
	}
	bytes, err := humanize.ParseBytes(input)
	if err != nil {
		return Size{}, err
	}
	return NewSize(bytes, SizeUnitB), nil
}

func (s Size) Bytes() uint64 {
	switch s.Unit {
	default:
		panic("unknown size unit")
	case SizeUnitUnknown:
		return 0
	case SizeUnitB:
		return s.Value
	case SizeUnitK:
		return s.Value * 1024
	case SizeUnitM:
		return s.Value * 1024 * 1024
	case SizeUnitG:
		return s.Value * 1024 * 1024 * 1024
	}
}

func (s Size) M() uint64 {
	return s.Bytes() / 1024 / 1024
}

func (s Size) G() uint64 {
	return s.Bytes() / 1024 / 1024 / 1024
}

func (s Size) IsZero() bool {
	return s.Bytes() == 0
}

func (s Size) String() string {
	return humanize.IBytes(s.Bytes())
}
