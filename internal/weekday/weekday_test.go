package weekday

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name string
		sel  Selection
		want int
	}{
		{"all enabled", AllDays(), 127},
		{"all disabled", Selection{}, 0},
		{"sunday only", Selection{true}, 1},
		{"saturday only", Selection{false, false, false, false, false, false, true}, 64},
		{"weekdays only", Selection{false, true, true, true, true, true, false}, 62},
		{"weekend only", Selection{true, false, false, false, false, false, true}, 65},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Encode(tt.sel))
		})
	}
}

func TestDecode_RoundTrip(t *testing.T) {
	for mask := 0; mask <= 127; mask++ {
		assert.Equal(t, mask, Encode(Decode(mask)), "mask %d", mask)
	}
}

func TestDecode_IgnoresHighBits(t *testing.T) {
	assert.Equal(t, Decode(127), Decode(127|256))
}

func TestEncodeDecode_AllSelections(t *testing.T) {
	// 2^7 selections, exhaustive.
	for mask := 0; mask <= 127; mask++ {
		sel := Decode(mask)
		assert.Equal(t, sel, Decode(Encode(sel)))
	}
}
