// Package weekday converts a set of enabled weekdays to and from the 7-bit
// mask the story API expects. Bit i (0 = Sunday) set means the story airs
// on day i; 127 means every day.
package weekday

// Selection holds one flag per weekday, index 0 = Sunday.
type Selection [7]bool

// AllDays returns a selection with every day enabled.
func AllDays() Selection {
	return Selection{true, true, true, true, true, true, true}
}

// Encode folds a selection into its bitmask, 0..127.
func Encode(sel Selection) int {
	mask := 0
	for i, enabled := range sel {
		if enabled {
			mask |= 1 << i
		}
	}
	return mask
}

// Decode expands a bitmask back into a selection. Bits above the seventh
// are ignored.
func Decode(mask int) Selection {
	var sel Selection
	for i := range sel {
		sel[i] = mask&(1<<i) != 0
	}
	return sel
}
