package classify

import (
	"math"
	"strconv"
	"strings"
)

var sizeUnits = []string{"B", "KB", "MB", "GB", "TB"}

// FormatSize renders a decimal byte count such as Drive's "size" field.
// An absent ("") or unparsable size renders as "-". Values are scaled by 1024
// to the largest unit not exceeding them, rounded to two decimals with
// trailing zeros dropped: "1536" is "1.5 KB".
func FormatSize(size string) string {
	size = strings.TrimSpace(size)
	if size == "" {
		return "-"
	}
	bytes, err := strconv.ParseInt(size, 10, 64)
	if err != nil || bytes < 0 {
		return "-"
	}
	if bytes == 0 {
		return "0 B"
	}

	value := float64(bytes)
	unit := 0
	for value >= 1024 && unit < len(sizeUnits)-1 {
		value /= 1024
		unit++
	}

	rounded := math.Round(value*100) / 100
	return strconv.FormatFloat(rounded, 'f', -1, 64) + " " + sizeUnits[unit]
}
