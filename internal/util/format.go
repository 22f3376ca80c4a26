package util

import (
	"fmt"
	"math"
	"time"
)

var sizeUnits = []string{"B", "KB", "MB", "GB", "TB", "PB"}

// FormatSize renders a byte count with binary units and up to three
// decimals, dropping trailing zeros.
func FormatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}

	exp := int(math.Log(float64(size)) / math.Log(unit))
	if exp >= len(sizeUnits) {
		exp = len(sizeUnits) - 1
	}
	div := int64(math.Pow(unit, float64(exp)))
	// float rounding in Log can land one unit too high
	if size < div {
		exp--
		div /= unit
	}
	value := size / div
	remainder := size % div
	if remainder == 0 {
		return fmt.Sprintf("%d %s", value, sizeUnits[exp])
	}

	decimal := (remainder * 1000) / div
	switch {
	case decimal%10 != 0:
		return fmt.Sprintf("%d.%03d %s", value, decimal, sizeUnits[exp])
	case decimal%100 != 0:
		return fmt.Sprintf("%d.%02d %s", value, decimal/10, sizeUnits[exp])
	default:
		return fmt.Sprintf("%d.%d %s", value, decimal/100, sizeUnits[exp])
	}
}

// FormatBitrate renders a kbps sample, switching to Mbps at 1000.
func FormatBitrate(kbps int) string {
	if kbps < 1000 {
		return fmt.Sprintf("%d kbps", kbps)
	}
	return fmt.Sprintf("%.2f Mbps", float64(kbps)/1000)
}

// FormatPosition renders seconds as m:ss or h:mm:ss.
func FormatPosition(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	d := time.Duration(seconds * float64(time.Second)).Round(time.Second)
	h := int(d / time.Hour)
	m := int(d/time.Minute) % 60
	s := int(d/time.Second) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
