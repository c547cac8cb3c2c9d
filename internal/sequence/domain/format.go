package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FormatNumber renders a number template. Recognized placeholders are
// {YEAR}, {YY}, {NUMBER} and {MONTH}; anything else, including malformed
// braces, passes through untouched. {NUMBER} is zero-padded to digitCount
// but never truncated when the counter outgrows the pad width.
func FormatNumber(format string, number int64, digitCount int, at time.Time) string {
	if digitCount <= 0 {
		digitCount = DefaultDigitCount
	}

	out := strings.ReplaceAll(format, "{NUMBER}", fmt.Sprintf("%0*d", digitCount, number))
	out = strings.ReplaceAll(out, "{YEAR}", strconv.Itoa(at.Year()))
	out = strings.ReplaceAll(out, "{YY}", fmt.Sprintf("%02d", at.Year()%100))
	out = strings.ReplaceAll(out, "{MONTH}", fmt.Sprintf("%02d", int(at.Month())))
	return out
}
