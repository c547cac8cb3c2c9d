package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatNumberPadding(t *testing.T) {
	at := time.Date(2025, time.March, 14, 9, 30, 0, 0, time.UTC)

	assert.Equal(t, "RG-2025-0007", FormatNumber("RG-{YEAR}-{NUMBER}", 7, 4, at))
	assert.Equal(t, "GS-25-123", FormatNumber("GS-{YY}-{NUMBER}", 123, 3, at))
}

func TestFormatNumberMonth(t *testing.T) {
	at := time.Date(2025, time.March, 14, 9, 30, 0, 0, time.UTC)

	assert.Equal(t, "RG-2025/03-0001", FormatNumber("RG-{YEAR}/{MONTH}-{NUMBER}", 1, 4, at))
}

func TestFormatNumberCounterOutgrowsPad(t *testing.T) {
	at := time.Date(2025, time.December, 31, 23, 59, 0, 0, time.UTC)

	assert.Equal(t, "RG-2025-10001", FormatNumber("RG-{YEAR}-{NUMBER}", 10001, 4, at))
}

func TestFormatNumberUnknownPlaceholderPassesThrough(t *testing.T) {
	at := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, "RG-{year}-0042", FormatNumber("RG-{year}-{NUMBER}", 42, 4, at))
	assert.Equal(t, "{NUMBER", FormatNumber("{NUMBER", 42, 4, at))
}

func TestFormatNumberDefaultDigitCount(t *testing.T) {
	at := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, "0042", FormatNumber("{NUMBER}", 42, 0, at))
}
