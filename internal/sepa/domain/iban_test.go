package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeIBAN(t *testing.T) {
	assert.Equal(t, "DE89370400440532013000", NormalizeIBAN("  de89 3704 0044 0532 0130 00 "))
}

func TestValidIBAN(t *testing.T) {
	valid := []string{
		"DE89370400440532013000",
		"DE02120300000000202051",
		"AT611904300234573201",
		"NL91ABNA0417164300",
	}
	for _, iban := range valid {
		assert.True(t, ValidIBAN(iban), iban)
	}

	invalid := []string{
		"",
		"DE89370400440532013001", // checksum off by one
		"DE8937040044",           // too short
		"DE89 3704 0044 0532 0130 00", // not normalized
		"XX00INVALID!IBAN00000000",
	}
	for _, iban := range invalid {
		assert.False(t, ValidIBAN(iban), iban)
	}
}

func TestSanitizeEndToEndID(t *testing.T) {
	assert.Equal(t, "RE-2025-0042", SanitizeEndToEndID("RE 2025 0042"))
	assert.Equal(t, "NOTPROVIDED", SanitizeEndToEndID("   "))

	long := SanitizeEndToEndID("RE-2025-0042-with-a-very-long-supplier-reference-suffix")
	assert.Len(t, long, 35)
}
