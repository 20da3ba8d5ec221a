package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSKUBin(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantSKU string
		wantBin string
	}{
		{"dash separator", "123456 - A01A1", "123456", "A01A1"},
		{"space separator", "123456 A01A1", "123456", "A01A1"},
		{"dash with empty bin", "123456 - ", "123456", ""},
		{"dash with empty sku", " - A01", "", "A01"},
		{"no separator", "123456A01", "123456A01", ""},
		{"empty field", "", "", ""},
		{"bin containing spaces", "123456 - A01 REAR", "123456", "A01 REAR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sku, bin := ParseSKUBin(tt.input)
			assert.Equal(t, tt.wantSKU, sku)
			assert.Equal(t, tt.wantBin, bin)
		})
	}
}

func TestParseSKUBin_Idempotent(t *testing.T) {
	sku, bin := ParseSKUBin("123456 - A01A1")
	again, againBin := ParseSKUBin(ComposeSKUBin(sku, bin))
	assert.Equal(t, sku, again)
	assert.Equal(t, bin, againBin)
}

func TestValidSKU(t *testing.T) {
	assert.True(t, ValidSKU("1234"))
	assert.True(t, ValidSKU("000123"))
	assert.True(t, ValidSKU("12345678"))

	assert.False(t, ValidSKU("123"))
	assert.False(t, ValidSKU("123456789"))
	assert.False(t, ValidSKU("123456A01"))
	assert.False(t, ValidSKU(""))
	assert.False(t, ValidSKU("12 34"))
}

func TestComposeSKUBin(t *testing.T) {
	assert.Equal(t, "123456 - A01", ComposeSKUBin("123456", "A01"))
	assert.Equal(t, "123456", ComposeSKUBin("123456", ""))
}
