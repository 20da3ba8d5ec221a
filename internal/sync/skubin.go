package sync

import (
	"regexp"
	"strings"
)

// Local SKUs are strictly numeric, four to eight digits.
var skuPattern = regexp.MustCompile(`^\d{4,8}$`)

// ParseSKUBin splits a composite variant SKU of the form "<SKU> - <BIN>"
// into its parts. When the " - " separator is absent the first space splits
// instead; with no separator at all the whole field is the SKU.
func ParseSKUBin(skuField string) (string, string) {
	sep := " "
	if strings.Contains(skuField, " - ") {
		sep = " - "
	}

	parts := strings.SplitN(skuField, sep, 2)
	sku := strings.TrimSpace(parts[0])
	bin := ""
	if len(parts) > 1 {
		bin = strings.TrimSpace(parts[1])
	}
	return sku, bin
}

// ValidSKU reports whether a parsed SKU matches the strict digit pattern.
func ValidSKU(sku string) bool {
	return skuPattern.MatchString(sku)
}

// ComposeSKUBin builds the composite SKU field sent to the remote catalog.
func ComposeSKUBin(sku, bin string) string {
	if bin == "" {
		return sku
	}
	return sku + " - " + bin
}
