// Package convert holds small wire-format helpers shared across the REST
// and websocket decoders, mirroring the teacher's common/convert package.
package convert

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// StringToDecimal parses a wire-format numeric string into a fixed-point
// decimal. Every price/size field on the wire passes through here rather
// than strconv.ParseFloat — the data model forbids floating point for
// price equality.
func StringToDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("convert: %q is not a valid decimal: %w", s, err)
	}
	return d, nil
}
