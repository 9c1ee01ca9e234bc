package core

import (
	"fmt"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/code128"
	"github.com/boombuler/barcode/code39"
	"github.com/boombuler/barcode/ean"
)

const (
	SymbologyCode128 = "code128"
	SymbologyCode39  = "code39"
	SymbologyEAN     = "ean"
)

// encodeBarcode returns the unscaled barcode: one dot per module, one dot high.
func encodeBarcode(symbology, code string) (barcode.Barcode, error) {
	var (
		bc  barcode.Barcode
		err error
	)
	switch symbology {
	case SymbologyCode39:
		bc, err = code39.Encode(code, false, true)
	case SymbologyEAN:
		bc, err = ean.Encode(code)
	case SymbologyCode128, "":
		bc, err = code128.Encode(code)
	default:
		return nil, fmt.Errorf("%w: unsupported symbology %q", ErrEncoding, symbology)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	return bc, nil
}

// fitModuleWidth tries module widths from minDots upward and returns the
// widest one whose barcode still fits maxWidth. Zero means even minDots
// overflows.
func fitModuleWidth(modules, maxWidth, minDots, maxDots int) int {
	best := 0
	for w := minDots; w <= maxDots; w++ {
		if modules*w > maxWidth {
			break
		}
		best = w
	}
	return best
}

// barcodeWidth is the drawn width in dots. When no module width fits, the
// barcode is squeezed to maxWidth.
func barcodeWidth(modules, maxWidth, minDots, maxDots int) int {
	if w := fitModuleWidth(modules, maxWidth, minDots, maxDots); w > 0 {
		return modules * w
	}
	return maxWidth
}
