package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeBarcode(t *testing.T) {
	tests := []struct {
		name      string
		symbology string
		code      string
		wantErr   bool
	}{
		{"code128", SymbologyCode128, "ABC-123", false},
		{"default is code128", "", "ABC-123", false},
		{"code39 full ascii", SymbologyCode39, "abc-123", false},
		{"ean13", SymbologyEAN, "590123412345", false},
		{"ean rejects letters", SymbologyEAN, "59012341234X", true},
		{"unknown symbology", "qr", "ABC", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bc, err := encodeBarcode(tt.symbology, tt.code)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrEncoding)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 1, bc.Bounds().Dy())
			assert.Greater(t, bc.Bounds().Dx(), 0)
		})
	}
}

func TestBarcodeWidth(t *testing.T) {
	tests := []struct {
		name     string
		modules  int
		maxWidth int
		lo, hi   int
		want     int
	}{
		{"largest module that fits", 100, 350, 2, 6, 300},
		{"capped by max module", 50, 1000, 2, 6, 300},
		{"exact fit", 100, 400, 2, 6, 400},
		{"minimum overflows so squeeze", 200, 350, 2, 6, 350},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, barcodeWidth(tt.modules, tt.maxWidth, tt.lo, tt.hi))
		})
	}
}
