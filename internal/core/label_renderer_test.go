package core

import (
	"bytes"
	"image"
	"image/png"
	"testing"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orrn/labelspool/internal/config"
)

func TestRenderSize(t *testing.T) {
	r := newTestRenderer(t)

	label, err := r.Render("ABC-123", "Green Tea", decimal.NewFromInt(1250))
	require.NoError(t, err)

	assert.Equal(t, 460, label.Image.Bounds().Dx())
	assert.Equal(t, 295, label.Image.Bounds().Dy())

	decoded, err := png.Decode(bytes.NewReader(label.PNG))
	require.NoError(t, err)
	assert.Equal(t, label.Image.Bounds(), decoded.Bounds())
}

func TestRenderDeterministic(t *testing.T) {
	r := newTestRenderer(t)
	price := decimal.RequireFromString("1999.50")

	first, err := r.Render("SKU-0001", "Handmade Ceramic Coffee Mug With Lid", price)
	require.NoError(t, err)
	second, err := r.Render("SKU-0001", "Handmade Ceramic Coffee Mug With Lid", price)
	require.NoError(t, err)

	assert.True(t, bytes.Equal(first.PNG, second.PNG))
	assert.Equal(t, first.Base64(), second.Base64())
}

func TestRenderMonochrome(t *testing.T) {
	r := newTestRenderer(t)

	label, err := r.Render("MONO-1", "Plain", decimal.NewFromInt(5))
	require.NoError(t, err)

	for _, v := range label.Image.Pix {
		if v != 0 && v != 0xff {
			t.Fatalf("found gray level %d", v)
		}
	}
}

func TestRenderDecodesBack(t *testing.T) {
	r := newTestRenderer(t)

	for _, code := range []string{"ABC-123", "100200300", "LOT7-UNIT-42"} {
		t.Run(code, func(t *testing.T) {
			label, err := r.Render(code, "Decode Check", decimal.NewFromInt(10))
			require.NoError(t, err)

			bmp, err := gozxing.NewBinaryBitmapFromImage(label.Image)
			require.NoError(t, err)

			result, err := oned.NewCode128Reader().Decode(bmp, nil)
			require.NoError(t, err)
			assert.Equal(t, code, result.GetText())
		})
	}
}

// longestBarRun returns the tallest stack of identical rows that cross at
// least minEdges black/white edges. Bars are vertical, glyphs are not.
func longestBarRun(img *image.Gray, minEdges int) int {
	b := img.Bounds()
	longest, run := 0, 0
	var prev []uint8
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y):img.PixOffset(b.Max.X, y)]
		edges := 0
		for x := 1; x < len(row); x++ {
			if row[x] != row[x-1] {
				edges++
			}
		}
		if edges >= minEdges && prev != nil && bytes.Equal(row, prev) {
			run++
		} else if edges >= minEdges {
			run = 1
		} else {
			run = 0
		}
		if run > longest {
			longest = run
		}
		prev = row
	}
	return longest
}

func TestRenderDrawsBars(t *testing.T) {
	r := newTestRenderer(t)

	label, err := r.Render("ABC-123", "Decode Check", decimal.NewFromInt(10))
	require.NoError(t, err)

	assert.GreaterOrEqual(t, longestBarRun(label.Image, 20), 30)
}

func TestRenderErrors(t *testing.T) {
	defaults := config.Defaults().Label

	tests := []struct {
		name    string
		mutate  func(*config.LabelConfig)
		code    string
		price   decimal.Decimal
		wantErr error
	}{
		{"empty code", nil, "", decimal.Zero, ErrEncoding},
		{"negative price", nil, "A1", decimal.NewFromInt(-1), ErrInvalidPrice},
		{"ean rejects letters", func(c *config.LabelConfig) { c.Symbology = SymbologyEAN }, "ABCDEFG", decimal.Zero, ErrEncoding},
		{"zero width", func(c *config.LabelConfig) { c.WidthMM = 0 }, "A1", decimal.Zero, ErrRenderSurface},
		{"no room for bars", func(c *config.LabelConfig) { c.HeightMM = 5 }, "A1", decimal.Zero, ErrRenderSurface},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaults
			if tt.mutate != nil {
				tt.mutate(&cfg)
			}
			r, err := NewLabelRenderer(LayoutFromConfig(cfg))
			require.NoError(t, err)

			label, err := r.Render(tt.code, "Name", tt.price)
			assert.Nil(t, label)
			require.ErrorIs(t, err, tt.wantErr)

			var renderErr *RenderError
			require.ErrorAs(t, err, &renderErr)
			assert.Equal(t, tt.code, renderErr.Code)
			assert.Equal(t, KindRender, Classify(err))
		})
	}
}

func TestNewLabelRendererInvalidLocale(t *testing.T) {
	cfg := config.Defaults().Label
	cfg.Locale = "not a locale!"

	_, err := NewLabelRenderer(LayoutFromConfig(cfg))
	assert.Error(t, err)
}

func TestRenderDifferentCodesDiffer(t *testing.T) {
	r := newTestRenderer(t)

	a, err := r.Render("A-1", "Same", decimal.NewFromInt(1))
	require.NoError(t, err)
	b, err := r.Render("B-2", "Same", decimal.NewFromInt(1))
	require.NoError(t, err)

	assert.False(t, bytes.Equal(a.PNG, b.PNG))
}

func TestRenderBarsDifferWithCode(t *testing.T) {
	r := newTestRenderer(t)

	a, err := r.Render("A-1", "Same", decimal.NewFromInt(1))
	require.NoError(t, err)
	b, err := r.Render("B-2", "Same", decimal.NewFromInt(1))
	require.NoError(t, err)

	mid := a.Image.Bounds().Dy() / 2
	rowA := a.Image.Pix[a.Image.PixOffset(0, mid):a.Image.PixOffset(a.Image.Bounds().Dx(), mid)]
	rowB := b.Image.Pix[b.Image.PixOffset(0, mid):b.Image.PixOffset(b.Image.Bounds().Dx(), mid)]
	assert.False(t, bytes.Equal(rowA, rowB))
}
