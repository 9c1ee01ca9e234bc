package core

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/text/language"

	"github.com/orrn/labelspool/internal/config"
)

// Point sizes of the label text. They are physical sizes, so the layout
// scales with the DPI.
const (
	nameFontPt      = 7.0
	nameSmallFontPt = 6.0
	codeFontPt      = 6.0
	priceFontPt     = 5.0

	marginMM     = 1.0
	sideMarginMM = 1.5
	gapMM        = 0.6
	codeGapDots  = 2
	minBarDots   = 8
	blackLevel   = 128
)

var (
	fontsOnce   sync.Once
	regularFont *opentype.Font
	boldFont    *opentype.Font
	fontsErr    error
)

func loadFonts() error {
	fontsOnce.Do(func() {
		regularFont, fontsErr = opentype.Parse(goregular.TTF)
		if fontsErr != nil {
			return
		}
		boldFont, fontsErr = opentype.Parse(gobold.TTF)
	})
	return fontsErr
}

// LabelLayout holds the physical label dimensions and layout constants.
type LabelLayout struct {
	WidthMM              float64
	HeightMM             float64
	DPI                  int
	Symbology            string
	NameMaxChars         int
	PricePrefix          string
	Locale               string
	OffsetXMM            float64
	MinModuleDots        int
	MaxModuleDots        int
	BarcodeMaxWidthRatio float64
	BarHeightMM          float64
}

func LayoutFromConfig(cfg config.LabelConfig) LabelLayout {
	return LabelLayout{
		WidthMM:              cfg.WidthMM,
		HeightMM:             cfg.HeightMM,
		DPI:                  cfg.DPI,
		Symbology:            cfg.Symbology,
		NameMaxChars:         cfg.NameMaxChars,
		PricePrefix:          cfg.PricePrefix,
		Locale:               cfg.Locale,
		OffsetXMM:            cfg.OffsetXMM,
		MinModuleDots:        cfg.MinModuleDots,
		MaxModuleDots:        cfg.MaxModuleDots,
		BarcodeMaxWidthRatio: cfg.BarcodeMaxWidthRatio,
		BarHeightMM:          cfg.BarHeightMM,
	}
}

// Label is a rendered label raster.
type Label struct {
	Image *image.Gray
	PNG   []byte
}

func (l *Label) Base64() string {
	return base64.StdEncoding.EncodeToString(l.PNG)
}

// LabelRenderer rasterizes labels. It is safe for concurrent use; font faces
// are created per call.
type LabelRenderer struct {
	layout LabelLayout
	tag    language.Tag
}

func NewLabelRenderer(layout LabelLayout) (*LabelRenderer, error) {
	if err := loadFonts(); err != nil {
		return nil, fmt.Errorf("failed to load label fonts: %w", err)
	}
	if layout.Locale == "" {
		layout.Locale = "en"
	}
	tag, err := language.Parse(layout.Locale)
	if err != nil {
		return nil, fmt.Errorf("invalid label locale %q: %w", layout.Locale, err)
	}
	if layout.MinModuleDots < 1 {
		layout.MinModuleDots = 1
	}
	if layout.MaxModuleDots < layout.MinModuleDots {
		layout.MaxModuleDots = layout.MinModuleDots
	}
	if layout.BarcodeMaxWidthRatio <= 0 || layout.BarcodeMaxWidthRatio > 1 {
		layout.BarcodeMaxWidthRatio = 1
	}
	return &LabelRenderer{layout: layout, tag: tag}, nil
}

func (r *LabelRenderer) Layout() LabelLayout {
	return r.layout
}

// Size returns the label surface in dots.
func (r *LabelRenderer) Size() (int, int) {
	return mmToDots(r.layout.WidthMM, r.layout.DPI), mmToDots(r.layout.HeightMM, r.layout.DPI)
}

type labelFaces struct {
	name, nameSmall, code, price font.Face
}

func (f *labelFaces) Close() {
	for _, face := range []font.Face{f.name, f.nameSmall, f.code, f.price} {
		if face != nil {
			face.Close()
		}
	}
}

func (r *LabelRenderer) newFaces() (*labelFaces, error) {
	dpi := float64(r.layout.DPI)
	newFace := func(f *opentype.Font, size float64) (font.Face, error) {
		return opentype.NewFace(f, &opentype.FaceOptions{Size: size, DPI: dpi, Hinting: font.HintingFull})
	}

	faces := &labelFaces{}
	var err error
	if faces.name, err = newFace(boldFont, nameFontPt); err != nil {
		return nil, err
	}
	if faces.nameSmall, err = newFace(boldFont, nameSmallFontPt); err != nil {
		faces.Close()
		return nil, err
	}
	if faces.code, err = newFace(regularFont, codeFontPt); err != nil {
		faces.Close()
		return nil, err
	}
	if faces.price, err = newFace(boldFont, priceFontPt); err != nil {
		faces.Close()
		return nil, err
	}
	return faces, nil
}

// Render draws one label. The output depends only on its inputs and the layout.
func (r *LabelRenderer) Render(code, productName string, price decimal.Decimal) (*Label, error) {
	if code == "" {
		return nil, &RenderError{Code: code, Cause: fmt.Errorf("%w: empty payload", ErrEncoding)}
	}
	if price.IsNegative() {
		return nil, &RenderError{Code: code, Cause: ErrInvalidPrice}
	}

	width, height := r.Size()
	if width <= 0 || height <= 0 {
		return nil, &RenderError{Code: code, Cause: fmt.Errorf("%w: %dx%d dots", ErrRenderSurface, width, height)}
	}

	bc, err := encodeBarcode(r.layout.Symbology, code)
	if err != nil {
		return nil, &RenderError{Code: code, Cause: err}
	}

	faces, err := r.newFaces()
	if err != nil {
		return nil, &RenderError{Code: code, Cause: fmt.Errorf("%w: %v", ErrRenderSurface, err)}
	}
	defer faces.Close()

	canvas := image.NewGray(image.Rect(0, 0, width, height))
	draw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, draw.Src)

	dpi := r.layout.DPI
	centerX := width/2 + mmToDots(r.layout.OffsetXMM, dpi)
	margin := mmToDots(marginMM, dpi)
	gap := mmToDots(gapMM, dpi)
	maxTextWidth := width - 2*mmToDots(sideMarginMM, dpi)

	name := truncateRunes(productName, r.layout.NameMaxChars)
	lines, nameFace := layoutName(name, maxTextWidth, faces.name, faces.nameSmall)
	y := margin
	for _, line := range lines {
		drawCentered(canvas, nameFace, line, centerX, y+nameFace.Metrics().Ascent.Ceil())
		y += lineHeight(nameFace)
	}

	priceText := ellipsize(faces.price, r.layout.PricePrefix+formatPrice(r.tag, price), maxTextWidth)
	priceTop := height - margin - lineHeight(faces.price)
	drawCentered(canvas, faces.price, priceText, centerX, priceTop+faces.price.Metrics().Ascent.Ceil())

	blockTop := y + gap
	blockHeight := priceTop - gap - blockTop
	codeHeight := lineHeight(faces.code) + codeGapDots
	barHeight := mmToDots(r.layout.BarHeightMM, dpi)
	if barHeight > blockHeight-codeHeight {
		barHeight = blockHeight - codeHeight
	}
	if barHeight < minBarDots {
		return nil, &RenderError{Code: code, Cause: fmt.Errorf("%w: no vertical room for the barcode", ErrRenderSurface)}
	}

	maxBarWidth := int(float64(width) * r.layout.BarcodeMaxWidthRatio)
	barWidth := barcodeWidth(bc.Bounds().Dx(), maxBarWidth, r.layout.MinModuleDots, r.layout.MaxModuleDots)
	barX := centerX - barWidth/2
	barRect := image.Rect(barX, blockTop, barX+barWidth, blockTop+barHeight)
	// Scale skips writes for boombuler's module sources, so rasterize them first.
	bars := image.NewGray(bc.Bounds())
	draw.Draw(bars, bars.Bounds(), bc, bc.Bounds().Min, draw.Src)
	draw.NearestNeighbor.Scale(canvas, barRect, bars, bars.Bounds(), draw.Src, nil)

	codeText := ellipsize(faces.code, bc.Content(), maxTextWidth)
	codeBaseline := barRect.Max.Y + codeGapDots + faces.code.Metrics().Ascent.Ceil()
	drawCentered(canvas, faces.code, codeText, centerX, codeBaseline)

	threshold(canvas)

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, &RenderError{Code: code, Cause: fmt.Errorf("encode png: %w", err)}
	}

	return &Label{Image: canvas, PNG: buf.Bytes()}, nil
}

// RenderItem renders a PrintItem.
func (r *LabelRenderer) RenderItem(item PrintItem) (*Label, error) {
	return r.Render(item.Code, item.ProductName, item.Price)
}

// threshold forces every dot to pure black or white for monochrome heads.
func threshold(img *image.Gray) {
	for i, v := range img.Pix {
		if v < blackLevel {
			img.Pix[i] = 0
		} else {
			img.Pix[i] = 0xff
		}
	}
}
