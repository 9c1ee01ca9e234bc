package core

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strconv"
)

const defaultGapMM = 2.0

// TSPL2Generator turns rendered label rasters into TSPL2 BITMAP jobs for
// thermal printers that are driven directly over TCP.
type TSPL2Generator struct {
	GapMM float64
}

func NewTSPL2Generator(gapMM float64) *TSPL2Generator {
	if gapMM <= 0 {
		gapMM = defaultGapMM
	}
	return &TSPL2Generator{GapMM: gapMM}
}

// DecodePayload parses one base64 PNG payload into a grayscale raster.
func DecodePayload(payload string) (*image.Gray, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to decode png: %w", err)
	}
	if gray, ok := img.(*image.Gray); ok {
		return gray, nil
	}
	b := img.Bounds()
	gray := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			gray.Set(x, y, color.GrayModel.Convert(img.At(x, y)))
		}
	}
	return gray, nil
}

// GenerateFromPayloads builds one job for all payloads. Consecutive identical
// payloads share a single BITMAP and are printed with a copy count.
func (g *TSPL2Generator) GenerateFromPayloads(cfg JobConfig, payloads []string) ([]byte, error) {
	if len(payloads) == 0 {
		return nil, ErrNothingToPrint
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "SIZE %.1f mm,%.1f mm\r\n", cfg.WidthMM, cfg.HeightMM)
	fmt.Fprintf(&buf, "GAP %.1f mm,0 mm\r\n", g.GapMM)
	buf.WriteString("DIRECTION 0\r\n")

	for i := 0; i < len(payloads); {
		run := 1
		for i+run < len(payloads) && payloads[i+run] == payloads[i] {
			run++
		}

		img, err := DecodePayload(payloads[i])
		if err != nil {
			return nil, fmt.Errorf("label %d: %w", i+1, err)
		}
		buf.WriteString("CLS\r\n")
		writeBitmap(&buf, img)
		fmt.Fprintf(&buf, "PRINT 1,%d\r\n", run)

		i += run
	}

	return buf.Bytes(), nil
}

// writeBitmap emits a BITMAP command. A cleared bit prints a dot.
func writeBitmap(buf *bytes.Buffer, img *image.Gray) {
	b := img.Bounds()
	widthBytes := (b.Dx() + 7) / 8
	fmt.Fprintf(buf, "BITMAP 0,0,%d,%d,0,", widthBytes, b.Dy())

	row := make([]byte, widthBytes)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for i := range row {
			row[i] = 0xff
		}
		for x := b.Min.X; x < b.Max.X; x++ {
			if img.GrayAt(x, y).Y < blackLevel {
				col := x - b.Min.X
				row[col/8] &^= 0x80 >> uint(col%8)
			}
		}
		buf.Write(row)
	}
	buf.WriteString("\r\n")
}

func mmToDots(mm float64, dpi int) int {
	dotsPerMM := float64(dpi) / 25.4
	return int(mm * dotsPerMM)
}

func ParseDPIStr(dpiStr string) (int, error) {
	dpi, err := strconv.Atoi(dpiStr)
	if err != nil {
		return 0, fmt.Errorf("invalid DPI value: %s", dpiStr)
	}
	if dpi != 203 && dpi != 300 && dpi != 600 {
		return 0, fmt.Errorf("unsupported DPI: %d (supported: 203, 300, 600)", dpi)
	}
	return dpi, nil
}
