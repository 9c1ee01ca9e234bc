package core

import (
	"image"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

const ellipsis = "…"

// truncateRunes caps s at max runes, ending with an ellipsis when cut.
func truncateRunes(s string, max int) string {
	runes := []rune(strings.TrimSpace(s))
	if max <= 0 || len(runes) <= max {
		return string(runes)
	}
	return strings.TrimRight(string(runes[:max-1]), " ") + ellipsis
}

func measure(face font.Face, s string) int {
	return font.MeasureString(face, s).Ceil()
}

func lineHeight(face font.Face) int {
	m := face.Metrics()
	return (m.Ascent + m.Descent).Ceil()
}

// ellipsize shortens s until it fits maxWidth.
func ellipsize(face font.Face, s string, maxWidth int) string {
	if measure(face, s) <= maxWidth {
		return s
	}
	runes := []rune(s)
	for n := len(runes) - 1; n > 0; n-- {
		candidate := strings.TrimRight(string(runes[:n]), " ") + ellipsis
		if measure(face, candidate) <= maxWidth {
			return candidate
		}
	}
	return ellipsis
}

// layoutName puts the name on one line at the normal size, or wraps it onto
// at most two lines with the smaller face.
func layoutName(name string, maxWidth int, normal, small font.Face) ([]string, font.Face) {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return nil, normal
	}
	if measure(normal, name) <= maxWidth {
		return []string{name}, normal
	}
	return wrapWords(small, name, maxWidth, 2), small
}

// wrapWords is a greedy word wrap. Text beyond maxLines is folded into the
// last line, which is then ellipsized.
func wrapWords(face font.Face, text string, maxWidth, maxLines int) []string {
	var lines []string
	current := ""
	for _, word := range strings.Fields(text) {
		if current == "" {
			current = word
			continue
		}
		if measure(face, current+" "+word) <= maxWidth {
			current += " " + word
			continue
		}
		lines = append(lines, current)
		current = word
	}
	if current != "" {
		lines = append(lines, current)
	}

	if maxLines > 0 && len(lines) > maxLines {
		rest := strings.Join(lines[maxLines-1:], " ")
		lines = append(lines[:maxLines-1], rest)
	}
	for i := range lines {
		lines[i] = ellipsize(face, lines[i], maxWidth)
	}
	return lines
}

func drawCentered(dst draw.Image, face font.Face, s string, centerX, baseline int) {
	d := &font.Drawer{Dst: dst, Src: image.Black, Face: face}
	w := d.MeasureString(s)
	d.Dot = fixed.Point26_6{X: fixed.I(centerX) - w/2, Y: fixed.I(baseline)}
	d.DrawString(s)
}

// formatPrice groups the integer part with the locale's separators.
func formatPrice(tag language.Tag, price decimal.Decimal) string {
	p := message.NewPrinter(tag)
	return p.Sprintf("%v", number.Decimal(price.InexactFloat64(), number.MaxFractionDigits(2)))
}
