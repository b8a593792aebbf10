package resource

import (
	"fmt"
	"image"
	"image/color"
	"strings"
	"sync"

	"github.com/fogleman/gg"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"

	"card-field/internal/cards"
)

// Label theme.
var (
	labelBgTop    = color.RGBA{0x0a, 0x0a, 0x0f, 0xff}
	labelBgBottom = color.RGBA{0x1a, 0x1a, 0x24, 0xff}
	labelBorder   = color.RGBA{0x2a, 0x2a, 0x35, 0xff}
	labelRank     = color.RGBA{0xff, 0xd7, 0x00, 0xff}
	labelTitle    = color.RGBA{0xff, 0xff, 0xff, 0xff}
	labelAccent   = color.RGBA{0x00, 0xf3, 0xff, 0xff}
	labelDesc     = color.RGBA{0x8b, 0x8b, 0x99, 0xff}
)

const maxDescriptionRunes = 160

// GGLabelSynthesizer draws card labels onto square gg canvases.
type GGLabelSynthesizer struct {
	mu      sync.Mutex
	regular *opentype.Font
	bold    *opentype.Font
	faces   map[faceKey]font.Face
}

type faceKey struct {
	bold bool
	size float64
}

// NewGGLabelSynthesizer parses the embedded Go fonts once.
func NewGGLabelSynthesizer() (*GGLabelSynthesizer, error) {
	regular, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse regular font: %w", err)
	}
	bold, err := opentype.Parse(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse bold font: %w", err)
	}
	return &GGLabelSynthesizer{
		regular: regular,
		bold:    bold,
		faces:   make(map[faceKey]font.Face),
	}, nil
}

// face returns a cached face. Caller holds s.mu.
func (s *GGLabelSynthesizer) face(bold bool, size float64) (font.Face, error) {
	k := faceKey{bold, size}
	if f, ok := s.faces[k]; ok {
		return f, nil
	}
	src := s.regular
	if bold {
		src = s.bold
	}
	f, err := opentype.NewFace(src, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, err
	}
	s.faces[k] = f
	return f, nil
}

// Synthesize renders card onto a size x size image.
func (s *GGLabelSynthesizer) Synthesize(card cards.Card, size int) (image.Image, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid label size %d", size)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	w := float64(size)
	unit := w / 512 // layout is authored at 512px
	pad := 48 * unit

	dc := gg.NewContext(size, size)

	grad := gg.NewLinearGradient(0, 0, 0, w)
	grad.AddColorStop(0, labelBgTop)
	grad.AddColorStop(1, labelBgBottom)
	dc.SetFillStyle(grad)
	dc.DrawRectangle(0, 0, w, w)
	dc.Fill()

	vignette := gg.NewRadialGradient(w/2, w/2, 0, w/2, w/2, w*0.8)
	vignette.AddColorStop(0, color.RGBA{255, 255, 255, 5})
	vignette.AddColorStop(1, color.RGBA{0, 0, 0, 153})
	dc.SetFillStyle(vignette)
	dc.DrawRectangle(0, 0, w, w)
	dc.Fill()

	dc.SetColor(labelBorder)
	dc.SetLineWidth(4 * unit)
	dc.DrawRectangle(0, 0, w, w)
	dc.Stroke()

	rankFace, err := s.face(true, 32*unit)
	if err != nil {
		return nil, err
	}
	dc.SetFontFace(rankFace)
	dc.SetColor(labelRank)
	dc.DrawStringAnchored(fmt.Sprintf("#%d", card.Rank), w-pad, pad+24*unit, 1, 0)

	titleFace, err := s.face(true, 56*unit)
	if err != nil {
		return nil, err
	}
	dc.SetFontFace(titleFace)
	dc.SetColor(labelTitle)
	dc.DrawString(truncateToWidth(dc, "r/"+card.Name, w-2*pad), pad, w/2-10*unit)

	statFace, err := s.face(false, 28*unit)
	if err != nil {
		return nil, err
	}
	dc.SetFontFace(statFace)
	dc.SetColor(labelAccent)
	dc.DrawString(cards.FormatSubscribers(card.Subscribers)+" subscribers", pad, w/2+40*unit)

	if card.Description != "" {
		descFace, err := s.face(false, 24*unit)
		if err != nil {
			return nil, err
		}
		dc.SetFontFace(descFace)
		dc.SetColor(labelDesc)
		lines := wrapLines(dc, truncateRunes(card.Description, maxDescriptionRunes), w-2*pad, 2)
		y := w - pad - 40*unit
		for _, line := range lines {
			dc.DrawString(line, pad, y)
			y += 32 * unit
		}
	}

	return dc.Image(), nil
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func truncateToWidth(dc *gg.Context, s string, maxW float64) string {
	if w, _ := dc.MeasureString(s); w <= maxW {
		return s
	}
	r := []rune(s)
	for len(r) > 1 {
		r = r[:len(r)-1]
		candidate := string(r) + "..."
		if w, _ := dc.MeasureString(candidate); w <= maxW {
			return candidate
		}
	}
	return string(r)
}

// wrapLines greedily wraps words to maxW, keeping at most maxLines and
// marking overflow with an ellipsis.
func wrapLines(dc *gg.Context, s string, maxW float64, maxLines int) []string {
	words := strings.Fields(s)
	var lines []string
	line := ""
	for _, word := range words {
		candidate := word
		if line != "" {
			candidate = line + " " + word
		}
		if w, _ := dc.MeasureString(candidate); w > maxW && line != "" {
			lines = append(lines, line)
			line = word
			if len(lines) == maxLines {
				lines[maxLines-1] = truncateToWidth(dc, lines[maxLines-1]+"...", maxW)
				return lines
			}
			continue
		}
		line = candidate
	}
	if line != "" && len(lines) < maxLines {
		lines = append(lines, line)
	}
	return lines
}
