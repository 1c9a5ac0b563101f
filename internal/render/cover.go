package render

import (
	"fmt"
	"image/color"
	"os"
	"strings"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
)

const (
	coverWidth  = 1280
	coverHeight = 720
)

// RenderCover draws the title card embedded on the first page of the notes
// document. Gated on NOTES_COVER_FONT: without a font the document simply
// ships without a cover.
func RenderCover(title string, outPath string) (string, error) {
	fontPath := strings.TrimSpace(os.Getenv("NOTES_COVER_FONT"))
	if fontPath == "" {
		return "", nil
	}

	titleFace, err := loadFontFace(fontPath, 64)
	if err != nil {
		return "", fmt.Errorf("load cover font: %w", err)
	}
	defer titleFace.Close()

	dc := gg.NewContext(coverWidth, coverHeight)

	dc.SetColor(color.RGBA{R: 0x1f, G: 0x29, B: 0x37, A: 0xff})
	dc.DrawRectangle(0, 0, coverWidth, coverHeight)
	dc.Fill()

	dc.SetColor(color.RGBA{R: 0x3b, G: 0x82, B: 0xf6, A: 0xff})
	dc.DrawRectangle(0, coverHeight-24, coverWidth, 24)
	dc.Fill()

	dc.SetFontFace(titleFace)
	dc.SetColor(color.White)
	dc.DrawStringWrapped(title, coverWidth/2, coverHeight/2, 0.5, 0.5, coverWidth-160, 1.4, gg.AlignCenter)

	if err := dc.SavePNG(outPath); err != nil {
		return "", fmt.Errorf("save cover png: %w", err)
	}
	return outPath, nil
}

func loadFontFace(fontPath string, size float64) (font.Face, error) {
	fontBytes, err := os.ReadFile(fontPath)
	if err != nil {
		return nil, fmt.Errorf("read font file: %w", err)
	}
	parsedFont, err := truetype.Parse(fontBytes)
	if err != nil {
		return nil, fmt.Errorf("parse TTF: %w", err)
	}
	return truetype.NewFace(parsedFont, &truetype.Options{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	}), nil
}
