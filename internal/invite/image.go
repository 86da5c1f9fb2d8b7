// Package invite renders personalized invitation card images. A card starts
// from a designed template PNG, gets a "Dear <name>" greeting drawn onto it,
// and a QR code carrying the card code and capacity pasted at the bottom
// center. Rendered files are written once and reused on later sends.
package invite

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Greeting placement and color, tuned for the card template layout.
const (
	greetingX        = 250
	greetingY        = 170
	greetingFontSize = 30
)

// maroon matches the template's wedding color scheme.
var maroon = color.RGBA{R: 95, G: 28, B: 28, A: 255}

var unsafeRE = regexp.MustCompile(`[^a-z0-9]+`)

// SafeFilename converts an invitee name into a filesystem-safe slug.
func SafeFilename(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = unsafeRE.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if s == "" {
		return "invitee"
	}
	return s
}

// Generator renders invitation images from a template.
type Generator struct {
	// TemplatePath is the designed card template PNG.
	TemplatePath string
	// OutputDir receives rendered files. It is created on demand.
	OutputDir string
	// BaseURL is prepended to the rendered filename to form a public URL,
	// e.g. "https://host/static/invitations".
	BaseURL string
	// FontPath optionally points to a TTF used for the greeting. When empty
	// or unreadable, a built-in fallback face is used.
	FontPath string
}

// Filename returns the deterministic output filename for a given invitee.
func (g *Generator) Filename(name, cardCode string) string {
	return fmt.Sprintf("invite_%s_%s.png", SafeFilename(name), cardCode)
}

// Generate renders the invitation card for one invitee and returns the public
// URL of the written file. An existing file with the same name is overwritten
// so re-generation after a name fix picks up the change.
func (g *Generator) Generate(name, cardCode string, cardCapacity int) (string, error) {
	tmplFile, err := os.Open(g.TemplatePath)
	if err != nil {
		return "", fmt.Errorf("open template: %w", err)
	}
	defer tmplFile.Close()

	tmpl, err := png.Decode(tmplFile)
	if err != nil {
		return "", fmt.Errorf("decode template: %w", err)
	}

	canvas := image.NewRGBA(tmpl.Bounds())
	draw.Draw(canvas, canvas.Bounds(), tmpl, tmpl.Bounds().Min, draw.Src)

	g.drawGreeting(canvas, name)

	if err := g.drawQR(canvas, fmt.Sprintf("Card: %s | Capacity: %d", cardCode, cardCapacity)); err != nil {
		return "", err
	}

	if err := os.MkdirAll(g.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	filename := g.Filename(name, cardCode)
	out, err := os.Create(filepath.Join(g.OutputDir, filename))
	if err != nil {
		return "", fmt.Errorf("create output file: %w", err)
	}
	defer out.Close()

	if err := png.Encode(out, canvas); err != nil {
		return "", fmt.Errorf("encode png: %w", err)
	}

	return strings.TrimSuffix(g.BaseURL, "/") + "/" + filename, nil
}

// greetingCaser title-cases guest names so ALL-CAPS spreadsheet imports
// still print nicely on the card.
var greetingCaser = cases.Title(language.English)

// drawGreeting writes "Dear <name>" directly on the card, no background box.
func (g *Generator) drawGreeting(dst *image.RGBA, name string) {
	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(maroon),
		Face: g.face(),
		Dot:  fixed.P(greetingX, greetingY),
	}
	d.DrawString("Dear " + greetingCaser.String(name))
}

// face loads the configured TTF, falling back to a built-in bitmap face.
func (g *Generator) face() font.Face {
	if g.FontPath == "" {
		return basicfont.Face7x13
	}
	data, err := os.ReadFile(g.FontPath)
	if err != nil {
		return basicfont.Face7x13
	}
	ft, err := opentype.Parse(data)
	if err != nil {
		return basicfont.Face7x13
	}
	face, err := opentype.NewFace(ft, &opentype.FaceOptions{
		Size:    greetingFontSize,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return basicfont.Face7x13
	}
	return face
}

// drawQR pastes a high error-correction QR at the bottom center, sized
// relative to the card so different template dimensions keep proportions.
func (g *Generator) drawQR(dst *image.RGBA, payload string) error {
	q, err := qrcode.New(payload, qrcode.High)
	if err != nil {
		return fmt.Errorf("build qr: %w", err)
	}

	b := dst.Bounds()
	w, h := b.Dx(), b.Dy()
	size := int(float64(min(w, h)) * 0.18)
	if size < 21 {
		size = 21
	}
	qrImg := q.Image(size)

	x := b.Min.X + (w-size)/2
	y := b.Min.Y + h - size - int(float64(h)*0.06)
	rect := image.Rect(x, y, x+size, y+size)
	draw.Draw(dst, rect, qrImg, qrImg.Bounds().Min, draw.Over)
	return nil
}
