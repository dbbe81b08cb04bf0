// Package render paints slides onto video frames.
package render

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"go.uber.org/zap"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"

	"slidecast/packages/backend/slide"
)

const (
	DefaultWidth      = 1920
	DefaultHeight     = 1080
	DefaultBackground = "#1E293B"

	baseHeight = 1080.0
)

// Options controls the frame size and fallback colors.
type Options struct {
	Width  int
	Height int
	// Background is used for slides without a usable background.
	Background string
	// AssetsDir is the only directory image backgrounds are read from.
	// Local image backgrounds are refused when it is empty.
	AssetsDir string
	// AllowedHosts lists the hosts remote image backgrounds may be fetched
	// from. Remote backgrounds are refused when it is empty.
	AllowedHosts []string
}

// DefaultOptions returns 1920x1080 frames on the default background.
func DefaultOptions() Options {
	return Options{Width: DefaultWidth, Height: DefaultHeight, Background: DefaultBackground}
}

var (
	fontsOnce           sync.Once
	regularTTF, boldTTF *truetype.Font
	fontsErr            error
)

func loadFonts() error {
	fontsOnce.Do(func() {
		if regularTTF, fontsErr = truetype.Parse(goregular.TTF); fontsErr != nil {
			return
		}
		boldTTF, fontsErr = truetype.Parse(gobold.TTF)
	})
	return fontsErr
}

type faces struct {
	hero, title, subtitle, body font.Face
}

// Renderer paints slides. A Renderer is not safe for concurrent use; each
// export owns one.
type Renderer struct {
	opts        Options
	faces       faces
	fallback    color.RGBA
	backgrounds map[string]image.Image
	client      *http.Client
	logger      *zap.SugaredLogger
}

// New creates a renderer.
func New(opts Options, logger *zap.SugaredLogger) (*Renderer, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("render: invalid frame size %dx%d", opts.Width, opts.Height)
	}
	if opts.Background == "" {
		opts.Background = DefaultBackground
	}
	fallback, ok := parseHexColor(opts.Background)
	if !ok {
		return nil, fmt.Errorf("render: invalid background color %q", opts.Background)
	}
	if err := loadFonts(); err != nil {
		return nil, fmt.Errorf("render: load fonts: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	scale := float64(opts.Height) / baseHeight
	face := func(f *truetype.Font, size float64) font.Face {
		return truetype.NewFace(f, &truetype.Options{Size: size * scale, Hinting: font.HintingFull})
	}

	r := &Renderer{
		opts: opts,
		faces: faces{
			hero:     face(boldTTF, 104),
			title:    face(boldTTF, 72),
			subtitle: face(regularTTF, 48),
			body:     face(regularTTF, 44),
		},
		fallback:    fallback,
		backgrounds: make(map[string]image.Image),
		logger:      logger,
	}
	r.client = &http.Client{
		Timeout: backgroundTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return errors.New("too many redirects")
			}
			if !r.hostAllowed(req.URL) {
				return fmt.Errorf("%w: redirect to %s", ErrBackgroundNotAllowed, req.URL.Host)
			}
			return nil
		},
	}
	return r, nil
}

// NewFrame allocates a frame of the configured size.
func (r *Renderer) NewFrame() *image.RGBA {
	return image.NewRGBA(image.Rect(0, 0, r.opts.Width, r.opts.Height))
}

// Size returns the frame dimensions.
func (r *Renderer) Size() (int, int) {
	return r.opts.Width, r.opts.Height
}

// Paint fully redraws dst from s. dst must be NewFrame sized.
func (r *Renderer) Paint(dst *image.RGBA, s slide.Slide) {
	dc := gg.NewContextForRGBA(dst)
	w, h := float64(r.opts.Width), float64(r.opts.Height)
	scale := h / baseHeight

	ink := r.paintBackground(dc, s.Background)
	dc.SetColor(ink)

	switch s.Role {
	case slide.RoleCover:
		r.paintCentered(dc, s.Title, s.Subtitle, r.faces.hero, w, h)
	case slide.RoleThankYou:
		title := s.Title
		if strings.TrimSpace(title) == "" {
			title = "Thank you"
		}
		r.paintCentered(dc, title, s.Subtitle, r.faces.hero, w, h)
	default:
		r.paintContent(dc, s, w, scale)
	}
}

func (r *Renderer) paintBackground(dc *gg.Context, ref string) color.Color {
	if img, ok := r.backgrounds[ref]; ok {
		// translucent images must not show the previous frame
		dc.SetColor(r.fallback)
		dc.Clear()
		dc.DrawImage(img, 0, 0)
		// darken for legible white text
		dc.SetRGBA(0, 0, 0, 0.35)
		dc.DrawRectangle(0, 0, float64(r.opts.Width), float64(r.opts.Height))
		dc.Fill()
		return color.White
	}

	bg := r.fallback
	if c, ok := parseHexColor(ref); ok {
		bg = c
	}
	dc.SetColor(bg)
	dc.Clear()
	return inkFor(bg)
}

func (r *Renderer) paintCentered(dc *gg.Context, title, subtitle string, titleFace font.Face, w, h float64) {
	margin := w * 0.1
	dc.SetFontFace(titleFace)
	if subtitle == "" {
		dc.DrawStringWrapped(title, w/2, h/2, 0.5, 0.5, w-2*margin, 1.2, gg.AlignCenter)
		return
	}
	dc.DrawStringWrapped(title, w/2, h*0.45, 0.5, 1, w-2*margin, 1.2, gg.AlignCenter)
	dc.SetFontFace(r.faces.subtitle)
	dc.DrawStringWrapped(subtitle, w/2, h*0.52, 0.5, 0, w-2*margin, 1.3, gg.AlignCenter)
}

func (r *Renderer) paintContent(dc *gg.Context, s slide.Slide, w, scale float64) {
	margin := 120 * scale
	width := w - 2*margin
	y := margin

	if s.Title != "" {
		dc.SetFontFace(r.faces.title)
		for _, line := range dc.WordWrap(s.Title, width) {
			dc.DrawStringAnchored(line, margin, y, 0, 1)
			y += dc.FontHeight() * 1.2
		}
		y += 16 * scale
	}
	if s.Subtitle != "" {
		dc.SetFontFace(r.faces.subtitle)
		for _, line := range dc.WordWrap(s.Subtitle, width) {
			dc.DrawStringAnchored(line, margin, y, 0, 1)
			y += dc.FontHeight() * 1.3
		}
	}
	y += 40 * scale

	dc.SetFontFace(r.faces.body)
	indent := 56 * scale
	for _, bullet := range s.Bullets {
		bullet = strings.TrimSpace(bullet)
		if bullet == "" {
			continue
		}
		dc.DrawStringAnchored("•", margin, y, 0, 1)
		for _, line := range dc.WordWrap(bullet, width-indent) {
			dc.DrawStringAnchored(line, margin+indent, y, 0, 1)
			y += dc.FontHeight() * 1.35
		}
		y += 18 * scale
	}
}

func parseHexColor(s string) (color.RGBA, bool) {
	if len(s) != 7 || s[0] != '#' {
		return color.RGBA{}, false
	}
	v, err := strconv.ParseUint(s[1:], 16, 32)
	if err != nil {
		return color.RGBA{}, false
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xFF}, true
}

// inkFor picks dark or light text for a background by relative luminance.
func inkFor(bg color.RGBA) color.Color {
	lum := 0.2126*float64(bg.R) + 0.7152*float64(bg.G) + 0.0722*float64(bg.B)
	if lum > 140 {
		return color.RGBA{R: 0x11, G: 0x18, B: 0x27, A: 0xFF}
	}
	return color.White
}
