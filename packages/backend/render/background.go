package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"slidecast/packages/backend/slide"
)

const (
	maxBackgroundBytes = 32 << 20
	backgroundTimeout  = 30 * time.Second
)

// ErrBackgroundNotAllowed is returned for image backgrounds outside the
// assets directory or on hosts that are not allowed.
var ErrBackgroundNotAllowed = errors.New("render: background not allowed")

// Preload fetches and scales every image background used by slides. A
// background that cannot be loaded is logged and painted with the fallback
// color instead.
func (r *Renderer) Preload(ctx context.Context, slides []slide.Slide) {
	for _, s := range slides {
		ref := strings.TrimSpace(s.Background)
		if ref == "" || strings.HasPrefix(ref, "#") {
			continue
		}
		if _, done := r.backgrounds[ref]; done {
			continue
		}

		img, err := r.loadImage(ctx, ref)
		if err != nil {
			r.logger.Warnw("background unavailable, using fallback color",
				"error", err,
				"slideID", s.ID,
				"background", ref,
			)
			continue
		}
		r.backgrounds[ref] = cover(img, r.opts.Width, r.opts.Height)
	}
}

func (r *Renderer) loadImage(ctx context.Context, ref string) (image.Image, error) {
	var (
		rc  io.ReadCloser
		err error
	)
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		rc, err = r.openRemote(ctx, ref)
	} else {
		rc, err = r.openAsset(ref)
	}
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	img, _, err := image.Decode(io.LimitReader(rc, maxBackgroundBytes))
	if err != nil {
		return nil, fmt.Errorf("decode background: %w", err)
	}
	return img, nil
}

func (r *Renderer) openRemote(ctx context.Context, ref string) (io.ReadCloser, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return nil, err
	}
	if !r.hostAllowed(u) {
		return nil, fmt.Errorf("%w: host %q", ErrBackgroundNotAllowed, u.Hostname())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch background: %s", resp.Status)
	}
	return resp.Body, nil
}

func (r *Renderer) hostAllowed(u *url.URL) bool {
	host := strings.ToLower(u.Hostname())
	if host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	for _, allowed := range r.opts.AllowedHosts {
		if strings.EqualFold(allowed, host) {
			return true
		}
	}
	return false
}

// openAsset opens ref inside the assets directory. Absolute paths must
// point into it; symlinks cannot escape it.
func (r *Renderer) openAsset(ref string) (io.ReadCloser, error) {
	if r.opts.AssetsDir == "" {
		return nil, fmt.Errorf("%w: no assets directory configured", ErrBackgroundNotAllowed)
	}
	name := filepath.Clean(ref)
	if filepath.IsAbs(name) {
		dir, err := filepath.Abs(r.opts.AssetsDir)
		if err != nil {
			return nil, err
		}
		if name, err = filepath.Rel(dir, name); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrBackgroundNotAllowed, ref)
		}
	}
	if !filepath.IsLocal(name) {
		return nil, fmt.Errorf("%w: %s is outside the assets directory", ErrBackgroundNotAllowed, ref)
	}

	root, err := os.OpenRoot(r.opts.AssetsDir)
	if err != nil {
		return nil, err
	}
	defer root.Close()
	f, err := root.Open(name)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// cover scales img to fill w x h, cropping the overflow around the center.
func cover(img image.Image, w, h int) *image.RGBA {
	src := img.Bounds()
	sw, sh := src.Dx(), src.Dy()
	crop := src
	if sw*h > sh*w {
		cw := sh * w / h
		x0 := src.Min.X + (sw-cw)/2
		crop = image.Rect(x0, src.Min.Y, x0+cw, src.Max.Y)
	} else if sw*h < sh*w {
		ch := sw * h / w
		y0 := src.Min.Y + (sh-ch)/2
		crop = image.Rect(src.Min.X, y0, src.Max.X, y0+ch)
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, crop, draw.Src, nil)
	return dst
}
