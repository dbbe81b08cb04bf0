package render

import (
	"fmt"
	"image"

	"slidecast/packages/backend/slide"
	"slidecast/packages/backend/timeline"
)

// Scene pairs slides with their timeline so a frame can be painted for any
// elapsed offset.
type Scene struct {
	renderer *Renderer
	slides   []slide.Slide
	timeline timeline.Timeline
}

// NewScene creates a scene. Entry i of tl must belong to slides[i].
func NewScene(r *Renderer, slides []slide.Slide, tl timeline.Timeline) (*Scene, error) {
	if len(slides) == 0 || len(slides) != len(tl.Entries) {
		return nil, fmt.Errorf("render: %d slides for %d timeline entries", len(slides), len(tl.Entries))
	}
	return &Scene{renderer: r, slides: slides, timeline: tl}, nil
}

// PaintAt paints the slide on screen at elapsedMs. The transition gap after
// a narration keeps showing the same slide.
func (s *Scene) PaintAt(dst *image.RGBA, elapsedMs int64) {
	s.renderer.Paint(dst, s.slides[s.timeline.At(elapsedMs)])
}

// NewFrame allocates a frame for PaintAt.
func (s *Scene) NewFrame() *image.RGBA {
	return s.renderer.NewFrame()
}

// Size returns the frame dimensions.
func (s *Scene) Size() (int, int) {
	return s.renderer.Size()
}

// DurationMs is the length of the scene.
func (s *Scene) DurationMs() int64 {
	return s.timeline.TotalMs
}
