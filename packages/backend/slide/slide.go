package slide

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Role is the position a slide plays in a presentation.
type Role string

const (
	RoleCover    Role = "cover"
	RoleContent  Role = "content"
	RoleThankYou Role = "thank_you"
)

// Voice selects the narrator for a slide.
type Voice string

const (
	VoiceMale   Voice = "male"
	VoiceFemale Voice = "female"
)

// DefaultLanguage is used when a deck does not specify one.
const DefaultLanguage = "en"

var languagePattern = regexp.MustCompile(`^[a-z]{2}(-[A-Z]{2})?$`)

// Slide models one finished slide handed over by the editor.
type Slide struct {
	ID          string   `json:"id" yaml:"id" jsonschema:"description=Stable slide identifier"`
	SlideNumber int      `json:"slideNumber" yaml:"slideNumber"`
	Role        Role     `json:"role" yaml:"role" jsonschema:"enum=cover,enum=content,enum=thank_you"`
	Title       string   `json:"title,omitempty" yaml:"title,omitempty"`
	Subtitle    string   `json:"subtitle,omitempty" yaml:"subtitle,omitempty"`
	Bullets     []string `json:"bullets,omitempty" yaml:"bullets,omitempty"`
	// Background is either a #RRGGBB color or an image path/URL.
	Background  string `json:"background,omitempty" yaml:"background,omitempty"`
	VoiceGender Voice  `json:"voiceGender,omitempty" yaml:"voiceGender,omitempty" jsonschema:"enum=male,enum=female"`
}

// Deck is the ordered slide list of one presentation.
type Deck struct {
	Subject  string  `json:"subject" yaml:"subject" jsonschema:"description=Presentation subject used to name the exported file"`
	Language string  `json:"language,omitempty" yaml:"language,omitempty"`
	Slides   []Slide `json:"slides" yaml:"slides"`
}

// ValidLanguage reports whether lang is a tag like "en" or "ar-SA".
func ValidLanguage(lang string) bool {
	return languagePattern.MatchString(lang)
}

// Normalize fills defaults and validates the deck in place. Decks without a
// language get defaultLanguage, or DefaultLanguage when that is empty.
func (d *Deck) Normalize(defaultLanguage string) error {
	if len(d.Slides) == 0 {
		return errors.New("deck must contain at least one slide")
	}

	d.Subject = strings.TrimSpace(d.Subject)
	if d.Language == "" {
		d.Language = defaultLanguage
	}
	if d.Language == "" {
		d.Language = DefaultLanguage
	}
	if !languagePattern.MatchString(d.Language) {
		return fmt.Errorf("language must match %s", languagePattern.String())
	}

	for i := range d.Slides {
		s := &d.Slides[i]
		if s.SlideNumber == 0 {
			s.SlideNumber = i + 1
		}
		if s.ID == "" {
			s.ID = fmt.Sprintf("slide-%d", s.SlideNumber)
		}
		if s.Role == "" {
			s.Role = RoleContent
		}
		switch s.Role {
		case RoleCover, RoleContent, RoleThankYou:
		default:
			return fmt.Errorf("slide %d: unsupported role %q", i+1, s.Role)
		}
		if s.VoiceGender == "" {
			s.VoiceGender = VoiceFemale
		}
		if err := s.VoiceGender.Validate(); err != nil {
			return fmt.Errorf("slide %d: %w", i+1, err)
		}
	}
	return nil
}

// ApplyVoice annotates every slide with the same narrator voice.
func (d *Deck) ApplyVoice(v Voice) error {
	if err := v.Validate(); err != nil {
		return err
	}
	for i := range d.Slides {
		d.Slides[i].VoiceGender = v
	}
	return nil
}

// Validate reports whether v is a supported narrator voice.
func (v Voice) Validate() error {
	switch v {
	case VoiceMale, VoiceFemale:
		return nil
	default:
		return fmt.Errorf("unsupported voice %q", v)
	}
}
