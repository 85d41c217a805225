// Package imagegen talks to text-to-image services.
package imagegen

import (
	"context"
	"errors"
	"strings"

	"github.com/roschler/livepeer-image-helper-back-end/internal/params"
)

// ErrNoImages is returned when a service answers without any image.
var ErrNoImages = errors.New("image service returned no images")

// Request is one generation call.
type Request struct {
	Prompt         string
	NegativePrompt string
	State          params.State
}

// Generator produces images and returns their URLs.
type Generator interface {
	Generate(ctx context.Context, req Request) ([]string, error)
}

// Size is the output size and count used by every call of a generator.
type Size struct {
	Width  int
	Height int
	Count  int
}

// DefaultSize is 1024x1024, one image.
var DefaultSize = Size{Width: 1024, Height: 1024, Count: 1}

func (s Size) orDefault() Size {
	if s.Width <= 0 {
		s.Width = DefaultSize.Width
	}
	if s.Height <= 0 {
		s.Height = DefaultSize.Height
	}
	if s.Count <= 0 {
		s.Count = DefaultSize.Count
	}
	return s
}

func validate(req Request) error {
	if strings.TrimSpace(req.Prompt) == "" {
		return errors.New("generation prompt is empty")
	}
	return nil
}
