// Package imagescore derives the financial (housing) indicator from a photo
// of the applicant's house.
//
// A Scorer returns a 0-100 score where higher means better-off housing.
// Callers treat the score exactly like a manually entered financial score,
// and fall back to manual entry when the scorer returns an error.
package imagescore

import (
	"context"

	"github.com/teranos/scholar/errors"
)

// ErrUnavailable means no classifier is configured.
var ErrUnavailable = errors.Mark(errors.New("image scorer unavailable"), errors.ErrServiceUnavailable)

// Image is an uploaded photo.
type Image struct {
	Filename string
	// Format is "png" or "jpeg", as detected by ValidateUpload.
	Format string
	Data   []byte
}

// ContentType returns the MIME type of the image.
func (img Image) ContentType() string {
	if img.Format == "png" {
		return "image/png"
	}
	return "image/jpeg"
}

// Scorer produces a financial score from a house photo.
type Scorer interface {
	Score(ctx context.Context, img Image) (float64, error)
	Name() string
}

// Neutral is the scorer used when no classifier is configured. It always
// returns ErrUnavailable.
type Neutral struct{}

func (Neutral) Score(context.Context, Image) (float64, error) { return 0, ErrUnavailable }

func (Neutral) Name() string { return "none" }

// Func adapts a function to the Scorer interface.
type Func func(ctx context.Context, img Image) (float64, error)

func (f Func) Score(ctx context.Context, img Image) (float64, error) { return f(ctx, img) }

func (Func) Name() string { return "func" }
