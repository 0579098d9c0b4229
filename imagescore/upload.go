package imagescore

import (
	"bytes"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"path/filepath"
	"strings"

	"github.com/teranos/scholar/errors"
)

// ErrInvalidImage is returned for uploads that are not a readable png or jpeg.
var ErrInvalidImage = errors.New("invalid image")

// AllowedExtensions are the accepted upload file extensions.
var AllowedExtensions = []string{"png", "jpg", "jpeg"}

// ValidateUpload checks the extension and that the bytes decode as a png or
// jpeg image. The returned Image carries the detected format.
func ValidateUpload(filename string, data []byte) (Image, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	allowed := false
	for _, a := range AllowedExtensions {
		if ext == a {
			allowed = true
			break
		}
	}
	if !allowed {
		return Image{}, errors.WithHintf(
			errors.Wrapf(ErrInvalidImage, "extension %q not allowed", ext),
			"house photo must be one of: %s", strings.Join(AllowedExtensions, ", "))
	}
	if len(data) == 0 {
		return Image{}, errors.WithHint(errors.Wrap(ErrInvalidImage, "empty upload"),
			"house photo is empty")
	}

	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Image{}, errors.WithHint(errors.Wrapf(ErrInvalidImage, "decode %s: %v", filename, err),
			"house photo could not be read as an image")
	}
	if format != "png" && format != "jpeg" {
		return Image{}, errors.WithHintf(errors.Wrapf(ErrInvalidImage, "unsupported format %s", format),
			"house photo must be png or jpeg")
	}

	return Image{Filename: filename, Format: format, Data: data}, nil
}

// Extension returns the canonical file extension for the image format.
func (img Image) Extension() string {
	if img.Format == "png" {
		return "png"
	}
	return "jpg"
}
