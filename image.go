package vdet

import (
	"image"

	"github.com/disintegration/imaging"
)

// An ImageLoader reads the image of one frame.
type ImageLoader interface {
	Load(path string) (image.Image, error)
}

// ImageLoaderFunc adapts a function to an ImageLoader.
type ImageLoaderFunc func(path string) (image.Image, error)

// Load calls f(path).
func (f ImageLoaderFunc) Load(path string) (image.Image, error) {
	return f(path)
}

// FileImageLoader decodes frame images from the local filesystem.
type FileImageLoader struct {
	// AutoOrientation applies the EXIF orientation tag when present.
	AutoOrientation bool
}

// Load opens and decodes the image at path.
func (l FileImageLoader) Load(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(l.AutoOrientation))
	if err != nil {
		return nil, &ImageNotFoundError{Path: path, Err: err}
	}
	return img, nil
}
