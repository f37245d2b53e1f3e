package vdet

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"go.viam.com/test"
)

func TestFileImageLoader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "000000.png")
	test.That(t, imaging.Save(imaging.New(8, 6, color.White), path), test.ShouldBeNil)

	img, err := FileImageLoader{}.Load(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, img.Bounds(), test.ShouldResemble, image.Rect(0, 0, 8, 6))

	_, err = FileImageLoader{}.Load(filepath.Join(dir, "missing.png"))
	var notFound *ImageNotFoundError
	test.That(t, errors.As(err, &notFound), test.ShouldBeTrue)
	test.That(t, notFound.Path, test.ShouldContainSubstring, "missing.png")
	test.That(t, errors.Is(err, os.ErrNotExist), test.ShouldBeTrue)

	garbage := filepath.Join(dir, "000001.png")
	test.That(t, os.WriteFile(garbage, []byte("not a png"), 0o600), test.ShouldBeNil)
	_, err = FileImageLoader{}.Load(garbage)
	test.That(t, errors.As(err, &notFound), test.ShouldBeTrue)
	test.That(t, notFound.Path, test.ShouldEqual, garbage)
	test.That(t, errors.Is(err, os.ErrNotExist), test.ShouldBeFalse)
}
