package emberon

import (
	"image"
	"image/png"
	"io"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	_ "github.com/xfmoulet/qoi" // registers the qoi decoder with image.Decode
)

// Container is a lossless raster format able to store an arbitrary RGBA
// grid and return it byte for byte.
type Container interface {
	Name() string
	Encode(w io.Writer, img *image.NRGBA) error
}

// PNG stores the grid as an 8-bit RGBA PNG.
type PNG struct {
	CompressionLevel png.CompressionLevel
}

func (PNG) Name() string { return "png" }

func (c PNG) Encode(w io.Writer, img *image.NRGBA) error {
	enc := png.Encoder{CompressionLevel: c.CompressionLevel}
	return enc.Encode(w, img)
}

// QOI stores the grid as a QOI image. Pixels are written straight from
// img.Pix; going through image.Image.At would premultiply alpha and lose
// the colour bytes of every translucent pixel.
type QOI struct{}

func (QOI) Name() string { return "qoi" }

func (QOI) Encode(w io.Writer, img *image.NRGBA) error {
	return encodeQOI(w, img)
}

// ContainerFor picks the container from the destination extension.
// Anything that is not .qoi is written as PNG.
func ContainerFor(path string, pngLevel png.CompressionLevel) Container {
	if strings.EqualFold(filepath.Ext(path), ".qoi") {
		return QOI{}
	}
	return PNG{CompressionLevel: pngLevel}
}

// ReadImage decodes any registered container (PNG and QOI are always
// registered). Data that is not a known image format is reported as a
// magic mismatch.
func ReadImage(r io.Reader) (image.Image, string, error) {
	img, format, err := image.Decode(r)
	if err == image.ErrFormat {
		return nil, "", errors.Wrap(ErrMagicMismatch, "read image: unknown image format")
	}
	if err != nil {
		return nil, "", errors.Wrap(err, "read image")
	}
	return img, format, nil
}
