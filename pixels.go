package emberon

import (
	"image"

	"github.com/pkg/errors"
)

// BytesPerPixel is the channel count of every image: 8-bit RGBA.
const BytesPerPixel = 4

// Pack lays payload out on the smallest near-square RGBA grid. The payload
// is zero-padded to whole pixels and then to the full rectangle, so
// len(pix) == width*height*4. Pack may reuse payload's backing array.
func Pack(payload []byte) (width, height int, pix []byte, err error) {
	if pad := (BytesPerPixel - len(payload)%BytesPerPixel) % BytesPerPixel; pad > 0 {
		payload = append(payload, make([]byte, pad)...)
	}

	numPixels := len(payload) / BytesPerPixel
	width, height, err = ChooseDimensions(numPixels)
	if err != nil {
		return 0, 0, nil, errors.Wrap(err, "pack pixels")
	}

	if extra := width*height - numPixels; extra > 0 {
		payload = append(payload, make([]byte, extra*BytesPerPixel)...)
	}
	return width, height, payload, nil
}

// PackImage is Pack wrapped into an *image.NRGBA without copying. NRGBA is
// stored unpremultiplied, so every byte survives a lossless container.
func PackImage(payload []byte) (*image.NRGBA, error) {
	width, height, pix, err := Pack(payload)
	if err != nil {
		return nil, err
	}
	return &image.NRGBA{
		Pix:    pix,
		Stride: width * BytesPerPixel,
		Rect:   image.Rect(0, 0, width, height),
	}, nil
}

// Unpack returns the pixel bytes of img row by row, 4 channels per pixel,
// without reordering. Only 8-bit non-premultiplied RGBA images are
// accepted; any other mode would not hold the bytes that were written.
func Unpack(img image.Image) ([]byte, error) {
	src, ok := img.(*image.NRGBA)
	if !ok {
		return nil, errors.Wrapf(ErrUnsupportedImageMode, "unpack pixels: got %T", img)
	}

	b := src.Bounds()
	rowLen := b.Dx() * BytesPerPixel
	if src.Stride == rowLen && src.PixOffset(b.Min.X, b.Min.Y) == 0 {
		return src.Pix[:rowLen*b.Dy()], nil
	}

	// Sub-images and padded strides: copy rows into a tight buffer.
	raw := make([]byte, 0, rowLen*b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		off := src.PixOffset(b.Min.X, y)
		raw = append(raw, src.Pix[off:off+rowLen]...)
	}
	return raw, nil
}
