package emberon

import (
	"bufio"
	"encoding/binary"
	"image"
	"io"
	"math"

	"github.com/pkg/errors"
)

const (
	qoiMagic      = "qoif"
	qoiHeaderSize = 14
	qoiIndexSize  = 64
	qoiMaxRun     = 62

	qoiOpIndex byte = 0b00000000
	qoiOpDiff  byte = 0b01000000
	qoiOpLuma  byte = 0b10000000
	qoiOpRun   byte = 0b11000000
	qoiOpRGB   byte = 0b11111110
	qoiOpRGBA  byte = 0b11111111
)

var qoiEndMarker = []byte{0, 0, 0, 0, 0, 0, 0, 1}

type qoiPixel struct{ r, g, b, a byte }

func (p qoiPixel) hash() byte {
	return (p.r*3 + p.g*5 + p.b*7 + p.a*11) % qoiIndexSize
}

// encodeQOI writes img as a 4-channel QOI stream using the raw,
// unpremultiplied bytes of img.Pix.
func encodeQOI(w io.Writer, img *image.NRGBA) error {
	raw, err := Unpack(img)
	if err != nil {
		return err
	}
	width, height := img.Rect.Dx(), img.Rect.Dy()
	if uint64(width) > math.MaxUint32 || uint64(height) > math.MaxUint32 {
		return errors.Errorf("qoi: %dx%d exceeds format limits", width, height)
	}

	bw := bufio.NewWriter(w)
	var header [qoiHeaderSize]byte
	copy(header[0:4], qoiMagic)
	binary.BigEndian.PutUint32(header[4:8], uint32(width))
	binary.BigEndian.PutUint32(header[8:12], uint32(height))
	header[12] = BytesPerPixel
	header[13] = 0 // sRGB with linear alpha
	bw.Write(header[:])

	var index [qoiIndexSize]qoiPixel
	prev := qoiPixel{a: 255}
	run := 0
	for pos := 0; pos < len(raw); pos += BytesPerPixel {
		px := qoiPixel{raw[pos], raw[pos+1], raw[pos+2], raw[pos+3]}

		if px == prev {
			run++
			if run == qoiMaxRun || pos+BytesPerPixel == len(raw) {
				bw.WriteByte(qoiOpRun | byte(run-1))
				run = 0
			}
			continue
		}
		if run > 0 {
			bw.WriteByte(qoiOpRun | byte(run-1))
			run = 0
		}

		h := px.hash()
		switch {
		case index[h] == px:
			bw.WriteByte(qoiOpIndex | h)
		case px.a != prev.a:
			index[h] = px
			bw.Write([]byte{qoiOpRGBA, px.r, px.g, px.b, px.a})
		default:
			index[h] = px
			dr := int(int8(px.r - prev.r))
			dg := int(int8(px.g - prev.g))
			db := int(int8(px.b - prev.b))
			drg, dbg := dr-dg, db-dg
			switch {
			case dr >= -2 && dr <= 1 && dg >= -2 && dg <= 1 && db >= -2 && db <= 1:
				bw.WriteByte(qoiOpDiff | byte(dr+2)<<4 | byte(dg+2)<<2 | byte(db+2))
			case dg >= -32 && dg <= 31 && drg >= -8 && drg <= 7 && dbg >= -8 && dbg <= 7:
				bw.Write([]byte{qoiOpLuma | byte(dg+32), byte(drg+8)<<4 | byte(dbg+8)})
			default:
				bw.Write([]byte{qoiOpRGB, px.r, px.g, px.b})
			}
		}
		prev = px
	}

	bw.Write(qoiEndMarker)
	return errors.Wrap(bw.Flush(), "qoi: write")
}
