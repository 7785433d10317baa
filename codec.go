// Package emberon embeds arbitrary files in the pixels of a lossless RGBA
// image and recovers them byte for byte.
//
// An image holds a fixed-size header (magic, method, sizes, original
// filename, SHA-256 digest) followed by the payload, either stored or
// zlib-compressed, zero-padded to fill a near-square pixel grid.
package emberon

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"hash"
	"image"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// EncodeOptions configures an encode.
type EncodeOptions struct {
	// Compress selects MethodCompressed; otherwise the source is stored.
	Compress bool
	// Level is the zlib level, MinLevel..MaxLevel.
	Level int
	// Window is the number of source bytes handed to the compressor at once.
	Window int
	// PNGCompression is used when the destination is written as PNG.
	PNGCompression png.CompressionLevel
	// Container overrides the choice made from the destination extension.
	Container Container

	Logger   logrus.FieldLogger
	Progress Progress
}

// DefaultEncodeOptions compresses at level 6 with 128 MiB windows.
func DefaultEncodeOptions() EncodeOptions {
	return EncodeOptions{
		Compress:       true,
		Level:          DefaultLevel,
		Window:         DefaultEncodeWindow,
		PNGCompression: png.DefaultCompression,
	}
}

func (o *EncodeOptions) normalize() error {
	if o.Level < MinLevel || o.Level > MaxLevel {
		return errors.Errorf("compression level %d out of range %d..%d", o.Level, MinLevel, MaxLevel)
	}
	if o.Window <= 0 {
		o.Window = DefaultEncodeWindow
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	if o.Progress == nil {
		o.Progress = NopProgress
	}
	return nil
}

// DecodeOptions configures a decode.
type DecodeOptions struct {
	// Window is the number of output bytes produced per decompressor call.
	Window int
	// VerifyWhileDecoding hashes the payload in the same pass as
	// decompression instead of before it. Output is still discarded on a
	// digest mismatch, but unverified bytes reach the decompressor.
	VerifyWhileDecoding bool

	Logger   logrus.FieldLogger
	Progress Progress
}

// DefaultDecodeOptions verifies before decompressing, 64 MiB windows.
func DefaultDecodeOptions() DecodeOptions {
	return DecodeOptions{Window: DefaultDecodeWindow}
}

func (o *DecodeOptions) normalize() {
	if o.Window <= 0 {
		o.Window = DefaultDecodeWindow
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	if o.Progress == nil {
		o.Progress = NopProgress
	}
}

// EncodeSummary describes a finished encode.
type EncodeSummary struct {
	Source         string
	Dest           string
	Container      string
	Width, Height  int
	Method         Method
	OriginalSize   uint64
	CompressedSize uint64
}

// DecodeSummary describes a finished decode.
type DecodeSummary struct {
	Source         string
	Dest           string
	Method         Method
	OriginalSize   uint64
	CompressedSize uint64
	Legacy         bool
}

// HeaderInfo is what Inspect reports about an image.
type HeaderInfo struct {
	Magic          string
	Version        int
	Method         Method
	Reserved       uint8
	OriginalSize   uint64
	CompressedSize uint64
	Name           string
	Ext            string
	Digest         string
	Width, Height  int
	Container      string
}

func (i *HeaderInfo) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, " Magic: %s (v%d)\n", i.Magic, i.Version)
	fmt.Fprintf(&b, " Compression: %s\n", i.Method)
	fmt.Fprintf(&b, " Original size: %s\n", humanize.IBytes(i.OriginalSize))
	fmt.Fprintf(&b, " Compressed size: %s\n", humanize.IBytes(i.CompressedSize))
	if i.Name != "" || i.Ext != "" {
		fmt.Fprintf(&b, " Name: %q\n", i.Name)
		fmt.Fprintf(&b, " Extension: %q\n", i.Ext)
	}
	fmt.Fprintf(&b, " SHA-256: %s\n", i.Digest)
	fmt.Fprintf(&b, " Reserved: %d\n", i.Reserved)
	fmt.Fprintf(&b, " Image: %s %dx%d\n", i.Container, i.Width, i.Height)
	return b.String()
}

// EncodeReader compresses (or stores) src and frames it into a pixel grid.
// size is the expected source length for progress, or -1 if unknown.
// The header can only be built once the whole payload is known, so the
// payload is assembled in memory behind space reserved for the header.
func EncodeReader(src io.Reader, size int64, filename string, opts EncodeOptions) (*image.NRGBA, *Header, error) {
	if err := opts.normalize(); err != nil {
		return nil, nil, err
	}
	log := opts.Logger.WithField("file", filename)

	// Fail on an unfit name before reading any data.
	if err := checkFilename(SplitFilename(filename)); err != nil {
		return nil, nil, err
	}

	var capacity int64 = HeaderSize
	if size > 0 {
		capacity += size + size/1000 + 64
	}
	buf := bytes.NewBuffer(make([]byte, HeaderSize, capacity))

	method := MethodStored
	var read int64
	var err error
	if opts.Compress {
		method = MethodCompressed
		log.WithField("level", opts.Level).Debug("compressing source")
		read, err = compressStream(buf, src, opts.Level, opts.Window, size, opts.Progress)
	} else {
		log.Debug("storing source")
		read, err = storeStream(buf, src, opts.Window, size, opts.Progress)
	}
	if err != nil {
		return nil, nil, err
	}

	raw := buf.Bytes()
	h := NewHeader(uint64(read), raw[HeaderSize:], filename, method)
	header, err := h.MarshalBinary()
	if err != nil {
		return nil, nil, err
	}
	copy(raw, header)

	img, err := PackImage(raw)
	if err != nil {
		return nil, nil, err
	}
	log.WithFields(logrus.Fields{
		"original":   h.OriginalSize,
		"compressed": h.CompressedSize,
		"width":      img.Rect.Dx(),
		"height":     img.Rect.Dy(),
	}).Debug("packed pixel grid")
	return img, h, nil
}

// EncodeBytes is EncodeReader for data already in memory.
func EncodeBytes(data []byte, filename string, opts EncodeOptions) (*image.NRGBA, *Header, error) {
	return EncodeReader(bytes.NewReader(data), int64(len(data)), filename, opts)
}

// EncodeFile encodes srcPath into an image at dstPath. The image only
// appears at dstPath once it has been written completely.
func EncodeFile(srcPath, dstPath string, opts EncodeOptions) (*EncodeSummary, error) {
	if err := opts.normalize(); err != nil {
		return nil, err
	}

	in, size, err := openSource(srcPath)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	img, h, err := EncodeReader(in, size, srcPath, opts)
	if err != nil {
		return nil, errors.WithMessagef(err, "encode %s", srcPath)
	}

	container := opts.Container
	if container == nil {
		container = ContainerFor(dstPath, opts.PNGCompression)
	}

	out, err := createPending(dstPath)
	if err != nil {
		return nil, err
	}
	defer out.Discard()

	if err := container.Encode(out, img); err != nil {
		return nil, errors.Wrapf(err, "write %s image %s", container.Name(), dstPath)
	}
	if err := out.Commit(); err != nil {
		return nil, err
	}

	opts.Logger.WithFields(logrus.Fields{"source": srcPath, "dest": dstPath}).Debug("encoded")
	return &EncodeSummary{
		Source:         srcPath,
		Dest:           dstPath,
		Container:      container.Name(),
		Width:          img.Rect.Dx(),
		Height:         img.Rect.Dy(),
		Method:         h.Method,
		OriginalSize:   h.OriginalSize,
		CompressedSize: h.CompressedSize,
	}, nil
}

// ParseImage extracts the header and the bounds-checked payload region from
// a decoded image. Nothing is verified or decompressed.
func ParseImage(img image.Image) (*Header, []byte, error) {
	raw, err := Unpack(img)
	if err != nil {
		return nil, nil, err
	}
	h, err := DecodeHeader(raw)
	if err != nil {
		return nil, nil, err
	}
	payload, err := h.Payload(raw)
	if err != nil {
		return nil, nil, err
	}
	return h, payload, nil
}

// DecodePayload verifies payload against h and writes the original bytes
// to dst. By default the digest is checked before anything is written.
func DecodePayload(h *Header, payload []byte, dst io.Writer, opts DecodeOptions) error {
	opts.normalize()
	log := opts.Logger.WithFields(logrus.Fields{"method": h.Method, "version": h.Version()})

	if h.Method != MethodStored && h.Method != MethodCompressed {
		return errors.Wrapf(ErrUnknownMethod, "decode: method %d", h.Method)
	}

	var sha hash.Hash
	if opts.VerifyWhileDecoding {
		log.Debug("verifying digest while decoding")
		sha = newDigest(h.OriginalSize)
	} else if err := h.Verify(payload); err != nil {
		return err
	}

	if h.Method == MethodStored && uint64(len(payload)) != h.OriginalSize {
		if sha != nil {
			sha.Write(payload)
			if derr := h.checkDigest(sumDigest(sha)); derr != nil {
				return derr
			}
		}
		return errors.Wrapf(ErrSizeMismatch, "decode: stored %d bytes, header claims %d", len(payload), h.OriginalSize)
	}

	var written int64
	var err error
	switch h.Method {
	case MethodCompressed:
		limit := int64(math.MaxInt64)
		if h.OriginalSize < math.MaxInt64 {
			limit = int64(h.OriginalSize)
		}
		written, err = decompressStream(dst, payload, opts.Window, limit, sha, opts.Progress)
	case MethodStored:
		written, err = copyStored(dst, payload, opts.Window, sha, opts.Progress)
	}
	if sha != nil {
		// A digest mismatch explains any codec failure better.
		if derr := h.checkDigest(sumDigest(sha)); derr != nil && (err == nil || errors.Is(err, ErrCodec) || errors.Is(err, ErrSizeMismatch)) {
			return derr
		}
	}
	if err != nil {
		return err
	}

	if uint64(written) != h.OriginalSize {
		return errors.Wrapf(ErrSizeMismatch, "decode: wrote %d bytes, header claims %d", written, h.OriginalSize)
	}
	log.WithField("bytes", written).Debug("decoded payload")
	return nil
}

// DecodeImage recovers the embedded file from img into dst.
func DecodeImage(img image.Image, dst io.Writer, opts DecodeOptions) (*Header, error) {
	h, payload, err := ParseImage(img)
	if err != nil {
		return nil, err
	}
	if err := DecodePayload(h, payload, dst, opts); err != nil {
		return h, err
	}
	return h, nil
}

// DecodeFile recovers the file embedded in srcPath. An empty dstPath is
// derived from the stored filename, placed next to the image. The
// destination only appears once the data is verified and fully written.
func DecodeFile(srcPath, dstPath string, opts DecodeOptions) (*DecodeSummary, error) {
	opts.normalize()

	img, _, err := readImageFile(srcPath)
	if err != nil {
		return nil, err
	}
	h, payload, err := ParseImage(img)
	if err != nil {
		return nil, errors.WithMessagef(err, "decode %s", srcPath)
	}

	if dstPath == "" {
		dstPath = DefaultDestination(srcPath, h)
	}

	out, err := createPending(dstPath)
	if err != nil {
		return nil, err
	}
	defer out.Discard()

	if err := DecodePayload(h, payload, out, opts); err != nil {
		return nil, errors.WithMessagef(err, "decode %s", srcPath)
	}
	if err := out.Commit(); err != nil {
		return nil, err
	}

	opts.Logger.WithFields(logrus.Fields{"source": srcPath, "dest": dstPath}).Debug("decoded")
	return &DecodeSummary{
		Source:         srcPath,
		Dest:           dstPath,
		Method:         h.Method,
		OriginalSize:   h.OriginalSize,
		CompressedSize: h.CompressedSize,
		Legacy:         h.Legacy(),
	}, nil
}

// DefaultDestination is where DecodeFile writes when no destination is
// given: the stored filename in the image's directory, or the image name
// with a .bin extension when nothing usable is stored.
func DefaultDestination(imagePath string, h *Header) string {
	dir := filepath.Dir(imagePath)
	name := filepath.Base(h.Filename())
	switch name {
	case "", ".", "..", string(filepath.Separator):
		base := filepath.Base(imagePath)
		name = strings.TrimSuffix(base, filepath.Ext(base)) + ".bin"
	}
	return filepath.Join(dir, name)
}

// Inspect reports the header of srcPath without verifying or
// decompressing the payload.
func Inspect(srcPath string) (*HeaderInfo, error) {
	img, format, err := readImageFile(srcPath)
	if err != nil {
		return nil, err
	}
	info, err := InspectImage(img)
	if err != nil {
		return nil, errors.WithMessagef(err, "inspect %s", srcPath)
	}
	info.Container = format
	return info, nil
}

// InspectImage parses the header of img.
func InspectImage(img image.Image) (*HeaderInfo, error) {
	raw, err := Unpack(img)
	if err != nil {
		return nil, err
	}
	h, err := DecodeHeader(raw)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	return &HeaderInfo{
		Magic:          string(h.Magic[:]),
		Version:        h.Version(),
		Method:         h.Method,
		Reserved:       h.Reserved,
		OriginalSize:   h.OriginalSize,
		CompressedSize: h.CompressedSize,
		Name:           h.Name,
		Ext:            h.Ext,
		Digest:         hex.EncodeToString(h.Digest[:]),
		Width:          b.Dx(),
		Height:         b.Dy(),
	}, nil
}

func openSource(path string) (*os.File, int64, error) {
	fi, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, 0, errors.Wrap(ErrInputNotFound, path)
	}
	if err != nil {
		return nil, 0, errors.Wrapf(err, "stat %s", path)
	}
	if fi.IsDir() {
		return nil, 0, errors.Wrapf(ErrInputNotFound, "%s is a directory", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "open %s", path)
	}
	return f, fi.Size(), nil
}

func readImageFile(path string) (image.Image, string, error) {
	f, _, err := openSource(path)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	img, format, err := ReadImage(f)
	if err != nil {
		return nil, "", errors.WithMessage(err, path)
	}
	return img, format, nil
}
