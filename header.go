package emberon

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"hash"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Method selects how the payload region was produced.
// Values are stored in the header and must never change.
type Method uint8

const (
	// MethodStored copies source bytes verbatim.
	MethodStored Method = 0
	// MethodCompressed holds a zlib stream.
	MethodCompressed Method = 1
)

// String returns the human-readable name of a method.
func (m Method) String() string {
	switch m {
	case MethodStored:
		return "none"
	case MethodCompressed:
		return "zlib"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(m))
	}
}

const (
	// Magic tags the current header layout: fixed prefix, then
	// name_len/ext_len and the variable name/ext fields, then the digest.
	Magic = "EMBERON3"
	// LegacyMagic tags the previous layout without filename fields.
	LegacyMagic = "EMBERON2"

	// HeaderSize is the padded size of a current header. The payload
	// always starts at this offset.
	HeaderSize = 512
	// LegacyHeaderSize is the padded size of a legacy header.
	LegacyHeaderSize = 64

	// DigestSize is the length of the SHA-256 digest stored in every header.
	DigestSize = sha256.Size

	// MaxNameLen and MaxExtLen bound the filename fields so that
	// prefix+name+ext+digest always fits into HeaderSize.
	MaxNameLen = 384
	MaxExtLen  = 64

	magicLen         = 8
	legacyPrefixSize = 26 // magic, method, reserved, original_size, compressed_size
	prefixSize       = 30 // legacy prefix + name_len, ext_len
)

// Header is the framing record stored in the first pixels of an image.
type Header struct {
	Magic          [magicLen]byte
	Method         Method
	Reserved       uint8
	OriginalSize   uint64
	CompressedSize uint64
	Name           string
	Ext            string
	Digest         [DigestSize]byte
}

// Legacy reports whether h was parsed from a legacy (EMBERON2) header.
func (h *Header) Legacy() bool {
	return string(h.Magic[:]) == LegacyMagic
}

// Version is the format revision encoded in the magic tag.
func (h *Header) Version() int {
	if h.Legacy() {
		return 2
	}
	return 3
}

// Size is the padded header size, i.e. the offset of the payload region.
func (h *Header) Size() int {
	if h.Legacy() {
		return LegacyHeaderSize
	}
	return HeaderSize
}

// Filename joins the stored name and extension. Empty when the header
// carries no name.
func (h *Header) Filename() string {
	if h.Ext == "" {
		return h.Name
	}
	return h.Name + "." + h.Ext
}

// ComputeDigest hashes the claimed original size together with the
// compressed bytes: sha256(ascii(originalSize) + ":" + compressed).
func ComputeDigest(originalSize uint64, compressed []byte) [DigestSize]byte {
	sha := newDigest(originalSize)
	sha.Write(compressed)
	return sumDigest(sha)
}

// newDigest returns a hash already primed with the size prefix; the
// compressed bytes are written into it by the caller.
func newDigest(originalSize uint64) hash.Hash {
	sha := sha256.New()
	sha.Write([]byte(strconv.FormatUint(originalSize, 10) + ":"))
	return sha
}

func sumDigest(sha hash.Hash) [DigestSize]byte {
	var digest [DigestSize]byte
	copy(digest[:], sha.Sum(nil))
	return digest
}

// SplitFilename splits the base of filename at its last dot. A name
// without a dot has an empty extension.
func SplitFilename(filename string) (name, ext string) {
	base := filepath.Base(filename)
	if base == "." || base == string(filepath.Separator) {
		return "", ""
	}
	idx := strings.LastIndexByte(base, '.')
	if idx < 0 {
		return base, ""
	}
	return base[:idx], base[idx+1:]
}

func checkFilename(name, ext string) error {
	if len(name) > MaxNameLen {
		return errors.Wrapf(ErrFieldTooLong, "encode header: name is %d bytes, max %d", len(name), MaxNameLen)
	}
	if len(ext) > MaxExtLen {
		return errors.Wrapf(ErrFieldTooLong, "encode header: extension is %d bytes, max %d", len(ext), MaxExtLen)
	}
	return nil
}

// NewHeader builds a current-format header for compressed, which must be
// the complete payload region.
func NewHeader(originalSize uint64, compressed []byte, filename string, method Method) *Header {
	h := &Header{
		Method:         method,
		OriginalSize:   originalSize,
		CompressedSize: uint64(len(compressed)),
		Digest:         ComputeDigest(originalSize, compressed),
	}
	copy(h.Magic[:], Magic)
	h.Name, h.Ext = SplitFilename(filename)
	return h
}

// EncodeHeader builds and packs a current-format header.
func EncodeHeader(originalSize uint64, compressed []byte, filename string, method Method) ([]byte, error) {
	return NewHeader(originalSize, compressed, filename, method).MarshalBinary()
}

// MarshalBinary packs h into exactly HeaderSize bytes, big-endian.
func (h *Header) MarshalBinary() ([]byte, error) {
	if h.Legacy() {
		return nil, errors.Wrap(ErrMagicMismatch, "encode header: legacy layout is read-only")
	}
	if err := checkFilename(h.Name, h.Ext); err != nil {
		return nil, err
	}

	b := make([]byte, prefixSize, HeaderSize)
	copy(b[0:8], h.Magic[:])
	b[8] = byte(h.Method)
	b[9] = h.Reserved
	binary.BigEndian.PutUint64(b[10:18], h.OriginalSize)
	binary.BigEndian.PutUint64(b[18:26], h.CompressedSize)
	binary.BigEndian.PutUint16(b[26:28], uint16(len(h.Name)))
	binary.BigEndian.PutUint16(b[28:30], uint16(len(h.Ext)))
	b = append(b, h.Name...)
	b = append(b, h.Ext...)
	b = append(b, h.Digest[:]...)

	if len(b) > HeaderSize {
		return nil, errors.Wrapf(ErrHeaderOverflow, "encode header: %d bytes", len(b))
	}
	return b[:HeaderSize], nil
}

// DecodeHeader parses the header at the start of raw. The magic is checked
// before any other field is read; the layout is chosen by the magic.
// The digest is returned as stored and is not verified here.
func DecodeHeader(raw []byte) (*Header, error) {
	if len(raw) < LegacyHeaderSize {
		return nil, errors.Wrapf(ErrTooSmall, "decode header: %d bytes", len(raw))
	}

	h := &Header{}
	copy(h.Magic[:], raw[0:magicLen])
	switch string(h.Magic[:]) {
	case Magic:
		if len(raw) < HeaderSize {
			return nil, errors.Wrapf(ErrTooSmall, "decode header: %d bytes, need %d", len(raw), HeaderSize)
		}
	case LegacyMagic:
	default:
		return nil, errors.Wrapf(ErrMagicMismatch, "decode header: got %q", raw[0:magicLen])
	}

	h.Method = Method(raw[8])
	h.Reserved = raw[9]
	h.OriginalSize = binary.BigEndian.Uint64(raw[10:18])
	h.CompressedSize = binary.BigEndian.Uint64(raw[18:26])

	if h.Legacy() {
		copy(h.Digest[:], raw[legacyPrefixSize:legacyPrefixSize+DigestSize])
		return h, nil
	}

	nameLen := int(binary.BigEndian.Uint16(raw[26:28]))
	extLen := int(binary.BigEndian.Uint16(raw[28:30]))
	if nameLen > MaxNameLen {
		return nil, errors.Wrapf(ErrFieldTooLong, "decode header: name_len %d", nameLen)
	}
	if extLen > MaxExtLen {
		return nil, errors.Wrapf(ErrFieldTooLong, "decode header: ext_len %d", extLen)
	}

	off := prefixSize
	h.Name = string(raw[off : off+nameLen])
	off += nameLen
	h.Ext = string(raw[off : off+extLen])
	off += extLen
	copy(h.Digest[:], raw[off:off+DigestSize])
	return h, nil
}

// Payload slices the payload region out of raw, the full byte stream the
// header was parsed from. Padding after the region is never returned.
func (h *Header) Payload(raw []byte) ([]byte, error) {
	start := uint64(h.Size())
	if uint64(len(raw)) < start {
		return nil, errors.Wrapf(ErrTooSmall, "extract payload: %d bytes", len(raw))
	}
	avail := uint64(len(raw)) - start
	if h.CompressedSize > avail {
		return nil, errors.Wrapf(ErrTruncatedPayload,
			"extract payload: compressed_size %d, %d bytes available", h.CompressedSize, avail)
	}
	return raw[start : start+h.CompressedSize], nil
}

// Verify checks the stored digest against the payload region.
func (h *Header) Verify(compressed []byte) error {
	return h.checkDigest(ComputeDigest(h.OriginalSize, compressed))
}

func (h *Header) checkDigest(digest [DigestSize]byte) error {
	if !bytes.Equal(digest[:], h.Digest[:]) {
		return errors.Wrapf(ErrDigestMismatch, "verify digest: stored %x, computed %x", h.Digest, digest)
	}
	return nil
}
