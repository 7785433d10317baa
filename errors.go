package emberon

import "github.com/pkg/errors"

// Errors returned by the codec. Every error handed back to the caller wraps
// exactly one of these with the stage and field that failed; match with
// errors.Is. None of them is retried internally.
var (
	ErrInputNotFound        = errors.New("emberon: input not found")
	ErrUnsupportedImageMode = errors.New("emberon: unsupported image mode, expected 8-bit RGBA")
	ErrTooSmall             = errors.New("emberon: image too small to contain header")
	ErrMagicMismatch        = errors.New("emberon: magic mismatch, not produced by this encoder")
	ErrTruncatedPayload     = errors.New("emberon: image does not contain full payload")
	ErrDigestMismatch       = errors.New("emberon: SHA-256 mismatch, data corrupted or wrong image")
	ErrCodec                = errors.New("emberon: malformed compressed data")
	ErrFieldTooLong         = errors.New("emberon: header field too long")
	ErrHeaderOverflow       = errors.New("emberon: header unexpectedly too large")
	ErrSizeMismatch         = errors.New("emberon: decompressed size does not match header")
	ErrUnknownMethod        = errors.New("emberon: unknown compression method")
	ErrEmptyImage           = errors.New("emberon: cannot lay out zero pixels")
)

// IsCorruption reports whether err means the image content cannot be trusted,
// as opposed to a usage or I/O problem.
func IsCorruption(err error) bool {
	for _, target := range []error{
		ErrTruncatedPayload,
		ErrDigestMismatch,
		ErrCodec,
		ErrSizeMismatch,
		ErrUnknownMethod,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
