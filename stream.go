package emberon

import (
	"bytes"
	"hash"
	"io"

	"github.com/klauspost/compress/zlib"
	"github.com/pkg/errors"
)

const (
	// DefaultEncodeWindow bounds how much source is read per compressor call.
	DefaultEncodeWindow = 128 << 20
	// DefaultDecodeWindow bounds how much output is produced per decompressor call.
	DefaultDecodeWindow = 64 << 20
	// DefaultLevel is the zlib level used when compressing.
	DefaultLevel = 6

	MinLevel = zlib.HuffmanOnly
	MaxLevel = zlib.BestCompression
)

// windowBuffer allocates a window no larger than the expected input.
func windowBuffer(window int, total int64) []byte {
	if window <= 0 {
		window = DefaultEncodeWindow
	}
	if total >= 0 && total < int64(window) {
		window = int(total)
		if window == 0 {
			window = 1
		}
	}
	return make([]byte, window)
}

// fillWindow reads until buf is full or r fails. Unlike io.ReadFull it
// hands back the reader's own error, so a decompressor reporting
// io.ErrUnexpectedEOF is not mistaken for a short final window.
func fillWindow(r io.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// compressStream feeds src to a zlib writer one window at a time, in input
// order, appending the stream to dst. The writer is closed after the last
// window so trailing bytes are flushed. It returns the number of source
// bytes consumed.
func compressStream(dst *bytes.Buffer, src io.Reader, level, window int, total int64, progress Progress) (int64, error) {
	zw, err := zlib.NewWriterLevel(dst, level)
	if err != nil {
		return 0, errors.Wrapf(err, "compress: level %d", level)
	}

	buf := windowBuffer(window, total)
	progress.Begin(StageCompress, total)
	defer progress.End()

	var read int64
	for {
		n, rerr := io.ReadFull(src, buf)
		if n > 0 {
			if _, err := zw.Write(buf[:n]); err != nil {
				zw.Close()
				return read, errors.Wrap(err, "compress: write window")
			}
			read += int64(n)
			progress.Advance(int64(n))
		}
		if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
			break
		}
		if rerr != nil {
			zw.Close()
			return read, errors.Wrap(rerr, "compress: read source")
		}
	}

	if err := zw.Close(); err != nil {
		return read, errors.Wrap(err, "compress: flush")
	}
	return read, nil
}

// storeStream copies src into dst verbatim.
func storeStream(dst *bytes.Buffer, src io.Reader, window int, total int64, progress Progress) (int64, error) {
	buf := windowBuffer(window, total)
	progress.Begin(StageStore, total)
	defer progress.End()

	var read int64
	for {
		n, rerr := io.ReadFull(src, buf)
		if n > 0 {
			dst.Write(buf[:n])
			read += int64(n)
			progress.Advance(int64(n))
		}
		if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
			return read, nil
		}
		if rerr != nil {
			return read, errors.Wrap(rerr, "store: read source")
		}
	}
}

// decompressStream inflates compressed into dst one output window at a
// time; each window is written before the next one is requested. When sha
// is non-nil every compressed byte is also fed to it by the time this
// returns, including bytes after the end of the zlib stream. A non-negative
// total caps the output; nothing past it is written.
func decompressStream(dst io.Writer, compressed []byte, window int, total int64, sha hash.Hash, progress Progress) (int64, error) {
	var src io.Reader = bytes.NewReader(compressed)
	if sha != nil {
		src = io.TeeReader(src, sha)
		// Whatever the decompressor leaves unread still has to be hashed.
		defer io.Copy(io.Discard, src)
	}

	zr, err := zlib.NewReader(src)
	if err != nil {
		return 0, errors.Wrapf(ErrCodec, "decompress: %v", err)
	}
	defer zr.Close()

	if window <= 0 {
		window = DefaultDecodeWindow
	}
	buf := windowBuffer(window, total)
	progress.Begin(StageDecompress, total)
	defer progress.End()

	var written int64
	for {
		n, rerr := fillWindow(zr, buf)
		if n > 0 {
			if total >= 0 && written+int64(n) > total {
				return written, errors.Wrapf(ErrSizeMismatch, "decompress: output exceeds %d bytes", total)
			}
			if _, err := dst.Write(buf[:n]); err != nil {
				return written, errors.Wrap(err, "decompress: write destination")
			}
			written += int64(n)
			progress.Advance(int64(n))
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return written, errors.Wrapf(ErrCodec, "decompress: %v", rerr)
		}
	}
	return written, nil
}

// copyStored writes a stored payload to dst in windows.
func copyStored(dst io.Writer, stored []byte, window int, sha hash.Hash, progress Progress) (int64, error) {
	if window <= 0 {
		window = DefaultDecodeWindow
	}
	progress.Begin(StageStore, int64(len(stored)))
	defer progress.End()

	var written int64
	for start := 0; start < len(stored); start += window {
		end := start + window
		if end > len(stored) {
			end = len(stored)
		}
		chunk := stored[start:end]
		if sha != nil {
			sha.Write(chunk)
		}
		if _, err := dst.Write(chunk); err != nil {
			return written, errors.Wrap(err, "copy stored: write destination")
		}
		written += int64(len(chunk))
		progress.Advance(int64(len(chunk)))
	}
	return written, nil
}
