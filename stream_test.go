package emberon

import (
	"bytes"
	"crypto/sha256"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingProgress remembers what the codec reported.
type recordingProgress struct {
	stages   []Stage
	totals   []int64
	advanced int64
	calls    int
	ended    int
}

func (p *recordingProgress) Begin(stage Stage, total int64) {
	p.stages = append(p.stages, stage)
	p.totals = append(p.totals, total)
}

func (p *recordingProgress) Advance(n int64) {
	p.advanced += n
	p.calls++
}

func (p *recordingProgress) End() { p.ended++ }

// makeTestData mixes a compressible pattern with random bytes.
func makeTestData(n int, seed int64) []byte {
	data := make([]byte, n)
	rng := rand.New(rand.NewSource(seed))
	for i := range data {
		if (i/512)%2 == 0 {
			data[i] = byte((i * 17) ^ (i >> 3))
		} else {
			data[i] = byte(rng.Intn(256))
		}
	}
	return data
}

func TestCompressDecompress_Windows(t *testing.T) {
	src := makeTestData(10_000, 1)

	for _, tc := range []struct {
		name         string
		encodeWindow int
		decodeWindow int
		level        int
	}{
		{name: "single_window", encodeWindow: DefaultEncodeWindow, decodeWindow: DefaultDecodeWindow, level: DefaultLevel},
		{name: "many_windows", encodeWindow: 7, decodeWindow: 5, level: DefaultLevel},
		{name: "uneven_windows", encodeWindow: 4096, decodeWindow: 999, level: 9},
		{name: "level_zero", encodeWindow: 1000, decodeWindow: 1000, level: 0},
		{name: "huffman_only", encodeWindow: 1000, decodeWindow: 333, level: MinLevel},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var compressed bytes.Buffer
			enc := &recordingProgress{}
			read, err := compressStream(&compressed, bytes.NewReader(src), tc.level, tc.encodeWindow, int64(len(src)), enc)
			require.NoError(t, err)
			assert.Equal(t, int64(len(src)), read)
			assert.Equal(t, []Stage{StageCompress}, enc.stages)
			assert.Equal(t, int64(len(src)), enc.advanced)
			assert.Equal(t, 1, enc.ended)

			var out bytes.Buffer
			dec := &recordingProgress{}
			written, err := decompressStream(&out, compressed.Bytes(), tc.decodeWindow, int64(len(src)), nil, dec)
			require.NoError(t, err)
			assert.Equal(t, int64(len(src)), written)
			assert.Equal(t, src, out.Bytes())
			assert.Equal(t, int64(len(src)), dec.advanced)
			if tc.decodeWindow < len(src) {
				assert.GreaterOrEqual(t, dec.calls, len(src)/tc.decodeWindow)
			}
		})
	}
}

func TestCompressStream_Empty(t *testing.T) {
	var compressed bytes.Buffer
	read, err := compressStream(&compressed, bytes.NewReader(nil), DefaultLevel, 16, 0, NopProgress)
	require.NoError(t, err)
	assert.Zero(t, read)
	assert.NotZero(t, compressed.Len(), "flush must emit a complete stream")

	var out bytes.Buffer
	written, err := decompressStream(&out, compressed.Bytes(), 16, 0, nil, NopProgress)
	require.NoError(t, err)
	assert.Zero(t, written)
}

func TestCompressStream_BadLevel(t *testing.T) {
	var compressed bytes.Buffer
	_, err := compressStream(&compressed, bytes.NewReader([]byte("x")), 42, 16, 1, NopProgress)
	require.Error(t, err)
}

func TestDecompressStream_Malformed(t *testing.T) {
	src := makeTestData(4096, 2)
	var compressed bytes.Buffer
	_, err := compressStream(&compressed, bytes.NewReader(src), DefaultLevel, 1024, int64(len(src)), NopProgress)
	require.NoError(t, err)
	good := compressed.Bytes()

	for _, tc := range []struct {
		name string
		data []byte
	}{
		{name: "garbage", data: []byte("definitely not a zlib stream")},
		{name: "empty", data: nil},
		{name: "truncated", data: good[:len(good)/2]},
		{name: "missing_checksum", data: good[:len(good)-2]},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := decompressStream(&bytes.Buffer{}, tc.data, 512, int64(len(src)), nil, NopProgress)
			require.ErrorIs(t, err, ErrCodec)
		})
	}
}

func TestDecompressStream_HashesEveryByte(t *testing.T) {
	src := makeTestData(3000, 3)
	var compressed bytes.Buffer
	_, err := compressStream(&compressed, bytes.NewReader(src), DefaultLevel, 1000, int64(len(src)), NopProgress)
	require.NoError(t, err)
	// Bytes after the zlib stream are part of the payload region too.
	compressed.WriteString("trailer")

	sha := sha256.New()
	_, err = decompressStream(&bytes.Buffer{}, compressed.Bytes(), 100, int64(len(src)), sha, NopProgress)
	require.NoError(t, err)

	want := sha256.Sum256(compressed.Bytes())
	assert.Equal(t, want[:], sha.Sum(nil))
}

func TestDecompressStream_StopsAtTotal(t *testing.T) {
	src := makeTestData(5000, 4)
	var compressed bytes.Buffer
	_, err := compressStream(&compressed, bytes.NewReader(src), DefaultLevel, 1000, int64(len(src)), NopProgress)
	require.NoError(t, err)

	for _, tc := range []struct {
		name   string
		total  int64
		window int
	}{
		{name: "one_short", total: int64(len(src)) - 1, window: 1000},
		{name: "far_short", total: 10, window: 1000},
		{name: "zero", total: 0, window: 64},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			written, err := decompressStream(&out, compressed.Bytes(), tc.window, tc.total, nil, NopProgress)
			require.ErrorIs(t, err, ErrSizeMismatch)
			assert.LessOrEqual(t, written, tc.total)
			assert.LessOrEqual(t, int64(out.Len()), tc.total)
		})
	}

	// A negative total leaves the output unbounded.
	var out bytes.Buffer
	written, err := decompressStream(&out, compressed.Bytes(), 1000, -1, nil, NopProgress)
	require.NoError(t, err)
	assert.Equal(t, int64(len(src)), written)
	assert.Equal(t, src, out.Bytes())
}

func TestStoreAndCopyStored(t *testing.T) {
	src := makeTestData(2500, 4)

	var stored bytes.Buffer
	p := &recordingProgress{}
	read, err := storeStream(&stored, bytes.NewReader(src), 300, int64(len(src)), p)
	require.NoError(t, err)
	assert.Equal(t, int64(len(src)), read)
	assert.Equal(t, src, stored.Bytes())
	assert.Equal(t, []Stage{StageStore}, p.stages)

	var out bytes.Buffer
	sha := sha256.New()
	written, err := copyStored(&out, stored.Bytes(), 700, sha, NopProgress)
	require.NoError(t, err)
	assert.Equal(t, int64(len(src)), written)
	assert.Equal(t, src, out.Bytes())

	want := sha256.Sum256(src)
	assert.Equal(t, want[:], sha.Sum(nil))
}
