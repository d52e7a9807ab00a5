package quickxorhash

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Digests as Graph reports them in file.hashes.quickXorHash, cross-checked
// with rclone's implementation.
var vectors = []struct {
	name   string
	input  []byte
	digest string
}{
	{"empty", nil, "AAAAAAAAAAAAAAAAAAAAAAAAAAA="},
	{"hello", []byte("hello"), "aCgDG9jwBgAAAAAABQAAAAAAAAA="},
	{"hello world", []byte("hello world"), "aCgDG9jwBhDc4Q1yawMZAAAAAAA="},
	{"1000 zero bytes", make([]byte, 1000), "AAAAAAAAAAAAAAAA6AMAAAAAAAA="},
	{"1000 0xFF bytes", bytes.Repeat([]byte{0xFF}, 1000), "Yxvb2MY2trGNbWxj89jYOc5xjnM="},
}

func TestSum64_KnownDigests(t *testing.T) {
	for _, tt := range vectors {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.digest, Sum64(tt.input))
			assert.True(t, Matches(tt.input, tt.digest))
		})
	}
}

func TestMatches_RejectsOtherContent(t *testing.T) {
	assert.False(t, Matches([]byte("hello!"), "aCgDG9jwBgAAAAAABQAAAAAAAAA="))
	assert.False(t, Matches(nil, ""), "an empty reported digest matches nothing")
}

func pattern(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(i * 7)
	}

	return out
}

// Uploads are hashed in one call; resumable writers may feed chunks of any
// size. Both must agree.
func TestWrite_ChunkingDoesNotMatter(t *testing.T) {
	data := pattern(4099)
	want := Sum64(data)

	for _, chunk := range []int{1, 3, 8, 63, BlockSize, 1000} {
		h := New()

		for off := 0; off < len(data); off += chunk {
			_, err := h.Write(data[off:min(off+chunk, len(data))])
			require.NoError(t, err)
		}

		assert.Equal(t, want, encode(h.Sum(nil)), "chunk size %d", chunk)
	}
}

func TestSum_LeavesStateUsable(t *testing.T) {
	h := New()
	_, _ = h.Write([]byte("hello "))

	prefix := h.Sum([]byte("x"))
	assert.Equal(t, byte('x'), prefix[0])
	assert.Len(t, prefix, 1+Size)

	_, _ = h.Write([]byte("world"))
	assert.Equal(t, Sum64([]byte("hello world")), encode(h.Sum(nil)))

	h.Reset()
	assert.Equal(t, Sum64(nil), encode(h.Sum(nil)))
	assert.Equal(t, Size, h.Size())
	assert.Equal(t, BlockSize, h.BlockSize())
}

func BenchmarkSum64(b *testing.B) {
	data := pattern(1 << 20)
	b.SetBytes(int64(len(data)))

	for b.Loop() {
		Sum64(data)
	}
}
