// Package quickxorhash implements QuickXorHash, the content hash SharePoint
// and OneDrive for Business report for every file in a drive.
//
// Each input byte is XORed into a 160-bit circular buffer at an insertion
// point that advances 11 bits per byte; the digest finally mixes in the
// total length. See
// https://learn.microsoft.com/en-us/onedrive/developer/code-snippets/quickxorhash
package quickxorhash

import (
	"encoding/base64"
	"encoding/binary"
	"hash"
)

const (
	// Size is the length, in bytes, of a QuickXorHash digest.
	Size = 20

	// BlockSize is the preferred input block size for the hash, in bytes.
	BlockSize = 64

	shift       = 11
	widthInBits = Size * 8
	cells       = 3 // uint64 cells covering widthInBits
	lastCellLen = widthInBits - (cells-1)*64
)

type digest struct {
	cell   [cells]uint64
	pos    int // insertion bit position, 0 <= pos < widthInBits
	length uint64
}

// New returns a new hash.Hash computing QuickXorHash.
func New() hash.Hash {
	return &digest{}
}

func cellWidth(i int) int {
	if i == cells-1 {
		return lastCellLen
	}

	return 64
}

// Write absorbs p. It never fails.
func (d *digest) Write(p []byte) (int, error) {
	for _, b := range p {
		idx, off := d.pos/64, d.pos%64
		d.cell[idx] ^= uint64(b) << off

		// A byte crossing the cell boundary spills its high bits into the
		// next cell, wrapping from the last cell to the first.
		if w := cellWidth(idx); off > w-8 {
			d.cell[(idx+1)%cells] ^= uint64(b) >> (w - off)
		}

		d.pos = (d.pos + shift) % widthInBits
	}

	d.length += uint64(len(p))

	return len(p), nil
}

// Sum appends the digest to b without changing the hash state.
func (d *digest) Sum(b []byte) []byte {
	var out [Size]byte

	binary.LittleEndian.PutUint64(out[0:8], d.cell[0])
	binary.LittleEndian.PutUint64(out[8:16], d.cell[1])
	binary.LittleEndian.PutUint32(out[16:20], uint32(d.cell[2])) //nolint:gosec // only the low 32 bits are part of the buffer

	var n [8]byte
	binary.LittleEndian.PutUint64(n[:], d.length)

	for i := range n {
		out[Size-len(n)+i] ^= n[i]
	}

	return append(b, out[:]...)
}

func (d *digest) Reset() {
	*d = digest{}
}

func (d *digest) Size() int {
	return Size
}

func (d *digest) BlockSize() int {
	return BlockSize
}

// Sum64 returns the base64-encoded digest of data, the form Graph reports
// in file.hashes.quickXorHash.
func Sum64(data []byte) string {
	h := New()
	_, _ = h.Write(data) //nolint:errcheck // Write never fails

	return encode(h.Sum(nil))
}

func encode(sum []byte) string {
	return base64.StdEncoding.EncodeToString(sum)
}

// Matches reports whether data hashes to the base64 digest reported by
// Graph. An empty reported digest matches nothing.
func Matches(data []byte, reported string) bool {
	return reported != "" && Sum64(data) == reported
}
