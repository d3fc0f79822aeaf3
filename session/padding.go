package session

import (
	"encoding/binary"

	"github.com/b4ae-project/b4ae/b4aeerr"
	"github.com/b4ae-project/b4ae/primitive"
)

// padBucket returns the smallest PADME-style bucket that fits n bytes of
// framed payload (4-byte length prefix + data), or -1 if n exceeds the
// largest bucket.
func padBucket(n int) int {
	for _, b := range paddingBuckets {
		if n <= b {
			return b
		}
	}
	return -1
}

// pad prepends a 4-byte big-endian length prefix to plaintext and pads the
// result up to the smallest enclosing bucket with random bytes, so the
// ciphertext length leaks only the bucket, never the exact plaintext size.
func pad(plaintext []byte) ([]byte, error) {
	framed := make([]byte, 4+len(plaintext))
	binary.BigEndian.PutUint32(framed[:4], uint32(len(plaintext)))
	copy(framed[4:], plaintext)

	bucket := padBucket(len(framed))
	if bucket < 0 {
		return nil, b4aeerr.New(b4aeerr.KindInvalidInput, "session.pad", "plaintext too large for largest padding bucket")
	}
	out := make([]byte, bucket)
	copy(out, framed)
	if bucket > len(framed) {
		filler, err := primitive.RandomBytes(bucket - len(framed))
		if err != nil {
			return nil, err
		}
		copy(out[len(framed):], filler)
	}
	return out, nil
}

// unpad strips a bucket-padded frame back to its original plaintext, using
// the embedded 4-byte length prefix.
func unpad(padded []byte) ([]byte, error) {
	if len(padded) < 4 {
		return nil, b4aeerr.New(b4aeerr.KindInvalidInput, "session.unpad", "padded frame too short")
	}
	n := binary.BigEndian.Uint32(padded[:4])
	if int(n) > len(padded)-4 {
		return nil, b4aeerr.New(b4aeerr.KindInvalidInput, "session.unpad", "length prefix exceeds frame size")
	}
	out := make([]byte, n)
	copy(out, padded[4:4+n])
	return out, nil
}

// randomPaddedBlob builds a cover message's padded plaintext: a random body
// of paddingBuckets[0]-4 bytes behind its length prefix, which fills the
// smallest bucket exactly. Cover frames built this way always have the
// ciphertext length of a real frame in the smallest bucket, never a larger
// one.
func randomPaddedBlob() ([]byte, error) {
	bucket := paddingBuckets[0]
	body, err := primitive.RandomBytes(bucket - 4)
	if err != nil {
		return nil, err
	}
	return pad(body)
}
