package session

import "testing"

func TestPadBucketSizing(t *testing.T) {
	cases := map[int]int{1: 256, 252: 256, 253: 512, 4096: 4096, 4097: 8192, 32768: 32768}
	for n, want := range cases {
		if got := padBucket(n); got != want {
			t.Errorf("padBucket(%d) = %d, want %d", n, got, want)
		}
	}
	if padBucket(32769) != -1 {
		t.Error("expected -1 above largest bucket")
	}
}

func TestPadUnpadRoundTrip(t *testing.T) {
	msg := []byte("round trip me")
	padded, err := pad(msg)
	if err != nil {
		t.Fatal(err)
	}
	if len(padded) != 256 {
		t.Fatalf("expected bucket 256, got %d", len(padded))
	}
	out, err := unpad(padded)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != string(msg) {
		t.Fatalf("got %q, want %q", out, msg)
	}
}

func TestCoverCiphertextLengthMatchesRealAtSameBucket(t *testing.T) {
	real, err := pad([]byte("hi"))
	if err != nil {
		t.Fatal(err)
	}
	cover, err := randomPaddedBlob()
	if err != nil {
		t.Fatal(err)
	}
	if len(real) != len(cover) {
		t.Fatalf("real %d != cover %d", len(real), len(cover))
	}
}
