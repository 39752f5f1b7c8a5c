package hash

import (
	"testing"
)

func TestSHA256Hasher_HashBytes(t *testing.T) {
	hasher := NewSHA256Hasher()

	t.Run("known content", func(t *testing.T) {
		// sha256 of empty input
		got := hasher.HashBytes(nil)
		want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
		if got != want {
			t.Errorf("HashBytes(nil) = %s, want %s", got, want)
		}
	})

	t.Run("deterministic", func(t *testing.T) {
		a := hasher.HashBytes([]byte(`{"dependencies":{"nx":"15.0.0"}}`))
		b := hasher.HashBytes([]byte(`{"dependencies":{"nx":"15.0.0"}}`))
		if a != b {
			t.Errorf("same content produced different hashes: %s vs %s", a, b)
		}
	})

	t.Run("different content differs", func(t *testing.T) {
		a := hasher.HashBytes([]byte(`{"dependencies":{"nx":"15.0.0"}}`))
		b := hasher.HashBytes([]byte(`{"dependencies":{"nx":"16.0.0"}}`))
		if a == b {
			t.Error("different content produced identical hashes")
		}
	})
}

func TestFakeHasher(t *testing.T) {
	hasher := NewFakeHasher()
	hasher.SetHash("snapshot", "deadbeef")

	if got := hasher.HashBytes([]byte("snapshot")); got != "deadbeef" {
		t.Errorf("expected predetermined hash, got %s", got)
	}
	if got := hasher.HashBytes([]byte("other")); got != "fakehash" {
		t.Errorf("expected default hash, got %s", got)
	}
}
