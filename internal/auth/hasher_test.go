package auth

import (
	"strings"
	"testing"
)

var fastParams = Argon2Params{Memory: 1024, Iterations: 1, Parallelism: 1}

func TestHasher(t *testing.T) {
	h := NewHasher(fastParams)

	encoded, err := h.Hash("correct horse")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if !strings.HasPrefix(encoded, "$argon2id$v=19$m=1024,t=1,p=1$") {
		t.Errorf("unexpected encoding %q", encoded)
	}
	if !h.Verify("correct horse", encoded) {
		t.Error("Verify() rejected the right password")
	}
	if h.Verify("battery staple", encoded) {
		t.Error("Verify() accepted the wrong password")
	}

	again, _ := h.Hash("correct horse")
	if again == encoded {
		t.Error("hashes of the same password should differ by salt")
	}
}

func TestHasher_VerifyAcrossParams(t *testing.T) {
	old := NewHasher(fastParams)
	encoded, err := old.Hash("pw-12345")
	if err != nil {
		t.Fatal(err)
	}
	current := NewHasher(Argon2Params{Memory: 2048, Iterations: 2, Parallelism: 1, KeyLength: 16})
	if !current.Verify("pw-12345", encoded) {
		t.Error("hash made with older params should still verify")
	}
}

func TestHasher_VerifyMalformed(t *testing.T) {
	h := NewHasher(fastParams)
	for _, encoded := range []string{
		"",
		"plaintext",
		"$argon2i$v=19$m=1024,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=16$m=1024,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$garbage$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=1024,t=1,p=1$!!!$aGFzaA",
	} {
		if h.Verify("x", encoded) {
			t.Errorf("Verify(%q) = true, want false", encoded)
		}
	}
}

func TestArgon2Params_Defaults(t *testing.T) {
	got := Argon2Params{Memory: 1}.withDefaults()
	want := DefaultArgon2Params()
	want.Memory = 1
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}
