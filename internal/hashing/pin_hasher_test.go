package hashing

import "testing"

// fast params so the test does not burn CPU
var testParams = Argon2Params{
	Memory:      1024,
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

func TestHashAndVerifyPin(t *testing.T) {
	h := NewPinHasher(testParams)

	hash, salt, err := h.HashPin("4821")
	if err != nil {
		t.Fatalf("HashPin: %v", err)
	}

	ok, err := h.VerifyPin("4821", hash, salt)
	if err != nil || !ok {
		t.Fatalf("VerifyPin(correct) = %v, %v", ok, err)
	}

	ok, err = h.VerifyPin("0000", hash, salt)
	if err != nil {
		t.Fatalf("VerifyPin(wrong): %v", err)
	}
	if ok {
		t.Error("wrong PIN verified")
	}
}

func TestVerifyPinRejectsMalformedHash(t *testing.T) {
	h := NewPinHasher(testParams)
	if _, err := h.VerifyPin("4821", "!!!not-base64!!!", "also-bad"); err != ErrInvalidHash {
		t.Errorf("got %v, want ErrInvalidHash", err)
	}
}
