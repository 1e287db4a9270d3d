package auth

import "testing"

func TestHashAndVerify(t *testing.T) {
	h := NewPasswordHasher(nil)
	encoded, err := h.Hash("correct horse battery staple")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if err := h.Verify("correct horse battery staple", encoded); err != nil {
		t.Errorf("Verify with correct password: %v", err)
	}
	if err := h.Verify("wrong password", encoded); err != ErrPasswordMismatch {
		t.Errorf("Verify with wrong password: got %v, want ErrPasswordMismatch", err)
	}
}

func TestHashRejectsWeakPasswords(t *testing.T) {
	h := NewPasswordHasher(nil)
	if _, err := h.Hash("short"); err != ErrPasswordTooShort {
		t.Errorf("expected ErrPasswordTooShort, got %v", err)
	}
}

func TestVerifyRejectsMalformedHash(t *testing.T) {
	h := NewPasswordHasher(nil)
	if err := h.Verify("anything", "not-a-valid-hash"); err == nil {
		t.Error("expected an error for a malformed hash")
	}
}

func TestNeedsRehashDetectsWeakerParams(t *testing.T) {
	strong := NewPasswordHasher(&Argon2Params{Memory: 128 * 1024, Iterations: 4, Parallelism: 2, SaltLength: 16, KeyLength: 32})
	weak := NewPasswordHasher(DefaultArgon2Params())

	encoded, err := weak.Hash("a reasonably long passphrase")
	if err != nil {
		t.Fatal(err)
	}
	if !strong.NeedsRehash(encoded) {
		t.Error("expected a hash produced with weaker params to need rehashing under stronger params")
	}
	if weak.NeedsRehash(encoded) {
		t.Error("a hash produced with the current params should not need rehashing")
	}
}
