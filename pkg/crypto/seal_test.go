package crypto

import (
	"bytes"
	"testing"
)

func TestSealUnseal(t *testing.T) {
	passphrase := "test-passphrase-123!"
	plaintext := []byte("eyJTdGF0ZW1lbnQiOlt7IlJlc291cmNlIjoi...")

	sealed, err := Seal(plaintext, passphrase)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}

	if len(sealed) <= len(plaintext) {
		t.Error("sealed blob should be larger than plaintext")
	}
	if string(sealed[0:4]) != MagicBytes {
		t.Error("missing magic bytes")
	}

	unsealed, err := Unseal(sealed, passphrase)
	if err != nil {
		t.Fatalf("Unseal failed: %v", err)
	}
	if !bytes.Equal(unsealed, plaintext) {
		t.Error("unsealed data doesn't match original")
	}
}

func TestUnsealWrongPassphrase(t *testing.T) {
	sealed, err := Seal([]byte("secret signature"), "correct")
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}

	if _, err := Unseal(sealed, "wrong"); err != ErrUnsealFailed {
		t.Errorf("expected ErrUnsealFailed, got: %v", err)
	}
}

func TestIsSealed(t *testing.T) {
	sealed, _ := Seal([]byte("data"), "key")

	if !IsSealed(sealed) {
		t.Error("IsSealed should return true for sealed data")
	}
	if IsSealed([]byte("plain text value")) {
		t.Error("IsSealed should return false for plain data")
	}
	if IsSealed([]byte("LC")) {
		t.Error("IsSealed should return false for short data")
	}
}

func TestSealDifferentEachTime(t *testing.T) {
	passphrase := "same-passphrase"
	plaintext := []byte("same data")

	sealed1, _ := Seal(plaintext, passphrase)
	sealed2, _ := Seal(plaintext, passphrase)

	// Random salt and nonce make every blob unique.
	if bytes.Equal(sealed1, sealed2) {
		t.Error("sealing same data twice should produce different blobs")
	}

	unsealed1, _ := Unseal(sealed1, passphrase)
	unsealed2, _ := Unseal(sealed2, passphrase)
	if !bytes.Equal(unsealed1, unsealed2) {
		t.Error("both blobs should unseal to same plaintext")
	}
}

func TestUnsealInvalidData(t *testing.T) {
	if _, err := Unseal([]byte("short"), "key"); err != ErrInvalidMagic {
		t.Errorf("expected ErrInvalidMagic for short data, got: %v", err)
	}
	if _, err := Unseal(bytes.Repeat([]byte("X"), HeaderSize+16), "key"); err != ErrInvalidMagic {
		t.Errorf("expected ErrInvalidMagic for wrong magic, got: %v", err)
	}
}
