// Package crypto seals CDN credential material before it touches the
// database. Policies and signatures grant access to third-party content, so
// they are never persisted in the clear.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

const (
	// Sealed blob magic bytes
	MagicBytes = "LCSL"

	// Version of the sealing format
	FormatVersion = 1

	// Argon2id parameters (OWASP recommended)
	Argon2Time    = 3
	Argon2Memory  = 64 * 1024 // 64 MB
	Argon2Threads = 4
	Argon2KeyLen  = 32 // AES-256

	// Salt and nonce sizes
	SaltSize  = 32
	NonceSize = 12 // GCM standard nonce size

	// Header size: magic(4) + version(4) + salt(32) + nonce(12) = 52 bytes
	HeaderSize = 4 + 4 + SaltSize + NonceSize
)

var (
	ErrInvalidMagic   = errors.New("invalid format: not a sealed blob")
	ErrInvalidVersion = errors.New("unsupported sealing format version")
	ErrUnsealFailed   = errors.New("unseal failed: wrong key or corrupted data")
)

// DeriveKey derives an AES-256 key from a passphrase using Argon2id.
func DeriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey(
		[]byte(passphrase),
		salt,
		Argon2Time,
		Argon2Memory,
		Argon2Threads,
		Argon2KeyLen,
	)
}

// GenerateSalt creates a cryptographically secure random salt.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

// Seal encrypts plaintext using AES-256-GCM under a key derived from the
// passphrase. The output carries magic + version + salt + nonce + ciphertext.
func Seal(plaintext []byte, passphrase string) ([]byte, error) {
	salt, err := GenerateSalt()
	if err != nil {
		return nil, err
	}

	key := DeriveKey(passphrase, salt)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	output := make([]byte, HeaderSize+len(ciphertext))
	copy(output[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(output[4:8], FormatVersion)
	copy(output[8:8+SaltSize], salt)
	copy(output[8+SaltSize:HeaderSize], nonce)
	copy(output[HeaderSize:], ciphertext)

	return output, nil
}

// Unseal decrypts a blob produced by Seal.
func Unseal(data []byte, passphrase string) ([]byte, error) {
	if len(data) < HeaderSize {
		return nil, ErrInvalidMagic
	}

	if string(data[0:4]) != MagicBytes {
		return nil, ErrInvalidMagic
	}

	version := binary.LittleEndian.Uint32(data[4:8])
	if version != FormatVersion {
		return nil, ErrInvalidVersion
	}

	salt := data[8 : 8+SaltSize]
	nonce := data[8+SaltSize : HeaderSize]
	ciphertext := data[HeaderSize:]

	key := DeriveKey(passphrase, salt)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrUnsealFailed
	}

	return plaintext, nil
}

// IsSealed reports whether data carries the sealed blob magic.
func IsSealed(data []byte) bool {
	if len(data) < 4 {
		return false
	}
	return string(data[0:4]) == MagicBytes
}
