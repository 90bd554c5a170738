package crypto

import (
	"bytes"
	"errors"
	"testing"
)

func testKey() []byte {
	return bytes.Repeat([]byte{0x42}, 32)
}

func TestNewEncryptor(t *testing.T) {
	for _, size := range []int{0, 16, 31, 33} {
		if _, err := NewEncryptor(make([]byte, size)); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("key size %d: expected ErrInvalidKey, got %v", size, err)
		}
	}
}

func TestEncryptDecrypt(t *testing.T) {
	enc, err := NewEncryptor(testKey())
	if err != nil {
		t.Fatalf("NewEncryptor failed: %v", err)
	}

	t.Run("round trip", func(t *testing.T) {
		sealed, err := enc.Encrypt("passcode-123")
		if err != nil {
			t.Fatalf("Encrypt failed: %v", err)
		}
		if sealed == "passcode-123" {
			t.Fatal("expected ciphertext to differ from plaintext")
		}
		plain, err := enc.Decrypt(sealed)
		if err != nil {
			t.Fatalf("Decrypt failed: %v", err)
		}
		if plain != "passcode-123" {
			t.Errorf("got %q", plain)
		}
	})

	t.Run("nonces differ", func(t *testing.T) {
		a, _ := enc.Encrypt("same")
		b, _ := enc.Encrypt("same")
		if a == b {
			t.Error("expected different ciphertexts")
		}
	})

	t.Run("wrong key fails", func(t *testing.T) {
		sealed, _ := enc.Encrypt("secret")
		other, _ := NewEncryptor(bytes.Repeat([]byte{0x07}, 32))
		if _, err := other.Decrypt(sealed); !errors.Is(err, ErrInvalidCiphertext) {
			t.Errorf("expected ErrInvalidCiphertext, got %v", err)
		}
	})

	t.Run("garbage fails", func(t *testing.T) {
		for _, in := range []string{"not base64!", "AAAA"} {
			if _, err := enc.Decrypt(in); !errors.Is(err, ErrInvalidCiphertext) {
				t.Errorf("Decrypt(%q): expected ErrInvalidCiphertext, got %v", in, err)
			}
		}
	})
}
