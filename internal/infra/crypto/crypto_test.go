package crypto

import (
	"bytes"
	"encoding/hex"
	"errors"
	"testing"
)

func testKey() string {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	return hex.EncodeToString(key)
}

func TestSealer_SealOpen(t *testing.T) {
	s, err := NewSealer(testKey())
	if err != nil {
		t.Fatalf("NewSealer failed: %v", err)
	}

	plaintext := []byte("title: Launch checklist\nstatus: TO_DO\n")

	sealed, err := s.Seal(plaintext)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	if bytes.Contains(sealed, []byte("Launch")) {
		t.Error("sealed blob leaks plaintext")
	}
	if len(sealed) != NonceSize+len(plaintext)+16 {
		t.Errorf("sealed length = %d, want %d", len(sealed), NonceSize+len(plaintext)+16)
	}

	opened, err := s.Open(sealed)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Errorf("opened text mismatch: got %q, want %q", opened, plaintext)
	}
}

func TestSealer_Deterministic(t *testing.T) {
	s, err := NewSealer(testKey())
	if err != nil {
		t.Fatalf("NewSealer failed: %v", err)
	}

	a, _ := s.Seal([]byte("same content"))
	b, _ := s.Seal([]byte("same content"))
	c, _ := s.Seal([]byte("other content"))

	if !bytes.Equal(a, b) {
		t.Error("equal plaintexts should seal identically")
	}
	if bytes.Equal(a[:NonceSize], c[:NonceSize]) {
		t.Error("different plaintexts should get different nonces")
	}

	// A second Sealer with the same key agrees, so hashes survive restarts.
	s2, _ := NewSealer(testKey())
	d, _ := s2.Seal([]byte("same content"))
	if !bytes.Equal(a, d) {
		t.Error("sealers with the same key should agree")
	}
}

func TestSealer_EmptyPlaintext(t *testing.T) {
	s, _ := NewSealer(testKey())

	sealed, err := s.Seal(nil)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}
	opened, err := s.Open(sealed)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if len(opened) != 0 {
		t.Errorf("opened = %q, want empty", opened)
	}
}

func TestSealer_OpenErrors(t *testing.T) {
	s, _ := NewSealer(testKey())
	sealed, _ := s.Seal([]byte("payload"))

	tampered := append([]byte(nil), sealed...)
	tampered[len(tampered)-1] ^= 0xff

	otherKey := make([]byte, 32)
	otherKey[0] = 1
	other, _ := NewSealer(hex.EncodeToString(otherKey))

	tests := []struct {
		name    string
		sealer  *Sealer
		input   []byte
		wantErr error
	}{
		{name: "too short", sealer: s, input: []byte("short"), wantErr: ErrCiphertextTooShort},
		{name: "tampered", sealer: s, input: tampered, wantErr: ErrDecryptionFailed},
		{name: "wrong key", sealer: other, input: sealed, wantErr: ErrDecryptionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.sealer.Open(tt.input); !errors.Is(err, tt.wantErr) {
				t.Errorf("Open() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewSealer_InvalidKey(t *testing.T) {
	tests := []struct {
		name string
		key  string
	}{
		{name: "empty", key: ""},
		{name: "too short", key: "0011"},
		{name: "not hex", key: string(bytes.Repeat([]byte("zz"), 32))},
		{name: "too long", key: testKey() + "00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewSealer(tt.key); !errors.Is(err, ErrInvalidKey) {
				t.Errorf("NewSealer() error = %v, want ErrInvalidKey", err)
			}
			if ValidKey(tt.key) {
				t.Error("ValidKey() = true, want false")
			}
		})
	}
}

func TestGenerateKey(t *testing.T) {
	a, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	b, _ := GenerateKey()

	if !ValidKey(a) {
		t.Errorf("generated key %q is not valid", a)
	}
	if a == b {
		t.Error("generated keys should differ")
	}
}
