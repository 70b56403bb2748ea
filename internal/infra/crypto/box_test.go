package crypto

import (
	"encoding/base64"
	"errors"
	"testing"
)

func newTestBox(t *testing.T) *Box {
	t.Helper()
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("не ожидали ошибку генерации ключа: %v", err)
	}
	box, err := NewBox(key)
	if err != nil {
		t.Fatalf("не ожидали ошибку создания: %v", err)
	}
	return box
}

func TestBoxRoundTrip(t *testing.T) {
	box := newTestBox(t)
	secret := "eyJhbGciOiJFUzI1NiIsImtpZCI6IjIwMjQxMDE2djEi"

	enc, err := box.Encrypt(secret)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if enc == secret {
		t.Fatalf("значение не зашифровано")
	}
	dec, err := box.Decrypt(enc)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if dec != secret {
		t.Fatalf("ожидали %q, получили %q", secret, dec)
	}
}

func TestBoxUsesRandomNonce(t *testing.T) {
	box := newTestBox(t)
	a, _ := box.Encrypt("одинаковый текст")
	b, _ := box.Encrypt("одинаковый текст")
	if a == b {
		t.Fatalf("шифротексты совпали")
	}
}

func TestBoxEmpty(t *testing.T) {
	box := newTestBox(t)
	enc, err := box.Encrypt("")
	if err != nil || enc != "" {
		t.Fatalf("ожидали пустую строку без ошибки, получили %q, %v", enc, err)
	}
	dec, err := box.Decrypt("")
	if err != nil || dec != "" {
		t.Fatalf("ожидали пустую строку без ошибки, получили %q, %v", dec, err)
	}
}

func TestBoxRejectsForeignKey(t *testing.T) {
	a := newTestBox(t)
	b := newTestBox(t)
	enc, _ := a.Encrypt("секрет")
	if _, err := b.Decrypt(enc); err == nil {
		t.Fatalf("ожидали ошибку при чужом ключе")
	}
}

func TestNewBoxInvalidKey(t *testing.T) {
	short := base64.StdEncoding.EncodeToString([]byte("short"))
	if _, err := NewBox(short); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("ожидали ErrInvalidKey, получили %v", err)
	}
	if _, err := NewBox(""); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("ожидали ErrInvalidKey для пустого ключа, получили %v", err)
	}
}
