package auth

import (
	"errors"
	"testing"
	"time"

	"patentvault/internal/config"
)

func newService() *Service {
	return NewService(&config.JWTConfig{
		Secret:     "test-secret-key-for-testing-only",
		Expiration: time.Hour,
	})
}

func TestHashAndVerifyPassword(t *testing.T) {
	s := newService()

	hash, err := s.HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if hash == "correct horse battery staple" {
		t.Fatal("Hash must not equal the plaintext")
	}

	if err := s.VerifyPassword(hash, "correct horse battery staple"); err != nil {
		t.Errorf("Correct password rejected: %v", err)
	}
	if err := s.VerifyPassword(hash, "wrong password"); err == nil {
		t.Error("Wrong password accepted")
	}
}

func TestGenerateAndValidateToken(t *testing.T) {
	s := newService()

	token, expiresAt, err := s.GenerateToken(42, "alice")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	if token == "" {
		t.Fatal("Empty token")
	}
	if !expiresAt.After(time.Now()) {
		t.Error("Token should expire in the future")
	}

	claims, err := s.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims.Principal != 42 {
		t.Errorf("Expected principal 42, got %d", claims.Principal)
	}
	if claims.Name != "alice" {
		t.Errorf("Expected name alice, got %q", claims.Name)
	}
	if claims.ID == "" {
		t.Error("Expected a token id claim")
	}
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	s := newService()

	if _, err := s.ValidateToken("not-a-jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Expected ErrInvalidToken, got %v", err)
	}
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	s := newService()
	other := NewService(&config.JWTConfig{Secret: "a-different-secret-entirely", Expiration: time.Hour})

	token, _, err := s.GenerateToken(1, "alice")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	if _, err := other.ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Expected ErrInvalidToken, got %v", err)
	}
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	s := NewService(&config.JWTConfig{
		Secret:     "test-secret-key-for-testing-only",
		Expiration: -time.Minute,
	})

	token, _, err := s.GenerateToken(1, "alice")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}
	if _, err := s.ValidateToken(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("Expected ErrInvalidToken, got %v", err)
	}
}

func TestGenerateRandomToken(t *testing.T) {
	a, err := GenerateRandomToken(16)
	if err != nil {
		t.Fatalf("GenerateRandomToken failed: %v", err)
	}
	if len(a) != 32 {
		t.Errorf("Expected 32 hex chars, got %d", len(a))
	}

	b, err := GenerateRandomToken(16)
	if err != nil {
		t.Fatalf("GenerateRandomToken failed: %v", err)
	}
	if a == b {
		t.Error("Two random tokens should differ")
	}
}
