package auth

import (
	"testing"
	"time"
)

func TestGenerateAndValidateToken(t *testing.T) {
	a := NewAuthenticator([]byte("test-secret"), time.Hour)

	token, err := a.GenerateToken("user-42")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if token == "" {
		t.Fatal("Expected a non-empty token")
	}

	claims, err := a.ValidateToken(token)
	if err != nil {
		t.Fatalf("Expected valid token, got %v", err)
	}
	if claims.UserID != "user-42" {
		t.Errorf("Expected user-42, got %s", claims.UserID)
	}
}

func TestValidateTokenWrongSecret(t *testing.T) {
	a := NewAuthenticator([]byte("secret-one"), time.Hour)
	b := NewAuthenticator([]byte("secret-two"), time.Hour)

	token, err := a.GenerateToken("user-42")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if _, err := b.ValidateToken(token); err == nil {
		t.Error("Expected validation with wrong secret to fail, got nil")
	}
}

func TestValidateExpiredToken(t *testing.T) {
	a := &Authenticator{secret: []byte("test-secret"), ttl: -time.Minute}

	token, err := a.GenerateToken("user-42")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if _, err := a.ValidateToken(token); err == nil {
		t.Error("Expected expired token to fail validation, got nil")
	}
}

func TestValidateGarbageToken(t *testing.T) {
	a := NewAuthenticator([]byte("test-secret"), time.Hour)
	if _, err := a.ValidateToken("not.a.token"); err == nil {
		t.Error("Expected garbage token to fail validation, got nil")
	}
}
