package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/ANADelta/AlphaClassBot-App2/internal/apperr"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	token, err := NewAccessToken("secret", "issuer", time.Minute, Claims{
		UserID:        "user-1",
		Role:          "student",
		InstitutionID: "inst-1",
	})
	if err != nil {
		t.Fatalf("token error: %v", err)
	}

	principal, err := ParseToken("secret", "issuer", token)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if principal.UserID != "user-1" || principal.Role != "student" || principal.InstitutionID != "inst-1" {
		t.Fatalf("unexpected principal: %+v", principal)
	}
}

func TestParseTokenRejectsBadSecret(t *testing.T) {
	token, err := NewAccessToken("secret", "issuer", time.Minute, Claims{UserID: "user-1", Role: "teacher"})
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if _, err := ParseToken("other-secret", "issuer", token); !errors.Is(err, apperr.ErrInvalidCredential) {
		t.Fatalf("expected invalid credential, got %v", err)
	}
}

func TestParseTokenRejectsWrongIssuer(t *testing.T) {
	token, err := NewAccessToken("secret", "other-issuer", time.Minute, Claims{UserID: "user-1", Role: "teacher"})
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if _, err := ParseToken("secret", "issuer", token); !errors.Is(err, apperr.ErrInvalidCredential) {
		t.Fatalf("expected invalid credential, got %v", err)
	}
}

func TestParseTokenRejectsUnknownRole(t *testing.T) {
	token, err := NewAccessToken("secret", "issuer", time.Minute, Claims{UserID: "user-1", Role: "superuser"})
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if _, err := ParseToken("secret", "issuer", token); !errors.Is(err, apperr.ErrInvalidCredential) {
		t.Fatalf("expected invalid credential, got %v", err)
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	token, err := NewAccessToken("secret", "issuer", -time.Minute, Claims{UserID: "user-1", Role: "student"})
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if _, err := ParseToken("secret", "issuer", token); !errors.Is(err, apperr.ErrInvalidCredential) {
		t.Fatalf("expected invalid credential, got %v", err)
	}
}
