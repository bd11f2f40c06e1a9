package realtime

import (
	"errors"
	"strings"
	"testing"

	"github.com/artpromedia/aivo-sub003/internal/domain"
)

func TestHMACAuthenticatorRoundTrip(t *testing.T) {
	t.Parallel()

	auth, err := NewHMACAuthenticator("test-secret")
	if err != nil {
		t.Fatalf("NewHMACAuthenticator() error = %v", err)
	}

	token, err := auth.MintToken("user-42")
	if err != nil {
		t.Fatalf("MintToken() error = %v", err)
	}

	userID, err := auth.Authenticate(token)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if userID != "user-42" {
		t.Fatalf("userID = %s, want user-42", userID)
	}
}

func TestHMACAuthenticatorRejectsTamperedToken(t *testing.T) {
	t.Parallel()

	auth, err := NewHMACAuthenticator("test-secret")
	if err != nil {
		t.Fatalf("NewHMACAuthenticator() error = %v", err)
	}
	other, err := NewHMACAuthenticator("other-secret")
	if err != nil {
		t.Fatalf("NewHMACAuthenticator() error = %v", err)
	}

	token, err := other.MintToken("user-42")
	if err != nil {
		t.Fatalf("MintToken() error = %v", err)
	}

	if _, err := auth.Authenticate(token); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("Authenticate() error = %v, want ErrUnauthenticated", err)
	}
}

func TestHMACAuthenticatorRejectsMalformedTokens(t *testing.T) {
	t.Parallel()

	auth, err := NewHMACAuthenticator("test-secret")
	if err != nil {
		t.Fatalf("NewHMACAuthenticator() error = %v", err)
	}

	for _, token := range []string{"", "just-one-part", "a.b.c", "!!!.???", strings.Repeat(".", 2)} {
		if _, err := auth.Authenticate(token); !errors.Is(err, domain.ErrUnauthenticated) {
			t.Fatalf("Authenticate(%q) error = %v, want ErrUnauthenticated", token, err)
		}
	}
}

func TestHMACAuthenticatorRequiresSecret(t *testing.T) {
	t.Parallel()

	if _, err := NewHMACAuthenticator("  "); err == nil {
		t.Fatal("NewHMACAuthenticator() expected error for blank secret")
	}
}
