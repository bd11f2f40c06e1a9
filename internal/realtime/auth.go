package realtime

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/artpromedia/aivo-sub003/internal/domain"
)

// Authenticator resolves a handshake token to a user identity.
type Authenticator interface {
	Authenticate(token string) (userID string, err error)
}

// HMACAuthenticator validates tokens of the form
// base64url(userID) + "." + base64url(hmac-sha256(secret, userID)).
// The gateway trusts whoever minted the token to have verified the user.
type HMACAuthenticator struct {
	secret []byte
}

func NewHMACAuthenticator(secret string) (*HMACAuthenticator, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("shared secret is required")
	}
	return &HMACAuthenticator{secret: []byte(secret)}, nil
}

// MintToken issues a token for a user. Exposed for the API tier and tests.
func (a *HMACAuthenticator) MintToken(userID string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", fmt.Errorf("%w: user id is required", domain.ErrValidation)
	}
	mac := hmac.New(sha256.New, a.secret)
	mac.Write([]byte(userID))
	return base64.RawURLEncoding.EncodeToString([]byte(userID)) +
		"." +
		base64.RawURLEncoding.EncodeToString(mac.Sum(nil)), nil
}

func (a *HMACAuthenticator) Authenticate(token string) (string, error) {
	parts := strings.Split(strings.TrimSpace(token), ".")
	if len(parts) != 2 {
		return "", fmt.Errorf("%w: malformed token", domain.ErrUnauthenticated)
	}

	userBytes, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("%w: malformed token subject", domain.ErrUnauthenticated)
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("%w: malformed token signature", domain.ErrUnauthenticated)
	}

	mac := hmac.New(sha256.New, a.secret)
	mac.Write(userBytes)
	if !hmac.Equal(sig, mac.Sum(nil)) {
		return "", fmt.Errorf("%w: signature mismatch", domain.ErrUnauthenticated)
	}

	userID := string(userBytes)
	if strings.TrimSpace(userID) == "" {
		return "", fmt.Errorf("%w: empty token subject", domain.ErrUnauthenticated)
	}
	return userID, nil
}
