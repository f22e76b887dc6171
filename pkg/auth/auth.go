package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/quorumdao/govx/pkg/clock"
	"github.com/quorumdao/govx/pkg/types"
)

// Proof is the opaque presence token a caller presents to act as an
// account. Every mutating operation verifies one before touching state.
type Proof string

// Credential is the opaque token presented for privileged operations.
type Credential string

// PresenceVerifier confirms the caller genuinely acts on behalf of the
// claimed account.
type PresenceVerifier interface {
	VerifyPresence(account string, proof Proof) error
}

// PrivilegedGate restricts owner-only operations to a designated principal.
type PrivilegedGate interface {
	VerifyPrivileged(cred Credential) error
}

// TokenVerifier validates HS256 presence tokens whose subject must match
// the acting account.
type TokenVerifier struct {
	secret []byte
	clock  clock.Clock
}

func NewTokenVerifier(secret []byte, clk clock.Clock) *TokenVerifier {
	return &TokenVerifier{secret: secret, clock: clk}
}

func (v *TokenVerifier) VerifyPresence(account string, proof Proof) error {
	if account == "" {
		return fmt.Errorf("%w: account is required", types.ErrValidation)
	}
	tok, err := jwt.Parse(string(proof),
		func(t *jwt.Token) (any, error) { return v.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return time.Unix(v.clock.Now(), 0) }),
	)
	if err != nil || !tok.Valid {
		return fmt.Errorf("%w: invalid presence proof", types.ErrNotAuthorized)
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return fmt.Errorf("%w: invalid presence proof", types.ErrNotAuthorized)
	}
	sub, _ := claims["sub"].(string)
	if sub != account {
		return fmt.Errorf("%w: proof does not cover account %s", types.ErrNotAuthorized, account)
	}
	return nil
}

// IssueProof mints a presence proof for the given account. Used by the
// login flow and by tests; in production the signing secret is shared with
// the identity provider.
func (v *TokenVerifier) IssueProof(account string, ttl time.Duration) (Proof, error) {
	now := time.Unix(v.clock.Now(), 0)
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": account,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	})
	ss, err := tok.SignedString(v.secret)
	if err != nil {
		return "", err
	}
	return Proof(ss), nil
}

// AdminGate accepts either the static admin API token or an HS256 session
// token carrying an admin role claim.
type AdminGate struct {
	adminToken string
	secret     []byte
	clock      clock.Clock
}

func NewAdminGate(adminToken string, secret []byte, clk clock.Clock) *AdminGate {
	return &AdminGate{adminToken: adminToken, secret: secret, clock: clk}
}

func (g *AdminGate) VerifyPrivileged(cred Credential) error {
	if g.adminToken != "" && string(cred) == g.adminToken {
		return nil
	}
	tok, err := jwt.Parse(string(cred),
		func(t *jwt.Token) (any, error) { return g.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return time.Unix(g.clock.Now(), 0) }),
	)
	if err != nil || !tok.Valid {
		return fmt.Errorf("%w: privileged operation", types.ErrNotAuthorized)
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return fmt.Errorf("%w: privileged operation", types.ErrNotAuthorized)
	}
	if role, _ := claims["role"].(string); role != "admin" {
		return fmt.Errorf("%w: privileged operation", types.ErrNotAuthorized)
	}
	return nil
}

// IssueSession mints an admin session credential, mirroring the login
// flow's cookie payload.
func (g *AdminGate) IssueSession(username string, ttl time.Duration) (Credential, error) {
	now := time.Unix(g.clock.Now(), 0)
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  username,
		"role": "admin",
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	})
	ss, err := tok.SignedString(g.secret)
	if err != nil {
		return "", err
	}
	return Credential(ss), nil
}
