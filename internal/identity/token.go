package identity

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Role is the part an actor plays in a product's lifecycle.
type Role string

const (
	RoleCreator   Role = "creator"
	RoleBuyer     Role = "buyer"
	RoleFulfiller Role = "fulfiller"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleCreator, RoleBuyer, RoleFulfiller:
		return true
	}
	return false
}

// ActorClaims are the JWT claims of an actor token.
type ActorClaims struct {
	jwt.RegisteredClaims
	Actor string `json:"actor"`
	Role  Role   `json:"role"`
}

// ActorTokenIssuer issues and verifies actor tokens signed with an RSA key.
type ActorTokenIssuer struct {
	key    *rsa.PrivateKey
	pub    *rsa.PublicKey
	issuer string
	ttl    time.Duration
}

// NewActorTokenIssuer creates an ActorTokenIssuer.
//
//	issuerURL - The "iss" claim value; matches the service's base URL.
//	ttl       - Token lifetime (default: 24 hours).
func NewActorTokenIssuer(key *rsa.PrivateKey, issuerURL string, ttl time.Duration) *ActorTokenIssuer {
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &ActorTokenIssuer{
		key:    key,
		pub:    &key.PublicKey,
		issuer: issuerURL,
		ttl:    ttl,
	}
}

// Issue creates a signed token for actor acting as role.
func (t *ActorTokenIssuer) Issue(actor string, role Role) (string, error) {
	if actor == "" {
		return "", fmt.Errorf("issue actor token: actor is required")
	}
	if !role.Valid() {
		return "", fmt.Errorf("issue actor token: unknown role %q", role)
	}
	now := time.Now().UTC()
	claims := ActorClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   actor,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
			ID:        uuid.New().String(),
		},
		Actor: actor,
		Role:  role,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = signingKeyID
	signed, err := token.SignedString(t.key)
	if err != nil {
		return "", fmt.Errorf("sign actor token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates an actor token, returning its claims.
func (t *ActorTokenIssuer) Verify(tokenStr string) (*ActorClaims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&ActorClaims{},
		func(tok *jwt.Token) (any, error) {
			if _, ok := tok.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
			}
			return t.pub, nil
		},
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("verify actor token: %w", err)
	}
	claims, ok := token.Claims.(*ActorClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid actor token claims")
	}
	if claims.Actor == "" || !claims.Role.Valid() {
		return nil, fmt.Errorf("actor token missing actor or role")
	}
	return claims, nil
}

// PublicKey returns the verification key.
func (t *ActorTokenIssuer) PublicKey() *rsa.PublicKey { return t.pub }

// PublicKeyPEM returns the verification key encoded as PKIX PEM.
func (t *ActorTokenIssuer) PublicKeyPEM() (string, error) {
	der, err := x509.MarshalPKIXPublicKey(t.pub)
	if err != nil {
		return "", fmt.Errorf("marshal public key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}

// TTL returns the configured token lifetime.
func (t *ActorTokenIssuer) TTL() time.Duration { return t.ttl }
