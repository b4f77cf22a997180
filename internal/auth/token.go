package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt"
)

var ErrInvalidToken = errors.New("invalid token")

// Role of the authenticated party.
const (
	RolePatient     = "patient"
	RoleOptometrist = "optometrist"
	RoleAdmin       = "admin"
)

// Claims is the identity carried in the bearer token. The identity service
// that issues these tokens is an external collaborator.
type Claims struct {
	UserID int    `json:"user_id"`
	Role   string `json:"role"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
	jwt.StandardClaims
}

// Verifier validates bearer tokens locally against the shared secret.
type Verifier struct {
	secret []byte
}

// NewVerifier constructs a Verifier.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Validate parses the token and returns its claims.
func (v *Verifier) Validate(token string) (Claims, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid || claims.UserID == 0 {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}

// Issue signs a token for the given identity. Used by tests and the debug
// login route; production tokens come from the identity collaborator.
func (v *Verifier) Issue(userID int, role, name string, ttl time.Duration) (string, error) {
	claims := Claims{
		UserID: userID,
		Role:   role,
		Name:   name,
		StandardClaims: jwt.StandardClaims{
			IssuedAt:  time.Now().Unix(),
			ExpiresAt: time.Now().Add(ttl).Unix(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
