// Package auth verifies the bearer credentials issued by the EduLearn auth service.
package auth

import (
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/pkg/errors"
)

// Roles (issued by the auth service)
const (
	RoleAdmin   = "admin:"
	RoleTeacher = "teacher:"
	RoleStudent = "student:"

	bearerScheme = "Bearer "
)

var (
	NowFunc = time.Now // mockable

	// errors
	ErrUnauthenticated = errors.New("user not authenticated")
	errSigningToken    = errors.New("signing token")
)

// Identity is the authenticated caller, derived from a verified credential.
type Identity struct {
	UserID string   `json:"user_id"`
	Roles  []string `json:"roles,omitempty"`
}

func (id Identity) roleStartsWith(prefix string) bool {
	for _, role := range id.Roles {
		if strings.HasPrefix(role, prefix) {
			return true
		}
	}
	return false
}

func (id Identity) IsAdmin() bool   { return id.roleStartsWith(RoleAdmin) }
func (id Identity) IsTeacher() bool { return id.roleStartsWith(RoleTeacher) }
func (id Identity) IsStudent() bool { return id.roleStartsWith(RoleStudent) }

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	IsStudent bool     `json:"is_student,omitempty"`
	IsTeacher bool     `json:"is_teacher,omitempty"`
	IsAdmin   bool     `json:"is_admin,omitempty"`
	Roles     []string `json:"roles,omitempty"`
}

// Valid validates time based claims against NowFunc and requires a subject.
func (c *Claims) Valid() error {
	now := NowFunc().Unix()
	if !c.VerifyExpiresAt(now, false) {
		return errors.New("token is expired")
	}
	if !c.VerifyIssuedAt(now, false) {
		return errors.New("token used before issued")
	}
	if !c.VerifyNotBefore(now, false) {
		return errors.New("token is not valid yet")
	}
	if strings.TrimSpace(c.Subject) == "" {
		return errors.New("token has no subject")
	}
	return nil
}

// Verifier checks `Authorization: Bearer <token>` headers against the server secret.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify returns the Identity carried by authHeader. Any failure yields ErrUnauthenticated,
// the underlying reason is kept as the error's context.
func (v *Verifier) Verify(authHeader string) (Identity, error) {
	if !strings.HasPrefix(authHeader, bearerScheme) {
		return Identity{}, errors.Wrap(ErrUnauthenticated, "missing or malformed authorization header")
	}
	raw := authHeader[len(bearerScheme):]
	if raw == "" || strings.ContainsAny(raw, " \t") {
		return Identity{}, errors.Wrap(ErrUnauthenticated, "missing or malformed authorization header")
	}

	claims := new(Claims)
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return Identity{}, errors.Wrap(ErrUnauthenticated, err.Error())
	}
	if !token.Valid {
		return Identity{}, errors.Wrap(ErrUnauthenticated, "invalid token")
	}
	return Identity{UserID: claims.Subject, Roles: claims.Roles}, nil
}

// NewToken generates a signed JWT for id, valid for ttl.
// Tokens are issued by the auth service; this is for tests & local development.
func NewToken(secret string, id Identity, ttl time.Duration) (string, error) {
	now := NowFunc()
	claims := &Claims{
		StandardClaims: jwt.StandardClaims{
			Subject:   id.UserID,
			ExpiresAt: now.Add(ttl).Unix(),
			IssuedAt:  now.Unix(),
		},
		IsStudent: id.IsStudent(),
		IsTeacher: id.IsTeacher(),
		IsAdmin:   id.IsAdmin(),
		Roles:     id.Roles,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	ss, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", errSigningToken
	}
	return ss, nil
}
