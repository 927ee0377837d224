package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// JWTAuthenticator authenticates HS256-signed bearer tokens issued by the
// identity provider. The "sub" claim is the user ID.
type JWTAuthenticator struct {
	secret []byte
	parser *jwt.Parser
}

// NewJWTAuthenticator creates a JWT authenticator. Issuer and audience are
// checked only when non-empty.
func NewJWTAuthenticator(secret, issuer, audience string) (*JWTAuthenticator, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("jwt auth: secret must not be empty")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}

	return &JWTAuthenticator{
		secret: []byte(secret),
		parser: jwt.NewParser(opts...),
	}, nil
}

// Authenticate validates the bearer token in the Authorization header.
func (a *JWTAuthenticator) Authenticate(r *http.Request) (*AuthInfo, error) {
	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || raw == "" {
		return nil, ErrUnauthenticated
	}

	claims := jwt.MapClaims{}
	if _, err := a.parser.ParseWithClaims(raw, claims, a.key); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	return &AuthInfo{
		Method:  AuthMethodJWT,
		Subject: subject,
		Claims:  claims,
	}, nil
}

// Method returns the authentication method type.
func (a *JWTAuthenticator) Method() AuthMethod {
	return AuthMethodJWT
}

func (a *JWTAuthenticator) key(_ *jwt.Token) (any, error) {
	return a.secret, nil
}
