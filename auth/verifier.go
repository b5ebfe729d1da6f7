package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"deyn.app/cloud/models"
)

const (
	defaultLeeway   = 30 * time.Second
	defaultAudience = "authenticated"
)

// TokenVerifier turns an access token into the caller's session.
type TokenVerifier interface {
	Verify(token string) (models.Session, error)
}

type VerifierConfig struct {
	// Secret enables HS256 verification with the project's JWT secret.
	Secret string
	// JWKSURL is used when Secret is empty.
	JWKSURL  string
	Issuer   string
	Audience string
}

// Verifier validates provider-issued access tokens.
type Verifier struct {
	keyfunc jwt.Keyfunc
	parser  *jwt.Parser
}

func NewVerifier(cfg VerifierConfig) (*Verifier, error) {
	audience := cfg.Audience
	if audience == "" {
		audience = defaultAudience
	}

	opts := []jwt.ParserOption{
		jwt.WithAudience(audience),
		jwt.WithLeeway(defaultLeeway),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	var kf jwt.Keyfunc
	switch {
	case cfg.Secret != "":
		secret := []byte(cfg.Secret)
		kf = func(*jwt.Token) (interface{}, error) { return secret, nil }
		opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}))
	case cfg.JWKSURL != "":
		provider, err := keyfunc.NewDefault([]string{cfg.JWKSURL})
		if err != nil {
			return nil, fmt.Errorf("failed to init JWKS keyfunc: %w", err)
		}
		kf = provider.Keyfunc
		opts = append(opts, jwt.WithValidMethods([]string{
			jwt.SigningMethodRS256.Name,
			jwt.SigningMethodES256.Name,
		}))
	default:
		return nil, errors.New("either a JWT secret or a JWKS URL must be set")
	}

	return &Verifier{
		keyfunc: kf,
		parser:  jwt.NewParser(opts...),
	}, nil
}

// JWKSURL returns the provider's well-known key set location.
func JWKSURL(authURL string) string {
	return providerBase(authURL) + "/.well-known/jwks.json"
}

func (v *Verifier) Verify(tokenString string) (models.Session, error) {
	token, err := v.parser.Parse(tokenString, v.keyfunc)
	if err != nil {
		return models.Session{}, err
	}
	if !token.Valid {
		return models.Session{}, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return models.Session{}, errors.New("invalid token claims")
	}

	session := models.Session{
		UserID:      readString(claims, "sub"),
		Email:       readString(claims, "email"),
		AccessToken: tokenString,
	}
	if !session.Valid() {
		return models.Session{}, errors.New("token missing sub")
	}
	return session, nil
}

func readString(claims jwt.MapClaims, key string) string {
	if s, ok := claims[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}
