package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenPair holds access and refresh tokens.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	AccessExp    time.Time `json:"access_expires_at"`
	RefreshExp   time.Time `json:"refresh_expires_at"`
}

// Identity is who a token is issued for. StudentID links the subject to a
// student profile and is empty for staff.
type Identity struct {
	Subject   string `json:"subject"`
	Role      Role   `json:"role"`
	StudentID string `json:"student_id,omitempty"`
}

// Claims represents JWT payload.
type Claims struct {
	Role      Role   `json:"role"`
	StudentID string `json:"student_id,omitempty"`
	Kind      string `json:"kind"`
	jwt.RegisteredClaims
}

const (
	kindAccess  = "access"
	kindRefresh = "refresh"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrWrongKind    = errors.New("wrong token kind")
)

// Identity returns the identity carried by the claims.
func (c Claims) Identity() Identity {
	return Identity{Subject: c.Subject, Role: c.Role, StudentID: c.StudentID}
}

// Issue issues signed access and refresh tokens.
func Issue(id Identity, issuer, key string, accessTTL, refreshTTL time.Duration) (TokenPair, error) {
	if !id.Role.Valid() {
		return TokenPair{}, errors.New("unknown role " + string(id.Role))
	}
	now := time.Now()
	accessExp := now.Add(accessTTL)
	refreshExp := now.Add(refreshTTL)

	accessToken, err := sign(id, kindAccess, issuer, key, now, accessExp)
	if err != nil {
		return TokenPair{}, err
	}
	refreshToken, err := sign(id, kindRefresh, issuer, key, now, refreshExp)
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		AccessExp:    accessExp,
		RefreshExp:   refreshExp,
	}, nil
}

func sign(id Identity, kind, issuer, key string, now, exp time.Time) (string, error) {
	claims := Claims{
		Role:      id.Role,
		StudentID: id.StudentID,
		Kind:      kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   id.Subject,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
}

// Parse validates an access token and returns claims.
func Parse(tokenStr, key, issuer string) (Claims, error) {
	return parse(tokenStr, key, issuer, kindAccess)
}

// Refresh validates a refresh token and issues a new pair for the same identity.
func Refresh(refreshToken, issuer, key string, accessTTL, refreshTTL time.Duration) (TokenPair, error) {
	claims, err := parse(refreshToken, key, issuer, kindRefresh)
	if err != nil {
		return TokenPair{}, err
	}
	return Issue(claims.Identity(), issuer, key, accessTTL, refreshTTL)
}

func parse(tokenStr, key, issuer, kind string) (Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(key), nil
	}, opts...)
	if err != nil {
		return Claims{}, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}
	if claims.Kind != kind {
		return Claims{}, ErrWrongKind
	}
	return *claims, nil
}
