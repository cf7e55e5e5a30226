package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidInvite = errors.New("invalid invite token")
	ErrTokenMismatch = errors.New("invite does not match session")
)

// InviteClaims are carried by the signed link an external candidate receives.
type InviteClaims struct {
	SessionToken string `json:"sessionToken"`
	Redirect     string `json:"redirect,omitempty"`
	jwt.RegisteredClaims
}

// Invites issues and validates invite tokens with an HMAC secret.
type Invites struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewInvites(secret, issuer string) *Invites {
	return &Invites{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// Issue signs an invite for sessionToken valid for ttl.
func (i *Invites) Issue(sessionToken, redirect string, ttl time.Duration) (string, error) {
	now := i.now()
	claims := InviteClaims{
		SessionToken: sessionToken,
		Redirect:     redirect,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   sessionToken,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// Validate parses an invite and checks it was issued for sessionToken.
func (i *Invites) Validate(tokenString, sessionToken string) (*InviteClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &InviteClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return i.secret, nil
	}, jwt.WithIssuer(i.issuer), jwt.WithTimeFunc(i.now))
	if err != nil {
		return nil, errors.Join(ErrInvalidInvite, err)
	}
	claims, ok := token.Claims.(*InviteClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidInvite
	}
	if claims.SessionToken != sessionToken {
		return nil, ErrTokenMismatch
	}
	return claims, nil
}
