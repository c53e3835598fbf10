// Package auth signs and validates the bearer token an external HIL
// approver presents to the CLI's approval HTTP endpoint
// (transport/execctl) when resolving a decision_required event — not a
// general-purpose auth system, just the token shape carrying user_id
// attribution onto the resulting approval_response command (spec §4.4,
// §6). Grounded on the dependency choices named in SPEC_FULL.md's domain
// stack table: golang-jwt/jwt/v5 for the token, golang.org/x/crypto/bcrypt
// for the operator token's local hash, following the bcrypt usage idiom
// at server/router/api/v1/user_service_crud.go (88lin-divinesense).
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidToken is returned for any token that fails signature
// verification, has expired, or carries an empty UserID.
var ErrInvalidToken = errors.New("auth: invalid or expired token")

// ApprovalClaims is the JWT payload issued to a human approver: who they
// are, and which decision they are allowed to resolve.
type ApprovalClaims struct {
	UserID     string `json:"user_id"`
	DecisionID string `json:"decision_id"`
	jwt.RegisteredClaims
}

// Issuer signs and validates ApprovalClaims tokens with one HMAC secret.
type Issuer struct {
	secret []byte
	ttl    time.Duration
}

// NewIssuer returns an Issuer signing tokens with secret, valid for ttl
// (defaulting to 15 minutes, matching a typical HIL approval window).
func NewIssuer(secret []byte, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Issuer{secret: secret, ttl: ttl}
}

// IssueApprovalToken mints a bearer token scoping userID to decisionID,
// to be presented back to the approval endpoint within the issuer's ttl.
func (i *Issuer) IssueApprovalToken(userID, decisionID string, now time.Time) (string, error) {
	claims := ApprovalClaims{
		UserID:     userID,
		DecisionID: decisionID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// ParseApprovalToken validates signature and expiry and returns the
// embedded claims. decisionID must match the token's DecisionID, so a
// token minted for one decision can't be replayed against another.
func (i *Issuer) ParseApprovalToken(raw, decisionID string) (ApprovalClaims, error) {
	var claims ApprovalClaims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return i.secret, nil
	})
	if err != nil || !token.Valid {
		return ApprovalClaims{}, ErrInvalidToken
	}
	if claims.UserID == "" || claims.DecisionID == "" || claims.DecisionID != decisionID {
		return ApprovalClaims{}, ErrInvalidToken
	}
	return claims, nil
}

// HashOperatorToken bcrypt-hashes a local operator token for at-rest
// storage (e.g. in the CLI's config file), mirroring the
// bcrypt.GenerateFromPassword/bcrypt.DefaultCost idiom used for user
// passwords in the pack.
func HashOperatorToken(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyOperatorToken reports whether token matches the bcrypt hash
// produced by HashOperatorToken.
func VerifyOperatorToken(hash, token string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)) == nil
}
