// Package auth provides JWT verification helpers.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"fieldcrm/internal/config"
)

// Roles known to the API. Unknown roles are treated as reps.
const (
	RoleAdmin      = "admin"
	RoleDispatcher = "dispatcher"
	RoleRep        = "rep"
)

// Verifier validates bearer tokens and extracts the caller.
// Supports modes: dev (token is "user:role", no signature) and hmac (HS256 JWT).
type Verifier struct {
	Mode       string
	HMACSecret []byte
	Issuer     string
	Audience   string
	RoleClaim  string
	Leeway     time.Duration
}

// Principal is the authenticated caller. UserID is opaque.
type Principal struct {
	UserID string
	Role   string
}

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

// CanDispatch reports whether the caller may restructure routes.
func (p Principal) CanDispatch() bool { return p.Role == RoleAdmin || p.Role == RoleDispatcher }

func NewVerifier(cfg config.AuthConfig) *Verifier {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "dev"
	}
	return &Verifier{
		Mode:       mode,
		HMACSecret: []byte(cfg.HMACSecret),
		Issuer:     cfg.Issuer,
		Audience:   cfg.Audience,
		RoleClaim:  "role",
		Leeway:     30 * time.Second,
	}
}

func (v *Verifier) Verify(token string) (Principal, error) {
	if v.Mode == "dev" {
		// token format: user:role
		parts := strings.SplitN(token, ":", 2)
		if len(parts) == 2 && parts[0] != "" {
			return Principal{UserID: parts[0], Role: normalizeRole(parts[1])}, nil
		}
		return Principal{}, errors.New("invalid dev token; expected user:role")
	}
	if v.Mode != "hmac" {
		return Principal{}, errors.New("unsupported auth mode")
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(v.Leeway),
		jwt.WithExpirationRequired(),
	}
	if v.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.Issuer))
	}
	if v.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.Audience))
	}
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) { return v.HMACSecret, nil }, opts...)
	if err != nil {
		return Principal{}, fmt.Errorf("verify token: %w", err)
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return Principal{}, errors.New("missing sub claim")
	}
	role, _ := claims[v.RoleClaim].(string)
	return Principal{UserID: sub, Role: normalizeRole(role)}, nil
}

// Sign issues an HS256 token for p. Used by the ops CLI and tests.
func (v *Verifier) Sign(p Principal, ttl time.Duration) (string, error) {
	if len(v.HMACSecret) == 0 {
		return "", errors.New("no signing secret configured")
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":       p.UserID,
		v.RoleClaim: p.Role,
		"iat":       now.Unix(),
		"exp":       now.Add(ttl).Unix(),
	}
	if v.Issuer != "" {
		claims["iss"] = v.Issuer
	}
	if v.Audience != "" {
		claims["aud"] = v.Audience
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.HMACSecret)
}

func normalizeRole(r string) string {
	switch r = strings.ToLower(strings.TrimSpace(r)); r {
	case RoleAdmin, RoleDispatcher, RoleRep:
		return r
	default:
		return RoleRep
	}
}
