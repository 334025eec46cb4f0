package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/LordWolfenstein/databass/config"
	"github.com/LordWolfenstein/databass/core"
	"github.com/golang-jwt/jwt/v5"
)

// WriteScope is the scope a token needs to apply feeds or run raw SQL when
// it carries a scope claim at all.
const WriteScope = "databass:write"

var (
	errAuthRequired = errors.New("authentication required: send AUTH JWT <token>")
	errTokenExpired = errors.New("authentication required: token expired")
	errReadOnly     = fmt.Errorf("permission denied: token lacks the %s scope", WriteScope)
)

// Grant is what a verified token allows a connection to do.
type Grant struct {
	Identity  core.Identity
	ReadOnly  bool
	ExpiresAt time.Time
}

func (g Grant) Expired(now time.Time) bool {
	return !g.ExpiresAt.IsZero() && now.After(g.ExpiresAt)
}

// Verifier checks HMAC-signed tokens against the configured secret, issuer
// and audience, and maps their claims to an engine identity.
type Verifier struct {
	secret     []byte
	nameClaim  string
	emailClaim string
	parser     *jwt.Parser
}

func NewVerifier(cfg config.Auth) *Verifier {
	options := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})}
	if cfg.Issuer != "" {
		options = append(options, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		options = append(options, jwt.WithAudience(cfg.Audience))
	}

	verifier := &Verifier{
		secret:     []byte(cfg.JWTSecret),
		nameClaim:  cfg.NameClaim,
		emailClaim: cfg.EmailClaim,
		parser:     jwt.NewParser(options...),
	}
	if verifier.nameClaim == "" {
		verifier.nameClaim = "name"
	}
	if verifier.emailClaim == "" {
		verifier.emailClaim = "email"
	}
	return verifier
}

func (v *Verifier) key(*jwt.Token) (any, error) {
	if len(v.secret) == 0 {
		return nil, errors.New("no JWT secret configured")
	}
	return v.secret, nil
}

// Verify validates token and returns the grant it carries.
func (v *Verifier) Verify(token string) (Grant, error) {
	claims := jwt.MapClaims{}
	if _, err := v.parser.ParseWithClaims(token, claims, v.key); err != nil {
		return Grant{}, fmt.Errorf("invalid token: %w", err)
	}

	name, _ := claims[v.nameClaim].(string)
	email, _ := claims[v.emailClaim].(string)
	if name == "" && email == "" {
		return Grant{}, fmt.Errorf("token missing identity claims (%s or %s)", v.nameClaim, v.emailClaim)
	}

	grant := Grant{Identity: core.Identity{Name: name, Email: email}}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		grant.ExpiresAt = exp.Time
	}
	if scope, ok := claims["scope"].(string); ok {
		grant.ReadOnly = !slices.Contains(strings.Fields(scope), WriteScope)
	}
	return grant, nil
}

// session is the authentication state of one connection.
type session struct {
	grant *Grant
}

// current returns the connection's grant, dropping it once it has expired.
func (s *session) current(now time.Time) (Grant, error) {
	if s.grant == nil {
		return Grant{}, errAuthRequired
	}
	if s.grant.Expired(now) {
		s.grant = nil
		return Grant{}, errTokenExpired
	}
	return *s.grant, nil
}

func isAuthCommand(line string) bool {
	return strings.HasPrefix(strings.ToUpper(line), "AUTH ")
}

// parseAuthCommand splits "AUTH JWT <token>" into its type and token.
func parseAuthCommand(line string) (authType, token string, err error) {
	line = strings.TrimSpace(line)
	if !isAuthCommand(line) {
		return "", "", errors.New("not an AUTH command")
	}

	parts := strings.Fields(line)
	if len(parts) != 3 {
		return "", "", errors.New("invalid AUTH command: expected AUTH <type> <credentials>")
	}

	authType = strings.ToUpper(parts[1])
	if authType != "JWT" {
		return "", "", fmt.Errorf("unsupported auth type: %s", authType)
	}
	return authType, parts[2], nil
}

func (s *Server) handleAuth(line string, sess *session) Response {
	fail := func(err error) Response {
		return Response{Success: false, Type: "auth", Error: err.Error()}
	}

	if s.verifier == nil {
		return fail(errors.New("authentication not configured"))
	}
	_, token, err := parseAuthCommand(line)
	if err != nil {
		return fail(err)
	}
	grant, err := s.verifier.Verify(token)
	if err != nil {
		s.log.WithError(err).Debug("token rejected")
		return fail(err)
	}
	sess.grant = &grant

	response := AuthResponse{
		Authenticated: true,
		Identity:      grant.Identity.String(),
		ReadOnly:      grant.ReadOnly,
	}
	if !grant.ExpiresAt.IsZero() {
		response.ExpiresIn = int(time.Until(grant.ExpiresAt).Seconds())
	}
	data, _ := json.Marshal(response)
	return Response{Success: true, Type: "auth", Result: data}
}
