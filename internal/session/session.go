// Package session resolves the caller's role and user id from a bearer token.
//
// The token payload is decoded without signature verification: the portal
// backend verifies every request, the payload is only used to pick endpoints
// and gate features.
package session

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Role is the portal role carried by the token.
type Role string

const (
	// RoleAnonymous is used when no token is presented.
	RoleAnonymous Role = "anonymous"
	// RoleStudent browses published listings and saves them.
	RoleStudent Role = "student"
	// RoleAdmin manages listings.
	RoleAdmin Role = "admin"
	// RoleSuperAdmin manages listings and admins.
	RoleSuperAdmin Role = "superadmin"
)

// CanManage reports whether the role sees unpublished listings.
func (r Role) CanManage() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// ErrMalformedToken is returned when the token payload cannot be decoded.
var ErrMalformedToken = errors.New("session: malformed token")

// userIDClaims maps each role to the payload claim holding its user id.
var userIDClaims = map[Role]string{
	RoleStudent:    "student_user",
	RoleAdmin:      "admin_user",
	RoleSuperAdmin: "superadmin_user",
}

// Session is the resolved caller context injected into listing controllers.
type Session struct {
	Role   Role
	UserID string
	// Token is the raw bearer token, forwarded to the backend.
	Token string
	// ClientID identifies an anonymous browser so its view state is kept
	// apart from other visitors.
	ClientID string
}

// Anonymous returns a session with no user.
func Anonymous() Session {
	return Session{Role: RoleAnonymous}
}

// HasUser reports whether a user id was resolved.
func (s Session) HasUser() bool {
	return s.UserID != ""
}

// WithClientID returns a copy of s bound to the anonymous client id.
func (s Session) WithClientID(id string) Session {
	s.ClientID = id
	return s
}

// Scope returns the key namespace used for persisted view state. It is empty
// when the caller can't be told apart from other anonymous visitors, in which
// case nothing is persisted.
func (s Session) Scope() string {
	switch {
	case s.UserID != "":
		return s.UserID
	case s.ClientID != "":
		return "client-" + s.ClientID
	default:
		return ""
	}
}

// FromAuthorizationHeader extracts the bearer token from an Authorization
// header value and decodes it. An empty header yields an anonymous session.
func FromAuthorizationHeader(header string) (Session, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return Anonymous(), nil
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		token, ok = strings.CutPrefix(header, "bearer ")
	}
	if !ok {
		return Session{}, fmt.Errorf("%w: expected bearer scheme", ErrMalformedToken)
	}
	return Decode(strings.TrimSpace(token))
}

// Decode parses the token payload and resolves role and user id.
func Decode(token string) (Session, error) {
	if token == "" {
		return Anonymous(), nil
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	role := Role(strings.ToLower(claimString(claims, "role")))
	switch role {
	case RoleStudent, RoleAdmin, RoleSuperAdmin:
	case "super_admin":
		role = RoleSuperAdmin
	default:
		role = RoleAnonymous
	}

	userID := ""
	if claim, ok := userIDClaims[role]; ok {
		userID = claimString(claims, claim)
	}
	if userID == "" {
		for _, claim := range []string{"student_user", "admin_user", "superadmin_user", "user_id", "sub"} {
			if userID = claimString(claims, claim); userID != "" {
				break
			}
		}
	}
	if role == RoleAnonymous && userID != "" {
		role = RoleStudent
	}

	return Session{Role: role, UserID: userID, Token: token}, nil
}

func claimString(claims jwt.MapClaims, key string) string {
	switch v := claims[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return ""
	}
}
