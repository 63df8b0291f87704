package session

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("unused-secret"))
	require.NoError(t, err)
	return token
}

func TestDecode_Roles(t *testing.T) {
	tests := []struct {
		name     string
		claims   jwt.MapClaims
		wantRole Role
		wantUser string
	}{
		{"student", jwt.MapClaims{"role": "student", "student_user": "s-1"}, RoleStudent, "s-1"},
		{"admin", jwt.MapClaims{"role": "admin", "admin_user": "a-1"}, RoleAdmin, "a-1"},
		{"superadmin", jwt.MapClaims{"role": "superadmin", "superadmin_user": "sa-1"}, RoleSuperAdmin, "sa-1"},
		{"super_admin spelling", jwt.MapClaims{"role": "super_admin", "superadmin_user": "sa-2"}, RoleSuperAdmin, "sa-2"},
		{"uppercase role", jwt.MapClaims{"role": "ADMIN", "admin_user": "a-2"}, RoleAdmin, "a-2"},
		{"user id fallback", jwt.MapClaims{"role": "student", "user_id": "u-9"}, RoleStudent, "u-9"},
		{"numeric user id", jwt.MapClaims{"role": "student", "student_user": float64(42)}, RoleStudent, "42"},
		{"no role with user", jwt.MapClaims{"student_user": "s-3"}, RoleStudent, "s-3"},
		{"no role no user", jwt.MapClaims{"exp": float64(9999999999)}, RoleAnonymous, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token := signToken(t, tt.claims)

			s, err := Decode(token)
			require.NoError(t, err)
			assert.Equal(t, tt.wantRole, s.Role)
			assert.Equal(t, tt.wantUser, s.UserID)
			assert.Equal(t, token, s.Token)
		})
	}
}

func TestDecode_Empty(t *testing.T) {
	s, err := Decode("")
	require.NoError(t, err)
	assert.Equal(t, RoleAnonymous, s.Role)
	assert.False(t, s.HasUser())
	assert.Empty(t, s.Scope())
}

func TestSession_Scope(t *testing.T) {
	anon := Anonymous()
	assert.Empty(t, anon.Scope())

	a := anon.WithClientID("browser-a")
	b := anon.WithClientID("browser-b")
	assert.Equal(t, "client-browser-a", a.Scope())
	assert.NotEqual(t, a.Scope(), b.Scope())
	assert.Empty(t, anon.ClientID)

	user := Session{Role: RoleStudent, UserID: "u1"}.WithClientID("browser-a")
	assert.Equal(t, "u1", user.Scope())
}

func TestDecode_Malformed(t *testing.T) {
	for _, token := range []string{"not-a-token", "a.b", "a.%%%.c"} {
		_, err := Decode(token)
		assert.ErrorIs(t, err, ErrMalformedToken, token)
	}
}

func TestFromAuthorizationHeader(t *testing.T) {
	token := signToken(t, jwt.MapClaims{"role": "admin", "admin_user": "a-1"})

	s, err := FromAuthorizationHeader("Bearer " + token)
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, s.Role)
	assert.Equal(t, "a-1", s.Scope())

	s, err = FromAuthorizationHeader("")
	require.NoError(t, err)
	assert.Equal(t, RoleAnonymous, s.Role)

	_, err = FromAuthorizationHeader("Basic dXNlcjpwYXNz")
	assert.ErrorIs(t, err, ErrMalformedToken)
}

func TestRole_CanManage(t *testing.T) {
	assert.True(t, RoleAdmin.CanManage())
	assert.True(t, RoleSuperAdmin.CanManage())
	assert.False(t, RoleStudent.CanManage())
	assert.False(t, RoleAnonymous.CanManage())
}
