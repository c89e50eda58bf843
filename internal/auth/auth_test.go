package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKey    = "test-signing-key"
	testIssuer = "uniattend-test"
)

func TestIssueAndParse(t *testing.T) {
	id := Identity{Subject: "u-1", Role: RoleStudent, StudentID: "st-1"}
	pair, err := Issue(id, testIssuer, testKey, time.Minute, time.Hour)
	require.NoError(t, err)

	claims, err := Parse(pair.AccessToken, testKey, testIssuer)
	require.NoError(t, err)
	assert.Equal(t, id, claims.Identity())

	_, err = Parse(pair.RefreshToken, testKey, testIssuer)
	assert.ErrorIs(t, err, ErrWrongKind, "refresh tokens are not access tokens")

	_, err = Parse(pair.AccessToken, "other-key", testIssuer)
	assert.Error(t, err)

	_, err = Parse(pair.AccessToken, testKey, "someone-else")
	assert.Error(t, err)

	refreshed, err := Refresh(pair.RefreshToken, testIssuer, testKey, time.Minute, time.Hour)
	require.NoError(t, err)
	claims, err = Parse(refreshed.AccessToken, testKey, testIssuer)
	require.NoError(t, err)
	assert.Equal(t, "st-1", claims.StudentID)
}

func TestIssueRejectsUnknownRole(t *testing.T) {
	_, err := Issue(Identity{Subject: "x", Role: "janitor"}, testIssuer, testKey, time.Minute, time.Hour)
	assert.Error(t, err)
}

func TestExpiredToken(t *testing.T) {
	pair, err := Issue(Identity{Subject: "u", Role: RoleAdmin}, testIssuer, testKey, -time.Minute, time.Hour)
	require.NoError(t, err)
	_, err = Parse(pair.AccessToken, testKey, testIssuer)
	assert.Error(t, err)
}

func TestCan(t *testing.T) {
	tests := []struct {
		role   Role
		action Action
		want   bool
	}{
		{RoleStudent, ActionCheckin, true},
		{RoleStudent, ActionMarkAttendance, false},
		{RoleStudent, ActionViewReports, false},
		{RoleInstructor, ActionMarkAttendance, true},
		{RoleInstructor, ActionManageCourses, false},
		{RoleAdmin, ActionManageCourses, true},
		{RoleAdmin, ActionIssueTokens, true},
		{"", ActionViewOwn, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.role)+"/"+string(tt.action), func(t *testing.T) {
			assert.Equal(t, tt.want, Can(Claims{Role: tt.role}, tt.action))
		})
	}
}

func TestCanViewStudent(t *testing.T) {
	assert.True(t, CanViewStudent(Claims{Role: RoleStudent, StudentID: "s1"}, "s1"))
	assert.False(t, CanViewStudent(Claims{Role: RoleStudent, StudentID: "s1"}, "s2"))
	assert.False(t, CanViewStudent(Claims{Role: RoleStudent}, ""))
	assert.True(t, CanViewStudent(Claims{Role: RoleInstructor}, "s2"))
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/marks", Bearer(testKey, testIssuer), Require(ActionMarkAttendance), func(c *gin.Context) {
		claims, ok := ClaimsFrom(c)
		require.True(t, ok)
		c.String(http.StatusOK, claims.Subject)
	})

	token := func(role Role) string {
		pair, err := Issue(Identity{Subject: "u-" + string(role), Role: role, StudentID: "s"}, testIssuer, testKey, time.Minute, time.Hour)
		require.NoError(t, err)
		return pair.AccessToken
	}

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"garbage", "Bearer abc", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token(RoleInstructor), http.StatusUnauthorized},
		{"student forbidden", "Bearer " + token(RoleStudent), http.StatusForbidden},
		{"instructor allowed", "bearer " + token(RoleInstructor), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/marks", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}
