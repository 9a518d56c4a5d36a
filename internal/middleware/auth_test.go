package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helios.network/testnetapi/internal/entity"
	"helios.network/testnetapi/internal/testutil"
	"helios.network/testnetapi/pkg/token"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(m *AuthMiddleware) *gin.Engine {
	r := gin.New()
	r.Use(RequestLogger())
	r.GET("/me", m.RequireAuth(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": c.GetString("user_id"), "wallet": c.GetString("wallet")})
	})
	r.GET("/admin", m.RequireAuth(), m.RequireAdmin(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestRequireAuth(t *testing.T) {
	active, banned := testutil.NewUser(1), testutil.NewUser(2)
	banned.Status = entity.AccountBanned
	users := testutil.NewUserStore(active, banned)
	issuer := token.NewIssuer("secret", time.Hour)
	r := newRouter(NewAuthMiddleware(users, issuer, nil))

	issue := func(u *entity.User) string {
		signed, _, err := issuer.Issue(u.ID, u.WalletAddress, time.Now())
		require.NoError(t, err)
		return signed
	}

	tests := []struct {
		name   string
		header string
		query  string
		status int
	}{
		{"missing token", "", "", http.StatusUnauthorized},
		{"garbage token", "Bearer nope", "", http.StatusUnauthorized},
		{"bearer header", "Bearer " + issue(active), "", http.StatusOK},
		{"query token", "", issue(active), http.StatusOK},
		{"banned account", "Bearer " + issue(banned), "", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url := "/me"
			if tt.query != "" {
				url += "?token=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, url, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			assert.NotEmpty(t, w.Header().Get(requestIDHeader))
			if tt.status == http.StatusOK {
				assert.Contains(t, w.Body.String(), active.WalletAddress)
			}
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	admin, user := testutil.NewUser(1), testutil.NewUser(2)
	users := testutil.NewUserStore(admin, user)
	issuer := token.NewIssuer("secret", time.Hour)
	m := NewAuthMiddleware(users, issuer, []string{testutil.Wallet(1)})
	r := newRouter(m)

	for u, want := range map[*entity.User]int{admin: http.StatusNoContent, user: http.StatusForbidden} {
		signed, _, err := issuer.Issue(u.ID, u.WalletAddress, time.Now())
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.Header.Set("Authorization", "Bearer "+signed)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, want, w.Code, u.WalletAddress)
	}
	assert.True(t, m.IsAdmin(strings.ToUpper(testutil.Wallet(1))))
}
