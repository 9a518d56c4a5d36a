package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"helios.network/testnetapi/internal/entity"
	userRepo "helios.network/testnetapi/internal/modules/user/repository"
	"helios.network/testnetapi/pkg/token"
)

type AuthMiddleware struct {
	userRepo userRepo.UserRepository
	tokens   *token.Issuer
	admins   map[string]bool
}

// NewAuthMiddleware builds the auth middleware. adminWallets are compared
// lowercase.
func NewAuthMiddleware(userRepo userRepo.UserRepository, tokens *token.Issuer, adminWallets []string) *AuthMiddleware {
	admins := make(map[string]bool, len(adminWallets))
	for _, w := range adminWallets {
		admins[strings.ToLower(strings.TrimSpace(w))] = true
	}
	return &AuthMiddleware{
		userRepo: userRepo,
		tokens:   tokens,
		admins:   admins,
	}
}

// IsAdmin reports whether wallet is configured as an admin.
func (m *AuthMiddleware) IsAdmin(wallet string) bool {
	return m.admins[strings.ToLower(wallet)]
}

func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := ""
		authHeader := c.GetHeader("Authorization")

		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) == 2 && parts[0] == "Bearer" {
				tokenString = parts[1]
			}
		}

		// Browsers cannot set headers on WebSocket upgrades.
		if tokenString == "" {
			tokenString = c.Query("token")
		}

		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
			return
		}

		claims, err := m.tokens.Parse(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		user, err := m.userRepo.FindByID(c.Request.Context(), uuid.MustParse(claims.Subject))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
			return
		}
		if user.Status != entity.AccountActive {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "account is " + string(user.Status)})
			return
		}

		c.Set("user_id", user.ID.String())
		c.Set("wallet", user.WalletAddress)
		c.Next()
	}
}

// RequireAdmin must run after RequireAuth.
func (m *AuthMiddleware) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		wallet := c.GetString("wallet")
		if wallet == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
			return
		}

		if !m.IsAdmin(wallet) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access required"})
			return
		}

		c.Next()
	}
}
