package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"helios.network/testnetapi/internal/logger"
	"helios.network/testnetapi/pkg/apperror"
)

// exposeDetail controls whether 5xx responses carry the underlying error.
var exposeDetail = true

// SetProduction hides internal error details from 5xx responses.
func SetProduction(production bool) {
	exposeDetail = !production
}

// GetUserID retrieves the authenticated user ID from the context
func GetUserID(c *gin.Context) (uuid.UUID, error) {
	userIDStr, exists := c.Get("user_id")
	if !exists {
		return uuid.Nil, apperror.ErrUnauthorized
	}

	str, ok := userIDStr.(string)
	if !ok {
		return uuid.Nil, apperror.ErrUnauthorized
	}

	userID, err := uuid.Parse(str)
	if err != nil {
		return uuid.Nil, apperror.ErrUnauthorized
	}

	return userID, nil
}

// GetWallet retrieves the authenticated wallet (lowercase) from the context
func GetWallet(c *gin.Context) (string, error) {
	wallet := c.GetString("wallet")
	if wallet == "" {
		return "", apperror.ErrUnauthorized
	}
	return wallet, nil
}

// GetActor returns the authenticated user ID and wallet.
func GetActor(c *gin.Context) (uuid.UUID, string, error) {
	userID, err := GetUserID(c)
	if err != nil {
		return uuid.Nil, "", err
	}
	wallet, err := GetWallet(c)
	if err != nil {
		return uuid.Nil, "", err
	}
	return userID, wallet, nil
}

// ResponseError standardized error response
func ResponseError(c *gin.Context, err error) {
	code := apperror.MapErrorToStatus(err)

	if code >= http.StatusInternalServerError {
		logger.ErrorCtx(c.Request.Context(), err,
			zap.String("path", c.FullPath()),
			zap.Int("status", code),
		)

		body := gin.H{"error": http.StatusText(code)}
		if code == http.StatusInternalServerError {
			body["error"] = apperror.ErrInternal.Error()
		}
		if code == http.StatusBadGateway {
			body["error"] = err.Error()
		}
		if exposeDetail {
			body["detail"] = err.Error()
		}
		c.JSON(code, body)
		return
	}

	c.JSON(code, gin.H{"error": err.Error()})
}

// ValidationError responds 400 with a formatted binding error.
func ValidationError(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": message})
}
