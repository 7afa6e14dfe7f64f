package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"storybook-server/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RoleReviewer - роль модератора, которому разрешено менять статус историй.
const RoleReviewer = "reviewer"

const (
	sessionContextKey = "session_context"
	roleKey           = "role"
)

// Claims - клеймы access токена, выданного сервисом авторизации родителя.
type Claims struct {
	ParentID string `json:"parent_id"`
	ChildID  string `json:"child_id"`
	Role     string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// ErrorResponse - тело ответа об ошибке.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// JWTAuth проверяет Bearer токен (HMAC) и кладет SessionContext и роль в контекст gin.
func JWTAuth(secretKey string, logger *zap.Logger) gin.HandlerFunc {
	log := logger.Named("JWTAuth")
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			log.Warn("Authorization header missing", zap.String("path", c.Request.URL.Path))
			abortUnauthorized(c, "Authorization header missing")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			log.Warn("Invalid Authorization header format")
			abortUnauthorized(c, "Invalid Authorization header format")
			return
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(parts[1], claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return []byte(secretKey), nil
		})
		if err != nil {
			msg := "Token is invalid"
			switch {
			case errors.Is(err, jwt.ErrTokenExpired):
				msg = "Token has expired"
			case errors.Is(err, jwt.ErrTokenMalformed):
				msg = "Token is malformed"
			case errors.Is(err, jwt.ErrTokenSignatureInvalid):
				msg = "Token signature is invalid"
			}
			log.Warn("JWT validation failed", zap.Error(err))
			abortUnauthorized(c, msg)
			return
		}
		if !token.Valid {
			abortUnauthorized(c, "Token is invalid")
			return
		}
		if claims.ParentID == "" || claims.ChildID == "" {
			log.Warn("parent_id or child_id missing in JWT claims")
			abortUnauthorized(c, "Invalid token: parent_id and child_id are required")
			return
		}

		c.Set(sessionContextKey, models.SessionContext{ParentID: claims.ParentID, ChildID: claims.ChildID})
		c.Set(roleKey, claims.Role)
		log.Debug("Request authenticated", zap.String("parent_id", claims.ParentID), zap.String("child_id", claims.ChildID))
		c.Next()
	}
}

// RequireRole пропускает только запросы с указанной ролью. Должен идти после JWTAuth.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetRole(c) != role {
			c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{
				Code:    "forbidden",
				Message: "Insufficient permissions",
			})
			return
		}
		c.Next()
	}
}

// GetSessionContext возвращает владельца запроса, установленного JWTAuth.
func GetSessionContext(c *gin.Context) (models.SessionContext, error) {
	v, ok := c.Get(sessionContextKey)
	if !ok {
		return models.SessionContext{}, models.ErrUnauthorized
	}
	sc, ok := v.(models.SessionContext)
	if !ok {
		return models.SessionContext{}, fmt.Errorf("неверный тип session_context в контексте: %T", v)
	}
	return sc, nil
}

// GetRole возвращает роль из токена или пустую строку.
func GetRole(c *gin.Context) string {
	return c.GetString(roleKey)
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Code: "unauthorized", Message: msg})
}

// GenerateTestJWT создает подписанный токен.
// ВАЖНО: Эта функция предназначена ТОЛЬКО для использования в тестах.
func GenerateTestJWT(sc models.SessionContext, role, secretKey string, validity time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		ParentID: sc.ParentID,
		ChildID:  sc.ChildID,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(validity)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(-time.Minute)),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(secretKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign test JWT: %w", err)
	}
	return tokenString, nil
}
