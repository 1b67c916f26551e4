package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"carepackage/internal/lifecycle"
	"carepackage/pkg/apperror"
	"carepackage/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	ctxUserID    = "userID"
	ctxUserEmail = "userEmail"
	ctxUserRole  = "userRole"
)

// Claims are the fields the API reads from an access token.
type Claims struct {
	UserID uuid.UUID
	Email  string
	Role   string
}

// ParseToken verifies an HMAC-signed access token and extracts its claims.
func ParseToken(secret []byte, tokenString string) (*Claims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}

	mc, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, jwt.ErrTokenInvalidClaims
	}
	sub, _ := mc["sub"].(string)
	id, err := uuid.Parse(sub)
	if err != nil {
		return nil, errors.New("token subject is not a user id")
	}
	email, _ := mc["email"].(string)
	role, _ := mc["role"].(string)
	if role == "" {
		return nil, errors.New("role not found in token")
	}
	return &Claims{UserID: id, Email: email, Role: role}, nil
}

// PermissionSource resolves the permission codes granted to a role.
type PermissionSource interface {
	GetPermissionsByRoleName(ctx context.Context, roleName string) ([]string, error)
}

// permCacheEntry stores cached permission codes for a role with TTL
type permCacheEntry struct {
	codes     []string
	expiresAt time.Time
}

// Auth authenticates requests and checks role permissions.
type Auth struct {
	secret    []byte
	secure    bool
	perms     PermissionSource
	permCache sync.Map // roleName -> permCacheEntry
	cacheTTL  time.Duration
	now       func() time.Time
}

// NewAuth builds the auth middleware. secure marks cookies Secure and
// SameSite=None for cross-origin production deployments.
func NewAuth(secret string, secure bool, perms PermissionSource) *Auth {
	return &Auth{
		secret:   []byte(secret),
		secure:   secure,
		perms:    perms,
		cacheTTL: 5 * time.Minute,
		now:      time.Now,
	}
}

func (a *Auth) Secret() []byte {
	return a.secret
}

// SetTokenCookie stores the access token as an HttpOnly cookie
func (a *Auth) SetTokenCookie(c *gin.Context, accessToken string, maxAge int) {
	c.SetSameSite(a.sameSite())
	c.SetCookie("access_token", accessToken, maxAge, "/", "", a.secure, true)
}

// ClearTokenCookie removes the access_token cookie
func (a *Auth) ClearTokenCookie(c *gin.Context) {
	c.SetSameSite(a.sameSite())
	c.SetCookie("access_token", "", -1, "/", "", a.secure, true)
}

func (a *Auth) sameSite() http.SameSite {
	if a.secure {
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}

// RequireAuth validates the JWT from the access_token cookie or the
// Authorization header and stores the caller on the context.
func (a *Auth) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := a.authenticate(c); !ok {
			return
		}
		c.Next()
	}
}

// RequirePermission authenticates the caller and checks that their role
// holds every required permission code.
func (a *Auth) RequirePermission(requiredPerms ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := a.authenticate(c)
		if !ok {
			return
		}

		userPerms, err := a.permissionsFor(c.Request.Context(), claims.Role)
		if errors.Is(err, apperror.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusForbidden, response.Error(http.StatusForbidden, "Access denied: unknown role '"+claims.Role+"'"))
			return
		}
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, "Failed to verify permissions"))
			return
		}

		permSet := make(map[string]bool, len(userPerms))
		for _, p := range userPerms {
			permSet[p] = true
		}
		for _, required := range requiredPerms {
			if !permSet[required] {
				c.AbortWithStatusJSON(http.StatusForbidden, response.Error(http.StatusForbidden, "Access denied: missing permission '"+required+"'"))
				return
			}
		}

		c.Next()
	}
}

// PermissionsFor exposes the cached permission lookup for the /me endpoint.
func (a *Auth) PermissionsFor(ctx context.Context, roleName string) ([]string, error) {
	return a.permissionsFor(ctx, roleName)
}

// ClearPermissionCache removes cached permissions for a role, or every role if empty
func (a *Auth) ClearPermissionCache(roleName string) {
	if roleName != "" {
		a.permCache.Delete(roleName)
		return
	}
	a.permCache.Range(func(key, _ interface{}) bool {
		a.permCache.Delete(key)
		return true
	})
}

func (a *Auth) authenticate(c *gin.Context) (*Claims, bool) {
	tokenString, cookieErr := c.Cookie("access_token")
	if cookieErr != nil || tokenString == "" {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authorization is missing"))
			return nil, false
		}
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid authorization format. Expected 'Bearer <token>'"))
			return nil, false
		}
		tokenString = parts[1]
	}

	claims, err := ParseToken(a.secret, tokenString)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid token"))
		return nil, false
	}

	c.Set(ctxUserID, claims.UserID)
	c.Set(ctxUserEmail, claims.Email)
	c.Set(ctxUserRole, claims.Role)
	return claims, true
}

func (a *Auth) permissionsFor(ctx context.Context, roleName string) ([]string, error) {
	if entry, ok := a.permCache.Load(roleName); ok {
		cached := entry.(permCacheEntry)
		if a.now().Before(cached.expiresAt) {
			return cached.codes, nil
		}
	}

	codes, err := a.perms.GetPermissionsByRoleName(ctx, roleName)
	if err != nil {
		return nil, err
	}
	a.permCache.Store(roleName, permCacheEntry{codes: codes, expiresAt: a.now().Add(a.cacheTTL)})
	return codes, nil
}

// CurrentActor returns the authenticated caller stored by RequireAuth or
// RequirePermission.
func CurrentActor(c *gin.Context) (lifecycle.Actor, bool) {
	id, ok := c.Get(ctxUserID)
	if !ok {
		return lifecycle.Actor{}, false
	}
	uid, ok := id.(uuid.UUID)
	if !ok {
		return lifecycle.Actor{}, false
	}
	return lifecycle.Actor{ID: uid, Email: c.GetString(ctxUserEmail)}, true
}

// CurrentRole returns the caller's role.
func CurrentRole(c *gin.Context) string {
	return c.GetString(ctxUserRole)
}
