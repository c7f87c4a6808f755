package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	limiter "github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/deepresearch-labs/agent/pkg/apikeys"
)

const apiKeyContextKey = "api_key"

// securityHeaders sets standard defensive response headers on every
// request.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
		c.Next()
	}
}

// extractAPIKey reads the caller's key from the X-API-Key header, falling
// back to an api_key query parameter — required for `GET /ws/sessions/{id}`,
// where a browser WebSocket client can't
// set a custom header during the handshake.
func extractAPIKey(c *gin.Context) string {
	if key := c.GetHeader("X-API-Key"); key != "" {
		return key
	}
	return c.Query("api_key")
}

// requireAPIKey authenticates the request's key against the store and
// rejects with 401 if missing or invalid; otherwise stashes the
// authenticated apikeys.Key on the context for downstream handlers (e.g.
// per-key usage accounting) and rate-limiting.
func requireAPIKey(store *apikeys.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := extractAPIKey(c)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing X-API-Key"})
			return
		}
		key, ok := store.Authenticate(raw)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or revoked API key"})
			return
		}
		store.RecordRequest(key.ID)
		c.Set(apiKeyContextKey, key)
		c.Next()
	}
}

// rateLimitMiddleware enforces perMinute requests per API key, keyed on
// the authenticated key (falling back to remote address) rather than
// ulule/limiter's IP-only default, so two callers behind the same NAT
// don't share one bucket. Sets X-RateLimit-Limit/Remaining/Reset on every
// response and 429s once exceeded.
func rateLimitMiddleware(perMinute int) (gin.HandlerFunc, error) {
	rate, err := limiter.NewRateFromFormatted(fmt.Sprintf("%d-M", perMinute))
	if err != nil {
		return nil, fmt.Errorf("api: parse rate limit: %w", err)
	}

	instance := limiter.New(memory.NewStore(), rate)
	return mgin.NewMiddleware(instance, mgin.WithKeyGetter(func(c *gin.Context) string {
		if raw := extractAPIKey(c); raw != "" {
			return raw
		}
		return c.ClientIP()
	})), nil
}

func currentKey(c *gin.Context) (apikeys.Key, bool) {
	v, ok := c.Get(apiKeyContextKey)
	if !ok {
		return apikeys.Key{}, false
	}
	k, ok := v.(apikeys.Key)
	return k, ok
}
