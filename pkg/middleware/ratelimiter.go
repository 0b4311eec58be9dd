package middleware

import (
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/cannibal3004/ai-dungeon-master-sub001/pkg/errors"
	"github.com/cannibal3004/ai-dungeon-master-sub001/pkg/logger"
)

// ActionLimiter throttles player action submissions. The control surface
// serves a single local renderer, so one limiter covers everything; this is a
// UX guard against accidental submit storms, not an abuse control.
type ActionLimiter struct {
	limiter *rate.Limiter
	logger  *logger.Logger
}

// NewActionLimiter creates a limiter allowing limit submissions per second
// with the given burst.
func NewActionLimiter(limit float64, burst int, log *logger.Logger) *ActionLimiter {
	return &ActionLimiter{
		limiter: rate.NewLimiter(rate.Limit(limit), burst),
		logger:  log.WithComponent("ratelimit"),
	}
}

// Allow reports whether one more submission may go out now.
func (l *ActionLimiter) Allow() bool {
	return l.limiter.Allow()
}

// Middleware returns a Gin middleware that rejects requests over the limit.
func (l *ActionLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.limiter.Allow() {
			l.logger.Warn("rate limit exceeded", "path", c.Request.URL.Path)
			c.Error(errors.NewBadRequestError("RATE_LIMIT_EXCEEDED", "Too many requests. Please try again later."))
			c.Header("Retry-After", "1")
			c.Abort()
			return
		}
		c.Next()
	}
}
