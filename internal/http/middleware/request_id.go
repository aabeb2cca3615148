package middleware

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/gin-gonic/gin"
)

const RequestIDHeader = "X-Request-Id"

// requestIDKey is the gin context key the id is stored under; callers go
// through RequestIDFrom instead of touching the key.
const requestIDKey = "middleware.requestID"

func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(RequestIDHeader)
		if rid == "" {
			rid = fmt.Sprintf("req_%d_%d", time.Now().UnixNano(), rand.Intn(100000))
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(RequestIDHeader, rid)
		c.Next()
	}
}

// RequestIDFrom returns the id assigned by RequestID, or "" when the
// middleware did not run on this request.
func RequestIDFrom(c *gin.Context) string {
	v, ok := c.Get(requestIDKey)
	if !ok {
		return ""
	}
	rid, _ := v.(string)
	return rid
}
