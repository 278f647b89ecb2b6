package api

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"storefront-orders/internal/auth"
	"storefront-orders/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const principalKey = "principal"

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}

// tracingMiddleware opens a span per request for the service spans to nest under
func tracingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := util.StartSpan(c.Request.Context(), c.Request.Method+" "+c.FullPath())
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// accessLog writes one structured line per request
func accessLog() gin.HandlerFunc {
	logger := util.GetLogger()
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()))
	}
}

// recovery turns a panic into a 500 response. Outside release mode the stack is included.
func recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		stack := string(debug.Stack())
		util.GetLogger().Error("Panic recovered",
			zap.Any("panic", recovered),
			zap.String("stack", stack))

		body := gin.H{
			"success": false,
			"message": fmt.Sprint(recovered),
		}
		if gin.Mode() != gin.ReleaseMode {
			body["stack"] = stack
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, body)
	})
}

// requireAuth verifies the bearer token and stores the caller on the context
func (h *Handler) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			respondError(c, http.StatusUnauthorized, "Authentication required")
			return
		}

		principal, err := h.verifier.Verify(strings.TrimSpace(token))
		if err != nil {
			respondError(c, http.StatusUnauthorized, "Invalid or expired token")
			return
		}

		c.Set(principalKey, principal)
		c.Next()
	}
}

// requirePermission rejects callers whose role lacks resource:action
func (h *Handler) requirePermission(resource, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		allowed, err := h.can(c, resource, action)
		if err != nil {
			respondError(c, http.StatusInternalServerError, err.Error())
			return
		}
		if !allowed {
			respondError(c, http.StatusForbidden, "You do not have permission to perform this action")
			return
		}
		c.Next()
	}
}

func (h *Handler) can(c *gin.Context, resource, action string) (bool, error) {
	p := principal(c)
	if p == nil {
		return false, nil
	}
	return h.authorizer.Allowed(p.Role, resource, action)
}

func principal(c *gin.Context) *auth.Principal {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil
	}
	p, _ := v.(*auth.Principal)
	return p
}
