package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/asmb123/voting-workshop-bhu/cache"
	"github.com/asmb123/voting-workshop-bhu/identity"
)

const (
	requestIDKey    = "request_id"
	identityKey     = "identity"
	requestIDHeader = "X-Request-ID"
)

// RequestLogger 为每个请求分配ID并在结束时记录访问日志
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(requestIDKey, requestID)
		c.Header(requestIDHeader, requestID)

		c.Next()

		fields := []zap.Field{
			zap.String("request_id", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if c.Writer.Status() >= 500 {
			logger.Warn("request", fields...)
			return
		}
		logger.Info("request", fields...)
	}
}

// ErrorHandler 处理通过 c.Error 登记但尚未写出的错误
func ErrorHandler(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) > 0 && !c.Writer.Written() {
			respondError(c, logger, c.Errors.Last().Err)
		}
	}
}

// Authenticate 校验 Bearer 令牌，把调用方身份放入上下文
func Authenticate(auth *identity.Authenticator, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			respondError(c, logger, identity.ErrUnauthenticated)
			return
		}

		id, err := auth.Authenticate(strings.TrimSpace(token))
		if err != nil {
			logger.Debug("authentication failed", zap.String("request_id", c.GetString(requestIDKey)), zap.Error(err))
			respondError(c, logger, identity.ErrUnauthenticated)
			return
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

// CallerIdentity 返回 Authenticate 中间件放入的身份
func CallerIdentity(c *gin.Context) (identity.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return identity.Identity{}, false
	}
	id, ok := v.(identity.Identity)
	return id, ok
}

// RateLimit 按调用方身份限流，限流器出错时放行
func RateLimit(limiter cache.RateLimiter, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if id, ok := CallerIdentity(c); ok {
			key = id.String()
		}

		allowed, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			logger.Warn("rate limiter unavailable", zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}
		if !allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{Error: "Too many requests, please retry later", Code: CodeRateLimited})
			return
		}
		c.Next()
	}
}
