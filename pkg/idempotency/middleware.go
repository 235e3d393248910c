package idempotency

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wms-platform/inventory-ledger/pkg/errors"
	"github.com/wms-platform/inventory-ledger/pkg/logging"
	"github.com/wms-platform/inventory-ledger/pkg/middleware"
)

const (
	// HeaderIdempotencyKey is the HTTP header name for the idempotency key
	HeaderIdempotencyKey = "Idempotency-Key"

	// HeaderIdempotentReplay marks a response served from the key store
	HeaderIdempotentReplay = "Idempotent-Replayed"

	// ContextKeyIdempotencyKeyID is the gin context key holding the stored key id
	ContextKeyIdempotencyKeyID = "idempotency_key_id"
)

// responseWriter captures the response so it can be stored against the key
type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *responseWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Middleware returns a gin middleware that makes mutating requests safe to retry.
//
// The first request with a key runs and its response is stored. A retry with the
// same body replays the stored response. A retry with a different body is rejected,
// as is a retry while the first request is still running. Responses that invite a
// retry (5xx, or anything carrying Retry-After) are not stored, so the key stays usable.
func Middleware(config *Config) gin.HandlerFunc {
	if config.Logger == nil {
		config.Logger = logging.NewNop()
	}
	return func(c *gin.Context) {
		if !isMutatingMethod(c.Request.Method) {
			c.Next()
			return
		}

		key := NormalizeKey(c.GetHeader(HeaderIdempotencyKey))
		if key == "" {
			if config.RequireKey {
				middleware.AbortWithAppError(c, errors.ErrIdempotencyKeyInvalid(ErrKeyRequired.Error()))
				return
			}
			c.Next()
			return
		}

		if err := ValidateKey(key, config.MaxKeyLength); err != nil {
			middleware.AbortWithAppError(c, errors.ErrIdempotencyKeyInvalid(err.Error()))
			return
		}

		var body []byte
		if c.Request.Body != nil {
			body, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewReader(body))
		}

		var scope string
		if config.ScopeExtractor != nil {
			scope = config.ScopeExtractor(c)
		}

		processIdempotency(c, config, key, scope, ComputeFingerprint(c.Request.Method, c.Request.URL.Path, body))
	}
}

func processIdempotency(c *gin.Context, config *Config, key, scope, fingerprint string) {
	ctx := c.Request.Context()
	logger := config.Logger.WithContext(ctx).With(
		"idempotencyKey", key,
		"path", c.Request.URL.Path,
	)

	now := time.Now().UTC()
	candidate := &IdempotencyKey{
		ID:                 KeyID(config.ServiceName, scope, key),
		Key:                key,
		Scope:              scope,
		ServiceID:          config.ServiceName,
		RequestPath:        c.Request.URL.Path,
		RequestMethod:      c.Request.Method,
		RequestFingerprint: fingerprint,
		LockedAt:           &now,
		CreatedAt:          now,
		ExpiresAt:          now.Add(config.RetentionPeriod),
	}

	stored, isNew, err := config.Repository.AcquireLock(ctx, candidate)
	if err != nil {
		logger.Error("Failed to acquire idempotency lock", "error", err)
		config.Metrics.RecordIdempotency("error")
		middleware.AbortWithAppError(c, errors.ErrServiceUnavailable("idempotency store"))
		return
	}

	if !isNew {
		if stored.RequestFingerprint != fingerprint {
			logger.Warn("Idempotency key reused with different parameters")
			config.Metrics.RecordIdempotency("mismatch")
			middleware.AbortWithAppError(c, errors.ErrIdempotencyKeyMismatch())
			return
		}

		if stored.IsCompleted() {
			logger.Info("Replaying stored response", "statusCode", stored.ResponseCode)
			config.Metrics.RecordIdempotency("hit")
			for k, v := range stored.ResponseHeaders {
				c.Header(k, v)
			}
			c.Header(HeaderIdempotentReplay, "true")
			c.Data(stored.ResponseCode, "application/json; charset=utf-8", stored.ResponseBody)
			c.Abort()
			return
		}

		if stored.IsLocked() {
			lockAge := time.Since(*stored.LockedAt)
			if lockAge < config.LockTimeout {
				logger.Warn("Idempotency key is in use", "lockAge", lockAge)
				config.Metrics.RecordIdempotency("in_progress")
				middleware.AbortWithAppError(c, errors.ErrIdempotencyKeyInProgress())
				return
			}
			logger.Info("Stale idempotency lock, proceeding", "lockAge", lockAge)
		}
	}

	c.Set(ContextKeyIdempotencyKeyID, candidate.ID)
	config.Metrics.RecordIdempotency("miss")

	writer := &responseWriter{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
	c.Writer = writer

	c.Next()

	status := writer.Status()
	if status >= http.StatusInternalServerError || writer.Header().Get("Retry-After") != "" {
		if err := config.Repository.ReleaseLock(ctx, candidate.ID); err != nil {
			logger.Error("Failed to release idempotency key", "error", err)
		}
		return
	}

	responseBody := writer.body.Bytes()
	if len(responseBody) > config.MaxResponseSize {
		logger.Warn("Response too large to store", "size", len(responseBody), "maxSize", config.MaxResponseSize)
		responseBody = []byte(fmt.Sprintf(`{"code":"RESPONSE_NOT_STORED","size":%d}`, len(responseBody)))
	}

	candidate.Complete(status, responseBody, extractResponseHeaders(writer))
	if err := config.Repository.StoreResponse(ctx, candidate); err != nil {
		logger.Error("Failed to store idempotency response", "error", err)
	}
}

func isMutatingMethod(method string) bool {
	return method == http.MethodPost ||
		method == http.MethodPut ||
		method == http.MethodPatch ||
		method == http.MethodDelete
}

// extractResponseHeaders keeps the headers worth replaying
func extractResponseHeaders(w gin.ResponseWriter) map[string]string {
	headers := make(map[string]string)
	for _, k := range []string{"Location", middleware.HeaderCorrelationID} {
		if v := w.Header().Get(k); v != "" {
			headers[k] = v
		}
	}
	return headers
}
