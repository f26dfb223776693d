package logger

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/neuron-e/api-boukii-sub004/internal/actorcontext"
	"github.com/neuron-e/api-boukii-sub004/pkg/telemetry/correlation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	gormlogger "gorm.io/gorm/logger"
)

func TestWithContextAddsCorrelationFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	base := zap.New(core)

	ctx := WithRequestID(context.Background(), " req-1 ")
	ctx = actorcontext.WithActor(ctx, actorcontext.Actor{UserID: 7, ClientID: 700, Role: actorcontext.RoleClient})
	ctx = correlation.ContextWithCorrelationID(ctx, "checkout-1")

	WithContext(ctx, base).Info("hello")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "7", fields["actor_id"])
	assert.Equal(t, "client", fields["actor_role"])
	assert.Equal(t, "700", fields["client_id"])
	assert.Equal(t, "checkout-1", fields["correlation_id"])
}

func TestGinMiddlewareLogsRejectionsAtDebug(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	r := gin.New()
	r.Use(GinMiddleware(MiddlewareConfig{ErrorClassifier: func(error) (string, string) {
		return "rejected", "capacity_exceeded"
	}}))
	r.POST("/v1/courses/:course_id/reservations", func(c *gin.Context) {
		_ = c.Error(errors.New("capacity exceeded"))
		c.Status(http.StatusConflict)
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/courses/55/reservations", nil)
	req.Header.Set("X-Request-Id", "req-9")
	r.ServeHTTP(rec, req)

	assert.Equal(t, "req-9", rec.Header().Get("X-Request-Id"))
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zap.DebugLevel, entry.Level)
	fields := entry.ContextMap()
	assert.Equal(t, "55", fields["course_id"])
	assert.Equal(t, "req-9", fields["request_id"])
	assert.Equal(t, "capacity_exceeded", fields["error_code"])
}

func TestRequestLevel(t *testing.T) {
	assert.Equal(t, zap.ErrorLevel, requestLevel("/v1/bookings/:id", http.StatusInternalServerError, ""))
	assert.Equal(t, zap.WarnLevel, requestLevel("/v1/courses/:course_id/reservations", http.StatusTooManyRequests, ""))
	assert.Equal(t, zap.DebugLevel, requestLevel("/health", http.StatusOK, ""))
	assert.Equal(t, zap.InfoLevel, requestLevel("/v1/capacity", http.StatusOK, ""))
}

func TestNewRejectsInvalidLevel(t *testing.T) {
	_, err := New(nil, Config{Level: "loud"})
	assert.Error(t, err)
}

func TestOperationFromSQL(t *testing.T) {
	assert.Equal(t, "SELECT", operationFromSQL("select id from course_slot_locks"))
	assert.Equal(t, "INSERT", operationFromSQL("WITH x AS (SELECT 1) INSERT INTO bookings"))
	assert.Equal(t, "UPDATE", operationFromSQL("with locked as (select id from discount_codes where id = 1) update discount_codes set remaining_uses = remaining_uses - 1"))
	assert.Equal(t, "SELECT", operationFromSQL("WITH live AS (SELECT * FROM booking_users) SELECT COUNT(*) FROM live"))
	assert.Equal(t, "DELETE", operationFromSQL("DELETE FROM course_slot_locks WHERE id IN (SELECT id FROM x)"))
	assert.Equal(t, "UNKNOWN", operationFromSQL("PRAGMA foreign_keys = ON"))
}

func TestGormLoggerSkipsRecordNotFound(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	defer restore()

	l := NewGormLogger(DefaultGormLoggerConfig())
	l.Trace(context.Background(), time.Now(), func() (string, int64) {
		return "SELECT 1", 0
	}, gormlogger.ErrRecordNotFound)

	assert.Equal(t, 0, logs.Len())
}
