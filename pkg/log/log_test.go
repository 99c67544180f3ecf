package log

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel(" warning "))
	assert.Equal(t, zerolog.Disabled, ParseLevel("off"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("nonsense"))
}

func TestNew_ServiceField(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "info", ServiceName: "wes-io-feed", Output: &buf})

	logger.Debug().Msg("hidden")
	logger.Info().Msg("shown")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "wes-io-feed", entry[FieldService])
	assert.Equal(t, "shown", entry["message"])
}

func TestCtx_FallsBackToGlobal(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Output: &buf})

	ctx := WithLogger(context.Background(), logger)
	l := Ctx(ctx)
	l.Info().Msg("scoped")
	assert.Contains(t, buf.String(), "scoped")

	assert.NotPanics(t, func() {
		l := Ctx(context.Background())
		l.Debug().Msg("global")
	})
}

func TestGinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var buf bytes.Buffer
	r := gin.New()
	r.Use(GinMiddleware(New(Config{Output: &buf})))
	r.GET("/ping", func(c *gin.Context) {
		c.Set(FieldAccountID, "acc-1")
		l := Ctx(c.Request.Context())
		l.Info().Msg("inside handler")
		c.Status(http.StatusTeapot)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(HeaderRequestID, "req-42")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "req-42", w.Header().Get(HeaderRequestID))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)

	var handlerLine, done map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &handlerLine))
	require.NoError(t, json.Unmarshal(lines[1], &done))
	assert.Equal(t, "req-42", handlerLine[FieldRequestID])
	assert.Equal(t, "request completed", done["message"])
	assert.EqualValues(t, http.StatusTeapot, done[FieldStatus])
	assert.Equal(t, "acc-1", done[FieldAccountID])
}
