package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prisignal/pkg/signal"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRouter_Healthz(t *testing.T) {
	r := NewRouter(newTestHub(t, testConfig("a")), zerolog.Nop())
	w := do(t, r, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestRouter_DispatchAndInspect(t *testing.T) {
	r := NewRouter(newTestHub(t, testConfig("orders", "users")), zerolog.Nop())

	w := do(t, r, http.MethodPost, "/signals/orders/dispatch", `{"payload":{"sku":"x-1"}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Message    Message `json:"message"`
		Dispatches uint64  `json:"dispatches"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, uint64(1), resp.Dispatches)
	assert.JSONEq(t, `{"sku":"x-1"}`, string(resp.Message.Payload))

	w = do(t, r, http.MethodGet, "/signals", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list []SignalStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 2)
	assert.Equal(t, "orders", list[0].Name)
	assert.Equal(t, uint64(1), list[0].Dispatches)
	assert.Equal(t, 2, list[0].Listeners)
	assert.Equal(t, "users", list[1].Name)

	w = do(t, r, http.MethodGet, "/signals/orders", "")
	require.Equal(t, http.StatusOK, w.Code)
	var st SignalStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	require.Len(t, st.Registered, 2)
	assert.Greater(t, st.Registered[0].Priority, st.Registered[1].Priority)

	w = do(t, r, http.MethodGet, "/signals/orders/journal", "")
	require.Equal(t, http.StatusOK, w.Code)
	var msgs []Message
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &msgs))
	require.Len(t, msgs, 1)
	assert.Equal(t, resp.Message.ID, msgs[0].ID)
}

func TestRouter_Metrics(t *testing.T) {
	cfg := testConfig("a")
	cfg.RateLimit = 0.0001
	cfg.RateBurst = 1
	r := NewRouter(newTestHub(t, cfg), zerolog.Nop())
	require.Equal(t, http.StatusOK, do(t, r, http.MethodPost, "/signals/a/dispatch", `{"payload":1}`).Code)
	require.Equal(t, http.StatusTooManyRequests, do(t, r, http.MethodPost, "/signals/a/dispatch", `{"payload":2}`).Code)

	w := do(t, r, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `prisignal_dispatch_total{result="ok",signal="a"} 1`)
	assert.Contains(t, body, `prisignal_dispatch_total{result="rate_limited",signal="a"} 1`)
	assert.Contains(t, body, `prisignal_dispatch_total{result="error",signal="a"} 0`)
	assert.Contains(t, body, `prisignal_listeners{signal="a"} 2`)
	assert.Contains(t, body, `prisignal_dispatch_depth{signal="a"} 0`)
}

func TestRouter_Errors(t *testing.T) {
	t.Run("unknown signal", func(t *testing.T) {
		r := NewRouter(newTestHub(t, testConfig("a")), zerolog.Nop())
		assert.Equal(t, http.StatusNotFound, do(t, r, http.MethodGet, "/signals/nope", "").Code)
		assert.Equal(t, http.StatusNotFound, do(t, r, http.MethodGet, "/signals/nope/journal", "").Code)
		assert.Equal(t, http.StatusNotFound, do(t, r, http.MethodPost, "/signals/nope/dispatch", `{"payload":1}`).Code)
	})

	t.Run("bad body", func(t *testing.T) {
		r := NewRouter(newTestHub(t, testConfig("a")), zerolog.Nop())
		assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodPost, "/signals/a/dispatch", `{}`).Code)
		assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodPost, "/signals/a/dispatch", `not json`).Code)
	})

	t.Run("rate limited", func(t *testing.T) {
		cfg := testConfig("a")
		cfg.RateLimit = 0.0001
		cfg.RateBurst = 1
		r := NewRouter(newTestHub(t, cfg), zerolog.Nop())
		assert.Equal(t, http.StatusOK, do(t, r, http.MethodPost, "/signals/a/dispatch", `{"payload":1}`).Code)
		assert.Equal(t, http.StatusTooManyRequests, do(t, r, http.MethodPost, "/signals/a/dispatch", `{"payload":2}`).Code)
	})

	t.Run("lifetime limit", func(t *testing.T) {
		cfg := testConfig("a")
		cfg.DispatchLimit = 1
		cfg.LimitMode = "lifetime"
		r := NewRouter(newTestHub(t, cfg), zerolog.Nop())
		assert.Equal(t, http.StatusOK, do(t, r, http.MethodPost, "/signals/a/dispatch", `{"payload":1}`).Code)
		w := do(t, r, http.MethodPost, "/signals/a/dispatch", `{"payload":2}`)
		assert.Equal(t, http.StatusLoopDetected, w.Code)
		assert.Contains(t, w.Body.String(), "dispatch limit exceeded")
	})

	t.Run("listener panic", func(t *testing.T) {
		hub := newTestHub(t, testConfig("a"))
		sig, err := hub.Signal("a")
		require.NoError(t, err)
		require.NoError(t, sig.Add(signal.NewCallback(func(context.Context, any, Message) signal.Propagation {
			panic("listener blew up")
		})))
		r := NewRouter(hub, zerolog.Nop())
		w := do(t, r, http.MethodPost, "/signals/a/dispatch", `{"payload":1}`)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Contains(t, w.Body.String(), "listener blew up")
	})
}
