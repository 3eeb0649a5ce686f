package app

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prisignal/internal/config"
	"prisignal/pkg/signal"
)

func testConfig(signals ...string) *config.Config {
	return &config.Config{
		Addr:          ":0",
		LogLevel:      "info",
		Signals:       signals,
		DispatchLimit: signal.DefaultDispatchLimit,
		LimitMode:     "depth",
		JournalSize:   2,
	}
}

func newTestHub(t *testing.T, cfg *config.Config) *Hub {
	t.Helper()
	hub, err := NewHub(cfg, zerolog.Nop())
	require.NoError(t, err)
	hub.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return hub
}

func TestHub_Dispatch(t *testing.T) {
	hub := newTestHub(t, testConfig("orders", "audit"))
	assert.Equal(t, []string{"audit", "orders"}, hub.Names())

	sig, err := hub.Signal("orders")
	require.NoError(t, err)
	var got []Message
	require.NoError(t, sig.Add(signal.FromFunc(func(m Message) { got = append(got, m) })))

	msg, err := hub.Dispatch(context.Background(), "orders", json.RawMessage(`{"id":1}`))
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), msg.At)
	require.Len(t, got, 1)
	assert.Equal(t, msg, got[0])

	st, err := hub.Stats("orders", true)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Listeners)
	assert.Equal(t, uint64(1), st.Dispatches)
	assert.Equal(t, 1, st.Journal)
	require.Len(t, st.Registered, 3)

	other, err := hub.Stats("audit", false)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), other.Dispatches)
	assert.Nil(t, other.Registered)
}

func TestHub_JournalKeepsMostRecent(t *testing.T) {
	hub := newTestHub(t, testConfig("orders"))
	for _, p := range []string{`1`, `2`, `3`} {
		_, err := hub.Dispatch(context.Background(), "orders", json.RawMessage(p))
		require.NoError(t, err)
	}

	msgs, err := hub.Journal("orders")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.JSONEq(t, `2`, string(msgs[0].Payload))
	assert.JSONEq(t, `3`, string(msgs[1].Payload))
}

func TestHub_JournalSeesStoppedDispatch(t *testing.T) {
	hub := newTestHub(t, testConfig("orders"))
	sig, err := hub.Signal("orders")
	require.NoError(t, err)
	require.NoError(t, sig.Add(signal.NewCallback(func(context.Context, any, Message) signal.Propagation {
		return signal.Stop
	})))

	_, err = hub.Dispatch(context.Background(), "orders", json.RawMessage(`true`))
	require.NoError(t, err)
	msgs, err := hub.Journal("orders")
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestHub_UnknownSignal(t *testing.T) {
	hub := newTestHub(t, testConfig("orders"))

	_, err := hub.Signal("nope")
	require.ErrorIs(t, err, ErrUnknownSignal)
	_, err = hub.Dispatch(context.Background(), "nope", json.RawMessage(`1`))
	require.ErrorIs(t, err, ErrUnknownSignal)
	_, err = hub.Journal("nope")
	require.ErrorIs(t, err, ErrUnknownSignal)
	_, err = hub.Stats("nope", true)
	require.ErrorIs(t, err, ErrUnknownSignal)
}

func TestHub_RateLimit(t *testing.T) {
	cfg := testConfig("orders")
	cfg.RateLimit = 0.0001
	cfg.RateBurst = 1
	hub := newTestHub(t, cfg)

	_, err := hub.Dispatch(context.Background(), "orders", json.RawMessage(`1`))
	require.NoError(t, err)
	_, err = hub.Dispatch(context.Background(), "orders", json.RawMessage(`2`))
	require.ErrorIs(t, err, ErrRateLimited)

	st, err := hub.Stats("orders", false)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), st.Dispatches)
}

func TestHub_DispatchLoop(t *testing.T) {
	cfg := testConfig("loop")
	cfg.DispatchLimit = 4
	hub := newTestHub(t, cfg)

	sig, err := hub.Signal("loop")
	require.NoError(t, err)
	var loopErr error
	require.NoError(t, sig.Add(signal.NewCallback(func(ctx context.Context, _ any, m Message) signal.Propagation {
		if err := sig.Dispatch(ctx, m); err != nil && loopErr == nil {
			loopErr = err
		}
		return signal.Continue
	})))

	_, err = hub.Dispatch(context.Background(), "loop", json.RawMessage(`1`))
	require.NoError(t, err)
	require.ErrorIs(t, loopErr, signal.ErrDispatchLimitExceeded)
	assert.Equal(t, 0, sig.Depth())
}
