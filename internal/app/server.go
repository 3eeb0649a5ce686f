// Package app serves the prisignal hub over HTTP. Dispatch stays in-process:
// the HTTP surface only triggers and inspects local signals.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"prisignal/internal/config"
	"prisignal/internal/log"
	"prisignal/pkg/signal"
)

const shutdownTimeout = 5 * time.Second

// Run serves the hub described by cfg until ctx is done.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := *log.Logger()
	hub, err := NewHub(cfg, logger)
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           NewRouter(hub, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Addr).Strs("signals", hub.Names()).Msg("server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// NewRouter wires the hub routes.
func NewRouter(hub *Hub, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(Logger(logger), gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(hub.metrics.handler()))

	api := r.Group("/signals")
	{
		api.GET("", handleList(hub))
		api.GET("/:name", handleGet(hub))
		api.GET("/:name/journal", handleJournal(hub))
		api.POST("/:name/dispatch", handleDispatch(hub))
	}
	return r
}

// Logger logs one line per request.
func Logger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()
		logger.Info().
			Str("ip", c.ClientIP()).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Str("proto", c.Request.Proto).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(startTime)).
			Msg("http request")
	}
}

func handleList(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		out := make([]SignalStats, 0, len(hub.names))
		for _, name := range hub.Names() {
			st, err := hub.Stats(name, false)
			if err != nil {
				writeError(c, err)
				return
			}
			out = append(out, st)
		}
		c.JSON(http.StatusOK, out)
	}
}

func handleGet(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		st, err := hub.Stats(c.Param("name"), true)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, st)
	}
}

func handleJournal(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		msgs, err := hub.Journal(c.Param("name"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, msgs)
	}
}

type dispatchRequest struct {
	Payload json.RawMessage `json:"payload" binding:"required"`
}

func handleDispatch(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req dispatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		name := c.Param("name")
		msg, err := hub.Dispatch(c.Request.Context(), name, req.Payload)
		if err != nil {
			writeError(c, err)
			return
		}
		st, err := hub.Stats(name, false)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": msg, "dispatches": st.Dispatches})
	}
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrUnknownSignal):
		status = http.StatusNotFound
	case errors.Is(err, ErrRateLimited):
		status = http.StatusTooManyRequests
	case errors.Is(err, signal.ErrDispatchLimitExceeded):
		status = http.StatusLoopDetected
	case errors.Is(err, signal.ErrInvalidArgument):
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
