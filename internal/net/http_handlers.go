package net

import (
	"encoding/json"
	"io"
	nethttp "net/http"
	"net/http/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aberter0x3f/clock-slowing-effect-sub000/internal/net/intake"
	"github.com/aberter0x3f/clock-slowing-effect-sub000/internal/net/proto"
	"github.com/aberter0x3f/clock-slowing-effect-sub000/internal/net/ws"
	"github.com/aberter0x3f/clock-slowing-effect-sub000/internal/observability"
	"github.com/aberter0x3f/clock-slowing-effect-sub000/internal/sim"
	"github.com/aberter0x3f/clock-slowing-effect-sub000/internal/telemetry"
)

const maxCommandBody = 4 << 10

type HTTPHandlerConfig struct {
	Logger telemetry.Logger
	// Gatherer backs /metrics. Nil omits the route.
	Gatherer prometheus.Gatherer
	Scene    func() any
	// Metrics adds the in-process counter table to /status.
	Metrics        func() map[string]uint64
	StatusInterval time.Duration
	Observability  observability.Config
}

// NewHTTPHandler serves health, status, metrics, HTTP command staging and the
// websocket feed for source.
func NewHTTPHandler(source ws.Source, cfg HTTPHandlerConfig) nethttp.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.Discard
	}

	mux := nethttp.NewServeMux()

	mux.HandleFunc("/health", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/status", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodGet {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		payload := struct {
			ServerTime int64             `json:"serverTime"`
			Status     sim.Status        `json:"status"`
			Scene      any               `json:"scene,omitempty"`
			Metrics    map[string]uint64 `json:"metrics,omitempty"`
		}{
			ServerTime: time.Now().UnixMilli(),
			Status:     source.Status(),
		}
		if cfg.Scene != nil {
			payload.Scene = cfg.Scene()
		}
		if cfg.Metrics != nil {
			payload.Metrics = cfg.Metrics()
		}
		writeJSON(w, nethttp.StatusOK, payload)
	})

	mux.HandleFunc("/commands", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodPost {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		defer r.Body.Close()
		body, err := io.ReadAll(io.LimitReader(r.Body, maxCommandBody))
		if err != nil {
			httpError(w, "failed to read body", nethttp.StatusBadRequest)
			return
		}
		msg, err := proto.DecodeClientMessage(body)
		if err != nil {
			httpError(w, "invalid payload", nethttp.StatusBadRequest)
			return
		}
		ctx := intake.CommandContext{
			Queue: source,
			Tick:  func() uint64 { return source.Status().Tick },
		}
		cmd, ok, reason := intake.StageClientCommand(ctx, r.RemoteAddr, msg)
		if !ok {
			code := nethttp.StatusServiceUnavailable
			if reason == sim.CommandRejectInvalid {
				code = nethttp.StatusBadRequest
			}
			writeJSON(w, code, map[string]string{"reason": reason})
			return
		}
		logger.Printf("[control] %s staged %s (%s)", r.RemoteAddr, cmd.Type, cmd.ID)
		writeJSON(w, nethttp.StatusAccepted, map[string]any{"commandId": cmd.ID, "tick": cmd.OriginTick})
	})

	if cfg.Gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	if cfg.Observability.EnablePprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	feed := ws.NewHandler(source, ws.HandlerConfig{
		Logger:         logger,
		StatusInterval: cfg.StatusInterval,
		Scene:          cfg.Scene,
	})
	mux.HandleFunc("/ws", feed.Handle)

	return mux
}

func writeJSON(w nethttp.ResponseWriter, code int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		httpError(w, "failed to encode", nethttp.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(data)
}

func httpError(w nethttp.ResponseWriter, msg string, code int) {
	nethttp.Error(w, msg, code)
}
