package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/iwvelando/airframe-optimizer/internal/airframe"
	"github.com/iwvelando/airframe-optimizer/internal/config"
	"github.com/iwvelando/airframe-optimizer/internal/optimizer"
	"github.com/iwvelando/airframe-optimizer/pkg/constants"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	// writeWait bounds a single websocket write.
	writeWait = 10 * time.Second
)

// Launcher builds the optimizer for a submitted configuration.
type Launcher func(logger *zap.Logger, cfg *config.Configuration, opts ...optimizer.Option) (*optimizer.Optimizer, error)

// Options configure a Handler. Zero fields take their defaults.
type Options struct {
	MaxUploadSize int64
	EventBuffer   int
	DataDir       string
	Version       string
	Launcher      Launcher
}

// Handler serves the run API. Runs outlive the request that started them
// and are cancelled by Shutdown.
type Handler struct {
	logger        *zap.Logger
	maxUploadSize int64
	eventBuffer   int
	dataDir       string
	version       string
	launch        Launcher

	runs     *runStore
	ctx      context.Context
	cancel   context.CancelFunc
	mux      *http.ServeMux
	upgrader websocket.Upgrader
}

// NewHandler constructs the HTTP handler for the run API, the event stream
// and the metrics endpoint.
func NewHandler(logger *zap.Logger, opts Options) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxUploadSize <= 0 {
		opts.MaxUploadSize = constants.DefaultMaxUploadSizeBytes
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = constants.DefaultEventBuffer
	}
	if opts.Launcher == nil {
		opts.Launcher = optimizer.FromConfig
	}
	version := strings.TrimSpace(opts.Version)
	if version == "" {
		version = "dev"
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Handler{
		logger:        logger,
		maxUploadSize: opts.MaxUploadSize,
		eventBuffer:   opts.EventBuffer,
		dataDir:       opts.DataDir,
		version:       version,
		launch:        opts.Launcher,
		runs:          newRunStore(),
		ctx:           ctx,
		cancel:        cancel,
		mux:           http.NewServeMux(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}

	h.mux.HandleFunc("POST /api/runs", h.handleCreateRun)
	h.mux.HandleFunc("GET /api/runs", h.handleListRuns)
	h.mux.HandleFunc("GET /api/runs/{id}", h.handleGetRun)
	h.mux.HandleFunc("POST /api/runs/{id}/cancel", h.handleCancelRun)
	h.mux.HandleFunc("GET /api/runs/{id}/events", h.handleRunEvents)
	h.mux.HandleFunc("GET /api/runs/{id}/airframe", h.handleRunAirframe)
	h.mux.HandleFunc("GET /api/version", h.handleVersion)
	h.mux.Handle("GET /metrics", promhttp.Handler())

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// Shutdown cancels every active run and waits until they have reverted
// their airframes.
func (h *Handler) Shutdown() {
	h.cancel()
	h.runs.wait()
}

type createRunResponse struct {
	ID       string   `json:"id"`
	Warnings []string `json:"warnings,omitempty"`
}

func (h *Handler) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleCreateRun"

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize)
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r.Body); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			h.respondErrorWithOp(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("configuration exceeds limit of %d bytes", h.maxUploadSize), op)
			return
		}
		h.respondErrorWithOp(w, http.StatusBadRequest, fmt.Sprintf("failed to read configuration: %v", err), op)
		return
	}

	// YAML is a superset of JSON, so both bodies decode the same way.
	cfg, err := config.LoadConfigurationFromReader(&buf)
	if err != nil {
		h.respondErrorWithOp(w, http.StatusBadRequest, err.Error(), op)
		return
	}
	if h.dataDir != "" {
		cfg.ResolvePaths(h.dataDir)
	}
	if err := cfg.Validate(); err != nil {
		h.respondErrorWithOp(w, http.StatusBadRequest, fmt.Sprintf("invalid configuration: %v", err), op)
		return
	}

	rn := newRun(h.ctx, h.eventBuffer, cfg.ValidateConfiguration())
	logger := h.logger.With(zap.String("run", rn.id))
	opt, err := h.launch(logger, cfg, optimizer.WithHooks(rn.hooks()))
	if err != nil {
		// Loadable documents that cannot be optimized are unprocessable; a
		// missing or malformed document is a bad request.
		status := http.StatusBadRequest
		if errors.Is(err, optimizer.ErrInvalidBounds) || errors.Is(err, optimizer.ErrNoFinSet) ||
			errors.Is(err, optimizer.ErrNoNoseCone) {
			status = http.StatusUnprocessableEntity
		}
		h.respondErrorWithOp(w, status, fmt.Sprintf("failed to initialize optimizer: %v", err), op)
		return
	}
	rn.opt = opt

	h.runs.add(rn)
	h.runs.start(logger, rn)

	h.logger.Info("run started",
		zap.String("op", op),
		zap.String("run", rn.id),
		zap.String("algorithm", cfg.Algorithm),
		zap.Int("warnings", len(rn.warnings)),
	)
	h.writeJSON(w, http.StatusAccepted, createRunResponse{ID: rn.id, Warnings: rn.warnings})
}

func (h *Handler) handleListRuns(w http.ResponseWriter, _ *http.Request) {
	runs := h.runs.list()
	views := make([]runView, 0, len(runs))
	for _, rn := range runs {
		views = append(views, rn.view())
	}
	h.writeJSON(w, http.StatusOK, views)
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request, op string) (*run, bool) {
	id := r.PathValue("id")
	rn, ok := h.runs.get(id)
	if !ok {
		h.respondErrorWithOp(w, http.StatusNotFound, fmt.Sprintf("run %s not found", id), op)
	}
	return rn, ok
}

func (h *Handler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	rn, ok := h.lookup(w, r, "server.handleGetRun")
	if !ok {
		return
	}
	h.writeJSON(w, http.StatusOK, rn.view())
}

func (h *Handler) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	rn, ok := h.lookup(w, r, "server.handleCancelRun")
	if !ok {
		return
	}
	rn.stop()
	select {
	case <-rn.done:
	case <-r.Context().Done():
	}
	h.writeJSON(w, http.StatusOK, rn.view())
}

// handleRunAirframe returns the run's airframe document: the optimized
// design after completion, or the original after a cancelled run.
func (h *Handler) handleRunAirframe(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleRunAirframe"
	rn, ok := h.lookup(w, r, op)
	if !ok {
		return
	}
	if rn.opt.State() == optimizer.StateRunning {
		h.respondErrorWithOp(w, http.StatusConflict, "run is still in progress", op)
		return
	}
	data, err := airframe.Encode(rn.opt.Airframe())
	if err != nil {
		h.respondErrorWithOp(w, http.StatusInternalServerError, err.Error(), op)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger.Warn("failed to write airframe", zap.String("op", op), zap.Error(err))
	}
}

func (h *Handler) handleRunEvents(w http.ResponseWriter, r *http.Request) {
	const op = "server.handleRunEvents"
	rn, ok := h.lookup(w, r, op)
	if !ok {
		return
	}

	// Subscribe before the handshake completes so no event published after
	// the client connects is missed.
	events, detach := rn.events.subscribe()
	defer detach()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("op", op), zap.Error(err))
		return
	}
	defer conn.Close()

	// Reader: detects the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case ev, ok := <-events:
			if !ok {
				<-rn.done
				view := rn.view()
				h.writeEvent(conn, Event{Type: EventDone, Run: &view})
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished"))
				return
			}
			if err := h.writeEvent(conn, ev); err != nil {
				return
			}
		}
	}
}

func (h *Handler) writeEvent(conn *websocket.Conn, ev Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(ev); err != nil {
		h.logger.Debug("failed to write event",
			zap.String("op", "server.writeEvent"),
			zap.String("type", ev.Type),
			zap.Error(err),
		)
		return err
	}
	return nil
}

func (h *Handler) handleVersion(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"version": h.version,
	})
}

func (h *Handler) respondErrorWithOp(w http.ResponseWriter, status int, msg string, op string) {
	h.logger.Error("request failed",
		zap.String("op", op),
		zap.Int("status", status),
		zap.String("error", msg),
	)
	h.writeJSON(w, status, map[string]string{"error": msg})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", zap.Error(err))
	}
}
