package gateway

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/AltairaLabs/devserver-mcp/internal/config"
	"github.com/AltairaLabs/devserver-mcp/internal/logstore"
	"github.com/AltairaLabs/devserver-mcp/internal/tools"
	"github.com/AltairaLabs/devserver-mcp/internal/types"
)

const (
	maxRequestBody    = 1 << 20
	sseKeepAlive      = 15 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// HTTPAPI serves the JSON HTTP API
type HTTPAPI struct {
	gateway *Gateway
	logger  *slog.Logger
}

// NewHTTPAPI creates the HTTP adapter for g
func NewHTTPAPI(g *Gateway, logger *slog.Logger) *HTTPAPI {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPAPI{gateway: g, logger: logger}
}

// Router returns the API routes
func (a *HTTPAPI) Router() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)

	router.Get("/healthz", a.handleHealthz)
	router.Route("/api", func(r chi.Router) {
		r.Post("/tools/{tool}", a.handleInvoke)
		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", a.handleListSessions)
			r.Get("/{sessionID}", a.handleGetSession)
			r.Get("/{sessionID}/logs", a.handleLogs)
			r.Get("/{sessionID}/logs/stream", a.handleLogStream)
		})
	})
	return router
}

// NewServer returns an http.Server for the API on addr
func (a *HTTPAPI) NewServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           a.Router(),
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       2 * time.Minute,
		MaxHeaderBytes:    1 << 20,
	}
}

func (a *HTTPAPI) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"tools":  a.gateway.Tools(),
	})
}

func (a *HTTPAPI) handleInvoke(w http.ResponseWriter, r *http.Request) {
	tool := chi.URLParam(r, "tool")

	args := map[string]interface{}{}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		a.writeError(w, types.NewError(types.KindInvalidParams, "failed to read request body"))
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &args); err != nil {
			a.writeError(w, types.NewError(types.KindInvalidParams, "request body must be a JSON object"))
			return
		}
	}

	a.invoke(w, r, tool, args)
}

func (a *HTTPAPI) handleListSessions(w http.ResponseWriter, r *http.Request) {
	a.invoke(w, r, config.ToolList, nil)
}

func (a *HTTPAPI) handleGetSession(w http.ResponseWriter, r *http.Request) {
	a.invoke(w, r, config.ToolStatus, map[string]interface{}{
		config.ParamSessionID: chi.URLParam(r, "sessionID"),
	})
}

func (a *HTTPAPI) handleLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	args := map[string]interface{}{
		config.ParamSessionID: chi.URLParam(r, "sessionID"),
	}
	for _, name := range []string{config.ParamLimit, config.ParamFilter, config.ParamStream} {
		if v := q.Get(name); v != "" {
			args[name] = v
		}
	}
	a.invoke(w, r, config.ToolLogs, args)
}

func (a *HTTPAPI) invoke(w http.ResponseWriter, r *http.Request, tool string, args map[string]interface{}) {
	result, err := a.gateway.Invoke(r.Context(), tool, args)
	if err != nil {
		a.writeError(w, err)
		return
	}
	payload, err := tools.DecodeResult(result)
	if err != nil {
		a.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

// handleLogStream follows a session's output as Server-Sent Events
func (a *HTTPAPI) handleLogStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	backlog := 0
	if v := r.URL.Query().Get(config.ParamBacklog); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			a.writeError(w, types.NewError(types.KindInvalidParams, "argument %q must be a non-negative integer", config.ParamBacklog))
			return
		}
		backlog = n
	}
	origin, ok := types.ParseStreamOrigin(r.URL.Query().Get(config.ParamStream))
	if !ok {
		a.writeError(w, types.NewError(types.KindInvalidParams, "argument %q must be stdout, stderr or system", config.ParamStream))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		a.writeError(w, types.NewError(types.KindInternalError, "streaming unsupported"))
		return
	}

	ctx := r.Context()
	sub, err := a.gateway.Logs().Subscribe(ctx, sessionID, logstore.SubscribeOptions{Backlog: backlog})
	if err != nil {
		a.writeError(w, err)
		return
	}
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-keepAlive.C:
			if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case entry, ok := <-sub.C():
			if !ok {
				_, _ = io.WriteString(w, "event: end\ndata: {}\n\n")
				flusher.Flush()
				return
			}
			if origin != "" && entry.Stream != origin {
				continue
			}
			data, err := json.Marshal(entry)
			if err != nil {
				a.logger.Error("failed to encode log entry", "session_id", sessionID, "error", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %d\nevent: log\ndata: %s\n\n", entry.Seq, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (a *HTTPAPI) writeError(w http.ResponseWriter, err error) {
	kind := types.KindOf(err)
	if kind == types.KindInternalError {
		a.logger.Error("http api internal error", "error", err)
	}
	writeJSON(w, httpStatus(kind), tools.ErrorResponse{Error: tools.ErrorBody{
		Kind:    kind,
		Message: types.PublicMessage(err),
	}})
}

// httpStatus maps an error kind to an HTTP status code
func httpStatus(kind types.ErrorKind) int {
	switch kind {
	case types.KindInvalidParams, types.KindInvalidProjectPath:
		return http.StatusBadRequest
	case types.KindUnknownTool, types.KindSessionNotFound:
		return http.StatusNotFound
	case types.KindUnknownProjectType, types.KindSpawnFailure:
		return http.StatusUnprocessableEntity
	case types.KindPortRangeExhausted:
		return http.StatusServiceUnavailable
	case types.KindAlreadyRunning:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
