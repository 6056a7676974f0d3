package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/flowmind/flowboard/internal/flowboard"
)

type ServerConfig struct {
	// AssetsDir holds the frontend bundle. When a requested asset is
	// missing the server falls back to the embedded dashboard.
	AssetsDir    string
	MaxBodyBytes int64
}

type Server struct {
	store   *flowboard.Store
	adapter *flowboard.OpenClawAdapter
	cfg     ServerConfig
	feed    *liveFeed
}

func NewServer(store *flowboard.Store, adapter *flowboard.OpenClawAdapter) *Server {
	return NewServerWithConfig(store, adapter, ServerConfig{})
}

func NewServerWithConfig(store *flowboard.Store, adapter *flowboard.OpenClawAdapter, cfg ServerConfig) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	return &Server{
		store:   store,
		adapter: adapter,
		cfg:     cfg,
		feed:    newLiveFeed(store.Bus()),
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// The dashboard is served from file:// and localhost alike, so every
	// response is wide open.
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	urlPath := r.URL.Path

	if strings.HasPrefix(urlPath, "/api/workspace/") {
		s.handleWorkspace(w, r, strings.TrimPrefix(urlPath, "/api/workspace/"))
		return
	}

	switch {
	case urlPath == "/api/data" && r.Method == http.MethodGet:
		s.handleGetBoard(w)
	case urlPath == "/api/data" && r.Method == http.MethodPost:
		s.handleSaveBoard(w, r)
	case urlPath == "/api/activity" && r.Method == http.MethodGet:
		s.serveDocument(w, flowboard.DocActivity, "activity data not found", nil)
	case urlPath == "/api/memory" && r.Method == http.MethodGet:
		s.serveDocument(w, flowboard.DocMemory, "memory data not found", nil)
	case urlPath == "/api/memory/refresh" && (r.Method == http.MethodGet || r.Method == http.MethodPost):
		s.handleMemoryRefresh(w)
	case urlPath == "/api/deliverables" && r.Method == http.MethodGet:
		s.serveDocument(w, flowboard.DocDeliverables, "deliverables data not found", nil)
	case urlPath == "/api/messages" && r.Method == http.MethodGet:
		s.handleGetMessages(w)
	case urlPath == "/api/messages" && r.Method == http.MethodPost:
		s.handlePostMessage(w, r)
	case urlPath == "/api/events" && r.Method == http.MethodGet:
		s.serveDocument(w, flowboard.DocEvents, "", map[string]any{
			"items":       []any{},
			"lastUpdated": time.Now().UTC().Format(time.RFC3339Nano),
		})
	case urlPath == "/api/events/ws" && r.Method == http.MethodGet:
		s.feed.handleWebSocket(w, r)
	case urlPath == "/api/trigger" && r.Method == http.MethodPost:
		s.handleTrigger(w, r)
	case urlPath == "/api/tokens" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, s.adapter.Tokens())
	case urlPath == "/api/crons" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, s.adapter.Crons())
	case urlPath == "/api/channels" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, s.adapter.Channels())
	case urlPath == "/api/gateway/status" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, s.adapter.GatewayStatus())
	case urlPath == "/api/gateway/restart" && (r.Method == http.MethodGet || r.Method == http.MethodPost):
		writeJSON(w, http.StatusOK, s.adapter.RestartGateway())
	case strings.HasPrefix(urlPath, "/api/"):
		writeError(w, http.StatusNotFound, "not_found", "route not found")
	default:
		s.serveStatic(w, r)
	}
}

func (s *Server) handleGetBoard(w http.ResponseWriter) {
	snapshot, err := s.store.LoadBoard()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleSaveBoard(w http.ResponseWriter, r *http.Request) {
	var snapshot flowboard.BoardSnapshot
	if !s.decodeJSONBody(w, r, &snapshot) {
		return
	}
	if err := s.store.SaveBoard(snapshot); err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// serveDocument streams a stored document verbatim. A missing document
// answers the fallback when one is given, 404 otherwise.
func (s *Server) serveDocument(w http.ResponseWriter, name, notFoundMessage string, fallback any) {
	raw, err := s.store.RawDocument(name)
	if err != nil {
		if errors.Is(err, flowboard.ErrNotFound) {
			if fallback != nil {
				writeJSON(w, http.StatusOK, fallback)
				return
			}
			writeError(w, http.StatusNotFound, "not_found", notFoundMessage)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

func (s *Server) handleMemoryRefresh(w http.ResponseWriter) {
	if err := s.store.ScanDailyLogs(); err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Memory refresh triggered",
	})
}

func (s *Server) handleGetMessages(w http.ResponseWriter) {
	if err := s.store.SyncMessages(); err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	s.serveDocument(w, flowboard.DocMessages, "", map[string]any{
		"messages":    []any{},
		"channels":    []any{},
		"lastUpdated": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	var message flowboard.Message
	if !s.decodeJSONBody(w, r, &message) {
		return
	}
	posted, err := s.store.PostMessage(message)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": posted,
	})
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Event string         `json:"event"`
		Data  map[string]any `json:"data"`
	}
	if !s.decodeJSONBody(w, r, &body) {
		return
	}
	if err := s.store.Trigger(body.Event, body.Data); err != nil {
		if errors.Is(err, flowboard.ErrInvalidEvent) {
			writeError(w, http.StatusBadRequest, "invalid_event", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"event":   body.Event,
	})
}

func (s *Server) handleWorkspace(w http.ResponseWriter, r *http.Request, fileName string) {
	switch r.Method {
	case http.MethodGet:
		content, err := s.store.ReadWorkspaceFile(fileName)
		if err != nil {
			writeWorkspaceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"content": content})
	case http.MethodPost:
		var body struct {
			Content string `json:"content"`
		}
		if !s.decodeJSONBody(w, r, &body) {
			return
		}
		if err := s.store.WriteWorkspaceFile(fileName, body.Content); err != nil {
			writeWorkspaceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	}
}

func writeWorkspaceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, flowboard.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_input", "invalid file name")
	case errors.Is(err, flowboard.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "file not found")
	default:
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}

var staticContentTypes = map[string]string{
	".html": "text/html",
	".js":   "text/javascript",
	".css":  "text/css",
	".json": "application/json",
	".svg":  "image/svg+xml",
	".png":  "image/png",
	".ico":  "image/x-icon",
}

// serveStatic maps the route aliases the frontend links with, then
// serves from the assets directory. The embedded dashboard covers a
// missing bundle so a bare binary still renders something.
func (s *Server) serveStatic(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	name := r.URL.Path
	switch name {
	case "/", "/dashboard":
		name = "/dashboard.html"
	case "/kanban":
		name = "/kanban.html"
	}
	name = strings.TrimPrefix(path.Clean(name), "/")
	if name == "" || name == "." || strings.Contains(name, "..") {
		writeError(w, http.StatusNotFound, "not_found", "not found")
		return
	}

	if s.cfg.AssetsDir != "" {
		full := filepath.Join(s.cfg.AssetsDir, filepath.FromSlash(name))
		if data, err := os.ReadFile(full); err == nil {
			contentType, ok := staticContentTypes[filepath.Ext(full)]
			if !ok {
				contentType = "text/plain"
			}
			w.Header().Set("Content-Type", contentType)
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(data)
			return
		}
	}
	if name == "dashboard.html" {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, dashboardHTML)
		return
	}
	writeError(w, http.StatusNotFound, "not_found", "not found")
}

func (s *Server) decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body exceeds configured limit")
			return false
		}
		writeError(w, http.StatusBadRequest, "bad_request", "failed to read request body")
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid json body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"code":    code,
		"message": message,
	})
}
