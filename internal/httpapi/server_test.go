package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/flowmind/flowboard/internal/flowboard"
)

type request struct {
	method  string
	path    string
	headers map[string]string
	body    map[string]any
}

func doRequest(t *testing.T, server http.Handler, r request) *httptest.ResponseRecorder {
	t.Helper()
	var bodyBytes []byte
	if r.body != nil {
		data, err := json.Marshal(r.body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		bodyBytes = data
	}
	req := httptest.NewRequest(r.method, r.path, bytes.NewReader(bodyBytes))
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)
	return rec
}

func decodeResponse[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
	}
	return out
}

type failingRunner struct{}

func (failingRunner) Run(context.Context, string, ...string) (string, error) {
	return "", errors.New("openclaw: command not found")
}

func newTestServer(t *testing.T, opts flowboard.StoreOptions) *Server {
	t.Helper()
	if opts.Blobs == nil {
		opts.Blobs = flowboard.NewInMemoryBlobStore()
	}
	store := flowboard.NewStoreWithOptions(opts)
	t.Cleanup(store.Close)

	adapter := flowboard.NewOpenClawAdapter("openclaw", "", "")
	adapter.Runner = failingRunner{}
	return NewServer(store, adapter)
}

func TestCORSAndPreflight(t *testing.T) {
	server := newTestServer(t, flowboard.StoreOptions{})

	rec := doRequest(t, server, request{method: http.MethodGet, path: "/api/data"})
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("missing CORS origin header")
	}
	if rec.Header().Get("Access-Control-Allow-Methods") != "GET, POST, OPTIONS" {
		t.Fatalf("unexpected methods header %q", rec.Header().Get("Access-Control-Allow-Methods"))
	}

	preflight := doRequest(t, server, request{method: http.MethodOptions, path: "/api/data"})
	if preflight.Code != http.StatusOK {
		t.Fatalf("expected 200 preflight, got %d", preflight.Code)
	}
	if preflight.Header().Get("Access-Control-Allow-Headers") != "Content-Type" {
		t.Fatalf("missing headers header on preflight")
	}
}

func TestBoardRoundTripThroughAPI(t *testing.T) {
	server := newTestServer(t, flowboard.StoreOptions{})

	rec := doRequest(t, server, request{method: http.MethodGet, path: "/api/data"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	snapshot := decodeResponse[map[string]any](t, rec)
	boards, ok := snapshot["boards"].([]any)
	if !ok || len(boards) != 3 {
		t.Fatalf("expected 3 seeded boards, got %v", snapshot["boards"])
	}

	// Add a card through the save endpoint.
	board := boards[0].(map[string]any)
	columns := board["columns"].([]any)
	todo := columns[1].(map[string]any)
	todo["cards"] = []any{map[string]any{"id": "card_1", "title": "Write release notes"}}

	saveRec := doRequest(t, server, request{
		method: http.MethodPost,
		path:   "/api/data",
		body:   snapshot,
	})
	if saveRec.Code != http.StatusOK {
		t.Fatalf("expected 200 on save, got %d (%s)", saveRec.Code, saveRec.Body.String())
	}
	saved := decodeResponse[map[string]any](t, saveRec)
	if saved["success"] != true {
		t.Fatalf("expected success response, got %v", saved)
	}

	activityRec := doRequest(t, server, request{method: http.MethodGet, path: "/api/activity"})
	if activityRec.Code != http.StatusOK {
		t.Fatalf("expected 200 activity after save, got %d", activityRec.Code)
	}
	activity := decodeResponse[map[string]any](t, activityRec)
	items := activity["activities"].([]any)
	if len(items) != 1 {
		t.Fatalf("expected 1 activity item, got %d", len(items))
	}
	description := items[0].(map[string]any)["description"].(string)
	if !strings.Contains(description, "Write release notes") {
		t.Fatalf("unexpected description %q", description)
	}
}

func TestSaveBoardRejectsInvalidJSON(t *testing.T) {
	server := newTestServer(t, flowboard.StoreOptions{})

	req := httptest.NewRequest(http.MethodPost, "/api/data", strings.NewReader("{broken"))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestEmptyLogsAnswerNotFound(t *testing.T) {
	server := newTestServer(t, flowboard.StoreOptions{})

	for _, path := range []string{"/api/activity", "/api/memory", "/api/deliverables"} {
		rec := doRequest(t, server, request{method: http.MethodGet, path: path})
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404 for %s, got %d", path, rec.Code)
		}
	}
}

func TestEventsDefaultToEmptyDocument(t *testing.T) {
	server := newTestServer(t, flowboard.StoreOptions{})

	rec := doRequest(t, server, request{method: http.MethodGet, path: "/api/events"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	doc := decodeResponse[map[string]any](t, rec)
	items, ok := doc["items"].([]any)
	if !ok || len(items) != 0 {
		t.Fatalf("expected empty items, got %v", doc)
	}
	if doc["lastUpdated"] == "" {
		t.Fatalf("expected lastUpdated stamp")
	}
}

func TestTriggerEndpoint(t *testing.T) {
	server := newTestServer(t, flowboard.StoreOptions{})

	ok := doRequest(t, server, request{
		method: http.MethodPost,
		path:   "/api/trigger",
		body: map[string]any{
			"event": "kanban:taskCreated",
			"data":  map[string]any{"id": "card_7", "title": "Triggered"},
		},
	})
	if ok.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", ok.Code, ok.Body.String())
	}
	response := decodeResponse[map[string]any](t, ok)
	if response["event"] != "kanban:taskCreated" {
		t.Fatalf("expected event echo, got %v", response)
	}

	unknown := doRequest(t, server, request{
		method: http.MethodPost,
		path:   "/api/trigger",
		body:   map[string]any{"event": "kanban:taskDeleted", "data": map[string]any{}},
	})
	if unknown.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown event, got %d", unknown.Code)
	}

	invalid := doRequest(t, server, request{
		method: http.MethodPost,
		path:   "/api/trigger",
		body:   map[string]any{"event": "kanban:taskMoved", "data": map[string]any{"id": "only"}},
	})
	if invalid.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for schema violation, got %d", invalid.Code)
	}

	events := doRequest(t, server, request{method: http.MethodGet, path: "/api/events"})
	doc := decodeResponse[map[string]any](t, events)
	if items := doc["items"].([]any); len(items) != 1 {
		t.Fatalf("expected only the valid trigger to be logged, got %d items", len(items))
	}
}

func TestMessagesEndpoints(t *testing.T) {
	server := newTestServer(t, flowboard.StoreOptions{})

	post := doRequest(t, server, request{
		method: http.MethodPost,
		path:   "/api/messages",
		body: map[string]any{
			"channel":    "flowchat",
			"sender":     "Pete",
			"senderType": "human",
			"text":       "standup in five",
		},
	})
	if post.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", post.Code, post.Body.String())
	}
	response := decodeResponse[map[string]any](t, post)
	message := response["message"].(map[string]any)
	if message["id"] == "" || message["timestamp"] == "" {
		t.Fatalf("expected assigned identity, got %v", message)
	}

	get := doRequest(t, server, request{method: http.MethodGet, path: "/api/messages"})
	if get.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", get.Code)
	}
	doc := decodeResponse[map[string]any](t, get)
	if messages := doc["messages"].([]any); len(messages) != 1 {
		t.Fatalf("expected 1 stored message, got %d", len(messages))
	}
}

func TestWorkspaceEndpoints(t *testing.T) {
	workspace := t.TempDir()
	server := newTestServer(t, flowboard.StoreOptions{WorkspaceDir: workspace})

	post := doRequest(t, server, request{
		method: http.MethodPost,
		path:   "/api/workspace/SOUL.md",
		body:   map[string]any{"content": "# Soul\n"},
	})
	if post.Code != http.StatusOK {
		t.Fatalf("expected 200 on write, got %d (%s)", post.Code, post.Body.String())
	}

	get := doRequest(t, server, request{method: http.MethodGet, path: "/api/workspace/SOUL.md"})
	if get.Code != http.StatusOK {
		t.Fatalf("expected 200 on read, got %d", get.Code)
	}
	doc := decodeResponse[map[string]any](t, get)
	if doc["content"] != "# Soul\n" {
		t.Fatalf("unexpected content %v", doc["content"])
	}

	missing := doRequest(t, server, request{method: http.MethodGet, path: "/api/workspace/ABSENT.md"})
	if missing.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing file, got %d", missing.Code)
	}

	traversal := doRequest(t, server, request{method: http.MethodGet, path: "/api/workspace/..%2Fsecret.md"})
	if traversal.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for traversal, got %d", traversal.Code)
	}

	wrongExt := doRequest(t, server, request{method: http.MethodGet, path: "/api/workspace/notes.txt"})
	if wrongExt.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-markdown, got %d", wrongExt.Code)
	}

	// The write must have fed the activity and memory pipelines.
	activity := doRequest(t, server, request{method: http.MethodGet, path: "/api/activity"})
	if activity.Code != http.StatusOK {
		t.Fatalf("expected activity after workspace write, got %d", activity.Code)
	}
	memory := doRequest(t, server, request{method: http.MethodGet, path: "/api/memory"})
	if memory.Code != http.StatusOK {
		t.Fatalf("expected memory after workspace write, got %d", memory.Code)
	}
}

func TestMemoryRefreshScansDailyLogs(t *testing.T) {
	memoryDir := t.TempDir()
	log := "## Key Accomplishments\n- **Wired the refresh endpoint end to end**\n"
	if err := os.WriteFile(filepath.Join(memoryDir, "27-08-2026.md"), []byte(log), 0o644); err != nil {
		t.Fatalf("write daily log: %v", err)
	}
	server := newTestServer(t, flowboard.StoreOptions{MemoryDir: memoryDir})

	refresh := doRequest(t, server, request{method: http.MethodPost, path: "/api/memory/refresh"})
	if refresh.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", refresh.Code, refresh.Body.String())
	}

	memory := doRequest(t, server, request{method: http.MethodGet, path: "/api/memory"})
	if memory.Code != http.StatusOK {
		t.Fatalf("expected 200 memory, got %d", memory.Code)
	}
	doc := decodeResponse[map[string]any](t, memory)
	memories := doc["memories"].([]any)
	if len(memories) != 1 {
		t.Fatalf("expected 1 memory, got %d", len(memories))
	}
}

func TestOperationalEndpointsDegradeTo200(t *testing.T) {
	server := newTestServer(t, flowboard.StoreOptions{})

	for _, path := range []string{"/api/tokens", "/api/crons", "/api/gateway/status"} {
		rec := doRequest(t, server, request{method: http.MethodGet, path: path})
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 for %s, got %d", path, rec.Code)
		}
		doc := decodeResponse[map[string]any](t, rec)
		if doc["error"] == nil || doc["error"] == "" {
			t.Fatalf("expected error field for %s, got %v", path, doc)
		}
	}

	channels := doRequest(t, server, request{method: http.MethodGet, path: "/api/channels"})
	if channels.Code != http.StatusOK {
		t.Fatalf("expected 200 channels, got %d", channels.Code)
	}

	restart := doRequest(t, server, request{method: http.MethodPost, path: "/api/gateway/restart"})
	if restart.Code != http.StatusOK {
		t.Fatalf("expected 200 restart, got %d", restart.Code)
	}
	doc := decodeResponse[map[string]any](t, restart)
	if doc["success"] != true {
		t.Fatalf("expected restart acknowledgement, got %v", doc)
	}
}

func TestUnknownAPIRouteIs404(t *testing.T) {
	server := newTestServer(t, flowboard.StoreOptions{})

	rec := doRequest(t, server, request{method: http.MethodGet, path: "/api/nope"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestStaticFallbackDashboard(t *testing.T) {
	server := newTestServer(t, flowboard.StoreOptions{})

	for _, path := range []string{"/", "/dashboard"} {
		rec := doRequest(t, server, request{method: http.MethodGet, path: path})
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 for %s, got %d", path, rec.Code)
		}
		if !strings.Contains(rec.Header().Get("Content-Type"), "text/html") {
			t.Fatalf("expected html for %s, got %q", path, rec.Header().Get("Content-Type"))
		}
		if !strings.Contains(rec.Body.String(), "FLOW") {
			t.Fatalf("fallback dashboard missing for %s", path)
		}
	}
}

func TestStaticServesFromAssetsDir(t *testing.T) {
	assets := t.TempDir()
	if err := os.WriteFile(filepath.Join(assets, "kanban.html"), []byte("<html>kanban</html>"), 0o644); err != nil {
		t.Fatalf("write asset: %v", err)
	}
	store := flowboard.NewStoreWithOptions(flowboard.StoreOptions{Blobs: flowboard.NewInMemoryBlobStore()})
	t.Cleanup(store.Close)
	adapter := flowboard.NewOpenClawAdapter("openclaw", "", "")
	adapter.Runner = failingRunner{}
	server := NewServerWithConfig(store, adapter, ServerConfig{AssetsDir: assets})

	rec := doRequest(t, server, request{method: http.MethodGet, path: "/kanban"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != "<html>kanban</html>" {
		t.Fatalf("unexpected asset body %q", rec.Body.String())
	}

	traversal := doRequest(t, server, request{method: http.MethodGet, path: "/..%2F..%2Fetc%2Fpasswd"})
	if traversal.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for traversal, got %d", traversal.Code)
	}
}

func TestOversizedBodyRejected(t *testing.T) {
	store := flowboard.NewStoreWithOptions(flowboard.StoreOptions{Blobs: flowboard.NewInMemoryBlobStore()})
	t.Cleanup(store.Close)
	adapter := flowboard.NewOpenClawAdapter("openclaw", "", "")
	adapter.Runner = failingRunner{}
	server := NewServerWithConfig(store, adapter, ServerConfig{MaxBodyBytes: 64})

	body := strings.Repeat("x", 256)
	req := httptest.NewRequest(http.MethodPost, "/api/messages", strings.NewReader(`{"text":"`+body+`"}`))
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
}

func TestLiveFeedDeliversEvents(t *testing.T) {
	server := newTestServer(t, flowboard.StoreOptions{})
	httpServer := httptest.NewServer(server)
	t.Cleanup(httpServer.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	wsURL := "ws://" + strings.TrimPrefix(httpServer.URL, "http://") + "/api/events/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Registration happens inside the handler goroutine; give it a
	// moment before publishing.
	time.Sleep(100 * time.Millisecond)

	rec := doRequest(t, server, request{
		method: http.MethodPost,
		path:   "/api/trigger",
		body: map[string]any{
			"event": "kai:fileEdited",
			"data":  map[string]any{"file": "SOUL.md"},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("trigger failed: %d (%s)", rec.Code, rec.Body.String())
	}

	var event feedEvent
	if err := wsjson.Read(ctx, conn, &event); err != nil {
		t.Fatalf("read feed event: %v", err)
	}
	if event.Type != "kai:fileEdited" {
		t.Fatalf("unexpected event type %q", event.Type)
	}
}
