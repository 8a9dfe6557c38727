package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chis/embedlab/internal/codec"
	"github.com/chis/embedlab/internal/events"
	"github.com/chis/embedlab/internal/options"
	"github.com/chis/embedlab/internal/session"
	"github.com/chis/embedlab/internal/storage"
	"github.com/chis/embedlab/internal/testutil"
	"github.com/chis/embedlab/internal/vfs"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPublicURL = "https://embed.example.test"

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Kind    string          `json:"kind"`
}

type testServer struct {
	*Server
	store storage.Storage
}

func newTestServer(t *testing.T, withStorage bool) *testServer {
	t.Helper()

	sessions, err := session.NewManager(16)
	require.NoError(t, err)

	var store storage.Storage
	if withStorage {
		sqlite, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "api.db"))
		require.NoError(t, err)
		t.Cleanup(func() { sqlite.Close() })
		store = sqlite
	}

	s := NewServer(Config{
		Port:      0,
		PublicURL: testPublicURL + "/",
		Sessions:  sessions,
		Storage:   store,
	})
	return &testServer{Server: s, store: store}
}

func (ts *testServer) do(t *testing.T, method, target string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, target, reader)
	w := httptest.NewRecorder()
	ts.Handler().ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w, env
}

func decodeData[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func (ts *testServer) createSession(t *testing.T, target string, body any) session.View {
	t.Helper()
	w, env := ts.do(t, http.MethodPost, target, body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decodeData[session.View](t, env)
}

func sampleAssignment() codec.Assignment {
	return codec.Assignment{
		Title:      "Loops",
		Assignment: "<p>Sum 1..n</p>",
		MaxScore:   10,
		Files: []vfs.FileRecord{
			{Filename: "main.py", Autoreload: true, Content: "n = 10"},
			{Filename: "tests/check.py", Readonly: true, Hidden: true, Content: "assert sum"},
		},
		MainFile:    "main.py",
		PreviewType: "python",
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, false)

	w, env := ts.do(t, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)

	data := decodeData[map[string]any](t, env)
	assert.Equal(t, "ok", data["status"])
	assert.Equal(t, false, data["catalog"])
}

func TestOptionsEndpoint(t *testing.T) {
	ts := newTestServer(t, false)

	_, env := ts.do(t, http.MethodGet, "/api/options?theme=light&showPreview=false&isScored=0", nil)
	got := decodeData[options.DisplayOptions](t, env)

	want := options.Defaults()
	want.Theme = options.ThemeLight
	want.ShowPreview = false
	assert.Equal(t, want, got)
}

func TestEncodeEndpoint(t *testing.T) {
	ts := newTestServer(t, false)

	w, env := ts.do(t, http.MethodPost, "/api/embed/encode?theme=light", sampleAssignment())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decodeData[EncodeResponse](t, env)
	assert.Empty(t, resp.Warnings)
	assert.True(t, strings.HasPrefix(resp.EmbedURL, testPublicURL+options.RouteEmbed+"?"), resp.EmbedURL)
	assert.Contains(t, resp.EmbedURL, "theme=light")
	assert.Contains(t, resp.EmbedURL, "data="+resp.Token)
	assert.Equal(t, options.EditURL(testPublicURL, resp.Token), resp.EditURL)
	assert.Contains(t, resp.Iframe, "<iframe src=")

	decoded, err := codec.Decode(resp.Token, codec.DefaultAssignment())
	require.NoError(t, err)
	assert.Equal(t, sampleAssignment().Files, decoded.Files)
}

func TestEncodeEndpointWarningsAndStrict(t *testing.T) {
	ts := newTestServer(t, false)
	bad := codec.Assignment{Title: "nothing"}

	w, env := ts.do(t, http.MethodPost, "/api/embed/encode", bad)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, decodeData[EncodeResponse](t, env).Warnings)

	w, env = ts.do(t, http.MethodPost, "/api/embed/encode?strict=true", bad)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, KindInvariant, env.Kind)
	assert.False(t, env.Success)
}

func TestEncodeEndpointMergesOverDefault(t *testing.T) {
	ts := newTestServer(t, false)

	w, env := ts.do(t, http.MethodPost, "/api/embed/encode", map[string]any{"title": "Just a title", "level": 2})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeData[EncodeResponse](t, env)
	assert.Empty(t, resp.Warnings)

	decoded, err := codec.Decode(resp.Token, codec.Assignment{})
	require.NoError(t, err)
	want := codec.DefaultAssignment()
	assert.Equal(t, "Just a title", decoded.Title)
	assert.Equal(t, want.Assignment, decoded.Assignment)
	assert.Equal(t, want.Files, decoded.Files)
	assert.Equal(t, want.MainFile, decoded.MainFile)
	assert.Equal(t, json.RawMessage(`2`), decoded.Extra["level"])
}

func TestEncodeEndpointBadBody(t *testing.T) {
	ts := newTestServer(t, false)

	w, env := ts.do(t, http.MethodPost, "/api/embed/encode", "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, KindBadRequest, env.Kind)
}

func TestDecodeEndpoint(t *testing.T) {
	ts := newTestServer(t, false)
	token, err := codec.Encode(sampleAssignment())
	require.NoError(t, err)

	tests := []struct {
		name           string
		query          string
		wantTitle      string
		wantParseError bool
	}{
		{"valid token", "data=" + token, "Loops", false},
		{"no token", "", "Custom Assignment", false},
		{"malformed token", "data=%25%25%25", "Custom Assignment", true},
		{"not an object", "data=" + codec.EncodeURLSafe("[1,2]"), "Custom Assignment", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := ts.do(t, http.MethodGet, "/api/embed/decode?"+tt.query, nil)
			require.Equal(t, http.StatusOK, w.Code, "decode never fails the request")

			resp := decodeData[DecodeResponse](t, env)
			assert.Equal(t, tt.wantTitle, resp.Assignment.Title)
			assert.Equal(t, tt.wantParseError, resp.ParseError != "")
		})
	}
}

func TestDecodeEndpointMergesOverDefault(t *testing.T) {
	ts := newTestServer(t, false)
	token := codec.EncodeURLSafe(`{"title":"Only title","locale":"sk"}`)

	_, env := ts.do(t, http.MethodGet, "/api/embed/decode?data="+token, nil)
	resp := decodeData[DecodeResponse](t, env)

	assert.Equal(t, "Only title", resp.Assignment.Title)
	assert.Equal(t, codec.DefaultAssignment().Files, resp.Assignment.Files)
	assert.JSONEq(t, `"sk"`, string(resp.Assignment.Extra["locale"]))
}

func TestSessionLifecycle(t *testing.T) {
	ts := newTestServer(t, false)
	token, err := codec.Encode(sampleAssignment())
	require.NoError(t, err)

	view := ts.createSession(t, "/api/sessions?theme=light", CreateSessionRequest{Token: token})
	assert.Equal(t, "Loops", view.Title)
	assert.Equal(t, "main.py", view.ActiveFile)
	assert.Equal(t, options.ThemeLight, view.Options.Theme)
	require.Len(t, view.Files, 2)
	assert.Equal(t, "python", view.Files[0].Language)

	base := "/api/sessions/" + view.ID

	w, env := ts.do(t, http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, view.ID, decodeData[session.View](t, env).ID)

	// Edit
	w, env = ts.do(t, http.MethodPut, base+"/files/main.py", UpdateFileRequest{Content: "n = 20"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "n = 20", decodeData[session.FileView](t, env).Content)

	// Readonly edits are ignored; nested filenames route through
	w, env = ts.do(t, http.MethodPut, base+"/files/tests/check.py", UpdateFileRequest{Content: "pass"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "assert sum", decodeData[session.FileView](t, env).Content)

	w, env = ts.do(t, http.MethodGet, base+"/files/tests/check.py", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decodeData[session.FileView](t, env).Hidden)

	// Add, duplicate
	w, _ = ts.do(t, http.MethodPost, base+"/files", vfs.FileRecord{Filename: "util.py", Content: "x"})
	require.Equal(t, http.StatusCreated, w.Code)
	w, env = ts.do(t, http.MethodPost, base+"/files", vfs.FileRecord{Filename: "util.py"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, KindDuplicate, env.Kind)

	// Active and main
	w, _ = ts.do(t, http.MethodPut, base+"/active", FileNameRequest{Filename: "util.py"})
	require.Equal(t, http.StatusOK, w.Code)
	w, env = ts.do(t, http.MethodPut, base+"/active", FileNameRequest{Filename: "missing.py"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, KindNotFound, env.Kind)
	w, _ = ts.do(t, http.MethodPut, base+"/main", FileNameRequest{Filename: "util.py"})
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = ts.do(t, http.MethodPut, base+"/main", FileNameRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Remove the active main file: first remaining file takes over
	w, env = ts.do(t, http.MethodDelete, base+"/files/util.py", nil)
	require.Equal(t, http.StatusOK, w.Code)
	after := decodeData[session.View](t, env)
	assert.Equal(t, "main.py", after.ActiveFile)
	assert.Equal(t, "main.py", after.MainFile)

	// Token reflects edits
	w, env = ts.do(t, http.MethodGet, base+"/token", nil)
	require.Equal(t, http.StatusOK, w.Code)
	links := decodeData[EncodeResponse](t, env)
	decoded, err := codec.Decode(links.Token, codec.DefaultAssignment())
	require.NoError(t, err)
	assert.Equal(t, "n = 20", decoded.Files[0].Content)
	assert.Contains(t, links.EmbedURL, "theme=light")

	// Close
	w, _ = ts.do(t, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w, env = ts.do(t, http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, KindNotFound, env.Kind)
	w, _ = ts.do(t, http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessionRemoveLastFile(t *testing.T) {
	ts := newTestServer(t, false)
	token := codec.EncodeURLSafe(`{"files":[{"filename":"only.html"}],"mainFile":"only.html"}`)

	view := ts.createSession(t, "/api/sessions?data="+token, nil)
	require.Len(t, view.Files, 1)

	w, env := ts.do(t, http.MethodDelete, "/api/sessions/"+view.ID+"/files/only.html", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, KindLastFile, env.Kind)
}

func TestSessionCreateFallsBackOnBadToken(t *testing.T) {
	ts := newTestServer(t, false)

	view := ts.createSession(t, "/api/sessions", CreateSessionRequest{Token: "%%%"})
	assert.NotEmpty(t, view.ParseError)
	assert.Equal(t, "Custom Assignment", view.Title)
	assert.Equal(t, "index.html", view.ActiveFile)
}

func TestSessionCreateWithoutBody(t *testing.T) {
	ts := newTestServer(t, false)

	view := ts.createSession(t, "/api/sessions", nil)
	assert.Empty(t, view.ParseError)
	assert.Len(t, view.Files, 3)
}

func TestSessionCreateFromCatalog(t *testing.T) {
	ts := newTestServer(t, true)
	require.NoError(t, ts.store.SaveChallenge(context.Background(), storage.Challenge{
		Category: "python", ID: "loops", Assignment: sampleAssignment(),
	}))

	view := ts.createSession(t, "/api/sessions", CreateSessionRequest{Category: "python", Challenge: "loops"})
	assert.Equal(t, "Loops", view.Title)

	w, env := ts.do(t, http.MethodPost, "/api/sessions", CreateSessionRequest{Category: "python", Challenge: "nope"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, KindNotFound, env.Kind)

	w, _ = ts.do(t, http.MethodPost, "/api/sessions", CreateSessionRequest{Category: "python"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCatalogEndpoints(t *testing.T) {
	ts := newTestServer(t, true)
	ctx := context.Background()
	for _, id := range []string{"a", "b"} {
		require.NoError(t, ts.store.SaveChallenge(ctx, storage.Challenge{Category: "python", ID: id, Assignment: sampleAssignment()}))
	}
	require.NoError(t, ts.store.SaveChallenge(ctx, storage.Challenge{Category: "web", ID: "flex", Assignment: codec.DefaultAssignment()}))

	w, env := ts.do(t, http.MethodGet, "/api/catalog/categories", nil)
	require.Equal(t, http.StatusOK, w.Code)
	cats := decodeData[struct {
		Categories []storage.CategorySummary `json:"categories"`
		Count      int                       `json:"count"`
	}](t, env)
	assert.Equal(t, 2, cats.Count)
	assert.Equal(t, storage.CategorySummary{Name: "python", Count: 2}, cats.Categories[0])

	w, env = ts.do(t, http.MethodGet, "/api/catalog/python", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decodeData[struct {
		Challenges []storage.ChallengeSummary `json:"challenges"`
	}](t, env)
	require.Len(t, list.Challenges, 2)
	assert.Equal(t, "Loops", list.Challenges[0].Title)

	w, env = ts.do(t, http.MethodGet, "/api/catalog/web/flex", nil)
	require.Equal(t, http.StatusOK, w.Code)
	ch := decodeData[ChallengeResponse](t, env)
	assert.Equal(t, "flex", ch.ID)
	assert.NotEmpty(t, ch.Token)
	assert.Contains(t, ch.EmbedURL, testPublicURL)

	w, _ = ts.do(t, http.MethodGet, "/api/catalog/web/none", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCatalogWithoutStorage(t *testing.T) {
	ts := newTestServer(t, false)

	w, env := ts.do(t, http.MethodGet, "/api/catalog/categories", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, KindUnavailable, env.Kind)
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantKind   string
	}{
		{"session", fmt.Errorf("x: %w", session.ErrSessionNotFound), http.StatusNotFound, KindNotFound},
		{"file", &vfs.Error{Op: vfs.OpGet, Filename: "a", Err: vfs.ErrNotFound}, http.StatusNotFound, KindNotFound},
		{"duplicate", &vfs.Error{Op: vfs.OpAdd, Err: vfs.ErrDuplicateFilename}, http.StatusConflict, KindDuplicate},
		{"last file", &vfs.Error{Op: vfs.OpRemove, Err: vfs.ErrLastFile}, http.StatusConflict, KindLastFile},
		{"invariant", &vfs.Error{Op: vfs.OpCreate, Err: vfs.ErrInvariant}, http.StatusUnprocessableEntity, KindInvariant},
		{"malformed token", &codec.DecodeError{Stage: codec.StageToken, Err: codec.ErrMalformedToken}, http.StatusBadRequest, KindMalformedToken},
		{"json stage", &codec.DecodeError{Stage: codec.StageJSON, Err: errors.New("bad")}, http.StatusBadRequest, KindDecode},
		{"no storage", errNoStorage, http.StatusServiceUnavailable, KindUnavailable},
		{"other", errors.New("boom"), http.StatusInternalServerError, KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, kind := errorStatus(tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantKind, kind)
		})
	}
}

func TestMiddleware(t *testing.T) {
	ts := newTestServer(t, false)

	t.Run("generates correlation id", func(t *testing.T) {
		w, _ := ts.do(t, http.MethodGet, "/api/health", nil)
		assert.NotEmpty(t, w.Header().Get(CorrelationIDHeader))
	})

	t.Run("echoes correlation id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		req.Header.Set(CorrelationIDHeader, "abc123")
		w := httptest.NewRecorder()
		ts.Handler().ServeHTTP(w, req)
		assert.Equal(t, "abc123", w.Header().Get(CorrelationIDHeader))
	})

	t.Run("cors preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/sessions", nil)
		req.Header.Set("Origin", "https://lms.example.test")
		w := httptest.NewRecorder()
		ts.Handler().ServeHTTP(w, req)
		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, "https://lms.example.test", w.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestChainMiddlewareOrder(t *testing.T) {
	var order []string
	mark := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := ChainMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		order = append(order, "handler")
	}), mark("first"), mark("second"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"first", "second", "handler"}, order)
}

func TestStaticUI(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>app</html>"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "assets"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "assets", "app.js"), []byte("js"), 0o644))

	sessions, err := session.NewManager(4)
	require.NoError(t, err)
	h := NewServer(Config{Sessions: sessions, StaticDir: dir}).Handler()

	get := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w
	}

	root := get("/")
	assert.Equal(t, http.StatusOK, root.Code)
	assert.Contains(t, root.Body.String(), "app")

	asset := get("/assets/app.js")
	assert.Equal(t, http.StatusOK, asset.Code)
	assert.Contains(t, asset.Header().Get("Cache-Control"), "immutable")

	assert.Contains(t, get("/embed/anything").Body.String(), "app", "unknown paths serve the app shell")
}

func TestSessionEventsWebSocket(t *testing.T) {
	ts := newTestServer(t, false)
	srv := httptest.NewServer(ts.Handler())
	defer srv.Close()

	view := ts.createSession(t, "/api/sessions", nil)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/sessions/" + view.ID + "/events"

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	w, _ := ts.do(t, http.MethodPut, "/api/sessions/"+view.ID+"/active", FileNameRequest{Filename: "style.css"})
	require.Equal(t, http.StatusOK, w.Code)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var event events.Event
	require.NoError(t, json.Unmarshal(data, &event))
	assert.Equal(t, events.Event{Type: events.EventActiveFileChanged, Filename: "style.css"}, event)

	// Closing the session ends the stream with a normal closure.
	w, _ = ts.do(t, http.MethodDelete, "/api/sessions/"+view.ID, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestSessionEventsUnknownSession(t *testing.T) {
	ts := newTestServer(t, false)
	srv := httptest.NewServer(ts.Handler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/sessions/missing/events"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCatalogStorageErrors(t *testing.T) {
	store := testutil.NewMockStorage(testutil.NewChallenge("web", "intro"))
	sessions, err := session.NewManager(4)
	require.NoError(t, err)
	h := NewServer(Config{Sessions: sessions, Storage: store, PublicURL: testPublicURL}).Handler()

	get := func(path string) int {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w.Code
	}

	assert.Equal(t, http.StatusOK, get("/api/catalog/web/intro"))
	assert.Equal(t, http.StatusOK, get("/api/catalog/web"))

	store.Err = testutil.ErrMockDatabase
	assert.Equal(t, http.StatusInternalServerError, get("/api/catalog/categories"))
	assert.Equal(t, http.StatusInternalServerError, get("/api/catalog/web"))
	assert.Equal(t, http.StatusInternalServerError, get("/api/catalog/web/intro"))
}
