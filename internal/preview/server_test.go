package preview

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/crucible/internal/pipeline"
	"github.com/conneroisu/crucible/internal/sandbox"
)

const previewTemplate = `
import { Html, Body, Text } from "@react-email/components";

export default function Email() {
	return (
		<Html>
			<Body>
				<Text>Preview me</Text>
			</Body>
		</Html>
	);
}
`

func newTestServer(t *testing.T, source string, liveReload bool) *Server {
	t.Helper()

	path := filepath.Join(t.TempDir(), "welcome.tsx")
	require.NoError(t, os.WriteFile(path, []byte(source), 0o644))

	p, err := pipeline.New(pipeline.Options{
		Strategy: sandbox.StrategyPermissive,
	})
	require.NoError(t, err)

	return New(p, Options{
		Host:         "127.0.0.1",
		TemplatePath: path,
		LiveReload:   liveReload,
	})
}

func TestServeCompiledTemplate(t *testing.T) {
	s := newTestServer(t, previewTemplate, false)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")

	body := rec.Body.String()
	assert.True(t, strings.HasPrefix(body, "<!DOCTYPE html>"))
	assert.Contains(t, body, "Preview me")
	assert.NotContains(t, body, "location.reload")
}

func TestServeInjectsReloadScript(t *testing.T) {
	s := newTestServer(t, previewTemplate, true)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	body := rec.Body.String()
	assert.Contains(t, body, "location.reload")
	assert.Less(t, strings.Index(body, "location.reload"), strings.LastIndex(body, "</body>"))
}

func TestServeCompileErrorPage(t *testing.T) {
	s := newTestServer(t, `export default () => <div>`, false)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "Compilation failed")
	assert.Contains(t, rec.Body.String(), "transpile")
}

func TestServeUnknownPath(t *testing.T) {
	s := newTestServer(t, previewTemplate, false)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/other", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReloadBroadcast(t *testing.T) {
	s := newTestServer(t, previewTemplate, true)

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Give the server a moment to register the client.
	require.Eventually(t, func() bool {
		s.mutex.Lock()
		defer s.mutex.Unlock()
		return len(s.clients) == 1
	}, time.Second, 10*time.Millisecond)

	s.NotifyChanged(ctx, []string{"welcome.tsx"})

	kind, payload, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, websocket.MessageText, kind)
	assert.Equal(t, "reload", string(payload))
}

func TestInjectReloadScriptWithoutBodyTag(t *testing.T) {
	out := injectReloadScript("<p>bare</p>")

	assert.Contains(t, out, "<p>bare</p>")
	assert.Contains(t, out, "location.reload")
}
