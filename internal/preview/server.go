// Package preview serves compiled templates over HTTP during development,
// with WebSocket-driven live reload on source changes.
package preview

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/conneroisu/crucible/internal/errors"
	"github.com/conneroisu/crucible/internal/logging"
	"github.com/conneroisu/crucible/internal/pipeline"
)

// reloadScript is injected before </body> in served documents so the
// browser reconnects and reloads when the template recompiles.
const reloadScript = `<script>
(function() {
	var ws = new WebSocket("ws://" + location.host + "/ws");
	ws.onmessage = function(ev) { if (ev.data === "reload") location.reload(); };
	ws.onclose = function() { setTimeout(function() { location.reload(); }, 1000); };
})();
</script>`

// Options configures the preview server.
type Options struct {
	Host         string
	Port         int
	TemplatePath string
	LiveReload   bool
	Logger       logging.Logger
}

// Server compiles one template file on demand and serves the result.
type Server struct {
	pipeline   *pipeline.Pipeline
	opts       Options
	logger     logging.Logger
	httpServer *http.Server

	mutex   sync.Mutex
	clients map[*websocket.Conn]bool
}

// New creates a preview server around an existing pipeline.
func New(p *pipeline.Pipeline, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewDiscard()
	}

	s := &Server{
		pipeline: p,
		opts:     opts,
		logger:   logger.WithComponent("preview"),
		clients:  make(map[*websocket.Conn]bool),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/ws", s.handleWebSocket)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", opts.Host, opts.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Handler returns the HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves until the context is canceled.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
		s.closeClients()
	}()

	s.logger.Info(ctx, "preview server listening", "addr", s.httpServer.Addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("preview server: %w", err)
	}

	return nil
}

// NotifyChanged recompiles eagerly and tells connected browsers to reload.
func (s *Server) NotifyChanged(ctx context.Context, paths []string) {
	s.logger.Info(ctx, "template changed, reloading", "files", len(paths))
	s.broadcast(ctx, "reload")
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	source, err := os.ReadFile(s.opts.TemplatePath)
	if err != nil {
		http.Error(w, fmt.Sprintf("reading template: %v", err), http.StatusInternalServerError)
		return
	}

	out, err := s.pipeline.Compile(r.Context(), string(source))
	if err != nil {
		s.logger.Warn(r.Context(), err, "compilation failed", "template", s.opts.TemplatePath)
		s.writeCompileError(w, err)
		return
	}

	if s.opts.LiveReload {
		out = injectReloadScript(out)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(out))
}

// writeCompileError renders the failure as a page, so the developer sees
// the diagnostic in the browser instead of a blank tab.
func (s *Server) writeCompileError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusUnprocessableEntity)

	page := fmt.Sprintf(
		"<!DOCTYPE html><html><body><h1>Compilation failed</h1><p>phase: %s</p><pre>%s</pre>",
		errors.PhaseOf(err), html.EscapeString(err.Error()))
	if s.opts.LiveReload {
		page += reloadScript
	}
	page += "</body></html>"

	_, _ = w.Write([]byte(page))
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		return
	}

	s.mutex.Lock()
	s.clients[conn] = true
	s.mutex.Unlock()

	defer func() {
		s.mutex.Lock()
		delete(s.clients, conn)
		s.mutex.Unlock()
	}()

	// Hold the connection open; the browser never sends anything we act
	// on, so reads only detect disconnects.
	for {
		if _, _, err := conn.Read(r.Context()); err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				_ = conn.Close(websocket.StatusNormalClosure, "")
			}
			return
		}
	}
}

func (s *Server) broadcast(ctx context.Context, message string) {
	s.mutex.Lock()
	conns := make([]*websocket.Conn, 0, len(s.clients))
	for conn := range s.clients {
		conns = append(conns, conn)
	}
	s.mutex.Unlock()

	for _, conn := range conns {
		writeCtx, cancel := context.WithTimeout(ctx, time.Second)
		if err := conn.Write(writeCtx, websocket.MessageText, []byte(message)); err != nil {
			s.logger.Debug(ctx, "dropping unreachable reload client", "error", err.Error())
		}
		cancel()
	}
}

func (s *Server) closeClients() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for conn := range s.clients {
		_ = conn.Close(websocket.StatusServiceRestart, "server shutting down")
	}
	s.clients = make(map[*websocket.Conn]bool)
}

func injectReloadScript(doc string) string {
	if idx := strings.LastIndex(doc, "</body>"); idx >= 0 {
		return doc[:idx] + reloadScript + doc[idx:]
	}

	return doc + reloadScript
}
