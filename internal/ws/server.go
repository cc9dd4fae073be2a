package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// SessionPathPrefix is the URL prefix of a session page: /a/{id}.
const SessionPathPrefix = "/a/"

type Server struct {
	hub            *Hub
	gateway        *Gateway
	frontendDir    string
	dev            bool
	assets         http.Handler
	index          http.Handler
	allowedOrigins map[string]bool
	allowedHosts   map[string]bool
	logger         *slog.Logger
}

// NewServer wires the HTTP surface. assets serves static files and index
// serves the session page; in dev mode both come from frontendDir instead.
func NewServer(hub *Hub, gateway *Gateway, frontendDir string, dev bool, assets, index http.Handler, allowedOrigins []string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		hub:            hub,
		gateway:        gateway,
		frontendDir:    frontendDir,
		dev:            dev,
		assets:         assets,
		index:          index,
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
		logger:         logger,
	}

	for _, origin := range allowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}

	if dev {
		s.assets = http.FileServer(http.Dir(frontendDir))
		s.index = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.ServeFile(w, r, filepath.Join(frontendDir, "index.html"))
		})
	}

	return s
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc(SessionPathPrefix, s.handleSessionPage)
	mux.HandleFunc("/", s.handleRoot)

	if s.dev {
		s.logger.Info("serving frontend from filesystem", "dir", s.frontendDir)
	} else if s.assets != nil {
		s.logger.Info("serving embedded frontend")
	}
}

// Handler returns mux wrapped with the standard response headers.
func (s *Server) Handler(mux *http.ServeMux) http.Handler {
	return securityHeaders(mux)
}

// handleRoot sends "/" to a fresh session page and serves static assets
// for every other path.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/" {
		http.Redirect(w, r, SessionPathPrefix+uuid.NewString(), http.StatusFound)
		return
	}
	if s.assets == nil {
		http.NotFound(w, r)
		return
	}
	s.assets.ServeHTTP(w, r)
}

func (s *Server) handleSessionPage(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, SessionPathPrefix), "/")
	if id == "" {
		http.Redirect(w, r, SessionPathPrefix+uuid.NewString(), http.StatusFound)
		return
	}
	if s.index == nil {
		http.NotFound(w, r)
		return
	}
	s.index.ServeHTTP(w, r)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade error", "error", err)
		return
	}

	c, err := s.hub.AddClient(conn)
	if err != nil {
		s.logger.Warn("ws client rejected", "remote", r.RemoteAddr, "error", err)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}
	s.logger.Info("websocket client connected", "remote", r.RemoteAddr)

	go s.readLoop(c, r.RemoteAddr)
}

func (s *Server) readLoop(c *client, remote string) {
	defer func() {
		s.hub.RemoveClient(c)
		s.logger.Info("websocket client disconnected", "remote", remote)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		s.gateway.Dispatch(c, data)
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}

	host := parsed.Host
	if host == "" {
		return false
	}

	if host == r.Host {
		return true
	}

	if strings.HasPrefix(host, "localhost:") || host == "localhost" {
		return true
	}
	if strings.HasPrefix(host, "127.0.0.1:") || host == "127.0.0.1" {
		return true
	}
	if strings.HasPrefix(host, "[::1]:") || host == "::1" {
		return true
	}

	return false
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-XSS-Protection", "1; mode=block")
		h.Set("Content-Security-Policy", "default-src 'self'")
		next.ServeHTTP(w, r)
	})
}

// ListenAndServe serves handler until ctx is cancelled, then shuts down
// gracefully within grace.
func ListenAndServe(ctx context.Context, host string, port int, handler http.Handler, grace time.Duration, logger *slog.Logger) error {
	addr := net.JoinHostPort(host, fmt.Sprint(port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen on %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
