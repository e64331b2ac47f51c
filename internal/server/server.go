package server

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"sync"
	"time"
)

//go:embed frontend/*
var frontendFS embed.FS

// Server manages the localhost HTTP server for the player page and the
// session control API
type Server struct {
	httpServer      *http.Server
	listener        net.Listener
	mux             *http.ServeMux
	port            int
	readTimeout     time.Duration
	writeTimeout    time.Duration
	shutdownTimeout time.Duration
	mu              sync.Mutex
	running         bool
}

// Config holds server configuration
type Config struct {
	Port            int           // Port to listen on (0 = random)
	ReadTimeout     time.Duration // HTTP read timeout
	WriteTimeout    time.Duration // HTTP write timeout
	ShutdownTimeout time.Duration // Graceful shutdown timeout
}

// DefaultConfig returns the default server configuration
func DefaultConfig() Config {
	return Config{
		Port:            17870,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
}

// New creates a new HTTP server. API routes are registered on the mux
// before Start.
func New(config Config) *Server {
	return &Server{
		mux:             http.NewServeMux(),
		port:            config.Port,
		readTimeout:     config.ReadTimeout,
		writeTimeout:    config.WriteTimeout,
		shutdownTimeout: config.ShutdownTimeout,
	}
}

// GetMux returns the route mux for handler registration
func (s *Server) GetMux() *http.ServeMux {
	return s.mux
}

// Start starts the HTTP server on localhost
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("server already running")
	}

	// Listener on localhost only
	addr := fmt.Sprintf("127.0.0.1:%d", s.port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.listener = listener
	s.port = listener.Addr().(*net.TCPAddr).Port

	// Serve the embedded player page at the root
	frontendSubFS, err := fs.Sub(frontendFS, "frontend")
	if err != nil {
		listener.Close()
		return fmt.Errorf("failed to create frontend sub-filesystem: %w", err)
	}
	s.mux.Handle("/", http.FileServer(http.FS(frontendSubFS)))

	s.httpServer = &http.Server{
		Handler:      corsMiddleware(s.mux),
		ReadTimeout:  s.readTimeout,
		WriteTimeout: s.writeTimeout,
	}

	go func() {
		if err := s.httpServer.Serve(s.listener); err != nil && err != http.ErrServerClosed {
			fmt.Printf("HTTP server error: %v\n", err)
		}
	}()

	s.running = true
	return nil
}

// Stop stops the HTTP server gracefully
func (s *Server) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.running = false
	return nil
}

// Port returns the port the server is listening on
func (s *Server) Port() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port
}

// URL returns the full URL to the server
func (s *Server) URL() string {
	return fmt.Sprintf("http://127.0.0.1:%d", s.Port())
}

// IsRunning returns whether the server is running
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// corsMiddleware adds CORS headers for localhost-only access
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		if origin != "" {
			if len(origin) >= 16 && (origin[:16] == "http://localhost" || origin[:16] == "http://127.0.0.1") {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			}
		}

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
