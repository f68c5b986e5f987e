// Package server shares a directory of splat datasets over HTTP. PLY sources
// are decoded on request so viewers can stream plain record buffers.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/gekko3d/gsplat"
	"github.com/gekko3d/gsplat/splatrt/rt/cache"
	"github.com/gekko3d/gsplat/splatrt/rt/dataset"
	"github.com/gekko3d/gsplat/splatrt/rt/ply"
)

const contentType = "application/octet-stream"

type Options struct {
	Dir    string
	Addr   string
	Logger gsplat.Logger
	// Cache memoizes PLY decodes across requests. Nil disables caching.
	Cache    cache.Cache
	CacheTTL time.Duration
}

type Server struct {
	dir     string
	addr    string
	logger  gsplat.Logger
	decode  func([]byte) ([]byte, error)
	started time.Time
}

type healthStatus struct {
	Status   string `json:"status"`
	Uptime   int64  `json:"uptime_seconds"`
	Datasets int    `json:"datasets"`
}

func New(opts Options) *Server {
	logger := gsplat.OrNop(opts.Logger)
	decode := func(raw []byte) ([]byte, error) {
		return ply.DecodeWithOptions(raw, ply.DecodeOptions{Logger: logger})
	}
	if opts.Cache != nil {
		decode = cache.Decoder(opts.Cache, opts.CacheTTL, logger, decode)
	}
	return &Server{
		dir:     opts.Dir,
		addr:    opts.Addr,
		logger:  logger,
		decode:  decode,
		started: time.Now(),
	}
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Route("/datasets", func(r chi.Router) {
		r.Get("/", s.handleList)
		r.Get("/{name}", s.handleDataset)
		r.Head("/{name}", s.handleDataset)
	})
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:        s.addr,
		Handler:     s.Handler(),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Infof("server: serving %s on %s", s.dir, s.addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := healthStatus{
		Status: "alive",
		Uptime: int64(time.Since(s.started).Seconds()),
	}
	code := http.StatusOK
	if infos, err := dataset.Scan(s.dir, s.logger); err != nil {
		status.Status = "degraded"
		code = http.StatusServiceUnavailable
	} else {
		status.Datasets = len(infos)
	}
	writeJSON(w, code, status)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	infos, err := dataset.Scan(s.dir, s.logger)
	if err != nil {
		s.logger.Errorf("server: scan %s: %v", s.dir, err)
		http.Error(w, "dataset directory unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, infos)
}

func (s *Server) handleDataset(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name != filepath.Base(name) || !dataset.Supported(name) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	path := filepath.Join(s.dir, name)

	f, err := os.Open(path)
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil || st.IsDir() {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	head := make([]byte, len(ply.Magic))
	n, _ := f.ReadAt(head, 0)
	if !ply.HasMagic(head[:n]) {
		w.Header().Set("Content-Type", contentType)
		http.ServeContent(w, r, name, st.ModTime(), f)
		return
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		http.Error(w, "read failed", http.StatusInternalServerError)
		return
	}
	out, err := s.decode(raw)
	if err != nil {
		s.logger.Warnf("server: decode %s: %v", name, err)
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	w.Header().Set("Content-Type", contentType)
	http.ServeContent(w, r, name, st.ModTime(), bytes.NewReader(out))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// requestID tags every response so log lines can be matched to clients.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Infof("server: %s %s %d %dB %s [%s]", r.Method, r.URL.Path, ww.Status(), ww.BytesWritten(), time.Since(start), w.Header().Get("X-Request-ID"))
	})
}
