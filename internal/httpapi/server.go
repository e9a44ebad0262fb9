// Package httpapi serves health, prometheus metrics and a small JSON API
// over the feed.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/pprof"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"blazealert/internal/alert"
	"blazealert/internal/delivery"
	"blazealert/internal/metrics"
	"blazealert/internal/permission"
	rtsup "blazealert/internal/runtime/supervisor"
	logx "blazealert/pkg/logx"
)

// Feed is the subset of the feed manager the API drives.
type Feed interface {
	Snapshot() alert.Feed
	UnreadCount() int
	MarkAsRead(ctx context.Context, id string) bool
	MarkAllAsRead(ctx context.Context) int
	ClearAll(ctx context.Context) int
	PermissionStatus() permission.State
	RequestConsent(ctx context.Context) (permission.State, error)
}

// NoticeLog is the recent in-app notices, oldest first.
type NoticeLog interface {
	Notices() []delivery.Notice
}

type Config struct {
	Addr        string
	ReadTimeout time.Duration
	// WriteTimeout also bounds the consent prompt behind
	// POST /api/permission/request, so a slow answer still gets a 408.
	WriteTimeout time.Duration
	Pprof        bool
	// Notices backs GET /api/notices; nil leaves the route unmounted.
	Notices NoticeLog
}

type Server struct {
	cfg  Config
	feed Feed
	log  logx.Logger

	mu   sync.Mutex
	sup  *rtsup.Supervisor
	srv  *http.Server
	addr string
}

func New(cfg Config, feed Feed, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = "127.0.0.1:8787"
	}
	return &Server{cfg: cfg, feed: feed, log: log}
}

// Handler is the full route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.handle(mux, "GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", promhttp.Handler())
	if s.cfg.Pprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	s.handle(mux, "GET /api/feed", s.getFeed)
	s.handle(mux, "POST /api/feed/{id}/read", s.markRead)
	s.handle(mux, "POST /api/feed/read-all", s.markAllRead)
	s.handle(mux, "POST /api/feed/clear", s.clear)
	s.handle(mux, "GET /api/permission", s.getPermission)
	s.handle(mux, "POST /api/permission/request", s.requestPermission)
	if s.cfg.Notices != nil {
		s.handle(mux, "GET /api/notices", s.getNotices)
	}
	return mux
}

func (s *Server) handle(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	route := pattern[strings.IndexByte(pattern, ' ')+1:]
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		h(sw, r)
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(sw.status)).Inc()
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

type feedResponse struct {
	Alerts      []alert.Alert `json:"alerts"`
	UnreadCount int           `json:"unreadCount"`
	Permission  string        `json:"permission"`
}

func (s *Server) getFeed(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var in alert.Intensity
	if v := q.Get("intensity"); v != "" {
		var err error
		if in, err = alert.ParseIntensity(v); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
	}
	f := s.feed.Snapshot().Filter(q.Get("unread") == "1", in)
	writeJSON(w, http.StatusOK, feedResponse{
		Alerts:      f,
		UnreadCount: s.feed.UnreadCount(),
		Permission:  string(s.feed.PermissionStatus()),
	})
}

type noticeJSON struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Level       string `json:"level"`
	AlertID     string `json:"alertId,omitempty"`
	At          int64  `json:"at"`
}

func (s *Server) getNotices(w http.ResponseWriter, r *http.Request) {
	ns := s.cfg.Notices.Notices()
	out := make([]noticeJSON, 0, len(ns))
	for _, n := range ns {
		out = append(out, noticeJSON{
			Title:       n.Title,
			Description: n.Description,
			Level:       string(n.Level),
			AlertID:     n.AlertID,
			At:          n.At.UnixMilli(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"notices": out})
}

func (s *Server) markRead(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	changed := s.feed.MarkAsRead(r.Context(), id)
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "changed": changed, "unreadCount": s.feed.UnreadCount()})
}

func (s *Server) markAllRead(w http.ResponseWriter, r *http.Request) {
	n := s.feed.MarkAllAsRead(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"marked": n, "unreadCount": s.feed.UnreadCount()})
}

func (s *Server) clear(w http.ResponseWriter, r *http.Request) {
	n := s.feed.ClearAll(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"cleared": n})
}

func (s *Server) getPermission(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"state": string(s.feed.PermissionStatus())})
}

func (s *Server) requestPermission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if d := s.consentTimeout(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	st, err := s.feed.RequestConsent(ctx)
	body := map[string]string{"state": string(st)}
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, body)
	case errors.Is(err, permission.ErrUnsupported):
		body["error"] = "unsupported"
		writeJSON(w, http.StatusOK, body)
	case errors.Is(err, permission.ErrPromptTimeout):
		body["error"] = "prompt_timeout"
		writeJSON(w, http.StatusRequestTimeout, body)
	default:
		body["error"] = err.Error()
		writeJSON(w, http.StatusInternalServerError, body)
	}
}

// consentTimeout leaves room to write the response before WriteTimeout
// closes the connection. Zero means no extra bound.
func (s *Server) consentTimeout() time.Duration {
	wt := s.cfg.WriteTimeout
	if wt <= 0 {
		return 0
	}
	if wt <= 2*time.Second {
		return wt / 2
	}
	return wt - time.Second
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Start serves in the background under a restart loop. It is idempotent.
func (s *Server) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil {
		return
	}
	if !isLoopbackAddr(s.cfg.Addr) {
		s.log.Warn("http api bound to a non-loopback address", logx.String("addr", s.cfg.Addr))
	}
	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log))
	s.sup.GoRestart("http.serve", s.serveOnce, rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second))
}

// Addr is the bound listen address once serving.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

func (s *Server) Stop(ctx context.Context) {
	s.mu.Lock()
	sup, srv := s.sup, s.srv
	s.sup, s.srv = nil, nil
	s.mu.Unlock()
	if sup == nil {
		return
	}
	sup.Cancel()
	if srv != nil {
		_ = srv.Shutdown(ctx)
	}
	if err := sup.Wait(ctx); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn("http api stop incomplete", logx.Err(err))
	}
	s.log.Info("http api stopped")
}

func (s *Server) serveOnce(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		s.log.Error("http listen failed", logx.String("addr", s.cfg.Addr), logx.Err(err))
		return err
	}
	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}
	s.mu.Lock()
	s.srv = srv
	s.addr = ln.Addr().String()
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = srv.Shutdown(cctx)
		cancel()
	}()

	s.log.Info("http api started", logx.String("addr", ln.Addr().String()))
	err = srv.Serve(ln)
	if ctx.Err() != nil {
		return context.Canceled
	}
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return errors.New("http server exited unexpectedly")
	}
	return err
}

func isLoopbackAddr(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
