// Package server exposes viewer sessions over HTTP and serves the browser
// front end.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/flipbook/internal/input"
	"github.com/local/flipbook/internal/loader"
	"github.com/local/flipbook/internal/metrics"
	"github.com/local/flipbook/internal/pagecache"
	"github.com/local/flipbook/internal/pdfdoc"
	"github.com/local/flipbook/internal/session"
	"github.com/local/flipbook/internal/statuscheck"
	"github.com/local/flipbook/internal/viewer"
)

type Options struct {
	Registry       *session.Registry
	Checker        *statuscheck.Checker
	Assets         fs.FS
	MaxUploadBytes int64
}

type Server struct {
	reg       *session.Registry
	checker   *statuscheck.Checker
	assets    fs.FS
	maxUpload int64
}

func New(opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 100 << 20
	}
	return &Server{
		reg:       opts.Registry,
		checker:   opts.Checker,
		assets:    opts.Assets,
		maxUpload: opts.MaxUploadBytes,
	}
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /health/deps", s.handleDeps)
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("POST /api/sessions", s.handleCreate)
	mux.HandleFunc("GET /api/sessions/{id}", s.withSession(s.handleState))
	mux.HandleFunc("POST /api/sessions/{id}/load", s.withSession(s.handleLoad))
	mux.HandleFunc("POST /api/sessions/{id}/input", s.withSession(s.handleInput))
	mux.HandleFunc("POST /api/sessions/{id}/flip/complete", s.withSession(s.handleComplete))
	mux.HandleFunc("POST /api/sessions/{id}/viewport", s.withSession(s.handleViewport))
	mux.HandleFunc("GET /api/sessions/{id}/images/{page}/{class}", s.withSession(s.handleImage))

	if s.assets != nil {
		mux.Handle("GET /", http.FileServer(http.FS(s.assets)))
	}
}

// Handler returns the routes wrapped in request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return logRequests(mux)
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, sess *session.Session)

func (s *Server) withSession(h sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := s.reg.Get(r.PathValue("id"))
		if !ok {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		h(w, r, sess)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleDeps(w http.ResponseWriter, r *http.Request) {
	if s.checker == nil {
		http.Error(w, "checks not configured", http.StatusNotImplemented)
		return
	}
	sum := s.checker.Summary(r.Context())
	status := http.StatusOK
	if !sum.Healthy() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, sum)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	sess := s.reg.Create(r.Context())
	writeJSON(w, http.StatusCreated, sess.Snapshot())
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

type loadRequest struct {
	URL string `json:"url"`
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var (
		res *loader.Result
		err error
	)
	mt, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mt {
	case "multipart/form-data":
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload+1<<20)
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			http.Error(w, "invalid multipart form", http.StatusBadRequest)
			return
		}
		file, hdr, ferr := r.FormFile("file")
		if ferr != nil {
			http.Error(w, "missing file", http.StatusBadRequest)
			return
		}
		defer file.Close()
		b, rerr := io.ReadAll(io.LimitReader(file, s.maxUpload+1))
		if rerr != nil {
			http.Error(w, "read failed", http.StatusBadRequest)
			return
		}
		if int64(len(b)) > s.maxUpload {
			http.Error(w, "document exceeds the size limit", http.StatusRequestEntityTooLarge)
			return
		}
		res, err = sess.LoadBytes(r.Context(), hdr.Filename, b)
	default:
		var req loadRequest
		if derr := json.NewDecoder(r.Body).Decode(&req); derr != nil || req.URL == "" {
			http.Error(w, "expected multipart file or JSON {\"url\": ...}", http.StatusBadRequest)
			return
		}
		res, err = sess.LoadURL(r.Context(), req.URL)
	}

	if err != nil {
		var lerr *loader.LoadError
		if errors.As(err, &lerr) {
			http.Error(w, lerr.Message(), http.StatusUnprocessableEntity)
			return
		}
		log.Error().Err(err).Str("session", sess.ID).Msg("load failed")
		http.Error(w, "load failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":      res.Name,
		"pages":     res.Pages,
		"displayed": res.Displayed,
		"fallback":  res.Fallback,
		"state":     sess.Snapshot(),
	})
}

type inputResponse struct {
	session.Outcome
	State session.State `json:"state"`
}

func (s *Server) handleInput(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var ev input.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	out, err := sess.Dispatch(r.Context(), ev)
	if err != nil {
		log.Error().Err(err).Str("session", sess.ID).Str("event", ev.Type).Msg("input failed")
		http.Error(w, "navigation failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, inputResponse{Outcome: out, State: sess.Snapshot()})
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if _, err := sess.CompleteFlip(r.Context()); err != nil {
		http.Error(w, "flip did not settle", http.StatusGatewayTimeout)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

type viewportRequest struct {
	ViewportWidth  int `json:"viewport_width"`
	ContainerWidth int `json:"container_width"`
}

func (s *Server) handleViewport(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req viewportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ViewportWidth < 0 || req.ContainerWidth < 0 {
		http.Error(w, "invalid viewport", http.StatusBadRequest)
		return
	}
	sess.Viewport(req.ViewportWidth, req.ContainerWidth)
	writeJSON(w, http.StatusAccepted, sess.Snapshot())
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	page, err1 := strconv.Atoi(r.PathValue("page"))
	class, err2 := strconv.Atoi(r.PathValue("class"))
	if err1 != nil || err2 != nil {
		http.Error(w, "invalid page or scale", http.StatusBadRequest)
		return
	}
	img, err := sess.Image(r.Context(), page, pagecache.ScaleClass(class))
	switch {
	case errors.Is(err, viewer.ErrNoDocument), errors.Is(err, session.ErrNoImage), errors.Is(err, pdfdoc.ErrPageRange):
		http.Error(w, "not found", http.StatusNotFound)
		return
	case err != nil:
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Header().Set("Content-Length", strconv.Itoa(len(img.JPEG)))
	_, _ = w.Write(img.JPEG)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("took", time.Since(start)).
			Msg("http request")
	})
}
