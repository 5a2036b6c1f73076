package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Handlers 路由依赖；为 nil 的部分不注册
type Handlers struct {
	Utterances *UtteranceHandler
	Phrases    *PhraseHandler
	Metrics    http.Handler
}

// NewRouter 创建 HTTP 路由
func NewRouter(h Handlers, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respond(w, map[string]string{"status": "ok"})
	})

	if h.Utterances != nil {
		r.Route("/api/v1", func(r chi.Router) {
			r.Post("/utterances", h.Utterances.Process)
			r.Get("/patients/{patientID}/alerts", h.Utterances.ListAlerts)
		})
	}

	if h.Phrases != nil {
		r.Route("/admin/api/v1/phrases", func(r chi.Router) {
			r.Get("/", h.Phrases.List)
			r.Post("/", h.Phrases.Create)
			r.Route("/{phraseID}", func(r chi.Router) {
				r.Get("/", h.Phrases.Get)
				r.Put("/", h.Phrases.Update)
				r.Delete("/", h.Phrases.Deactivate)
			})
		})
	}

	if h.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.Metrics)
	}
	return r
}

// requestLogger 请求日志（zap）
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("HTTP request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
