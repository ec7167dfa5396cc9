package adminapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	dlogmetrics "github.com/dlogio/dlog/pkg/metrics"
)

// NewRouter builds the admin API's chi router.
//
// Routes:
//   - GET /healthz                                - liveness/readiness probe, unauthenticated
//   - GET /metrics                                 - Prometheus scrape endpoint, unauthenticated
//   - GET /v1/streams                               - list streams
//   - GET /v1/streams/{name}                        - stream detail
//   - GET /v1/streams/{name}/segments               - list a stream's segments
//   - POST /v1/streams/{name}/truncate              - set the truncation low-water-mark (JWT-guarded)
//   - POST /v1/streams/{name}/mark-end-of-stream    - write the terminal end-of-stream record (JWT-guarded)
//   - POST /v1/streams/{name}/force-roll            - roll to a new segment immediately (JWT-guarded)
//
// This surface is introspection and control-plane only: it never carries
// record payloads, and has no bearing on the write/read RPC path.
func NewRouter(streams StreamManager, health Healthchecker, jwtService *JWTService) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	h := &handlers{streams: streams, health: health}

	r.Get("/healthz", h.healthz)

	if dlogmetrics.IsEnabled() {
		r.Handle("/metrics", promhttp.HandlerFor(dlogmetrics.GetRegistry(), promhttp.HandlerOpts{}))
	}

	r.Route("/v1/streams", func(r chi.Router) {
		r.Get("/", h.listStreams)

		r.Route("/{name}", func(r chi.Router) {
			r.Get("/", h.getStream)
			r.Get("/segments", h.listSegments)

			r.Group(func(r chi.Router) {
				// nil jwtService leaves mutating routes unauthenticated;
				// NewServer never passes nil in production, only tests
				// exercising the handlers directly do.
				if jwtService != nil {
					r.Use(JWTAuth(jwtService))
				}
				r.Post("/truncate", h.truncate)
				r.Post("/mark-end-of-stream", h.markEndOfStream)
				r.Post("/force-roll", h.forceRoll)
			})
		})
	})

	return r
}
