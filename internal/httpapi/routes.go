package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/DoyleJ11/initiative-tracker/internal/hub"
	"github.com/DoyleJ11/initiative-tracker/internal/turnclock"
	"github.com/DoyleJ11/initiative-tracker/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

type Options struct {
	CORSOrigins []string
	Logger      *zap.Logger
}

func SetupRoutes(h *hub.Hub, reg *ws.Registry, opts Options) http.Handler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(opts.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodPatch,
			http.MethodDelete,
		},
		AllowedHeaders: []string{"*"},
	}).Handler)

	// Public routes
	r.Get("/healthz", Healthz)
	r.Get("/ws/display", ws.Handler(reg, wsOrigins(origins)))

	r.Route("/encounters/{id}/control", func(r chi.Router) {
		r.Post("/", StartControl(h))
		r.Get("/", GetControl(h))
		r.Delete("/", EndControl(h))

		r.Post("/advance", Turn(h, turnclock.TransitionAdvance))
		r.Post("/retreat", Turn(h, turnclock.TransitionRetreat))
		r.Post("/reset", Turn(h, turnclock.TransitionReset))

		r.Post("/creatures", AddCreature(h))
		r.Patch("/creatures/{creatureID}", UpdateCreature(h))
		r.Delete("/creatures/{creatureID}", DeleteCreature(h))

		r.Patch("/encounter", UpdateEncounter(h))
		r.Post("/display", OpenDisplay(h))
	})
	return r
}

// wsOrigins turns CORS origins into websocket origin patterns, which match
// hosts rather than full origins.
func wsOrigins(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if _, host, ok := strings.Cut(o, "://"); ok {
			o = host
		}
		out = append(out, o)
	}
	return out
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.Debug("request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Duration("took", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
