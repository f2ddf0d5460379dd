package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	app "github.com/kassandra-hq/kassandra/internal/app"
	"github.com/kassandra-hq/kassandra/internal/config"
	"github.com/kassandra-hq/kassandra/internal/httputil"
	"github.com/kassandra-hq/kassandra/internal/middleware"
	"github.com/kassandra-hq/kassandra/pkg/logger"
)

// NewRouter assembles the full HTTP surface: health and metrics endpoints,
// the public auth routes and the authenticated API behind the token
// middleware and rate limiter.
func NewRouter(application *app.Application, cfg *config.Config, log *logger.Logger) http.Handler {
	if log == nil {
		log = logger.NewDefault("httpapi")
	}

	handler := &Handler{
		Accounts:  application.Accounts,
		Groups:    application.Groups,
		Products:  application.Products,
		Versions:  application.Versions,
		Features:  application.Features,
		Sprints:   application.Sprints,
		Tasks:     application.Tasks,
		Activity:  application.Activity,
		Assistant: application.Assistant,
		Stream:    NewStreamHub(application.Activity, application.Metrics, log.WithField("component", "stream")),
		Log:       log,
	}

	root := mux.NewRouter()
	root.Use(middleware.CORS(cfg.Server.Origins()))
	root.Use(middleware.Metrics(application.Metrics))

	root.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	root.Handle("/metrics", application.Metrics.Handler()).Methods(http.MethodGet)

	public := root.PathPrefix("/api").Subrouter()
	handler.RegisterPublic(public)

	api := root.PathPrefix("/api").Subrouter()
	api.Use(middleware.Auth(application.Tokens, application.Sessions, log.WithField("component", "auth")))
	if cfg.Server.RateLimitRPS > 0 {
		limiter := middleware.NewRateLimiter(float64(cfg.Server.RateLimitRPS), cfg.Server.RateLimitBurst)
		api.Use(limiter.Middleware)
	}
	handler.Register(api)

	return root
}
