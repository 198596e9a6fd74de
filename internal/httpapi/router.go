// Package httpapi serves the crash visualization: static data files, the
// selection endpoints that drive the synchronizer, and the rendered views.
package httpapi

import (
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"crash-insights-go/internal/config"
	"crash-insights-go/internal/logger"
	"crash-insights-go/internal/metrics"
	"crash-insights-go/internal/session"
)

type Server struct {
	sess     *session.Session
	cities   config.File
	settings config.Settings
	log      *logger.Logger
}

func NewServer(sess *session.Session, cities config.File, settings config.Settings, log *logger.Logger) *Server {
	if log == nil {
		log = logger.New()
	}
	return &Server{sess: sess, cities: cities, settings: settings, log: log.Component("httpapi")}
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", s.health).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.PathPrefix("/data/").Handler(http.StripPrefix("/data/", http.FileServer(http.Dir(s.settings.DataDir)))).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/config", s.config).Methods(http.MethodGet)
	api.HandleFunc("/summary", s.summary).Methods(http.MethodGet)
	api.HandleFunc("/state", s.state).Methods(http.MethodGet)
	api.HandleFunc("/selection/{field}", s.setSelection).Methods(http.MethodPut)
	api.HandleFunc("/detail/back", s.back).Methods(http.MethodPost)
	api.HandleFunc("/segments/top", s.topSegments).Methods(http.MethodGet)
	api.HandleFunc("/layers/{layer}.geojson", s.layer).Methods(http.MethodGet)
	api.HandleFunc("/chart/weekly.png", s.chartPNG).Methods(http.MethodGet)
	api.HandleFunc("/chart/{series}", s.chartSeries).Methods(http.MethodGet)

	return r
}

// Handler wraps the router with panic recovery and CORS for the map page.
func (s *Server) Handler() http.Handler {
	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPut, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "X-Request-ID"}),
	)
	recovery := handlers.RecoveryHandler(handlers.RecoveryLogger(s.log), handlers.PrintRecoveryStack(true))
	return recovery(cors(s.Router()))
}
