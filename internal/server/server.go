// Package server sets up the HTTP router, middleware, and request handlers.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/howard-nolan/chatproxy/internal/config"
	"github.com/howard-nolan/chatproxy/internal/logging"
	"github.com/howard-nolan/chatproxy/internal/metrics"
	"github.com/howard-nolan/chatproxy/internal/provider"
	"github.com/howard-nolan/chatproxy/internal/store"
)

// Server holds the HTTP router and all dependencies that handlers need.
// Handlers are methods on Server, so anything they touch (the provider
// selector, the invoker, the chat store, loggers) is a field here rather
// than a package-level global. Tests build a Server with fakes behind
// each field and drive it through ServeHTTP.
type Server struct {
	router   chi.Router
	cfg      *config.Config
	selector *provider.Selector
	invoker  *provider.Invoker
	store    *store.Store

	log        *zap.Logger
	metrics    *metrics.Metrics
	requestLog *logging.RequestLog
}

// Option configures optional Server dependencies. The required pieces
// (config, selector, invoker, store) are plain New arguments; everything
// that has a sensible "off" value is an Option.
type Option func(*Server)

// WithLogger sets the application logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics exposes m on /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithRequestLog writes one line per chat proxy call to rl. Without it
// the nil *RequestLog silently drops every record.
func WithRequestLog(rl *logging.RequestLog) Option {
	return func(s *Server) { s.requestLog = rl }
}

// New creates a Server, wires up routes and middleware, and returns it
// ready to use as an http.Handler. The store may still be unconnected:
// store endpoints answer 503 until a backend is attached, while the chat
// proxy works from the first request.
func New(cfg *config.Config, sel *provider.Selector, inv *provider.Invoker, st *store.Store, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg,
		selector: sel,
		invoker:  inv,
		store:    st,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// routes builds the chi router with all middleware and route definitions.
//
// Middleware order matters. chi runs r.Use middleware outermost first, and
// before route matching, so:
//
//   - requestID runs first so every later log line can carry the id;
//   - RealIP rewrites RemoteAddr before the request logger reads it;
//   - the request logger wraps Recoverer, so a recovered panic is still
//     logged with its 500 status;
//   - cors.Handler sets the Access-Control-* headers, and with
//     OptionsPassthrough it hands preflights on to preflight, which ends
//     them with 204 whatever the path.
func (s *Server) routes() {
	r := chi.NewRouter()

	// --- Global middleware ---
	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:     []string{"*"},
		AllowedMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:     []string{"Content-Type"},
		OptionsPassthrough: true,
	}))
	// Any OPTIONS request is a successful preflight, whatever the path.
	r.Use(preflight)

	// --- API routes ---
	// Only POST is routed. Other methods on these paths reach the static
	// handler through MethodNotAllowed below.
	r.Post("/api.php", s.handleChat)
	r.Post("/api/save-user", s.handleSaveUser)
	r.Post("/api/save-chat", s.handleSaveChat)
	r.Post("/api/get-history", s.handleGetHistory)
	r.Post("/api/get-chat", s.handleGetChat)

	// --- Operational routes ---
	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	// --- Static files ---
	// Anything chi can't route, including GET on an API path (which chi
	// would otherwise answer with 405), is looked up on disk instead.
	static := staticHandler(s.cfg.Server.StaticDir, s.log)
	r.NotFound(static.ServeHTTP)
	r.MethodNotAllowed(static.ServeHTTP)

	s.router = r
}

// ServeHTTP makes Server satisfy the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
