package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"topicref/interfaces/http/rest/handlers"
	"topicref/interfaces/http/rest/middleware"
	"topicref/pkg/auth"
	apperrors "topicref/pkg/errors"
	"topicref/pkg/observability"
)

// Session guard modes for write endpoints.
const (
	// SessionModeAPI answers anonymous writes with 401.
	SessionModeAPI = "api"
	// SessionModeGateway redirects anonymous callers to the login endpoint.
	SessionModeGateway = "gateway"
)

// Options wires the router's collaborators. Metrics may be nil.
type Options struct {
	Catalog        handlers.Catalog
	Auth           handlers.Authenticator
	Errors         *apperrors.ErrorHandler
	Metrics        *observability.Collector
	Logger         *zap.Logger
	Cookies        handlers.CookieOptions
	CORSOrigins    []string
	LoginRateLimit int
	SessionMode    string

	// TrustProxyHeaders lets forwarding headers replace the connection
	// address, which keys the login rate limit.
	TrustProxyHeaders bool
}

// Router creates and configures the HTTP router
type Router struct {
	opts Options
}

func NewRouter(opts Options) *Router {
	if opts.SessionMode == "" {
		opts.SessionMode = SessionModeAPI
	}
	return &Router{opts: opts}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() *chi.Mux {
	o := rt.opts
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	if o.TrustProxyHeaders {
		router.Use(chimiddleware.RealIP)
	}
	router.Use(o.Errors.Recoverer)
	router.Use(middleware.Logger(o.Logger))
	if o.Metrics != nil {
		router.Use(middleware.Metrics(o.Metrics))
	}
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   o.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		o.Errors.Handle(w, r, apperrors.NewNotFoundError("route"))
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		err := apperrors.NewValidationError("method not allowed").WithCode("METHOD_NOT_ALLOWED")
		err.HTTPStatus = http.StatusMethodNotAllowed
		o.Errors.Handle(w, r, err)
	})

	health := handlers.NewHealthHandler(o.Catalog)
	router.Get("/healthz", health.Health)
	if o.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", o.Metrics.Handler())
	}

	guard := middleware.RequireSession(o.Auth, o.Errors)
	if o.SessionMode == SessionModeGateway {
		guard = middleware.RequireLogin(o.Auth, o.Errors)
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/", health.Root)
		r.Get("/healthz", health.Health)

		topics := handlers.NewTopicHandler(o.Catalog, o.Errors, o.Logger)
		r.Route("/topics", func(r chi.Router) {
			r.Get("/", topics.ListTopics)
			r.Get("/{topic}/subtopics", topics.ListSubTopics)
			r.Group(func(r chi.Router) {
				r.Use(guard)
				r.Post("/", topics.CreateTopic)
				r.Delete("/", topics.DeleteTopic)
				r.Post("/{topic}/subtopics", topics.LinkSubTopic)
			})
		})

		refs := handlers.NewReferenceHandler(o.Catalog, o.Errors, o.Logger)
		r.Route("/refs", func(r chi.Router) {
			r.Get("/qref", refs.FindTopicsByVerse)
			r.Get("/{topic}", refs.ListReferences)
			r.Get("/{topic}/qref", refs.ListVerseReferences)
			r.Group(func(r chi.Router) {
				r.Use(guard)
				r.Post("/{topic}/qref", refs.AddVerseReference)
				r.Post("/{topic}/href", refs.AddCitation)
				r.Post("/{topic}/bref", refs.AddBookReference)
			})
		})

		login := handlers.NewAuthHandler(o.Auth, o.Cookies, o.Errors, o.Logger)
		r.Route("/auth", func(r chi.Router) {
			r.With(middleware.RateLimit(auth.NewIPRateLimiter(o.LoginRateLimit), o.Errors)).
				Get("/login", login.Login)
			r.Get("/authorize", login.Authorize)
			r.Post("/authorize", login.Authorize)
			r.Get("/user", login.User)
			r.Post("/logout", login.Logout)
		})
	})

	return router
}
