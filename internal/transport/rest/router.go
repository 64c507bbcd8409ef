package rest

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"brainstorm/internal/service"
	"brainstorm/internal/transport/rest/handler"
	"brainstorm/internal/transport/rest/middleware"
	"brainstorm/internal/transport/ws"
)

// Container holds all dependencies for the router
type Container struct {
	AuthService    *service.AuthService
	SessionService *service.SessionService
	UserService    *service.UserService
	WSHandler      *ws.Handler
	AllowedOrigins string
	Logger         *zap.Logger
}

// NewRouter creates the API router with all endpoints
func NewRouter(c *Container) http.Handler {
	r := mux.NewRouter()

	// Initialize handlers
	authHandler := handler.NewAuthHandler(c.AuthService, c.Logger)
	sessionHandler := handler.NewSessionHandler(c.SessionService, c.Logger)
	userHandler := handler.NewUserHandler(c.UserService, c.Logger)

	// Initialize middleware
	authMW := middleware.NewAuthMiddleware(c.AuthService)

	// CORS middleware (apply first)
	r.Use(corsMiddleware(c.AllowedOrigins))
	r.Use(middleware.RequestLogger(c.Logger))

	// Health check
	r.HandleFunc("/health", health).Methods("GET")

	// API v1 routes
	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/health", health).Methods("GET")

	// Public routes
	v1.HandleFunc("/auth/register", authHandler.Register).Methods("POST", "OPTIONS")
	v1.HandleFunc("/auth/login", authHandler.Login).Methods("POST", "OPTIONS")

	// WebSocket route (token in query param or Authorization header)
	if c.WSHandler != nil {
		v1.HandleFunc("/ws", c.WSHandler.ServeWS).Methods("GET")
	}

	// Authenticated routes
	userRoutes := v1.NewRoute().Subrouter()
	userRoutes.Use(authMW.RequireUser)

	userRoutes.HandleFunc("/users/me", userHandler.Me).Methods("GET", "OPTIONS")
	userRoutes.HandleFunc("/users/{id}", userHandler.Get).Methods("GET", "OPTIONS")
	userRoutes.HandleFunc("/leaderboard", userHandler.Leaderboard).Methods("GET", "OPTIONS")

	userRoutes.HandleFunc("/sessions", sessionHandler.Create).Methods("POST", "OPTIONS")
	userRoutes.HandleFunc("/sessions", sessionHandler.List).Methods("GET", "OPTIONS")
	userRoutes.HandleFunc("/sessions/join", sessionHandler.Join).Methods("POST", "OPTIONS")
	userRoutes.HandleFunc("/sessions/{id}", sessionHandler.Get).Methods("GET", "OPTIONS")
	userRoutes.HandleFunc("/sessions/{id}/start", sessionHandler.Start).Methods("POST", "OPTIONS")
	userRoutes.HandleFunc("/sessions/{id}/pause", sessionHandler.Pause).Methods("POST", "OPTIONS")
	userRoutes.HandleFunc("/sessions/{id}/conclude", sessionHandler.Conclude).Methods("POST", "OPTIONS")
	userRoutes.HandleFunc("/sessions/{id}/words", sessionHandler.SubmitWords).Methods("POST", "OPTIONS")
	userRoutes.HandleFunc("/sessions/{id}/kick/{participantId}", sessionHandler.Kick).Methods("POST", "OPTIONS")
	userRoutes.HandleFunc("/sessions/{id}/state", sessionHandler.State).Methods("GET", "OPTIONS")
	userRoutes.HandleFunc("/sessions/{id}/result", sessionHandler.Result).Methods("GET", "OPTIONS")

	return r
}

// Routes lists every route registered on a router built by NewRouter as
// "METHOD|METHOD path", leaving out preflight
func Routes(h http.Handler) []string {
	r, ok := h.(*mux.Router)
	if !ok {
		return nil
	}
	var out []string
	r.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		path, err := route.GetPathTemplate()
		if err != nil {
			return nil
		}
		methods, err := route.GetMethods()
		if err != nil {
			// prefix and grouping routes carry no methods
			return nil
		}
		verbs := make([]string, 0, len(methods))
		for _, m := range methods {
			if m != http.MethodOptions {
				verbs = append(verbs, m)
			}
		}
		out = append(out, strings.Join(verbs, "|")+" "+path)
		return nil
	})
	return out
}

func health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func corsMiddleware(allowedOrigins string) mux.MiddlewareFunc {
	if allowedOrigins == "" {
		allowedOrigins = "*"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigins)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
