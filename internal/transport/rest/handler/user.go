package handler

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"brainstorm/internal/model"
	"brainstorm/internal/service"
	"brainstorm/internal/transport/rest/middleware"
)

// UserHandler handles profile and leaderboard endpoints
type UserHandler struct {
	userSvc *service.UserService
	logger  *zap.Logger
}

// NewUserHandler creates a new user handler
func NewUserHandler(userSvc *service.UserService, logger *zap.Logger) *UserHandler {
	return &UserHandler{userSvc: userSvc, logger: logger}
}

// Me handles GET /v1/users/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	h.profile(w, r, user.ID.Hex())
}

// Get handles GET /v1/users/{id}
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.profile(w, r, mux.Vars(r)["id"])
}

func (h *UserHandler) profile(w http.ResponseWriter, r *http.Request, id string) {
	profile, err := h.userSvc.Profile(r.Context(), id)
	if err != nil {
		if service.HTTPStatus(err) >= http.StatusInternalServerError {
			h.logger.Error("profile lookup failed", zap.String("user_id", id), zap.Error(err))
		}
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

// Leaderboard handles GET /v1/leaderboard?metrica=&page=&limit=
func (h *UserHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	metric := model.LeaderboardMetric(q.Get("metrica"))
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))

	entries, err := h.userSvc.Leaderboard(r.Context(), metric, page, limit)
	if err != nil {
		if service.HTTPStatus(err) >= http.StatusInternalServerError {
			h.logger.Error("leaderboard failed", zap.String("metric", string(metric)), zap.Error(err))
		}
		writeServiceError(w, err)
		return
	}

	if metric == "" {
		metric = model.MetricIdeas
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"metrica":     metric,
		"leaderboard": entries,
	})
}
