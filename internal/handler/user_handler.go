package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"whispr-service/internal/service"
	"whispr-service/internal/util"
)

// UserHandler serves read-only views of users and the follow graph.
type UserHandler struct {
	userService *service.UserService
	logger      *zap.Logger
}

func NewUserHandler(userService *service.UserService, logger *zap.Logger) *UserHandler {
	return &UserHandler{
		userService: userService,
		logger:      logger,
	}
}

// Response represents a standard API response
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
	Meta    *Meta  `json:"meta,omitempty"`
}

type Meta struct {
	Total int `json:"total"`
}

func successResponse(data any, message string) Response {
	return Response{
		Success: true,
		Data:    data,
		Message: message,
	}
}

func listResponse[T any](items []T, message string) Response {
	if items == nil {
		items = []T{}
	}
	resp := successResponse(items, message)
	resp.Meta = &Meta{Total: len(items)}
	return resp
}

func errorResponse(err error, message string) Response {
	return Response{
		Success: false,
		Error:   err.Error(),
		Message: message,
	}
}

// RegisterRoutes registers all user routes. {user} is a display name or an
// international number.
func (h *UserHandler) RegisterRoutes(router chi.Router) {
	router.Route("/users", func(r chi.Router) {
		r.Get("/search", h.SearchUsers)
		r.Get("/{user}", h.GetUser)
		r.Get("/{user}/followers", h.GetFollowers)
		r.Get("/{user}/following", h.GetFollowing)
		r.Get("/{user}/recommendations", h.GetRecommendations)
	})
}

// GetUser handles profile retrieval
// @Router /users/{user} [get]
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	ref := chi.URLParam(r, "user")

	profile, err := h.userService.GetProfile(r.Context(), ref)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to get user")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(profile, "User retrieved successfully"))
	h.logger.Debug("User retrieved via HTTP",
		util.String("user", ref),
		util.Duration("duration", time.Since(startTime)),
	)
}

// GetFollowers handles follower listing
// @Router /users/{user}/followers [get]
func (h *UserHandler) GetFollowers(w http.ResponseWriter, r *http.Request) {
	followers, err := h.userService.Followers(r.Context(), chi.URLParam(r, "user"))
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to get followers")
		return
	}
	h.respondWithJSON(w, http.StatusOK, listResponse(followers, "Followers retrieved successfully"))
}

// GetFollowing handles followee listing
// @Router /users/{user}/following [get]
func (h *UserHandler) GetFollowing(w http.ResponseWriter, r *http.Request) {
	following, err := h.userService.Following(r.Context(), chi.URLParam(r, "user"))
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to get following")
		return
	}
	h.respondWithJSON(w, http.StatusOK, listResponse(following, "Following retrieved successfully"))
}

// GetRecommendations handles friend-of-friend suggestions
// @Router /users/{user}/recommendations [get]
func (h *UserHandler) GetRecommendations(w http.ResponseWriter, r *http.Request) {
	recs, err := h.userService.Recommendations(r.Context(), chi.URLParam(r, "user"))
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Failed to get recommendations")
		return
	}
	h.respondWithJSON(w, http.StatusOK, listResponse(recs, "Recommendations retrieved successfully"))
}

// SearchUsers handles display name search
// @Router /users/search [get]
func (h *UserHandler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			h.respondWithError(w, http.StatusBadRequest, err, "Invalid limit")
			return
		}
		limit = n
	}

	hits, err := h.userService.Search(r.Context(), query, limit)
	if err != nil {
		h.respondWithError(w, h.getStatusCode(err), err, "Search failed")
		return
	}
	h.respondWithJSON(w, http.StatusOK, listResponse(hits, "Search completed"))
}

// respondWithJSON sends a JSON response
func respondWithJSON(w http.ResponseWriter, logger *zap.Logger, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

func (h *UserHandler) respondWithJSON(w http.ResponseWriter, statusCode int, data any) {
	respondWithJSON(w, h.logger, statusCode, data)
}

// respondWithError sends an error response
func (h *UserHandler) respondWithError(w http.ResponseWriter, statusCode int, err error, message string) {
	h.logger.Warn("HTTP error response",
		util.ErrorField(err),
		util.Int("status_code", statusCode),
		util.String("message", message),
	)
	h.respondWithJSON(w, statusCode, errorResponse(err, message))
}

// getStatusCode determines the appropriate HTTP status code for an error
func (h *UserHandler) getStatusCode(err error) int {
	switch {
	case errors.Is(err, service.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrSearchOff):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
