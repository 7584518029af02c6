package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"sustainplate/m/domain"
	"sustainplate/m/internal/apperr"
	"sustainplate/m/internal/grocery"
	"sustainplate/m/internal/logger"
)

// GroceryStore is the persistence the handlers need.
type GroceryStore interface {
	Create(ctx context.Context, in grocery.NewItem) (domain.GroceryItem, error)
	ListAll(ctx context.Context) ([]domain.GroceryItem, error)
	DeleteByID(ctx context.Context, id int64) (string, error)
	Expiring(ctx context.Context, withinDays int) ([]domain.GroceryItem, error)
}

// RecipeGenerator turns ingredient names into recipe text.
type RecipeGenerator interface {
	GenerateRecipe(ctx context.Context, ingredients []string) (string, error)
}

// Handler bundles dependencies for HTTP handlers.
type Handler struct {
	store          GroceryStore
	recipes        RecipeGenerator
	allowedOrigins []string
	now            func() time.Time
	log            *zap.Logger
}

// New constructs a Handler.
func New(store GroceryStore, recipes RecipeGenerator, allowedOrigins []string) *Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	return &Handler{
		store:          store,
		recipes:        recipes,
		allowedOrigins: allowedOrigins,
		now:            time.Now,
		log:            logger.WithModule("api"),
	}
}

// Router wires up the HTTP API. Routes are served at the root and again under /api.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: h.allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/health", h.health)
	r.Handle("/metrics", promhttp.Handler())

	h.routes(r)
	r.Route("/api", h.routes)

	return r
}

func (h *Handler) routes(r chi.Router) {
	r.Route("/groceries", func(r chi.Router) {
		r.Post("/", h.addGrocery)
		r.Get("/", h.listGroceries)
		r.Get("/expiring", h.expiringGroceries)
		r.Delete("/{id}", h.deleteGrocery)
	})

	r.Route("/recipes", func(r chi.Router) {
		r.Get("/", h.recipeForIngredients)
		r.Post("/expiring", h.recipeForExpiring)
	})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Grocery handlers

type groceryView struct {
	domain.GroceryItem
	DaysRemaining int `json:"daysRemaining"`
}

func (h *Handler) views(items []domain.GroceryItem) []groceryView {
	now := h.now()
	out := make([]groceryView, 0, len(items))
	for _, item := range items {
		out = append(out, groceryView{GroceryItem: item, DaysRemaining: item.DaysRemaining(now)})
	}
	return out
}

func (h *Handler) addGrocery(w http.ResponseWriter, r *http.Request) {
	var req grocery.NewItem
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	item, err := h.store.Create(r.Context(), req)
	if err != nil {
		h.fail(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"message": "Item added successfully",
		"id":      item.ID,
	})
}

func (h *Handler) listGroceries(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.ListAll(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.views(items))
}

func (h *Handler) expiringGroceries(w http.ResponseWriter, r *http.Request) {
	days, err := windowParam(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	items, err := h.store.Expiring(r.Context(), days)
	if err != nil {
		h.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.views(items))
}

func (h *Handler) deleteGrocery(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	msg, err := h.store.DeleteByID(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": msg})
}

// Recipe handlers

func (h *Handler) recipeForIngredients(w http.ResponseWriter, r *http.Request) {
	raw := strings.TrimSpace(r.URL.Query().Get("ingredients"))
	if raw == "" {
		respondError(w, http.StatusBadRequest, "ingredients query parameter is required")
		return
	}

	recipe, err := h.recipes.GenerateRecipe(r.Context(), strings.Split(raw, ","))
	if err != nil {
		h.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"recipe": recipe})
}

func (h *Handler) recipeForExpiring(w http.ResponseWriter, r *http.Request) {
	days, err := windowParam(r)
	if err != nil {
		h.fail(w, err)
		return
	}
	items, err := h.store.Expiring(r.Context(), days)
	if err != nil {
		h.fail(w, err)
		return
	}
	if len(items) == 0 {
		respondError(w, http.StatusBadRequest, "No items are nearing expiry")
		return
	}

	names := make([]string, 0, len(items))
	for _, item := range items {
		names = append(names, item.Name)
	}
	recipe, err := h.recipes.GenerateRecipe(r.Context(), names)
	if err != nil {
		h.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"recipe": recipe, "ingredients": names})
}

func windowParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("days")
	if raw == "" {
		return grocery.DefaultExpiringWindow, nil
	}
	days, err := strconv.Atoi(raw)
	if err != nil || days < 0 {
		return 0, apperr.Validation("days must be a non-negative integer")
	}
	return days, nil
}

// fail logs server-side failures and renders err with its mapped status.
func (h *Handler) fail(w http.ResponseWriter, err error) {
	status := apperr.StatusCode(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", zap.Int("status", status), zap.Error(err))
	}
	respondError(w, status, apperr.PublicMessage(err))
}

func decodeJSON(r *http.Request, dest interface{}) error {
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	encoder.SetEscapeHTML(false)
	_ = encoder.Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
