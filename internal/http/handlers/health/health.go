// Package health реализует HTTP-обработчик проверки готовности сервиса.
package health

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/magabrotheeeer/account-aggregator/internal/http/response"
	"github.com/magabrotheeeer/account-aggregator/internal/lib/sl"
)

// StorageChecker проверяет доступность хранилища.
type StorageChecker interface {
	CheckDatabaseReady(ctx context.Context) error
}

// Handler обрабатывает запросы проверки готовности.
type Handler struct {
	log     *slog.Logger
	storage StorageChecker
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, storage StorageChecker) *Handler {
	return &Handler{
		log:     log,
		storage: storage,
	}
}

// ServeHTTP godoc
// @Summary Проверка готовности сервиса
// @Tags Health
// @Produce  json
// @Success 200 {object} response.Response "Сервис готов"
// @Failure 503 {object} response.ErrorResponse "Хранилище недоступно"
// @Router /health [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.health"

	if err := h.storage.CheckDatabaseReady(r.Context()); err != nil {
		h.log.Error("storage is not ready", slog.String("op", op), sl.Err(err))
		w.WriteHeader(http.StatusServiceUnavailable)
		render.JSON(w, r, response.Error("storage unavailable"))
		return
	}
	render.JSON(w, r, response.StatusOKWithData(map[string]any{
		"status": "ok",
	}))
}
