// Package regenerate реализует HTTP-обработчик перевыпуска API-ключа
// проекта. Старый ключ перестаёт действовать сразу после перевыпуска.
package regenerate

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/avoronkov/device-gate/internal/domain"
	"github.com/avoronkov/device-gate/internal/http/middlewarectx"
	"github.com/avoronkov/device-gate/internal/http/response"
	"github.com/avoronkov/device-gate/internal/lib/sl"
)

// Handler управляет HTTP-запросами на перевыпуск API-ключа.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает интерфейс бизнес-логики перевыпуска ключа.
type Service interface {
	RegenerateAPIKey(ctx context.Context, projectID string, userID int) (string, error)
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Перевыпустить API-ключ
// @Description Выпускает новый API-ключ проекта и возвращает его. Старый ключ перестаёт действовать.
// @Tags Projects
// @Produce  json
// @Param id path string true "Идентификатор проекта"
// @Success 200 {object} map[string]string "Новый API-ключ"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 404 {object} response.ErrorResponse "Проект не найден"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Security BearerAuth
// @Router /projects/{id}/regenerate-key [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.project.regenerate"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userID, ok := middlewarectx.UserIDFromContext(r.Context())
	if !ok {
		log.Error("user id not found in context")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	projectID := chi.URLParam(r, "id")
	key, err := h.service.RegenerateAPIKey(r.Context(), projectID, userID)
	if err != nil {
		if errors.Is(err, domain.ErrProjectNotFound) {
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error("project not found"))
			return
		}
		log.Error("failed to regenerate api key", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not regenerate api key"))
		return
	}

	log.Info("api key regenerated", slog.String("project_id", projectID))
	render.JSON(w, r, response.OKWithData(map[string]string{
		"api_key": key,
	}))
}
