// Package add реализует HTTP-обработчик регистрации устройства по
// API-ключу проекта.
//
// Handler принимает JSON-запрос с API-ключом, валидирует его, извлекает
// идентификатор пользователя из контекста и вызывает транзакцию
// регистрации устройства. Доменные ошибки транслируются в HTTP-статусы:
// 404 — пользователь/подписка/проект не найдены, 403 — подписка
// неактивна или достигнут лимит устройств.
package add

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/avoronkov/device-gate/internal/domain"
	"github.com/avoronkov/device-gate/internal/http/middlewarectx"
	"github.com/avoronkov/device-gate/internal/http/response"
	"github.com/avoronkov/device-gate/internal/lib/sl"
	"github.com/avoronkov/device-gate/internal/models"
)

// Handler управляет HTTP-запросами на регистрацию устройств.
type Handler struct {
	log      *slog.Logger        // Логгер для записи информации и ошибок
	service  Service             // Сервис бизнес-логики регистрации устройств
	validate *validator.Validate // Валидатор структуры входящих данных
}

// Service описывает интерфейс бизнес-логики регистрации устройства.
type Service interface {
	AddDevice(ctx context.Context, userID int, apiKey string) error
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Зарегистрировать устройство
// @Description Регистрирует устройство по API-ключу проекта текущего пользователя.
// @Tags Devices
// @Accept  json
// @Produce  json
// @Param request body models.DummyDevice true "API-ключ проекта"
// @Success 200 {object} response.Response "Устройство зарегистрировано"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 401 {object} response.ErrorResponse "Пользователь не авторизован"
// @Failure 403 {object} response.ErrorResponse "Подписка неактивна или достигнут лимит"
// @Failure 404 {object} response.ErrorResponse "Подписка или проект не найдены"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Security BearerAuth
// @Router /devices [post]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.device.add"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req models.DummyDevice
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("invalid request body"))
		return
	}

	if err := h.validate.Struct(req); err != nil {
		log.Error("validation failed", sl.Err(err))
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(err.(validator.ValidationErrors)))
		return
	}

	userID, ok := middlewarectx.UserIDFromContext(r.Context())
	if !ok {
		log.Error("user id not found in context")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.Error("unauthorized"))
		return
	}

	if err := h.service.AddDevice(r.Context(), userID, req.APIKey); err != nil {
		switch {
		case errors.Is(err, domain.ErrUserNotFound),
			errors.Is(err, domain.ErrSubscriptionNotFound),
			errors.Is(err, domain.ErrProjectNotFound):
			log.Info("device registration rejected", sl.Err(err))
			w.WriteHeader(http.StatusNotFound)
			render.JSON(w, r, response.Error(err.Error()))
		case errors.Is(err, domain.ErrSubscriptionInactive),
			errors.Is(err, domain.ErrDeviceLimitReached):
			log.Info("device registration forbidden", sl.Err(err))
			w.WriteHeader(http.StatusForbidden)
			render.JSON(w, r, response.Error(err.Error()))
		default:
			log.Error("failed to register device", sl.Err(err))
			w.WriteHeader(http.StatusInternalServerError)
			render.JSON(w, r, response.Error("could not register device"))
		}
		return
	}

	log.Info("device registered", slog.Int("user_id", userID))
	render.JSON(w, r, response.OK())
}
