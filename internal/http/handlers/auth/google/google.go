// Package google реализует HTTP-обработчики входа через Google OAuth:
// выдачу ссылки на страницу согласия и обмен кода авторизации на пару
// токенов.
package google

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/avoronkov/device-gate/internal/http/response"
	"github.com/avoronkov/device-gate/internal/lib/sl"
	"github.com/avoronkov/device-gate/internal/models"
)

// Handler управляет HTTP-запросами входа через Google.
type Handler struct {
	log     *slog.Logger
	service Service
}

// Service описывает интерфейс бизнес-логики OAuth-входа.
type Service interface {
	OAuthURL(state string) string
	OAuthLogin(ctx context.Context, code string) (*models.TokenPair, error)
}

// New создает новый Handler с переданными логгером и сервисом.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// URL godoc
// @Summary Ссылка для входа через Google
// @Description Возвращает URL страницы согласия Google с одноразовым state.
// @Tags Auth
// @Produce  json
// @Success 200 {object} map[string]string "Ссылка авторизации"
// @Router /auth/google/url [get]
func (h *Handler) URL(w http.ResponseWriter, r *http.Request) {
	state := uuid.New().String()
	render.JSON(w, r, response.OKWithData(map[string]string{
		"url": h.service.OAuthURL(state),
	}))
}

// Callback godoc
// @Summary Завершение входа через Google
// @Description Обменивает код авторизации из query-параметра code на пару токенов.
// @Tags Auth
// @Produce  json
// @Param code query string true "Код авторизации"
// @Success 200 {object} models.TokenPair "Пара токенов"
// @Failure 400 {object} response.ErrorResponse "Отсутствует код авторизации"
// @Failure 500 {object} response.ErrorResponse "Ошибка обмена кода"
// @Router /auth/google/callback [get]
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.auth.google.callback"
	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	code := r.URL.Query().Get("code")
	if code == "" {
		log.Error("missing authorization code")
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.Error("missing authorization code"))
		return
	}

	pair, err := h.service.OAuthLogin(r.Context(), code)
	if err != nil {
		log.Error("failed to login via google", sl.Err(err))
		w.WriteHeader(http.StatusInternalServerError)
		render.JSON(w, r, response.Error("could not login via google"))
		return
	}

	log.Info("user logged in via google")
	render.JSON(w, r, response.OKWithData(pair))
}
