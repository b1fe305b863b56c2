package register

import (
	"errors"
	"log/slog"
	"net/http"

	"account_service/internal/account"
	resp "account_service/internal/lib/api/response"
	sl "account_service/internal/lib/logger"
	"account_service/internal/lib/password"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Request struct {
	Name        string `json:"name" validate:"required"`
	DisplayName string `json:"fullname"`
	Email       string `json:"email" validate:"required,email"`
	Password1   string `json:"password1" validate:"required"`
	Password2   string `json:"password2" validate:"required"`
}

type Response struct {
	resp.Response
	ID string `json:"id"`
}

func New(
	log *slog.Logger,
	validate *validator.Validate,
	accounts *account.Service,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.register.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req Request

		err := render.DecodeJSON(r.Body, &req)
		if err != nil {
			log.Error("Failed to decode request body", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Failed to decode request"))

			return
		}

		log.Info("Request body decoded")

		if err := validate.Struct(req); err != nil {
			validateErr := err.(validator.ValidationErrors)

			log.Error("Invalid request", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.ValidationError(validateErr))

			return
		}

		if req.Password1 != req.Password2 {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("The passwords you entered do not match"))

			return
		}

		id, err := accounts.Register(r.Context(), req.Name, req.DisplayName, req.Email, req.Password1)
		if err != nil {
			switch {
			case errors.Is(err, password.ErrTooShort), errors.Is(err, password.ErrTooWeak):
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error(err.Error()))
			case errors.Is(err, account.ErrAccountExists):
				render.Status(r, http.StatusConflict)
				render.JSON(w, r, resp.Error("That login name is not available"))
			case errors.Is(err, account.ErrEmailTaken):
				render.Status(r, http.StatusConflict)
				render.JSON(w, r, resp.Error("The email address is already registered"))
			default:
				log.Error("failed to register account", sl.Err(err))

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, resp.Error("Internal error"))
			}

			return
		}

		log.Info("Account registered", slog.String("id", id))

		ResponseOK(w, r, id)
	}
}

func ResponseOK(w http.ResponseWriter, r *http.Request, id string) {
	render.JSON(w, r, Response{
		Response: resp.OK(),
		ID:       id,
	})
}
