package performreset

import (
	"errors"
	"log/slog"
	"net/http"

	resp "account_service/internal/lib/api/response"
	sl "account_service/internal/lib/logger"
	"account_service/internal/lib/password"
	"account_service/internal/resetkey"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Request struct {
	User      string `json:"user" validate:"required"`
	Key       string `json:"key" validate:"required"`
	Password1 string `json:"password1" validate:"required"`
	Password2 string `json:"password2" validate:"required"`
}

type Response struct {
	resp.Response
}

func New(
	log *slog.Logger,
	validate *validator.Validate,
	resets *resetkey.Service,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.performreset.New"

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

		if err := resets.Consume(r.Context(), req.User, req.Key, req.Password1); err != nil {
			switch {
			// unknown user and bad key share one message: no reset oracle
			case errors.Is(err, resetkey.ErrInvalidKey), errors.Is(err, resetkey.ErrAccountNotFound):
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, resp.Error("Invalid reset key. Please try again."))
			case errors.Is(err, resetkey.ErrForbidden):
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, resp.Error("Not authorized"))
			case errors.Is(err, password.ErrTooShort), errors.Is(err, password.ErrTooWeak):
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error(err.Error()))
			default:
				log.Error("failed to perform reset", sl.Err(err))

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, resp.Error("Internal error"))
			}

			return
		}

		log.Info("Password reset performed")

		render.JSON(w, r, Response{Response: resp.OK()})
	}
}
