package requestreset

import (
	"errors"
	"log/slog"
	"net/http"

	resp "account_service/internal/lib/api/response"
	sl "account_service/internal/lib/logger"
	"account_service/internal/resetkey"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Request struct {
	// login name or email address
	User string `json:"user" validate:"required"`
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
		const op = "handlers.requestreset.New"

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

		if err := resets.Request(r.Context(), req.User); err != nil {
			// an unknown subject gets the same response as a successful
			// request, so the endpoint cannot be used to enumerate accounts
			if errors.Is(err, resetkey.ErrAccountNotFound) {
				ResponseOK(w, r)

				return
			}

			if errors.Is(err, resetkey.ErrMailerUnavailable) {
				render.Status(r, http.StatusBadGateway)
				render.JSON(w, r, resp.Error("Error sending the email"))

				return
			}

			log.Error("failed to request reset", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		ResponseOK(w, r)
	}
}

func ResponseOK(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, Response{Response: resp.OK()})
}
