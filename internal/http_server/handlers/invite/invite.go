package invite

import (
	"errors"
	"log/slog"
	"net/http"

	"account_service/internal/account"
	resp "account_service/internal/lib/api/response"
	sl "account_service/internal/lib/logger"
	mwactor "account_service/internal/middleware/actor"
	"account_service/internal/resetkey"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Request struct {
	Name        string `json:"name" validate:"required"`
	DisplayName string `json:"fullname"`
	Email       string `json:"email" validate:"required,email"`
}

type Response struct {
	resp.Response
	ID string `json:"id"`
}

// New creates a pending account and mails the invitee a reset link; their
// first completed reset activates the account.
func New(
	log *slog.Logger,
	validate *validator.Validate,
	accounts *account.Service,
	resets *resetkey.Service,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.invite.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		act := mwactor.FromContext(r.Context())

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

		id, err := accounts.CreateInvited(r.Context(), act, req.Name, req.DisplayName, req.Email)
		if err != nil {
			switch {
			case errors.Is(err, account.ErrForbidden):
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, resp.Error("Need to be system administrator to administer"))
			case errors.Is(err, account.ErrAccountExists):
				render.Status(r, http.StatusConflict)
				render.JSON(w, r, resp.Error("That login name is not available"))
			case errors.Is(err, account.ErrEmailTaken):
				render.Status(r, http.StatusConflict)
				render.JSON(w, r, resp.Error("The email address is already registered"))
			default:
				log.Error("failed to create invited account", sl.Err(err))

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, resp.Error("Internal error"))
			}

			return
		}

		if err := resets.Request(r.Context(), req.Name); err != nil {
			if errors.Is(err, resetkey.ErrMailerUnavailable) {
				render.Status(r, http.StatusBadGateway)
				render.JSON(w, r, resp.Error("Error sending the email"))

				return
			}

			log.Error("failed to send invite link", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		log.Info("Invited account created", slog.String("id", id))

		render.JSON(w, r, Response{
			Response: resp.OK(),
			ID:       id,
		})
	}
}
