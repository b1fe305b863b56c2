package edit

import (
	"errors"
	"log/slog"
	"net/http"

	"account_service/internal/account"
	"account_service/internal/config"
	"account_service/internal/http_server/handlers/show"
	resp "account_service/internal/lib/api/response"
	sl "account_service/internal/lib/logger"
	"account_service/internal/lib/password"
	mwactor "account_service/internal/middleware/actor"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

// Request carries a partial profile edit; absent fields stay untouched.
// Changing the email or password requires old_password unless the caller is
// a sysadmin.
type Request struct {
	Name        *string `json:"name,omitempty"`
	DisplayName *string `json:"fullname,omitempty"`
	Email       *string `json:"email,omitempty"`
	About       *string `json:"about,omitempty"`
	ImageURL    *string `json:"image_url,omitempty"`
	Password1   *string `json:"password1,omitempty"`
	Password2   *string `json:"password2,omitempty"`
	OldPassword string  `json:"old_password,omitempty"`
}

type Response struct {
	resp.Response
	Account show.AccountView `json:"account"`
}

func New(
	log *slog.Logger,
	accounts *account.Service,
	avatars config.Avatars,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.edit.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		name := chi.URLParam(r, "name")
		act := mwactor.FromContext(r.Context())

		if act.Anonymous() {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, resp.Error("Not authorized to edit this user"))

			return
		}

		var req Request

		err := render.DecodeJSON(r.Body, &req)
		if err != nil {
			log.Error("Failed to decode request body", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Failed to decode request"))

			return
		}

		if (req.Password1 == nil) != (req.Password2 == nil) ||
			(req.Password1 != nil && *req.Password1 != *req.Password2) {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("The passwords you entered do not match"))

			return
		}

		upd := account.Update{
			Name:        req.Name,
			DisplayName: req.DisplayName,
			Email:       req.Email,
			About:       req.About,
			ImageURL:    req.ImageURL,
			NewPassword: req.Password1,
			OldPassword: req.OldPassword,
		}

		acc, err := accounts.UpdateAccount(r.Context(), act, name, upd)
		if err != nil {
			switch {
			case errors.Is(err, account.ErrAccountNotFound):
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("User not found"))
			case errors.Is(err, account.ErrForbidden):
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, resp.Error("Not authorized to edit this user"))
			case errors.Is(err, account.ErrImmutableName):
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error("Login name can not be changed"))
			case errors.Is(err, account.ErrInvalidCredentials):
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error("Old Password: incorrect password"))
			case errors.Is(err, account.ErrEmailTaken):
				render.Status(r, http.StatusConflict)
				render.JSON(w, r, resp.Error("The email address is already registered"))
			case errors.Is(err, account.ErrAccountExists):
				render.Status(r, http.StatusConflict)
				render.JSON(w, r, resp.Error("That login name is not available"))
			case errors.Is(err, password.ErrTooShort), errors.Is(err, password.ErrTooWeak):
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, resp.Error(err.Error()))
			default:
				log.Error("failed to update account", sl.Err(err))

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, resp.Error("Internal error"))
			}

			return
		}

		log.Info("Account updated", slog.String("name", acc.Name))

		render.JSON(w, r, Response{
			Response: resp.OK(),
			Account:  show.View(acc, act, avatars),
		})
	}
}
