package sysadmin

import (
	"errors"
	"log/slog"
	"net/http"

	"account_service/internal/account"
	resp "account_service/internal/lib/api/response"
	sl "account_service/internal/lib/logger"
	mwactor "account_service/internal/middleware/actor"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

// Request mirrors the admin form: status 1 promotes, status 0 revokes.
type Request struct {
	Status int `json:"status"`
}

type Response struct {
	resp.Response
}

func New(
	log *slog.Logger,
	accounts *account.Service,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.sysadmin.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		name := chi.URLParam(r, "name")
		act := mwactor.FromContext(r.Context())

		var req Request

		err := render.DecodeJSON(r.Body, &req)
		if err != nil {
			log.Error("Failed to decode request body", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Failed to decode request"))

			return
		}

		if err := accounts.SetSysadmin(r.Context(), act, name, req.Status != 0); err != nil {
			switch {
			case errors.Is(err, account.ErrForbidden):
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, resp.Error("Need to be system administrator to administer"))
			case errors.Is(err, account.ErrAccountNotFound):
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("User not found"))
			default:
				log.Error("failed to set sysadmin flag", sl.Err(err))

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, resp.Error("Internal error"))
			}

			return
		}

		log.Info("Sysadmin flag updated", slog.String("name", name), slog.Int("status", req.Status))

		render.JSON(w, r, Response{Response: resp.OK()})
	}
}
