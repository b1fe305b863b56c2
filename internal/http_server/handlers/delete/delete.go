package delete

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

type Response struct {
	resp.Response
}

func New(
	log *slog.Logger,
	accounts *account.Service,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.delete.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		name := chi.URLParam(r, "name")
		act := mwactor.FromContext(r.Context())

		if err := accounts.Delete(r.Context(), act, name); err != nil {
			switch {
			case errors.Is(err, account.ErrAccountNotFound):
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("User not found"))
			case errors.Is(err, account.ErrForbidden):
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, resp.Error("Unauthorized to delete user"))
			default:
				log.Error("failed to delete account", sl.Err(err))

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, resp.Error("Internal error"))
			}

			return
		}

		log.Info("Account deleted", slog.String("name", name))

		render.JSON(w, r, Response{Response: resp.OK()})
	}
}
