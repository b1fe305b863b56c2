package users

import (
	"errors"
	"log/slog"
	"net/http"

	"account_service/internal/account"
	"account_service/internal/config"
	"account_service/internal/http_server/handlers/show"
	resp "account_service/internal/lib/api/response"
	sl "account_service/internal/lib/logger"
	mwactor "account_service/internal/middleware/actor"
	"account_service/internal/models"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type Response struct {
	resp.Response
	Users []show.AccountView `json:"users"`
}

// New lists active accounts. `q` filters by login or display name substring;
// `email` is an exact lookup reserved for sysadmins. Deleted accounts never
// appear.
func New(
	log *slog.Logger,
	accounts *account.Service,
	avatars config.Avatars,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.users.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		act := mwactor.FromContext(r.Context())

		var (
			found []models.Account
			err   error
		)

		if email := r.URL.Query().Get("email"); email != "" {
			found, err = accounts.SearchByEmail(r.Context(), act, email)
		} else {
			found, err = accounts.List(r.Context(), r.URL.Query().Get("q"))
		}

		if err != nil {
			if errors.Is(err, account.ErrForbidden) {
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, resp.Error("Not authorized to see this page"))

				return
			}

			log.Error("failed to list accounts", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		views := make([]show.AccountView, 0, len(found))
		for _, acc := range found {
			views = append(views, show.View(acc, act, avatars))
		}

		render.JSON(w, r, Response{
			Response: resp.OK(),
			Users:    views,
		})
	}
}
