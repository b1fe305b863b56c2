package followers

import (
	"errors"
	"log/slog"
	"net/http"

	"account_service/internal/config"
	followsvc "account_service/internal/follow"
	"account_service/internal/http_server/handlers/show"
	resp "account_service/internal/lib/api/response"
	sl "account_service/internal/lib/logger"
	mwactor "account_service/internal/middleware/actor"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type Response struct {
	resp.Response
	Followers []show.AccountView `json:"followers"`
}

func New(
	log *slog.Logger,
	follows *followsvc.Service,
	avatars config.Avatars,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.followers.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		name := chi.URLParam(r, "name")
		act := mwactor.FromContext(r.Context())

		listed, err := follows.Followers(r.Context(), act, name)
		if err != nil {
			switch {
			case errors.Is(err, followsvc.ErrForbidden):
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, resp.Error("Not authorized to see this page"))
			case errors.Is(err, followsvc.ErrAccountNotFound):
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("User not found"))
			default:
				log.Error("failed to list followers", sl.Err(err))

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, resp.Error("Internal error"))
			}

			return
		}

		views := make([]show.AccountView, 0, len(listed))
		for _, acc := range listed {
			views = append(views, show.View(acc, act, avatars))
		}

		render.JSON(w, r, Response{
			Response:  resp.OK(),
			Followers: views,
		})
	}
}
