package unfollow

import (
	"errors"
	"log/slog"
	"net/http"

	followsvc "account_service/internal/follow"
	resp "account_service/internal/lib/api/response"
	sl "account_service/internal/lib/logger"
	mwactor "account_service/internal/middleware/actor"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type Response struct {
	resp.Response
	// Removed is false when there was no edge to remove; that outcome is
	// reported, not treated as an error.
	Removed bool `json:"removed"`
}

func New(
	log *slog.Logger,
	follows *followsvc.Service,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.unfollow.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		name := chi.URLParam(r, "name")
		act := mwactor.FromContext(r.Context())

		removed, err := follows.Unfollow(r.Context(), act, name)
		if err != nil {
			switch {
			case errors.Is(err, followsvc.ErrForbidden):
				render.Status(r, http.StatusUnauthorized)
				render.JSON(w, r, resp.Error("Not authorized"))
			case errors.Is(err, followsvc.ErrAccountNotFound):
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("User not found"))
			default:
				log.Error("failed to unfollow", sl.Err(err))

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, resp.Error("Internal error"))
			}

			return
		}

		if !removed {
			log.Info("Was not following", slog.String("target", name))
		}

		render.JSON(w, r, Response{
			Response: resp.OK(),
			Removed:  removed,
		})
	}
}
