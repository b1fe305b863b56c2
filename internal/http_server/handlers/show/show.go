package show

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"account_service/internal/account"
	"account_service/internal/config"
	resp "account_service/internal/lib/api/response"
	"account_service/internal/lib/avatar"
	sl "account_service/internal/lib/logger"
	mwactor "account_service/internal/middleware/actor"
	"account_service/internal/models"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type AccountView struct {
	Name        string    `json:"name"`
	DisplayName string    `json:"fullname"`
	About       string    `json:"about,omitempty"`
	Email       string    `json:"email,omitempty"`
	AvatarURL   string    `json:"avatar_url"`
	Sysadmin    bool      `json:"sysadmin"`
	State       string    `json:"state"`
	CreatedAt   time.Time `json:"created_at"`
}

type Response struct {
	resp.Response
	Account AccountView `json:"account"`
}

// View renders the public (or owner-extended) projection of an account.
// The email is only exposed to the owner and sysadmins.
func View(acc models.Account, actor models.Actor, avatars config.Avatars) AccountView {
	view := AccountView{
		Name:        acc.Name,
		DisplayName: acc.DisplayName,
		About:       acc.About,
		AvatarURL:   avatar.URL(acc.ImageURL, acc.Email, avatars.GravatarEnabled, avatars.Placeholder),
		Sysadmin:    acc.Sysadmin,
		State:       string(acc.State),
		CreatedAt:   acc.CreatedAt,
	}

	if actor.Owns(acc.ID) {
		view.Email = acc.Email
	}

	return view
}

func New(
	log *slog.Logger,
	accounts *account.Service,
	avatars config.Avatars,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.show.New"

		log = log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		name := chi.URLParam(r, "name")
		act := mwactor.FromContext(r.Context())

		acc, err := accounts.Account(r.Context(), act, name)
		if err != nil {
			if errors.Is(err, account.ErrAccountNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, resp.Error("User not found"))

				return
			}

			log.Error("failed to load account", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		render.JSON(w, r, Response{
			Response: resp.OK(),
			Account:  View(acc, act, avatars),
		})
	}
}
