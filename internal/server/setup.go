// Package server is the HTTP and websocket surface over the store: JSON
// routes for every operation plus a feed-streaming websocket endpoint.
package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	playgroundValidator "github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"chatapp-client/internal/blob"
	"chatapp-client/internal/feed"
	"chatapp-client/internal/jwt"
	"chatapp-client/internal/keyValue"
	"chatapp-client/internal/models"
	"chatapp-client/internal/store"
)

type Handler struct {
	sugar    *zap.SugaredLogger
	cfg      *models.ConfigFile
	store    *store.Store
	bus      feed.Bus
	blobs    *blob.Store
	signer   *jwt.Signer
	cache    *keyValue.Cache
	validate *playgroundValidator.Validate
	router   chi.Router
}

func Setup(cfg *models.ConfigFile, sugar *zap.SugaredLogger, s *store.Store, bus feed.Bus, blobs *blob.Store, signer *jwt.Signer, cache *keyValue.Cache) *Handler {
	h := &Handler{
		sugar:    sugar,
		cfg:      cfg,
		store:    s,
		bus:      bus,
		blobs:    blobs,
		signer:   signer,
		cache:    cache,
		validate: playgroundValidator.New(),
	}

	r := chi.NewRouter()
	if cfg.PrintHttpRequests {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/api", func(api chi.Router) {
		api.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
			r.With(h.UserVerifier).Get("/isLoggedIn", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
		})

		api.Route("/user", func(r chi.Router) {
			r.Use(h.UserVerifier)
			r.Get("/fetch", h.GetUserInfo)
			r.Post("/update", h.UpdateUserInfo)
		})

		api.Route("/server", func(r chi.Router) {
			r.Use(h.UserVerifier)
			r.Post("/create", h.CreateServer)
			r.Post("/join", h.JoinServer)
			r.Get("/fetch", h.GetServerList)
			r.Get("/{serverID}/channels", h.GetChannelList)
			r.Post("/{serverID}/channels/create", h.CreateChannel)
			r.Post("/{serverID}/channels/update", h.UpdateChannel)
			r.Post("/{serverID}/channels/delete", h.DeleteChannel)
			r.Get("/{serverID}/roles", h.GetRoleList)
			r.Post("/{serverID}/roles/create", h.CreateRole)
			r.Post("/{serverID}/roles/update", h.UpdateRole)
			r.Post("/{serverID}/roles/updateEveryone", h.UpdateEveryonePermissions)
			r.Post("/{serverID}/roles/delete", h.DeleteRole)
			r.Post("/{serverID}/roles/assign", h.AssignRole)
			r.Get("/{serverID}/members", h.GetMemberList)
			r.Post("/{serverID}/kick", h.KickMember)
			r.Post("/{serverID}/ban", h.BanMember)
			r.Post("/{serverID}/unban", h.UnbanMember)
			r.Get("/{serverID}/bans", h.GetBanList)
			r.Post("/{serverID}/invites/create", h.CreateInvite)
			r.Get("/{serverID}/invites", h.GetInviteList)
		})

		api.Route("/invite", func(r chi.Router) {
			r.Use(h.UserVerifier)
			r.Post("/accept", h.AcceptInvite)
		})

		api.Route("/dm", func(r chi.Router) {
			r.Use(h.UserVerifier)
			r.Post("/create", h.CreateDmChannel)
			r.Get("/fetch", h.GetDmChannelList)
			r.Get("/members", h.GetDmMemberList)
		})

		api.Route("/message", func(r chi.Router) {
			r.Use(h.UserVerifier)
			r.Get("/fetch", h.GetMessageList)
			r.Post("/create", h.CreateMessage)
			r.Post("/delete", h.DeleteMessage)
			r.Post("/react", h.ToggleReaction)
			r.Get("/reactions", h.GetReactionList)
			r.Get("/search", h.SearchMessages)
			r.Post("/pin", h.PinMessage)
			r.Post("/unpin", h.UnpinMessage)
			r.Get("/pins", h.GetPinnedMessages)
		})

		api.Route("/presence", func(r chi.Router) {
			r.Use(h.UserVerifier)
			r.Post("/update", h.UpdatePresence)
			r.Get("/fetch", h.GetPresenceList)
		})

		api.Route("/notification", func(r chi.Router) {
			r.Use(h.UserVerifier)
			r.Get("/fetch", h.GetNotificationList)
			r.Post("/read", h.MarkNotificationRead)
			r.Post("/readAll", h.MarkAllNotificationsRead)
		})

		api.Route("/attachment", func(r chi.Router) {
			r.Use(h.UserVerifier)
			r.Post("/upload", h.UploadAttachment)
		})
	})

	var websocketPath string
	if cfg.BehindNginx {
		websocketPath = "/ws/"
	} else {
		websocketPath = "/ws"
		r.Handle("/cdn/*", http.StripPrefix("/cdn/", http.FileServer(http.Dir(cfg.BlobDirectory))))
	}
	r.With(h.UserVerifier).Get(websocketPath, h.HandleWebSocket)

	h.router = r
	return h
}

// Router exposes the mux, mainly for httptest.
func (h *Handler) Router() http.Handler {
	return h.router
}

// Start blocks serving HTTP, or HTTPS when a cert is configured.
func (h *Handler) Start() error {
	address := fmt.Sprintf("%s:%s", h.cfg.Address, h.cfg.Port)
	h.sugar.Infof("Listening on [%s]", address)

	if h.cfg.TlsCert != "" {
		return http.ListenAndServeTLS(address, h.cfg.TlsCert, h.cfg.TlsKey, h.router)
	}
	return http.ListenAndServe(address, h.router)
}
