package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DoyleJ11/echowords/internal/hub"
	"github.com/DoyleJ11/echowords/internal/store"
	"github.com/DoyleJ11/echowords/internal/ws"
)

type Deps struct {
	Hub   *hub.Hub
	Store store.Store
	Log   *zap.Logger
	WS    ws.Config
	// PublicURL is where players open the game; invite QR codes point at it.
	// Empty means derive it from the request.
	PublicURL string
}

func SetupRoutes(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	log := d.Log.Named("http")

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(ClientID)

	r.Get("/healthz", Healthz)
	// long-lived, so outside the timeout group
	r.Get("/ws", ws.Handler(d.Hub, d.WS, d.Log.Named("ws")))

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(10 * time.Second))

		r.Post("/create-lobby", CreateLobby(d.Hub, log))
		r.Post("/new-player", NewPlayer(d.Store, d.Hub, log))
		r.Post("/update-player-lobby", UpdatePlayerLobby(d.Store, d.Hub, log))
		r.Post("/new-word", NewWord(d.Store, log))
		r.Get("/words", Words(d.Store, log))

		r.Route("/lobby/{code}", func(r chi.Router) {
			r.Get("/players", LobbyPlayers(d.Store, log))
			r.Post("/submit-results", SubmitResults(d.Store, log))
			r.Get("/results", Results(d.Store, log))
			r.Get("/qr", InviteQR(d.PublicURL))
		})
	})
	return r
}
