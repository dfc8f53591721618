package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/DoyleJ11/echowords/internal/hub"
	"github.com/DoyleJ11/echowords/internal/lobby"
	"github.com/DoyleJ11/echowords/internal/store"
	"github.com/DoyleJ11/echowords/pkg/protocol"
)

const qrSize = 320

type createLobbyRes struct {
	LobbyID string `json:"lobbyId"`
}

type newPlayerReq struct {
	Word    string `json:"word"`
	LobbyID string `json:"lobbyId"`
}

type lobbyReq struct {
	LobbyID string `json:"lobbyId"`
}

type newWordReq struct {
	Word string `json:"word"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func CreateLobby(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code, _, err := h.Create(r.Context())
		if err != nil {
			log.Error("create lobby", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to create lobby")
			return
		}
		log.Info("lobby created", zap.String("lobby", code))
		writeJSON(w, http.StatusOK, createLobbyRes{LobbyID: code})
	}
}

// NewPlayer accepts a display name. With a lobby id the new player is
// announced to that lobby right away.
func NewPlayer(st store.Store, h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req newPlayerReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Word) == "" {
			writeError(w, http.StatusBadRequest, "word is required")
			return
		}

		p, err := st.AddPlayer(r.Context(), req.Word, ClientIDFrom(r.Context()), req.LobbyID)
		if err != nil {
			log.Error("add player", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to add player")
			return
		}
		if req.LobbyID != "" {
			announce(r.Context(), h, log, p)
		}
		writeJSON(w, http.StatusOK, p)
	}
}

func UpdatePlayerLobby(st store.Store, h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req lobbyReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.LobbyID == "" {
			writeError(w, http.StatusBadRequest, "lobbyId is required")
			return
		}

		p, err := st.JoinLobby(r.Context(), req.LobbyID, ClientIDFrom(r.Context()))
		if err != nil {
			log.Error("join lobby", zap.String("lobby", req.LobbyID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to join lobby")
			return
		}
		announce(r.Context(), h, log, p)
		writeJSON(w, http.StatusOK, p)
	}
}

// announce tells the lobby's members about a join. A lobby nobody is connected
// to yet has no relay group, which is fine.
func announce(ctx context.Context, h *hub.Hub, log *zap.Logger, p store.Player) {
	ok, err := h.Publish(ctx, p.LobbyID, lobby.Publish{Msg: protocol.PlayerJoined{
		ID:         p.ID,
		Username:   p.Username,
		ClientID:   p.ClientID,
		LobbyID:    p.LobbyID,
		AvatarSeed: p.AvatarSeed,
	}})
	if err != nil {
		log.Warn("publish player joined", zap.String("lobby", p.LobbyID), zap.Error(err))
		return
	}
	if !ok {
		log.Debug("no relay group to announce to", zap.String("lobby", p.LobbyID))
	}
}

func LobbyPlayers(st store.Store, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")
		players, err := st.PlayersByLobby(r.Context(), code)
		if err != nil {
			log.Error("players by lobby", zap.String("lobby", code), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to load players")
			return
		}
		writeJSON(w, http.StatusOK, players)
	}
}

func NewWord(st store.Store, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req newWordReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Word) == "" {
			writeError(w, http.StatusBadRequest, "word is required")
			return
		}
		if err := st.AddWord(r.Context(), req.Word, ClientIDFrom(r.Context())); err != nil {
			log.Error("add word", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to add word")
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// Words lists the dictionary, optionally filtered by ?prefix=.
func Words(st store.Store, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		words, err := st.Dictionary(r.Context(), r.URL.Query().Get("prefix"))
		if err != nil {
			log.Error("dictionary", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to load words")
			return
		}
		writeJSON(w, http.StatusOK, words)
	}
}

func SubmitResults(st store.Store, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")
		var results []store.PlayerResult
		if err := json.NewDecoder(r.Body).Decode(&results); err != nil {
			writeError(w, http.StatusBadRequest, "results are required")
			return
		}
		if err := st.SubmitResults(r.Context(), code, results); err != nil {
			log.Error("submit results", zap.String("lobby", code), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to save results")
			return
		}
		log.Info("results submitted", zap.String("lobby", code), zap.Int("players", len(results)))
		w.WriteHeader(http.StatusOK)
	}
}

func Results(st store.Store, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")
		res, err := st.MatchResults(r.Context(), code)
		if err != nil {
			log.Error("match results", zap.String("lobby", code), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to load results")
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// InviteQR renders a PNG pointing at the game with the lobby code filled in.
func InviteQR(publicURL string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := chi.URLParam(r, "code")

		png, err := qrcode.Encode(InviteURL(publicURL, r, code), qrcode.Medium, qrSize)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "qr generation failed")
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}
}

// InviteURL is base?lobby=code, where base falls back to the request's own
// scheme and host.
func InviteURL(base string, r *http.Request, code string) string {
	if base == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
			scheme = proto
		}
		base = scheme + "://" + r.Host + "/"
	}
	return strings.TrimSuffix(base, "?") + "?" + url.Values{"lobby": {code}}.Encode()
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
