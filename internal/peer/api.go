package peer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/DoyleJ11/echowords/internal/store"
)

// API is the REST side of the relay server: lobby codes, roster, words and
// results. Every request carries the client id header.
type API struct {
	base     string
	clientID string
	http     *http.Client
}

func NewAPI(serverURL, clientID string) *API {
	return &API{
		base:     strings.TrimSuffix(serverURL, "/"),
		clientID: clientID,
		http:     &http.Client{Timeout: 10 * time.Second},
	}
}

type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Code, e.Body)
}

func (a *API) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.base+path, r)
	if err != nil {
		return err
	}
	req.Header.Set("X-Client-Id", a.clientID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return &StatusError{Method: method, Path: path, Code: res.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode: %w", method, path, err)
	}
	return nil
}

func (a *API) CreateLobby(ctx context.Context) (string, error) {
	var res struct {
		LobbyID string `json:"lobbyId"`
	}
	if err := a.do(ctx, http.MethodPost, "/create-lobby", nil, &res); err != nil {
		return "", err
	}
	return res.LobbyID, nil
}

func (a *API) NewPlayer(ctx context.Context, name, lobby string) (store.Player, error) {
	var p store.Player
	err := a.do(ctx, http.MethodPost, "/new-player", map[string]string{"word": name, "lobbyId": lobby}, &p)
	return p, err
}

func (a *API) JoinLobby(ctx context.Context, lobby string) (store.Player, error) {
	var p store.Player
	err := a.do(ctx, http.MethodPost, "/update-player-lobby", map[string]string{"lobbyId": lobby}, &p)
	return p, err
}

func (a *API) Players(ctx context.Context, lobby string) ([]store.Player, error) {
	var ps []store.Player
	err := a.do(ctx, http.MethodGet, "/lobby/"+url.PathEscape(lobby)+"/players", nil, &ps)
	return ps, err
}

// PersistWord records an accepted word for this client.
func (a *API) PersistWord(ctx context.Context, word string) error {
	return a.do(ctx, http.MethodPost, "/new-word", map[string]string{"word": word}, nil)
}

func (a *API) SubmitResults(ctx context.Context, lobby string, results []store.PlayerResult) error {
	return a.do(ctx, http.MethodPost, "/lobby/"+url.PathEscape(lobby)+"/submit-results", results, nil)
}

func (a *API) Results(ctx context.Context, lobby string) (store.MatchResults, error) {
	var res store.MatchResults
	err := a.do(ctx, http.MethodGet, "/lobby/"+url.PathEscape(lobby)+"/results", nil, &res)
	return res, err
}

func (a *API) Words(ctx context.Context, prefix string) ([]string, error) {
	var words []string
	err := a.do(ctx, http.MethodGet, "/words?"+url.Values{"prefix": {prefix}}.Encode(), nil, &words)
	return words, err
}
