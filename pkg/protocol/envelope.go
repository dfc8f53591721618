package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrUnknownType = errors.New("unknown message type")
var ErrBadPayload = errors.New("bad payload")

// Envelope is one websocket frame. From is stamped by the relay with the
// sender's client id; whatever a client puts there is overwritten.
type Envelope struct {
	Type    Type            `json:"type"`
	Lobby   string          `json:"lobby,omitempty"`
	From    string          `json:"from,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func Wrap(lobby, from string, m Message) (Envelope, error) {
	payload, err := json.Marshal(m)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s: %w", m.Type(), err)
	}
	return Envelope{Type: m.Type(), Lobby: lobby, From: from, Payload: payload}, nil
}

func Encode(lobby, from string, m Message) ([]byte, error) {
	env, err := Wrap(lobby, from, m)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// Parse reads a frame and decodes its payload.
func Parse(data []byte) (Envelope, Message, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	m, err := Decode(env)
	return env, m, err
}

func Decode(env Envelope) (Message, error) {
	switch env.Type {
	case TypeJoinLobby:
		return decodeAs[JoinLobby](env)
	case TypeLeaveLobby:
		return decodeAs[LeaveLobby](env)
	case TypeRequestSnapshot:
		return decodeAs[RequestSnapshot](env)
	case TypeBroadcastDifficulty:
		return decodeAs[BroadcastDifficulty](env)
	case TypeBroadcastGameState:
		return decodeAs[BroadcastGameState](env)
	case TypeBroadcastUserInput:
		return decodeAs[BroadcastUserInput](env)
	case TypeBroadcastAnimation:
		return decodeAs[BroadcastAnimation](env)
	case TypeBroadcastTimerSync:
		return decodeAs[BroadcastTimerSync](env)
	case TypeBroadcastTimerStart:
		return decodeAs[BroadcastTimerStart](env)
	case TypeBroadcastTimerPause:
		return decodeAs[BroadcastTimerPause](env)
	case TypeBroadcastTimerResume:
		return decodeAs[BroadcastTimerResume](env)
	case TypeStartGame:
		return decodeAs[StartGame](env)
	case TypeUpdateAvatar:
		return decodeAs[UpdateAvatar](env)

	case TypeReceiveDifficultyUpdate:
		return decodeAs[ReceiveDifficultyUpdate](env)
	case TypeReceiveGameState:
		return decodeAs[ReceiveGameState](env)
	case TypeReceiveUserInput:
		return decodeAs[ReceiveUserInput](env)
	case TypeReceiveAnimation:
		return decodeAs[ReceiveAnimation](env)
	case TypeReceiveTimerSync:
		return decodeAs[ReceiveTimerSync](env)
	case TypeReceiveTimerStart:
		return decodeAs[ReceiveTimerStart](env)
	case TypeReceiveTimerPause:
		return decodeAs[ReceiveTimerPause](env)
	case TypeReceiveTimerResume:
		return decodeAs[ReceiveTimerResume](env)
	case TypeRedirectToGame:
		return decodeAs[RedirectToGame](env)
	case TypeAvatarUpdated:
		return decodeAs[AvatarUpdated](env)
	case TypePlayerJoined:
		return decodeAs[PlayerJoined](env)
	case TypeError:
		return decodeAs[Error](env)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

func decodeAs[T Message](env Envelope) (Message, error) {
	var m T
	if len(env.Payload) == 0 || string(env.Payload) == "null" {
		return m, nil
	}
	if err := json.Unmarshal(env.Payload, &m); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBadPayload, env.Type, err)
	}
	return m, nil
}
