package protocol

import "github.com/DoyleJ11/echowords/internal/engine"

// Client -> Group
//
//   JoinLobby, LeaveLobby           lobby in the envelope, no payload
//   BroadcastDifficulty             {difficulty}
//   BroadcastGameState              GameState, every field, every time
//   BroadcastUserInput              {index, input}        others only
//   BroadcastAnimation              {index, animationType}
//   BroadcastTimerSync/Start/Resume {seconds, lease}
//   BroadcastTimerPause             {lease}
//   StartGame                       {difficulty, match}
//   UpdateAvatar                    {username, seed}
//   RequestSnapshot                 no payload, answered from the relay cache
//
// Group -> Client mirrors carry the same payload under the Receive* names,
// plus RedirectToGame, AvatarUpdated, PlayerJoined and Error.

type Type string

const (
	TypeJoinLobby            Type = "JoinLobby"
	TypeLeaveLobby           Type = "LeaveLobby"
	TypeBroadcastDifficulty  Type = "BroadcastDifficulty"
	TypeBroadcastGameState   Type = "BroadcastGameState"
	TypeBroadcastUserInput   Type = "BroadcastUserInput"
	TypeBroadcastAnimation   Type = "BroadcastAnimation"
	TypeBroadcastTimerSync   Type = "BroadcastTimerSync"
	TypeBroadcastTimerStart  Type = "BroadcastTimerStart"
	TypeBroadcastTimerPause  Type = "BroadcastTimerPause"
	TypeBroadcastTimerResume Type = "BroadcastTimerResume"
	TypeStartGame            Type = "StartGame"
	TypeUpdateAvatar         Type = "UpdateAvatar"
	TypeRequestSnapshot      Type = "RequestSnapshot"

	TypeReceiveDifficultyUpdate Type = "ReceiveDifficultyUpdate"
	TypeReceiveGameState        Type = "ReceiveGameState"
	TypeReceiveUserInput        Type = "ReceiveUserInput"
	TypeReceiveAnimation        Type = "ReceiveAnimation"
	TypeReceiveTimerSync        Type = "ReceiveTimerSync"
	TypeReceiveTimerStart       Type = "ReceiveTimerStart"
	TypeReceiveTimerPause       Type = "ReceiveTimerPause"
	TypeReceiveTimerResume      Type = "ReceiveTimerResume"
	TypeRedirectToGame          Type = "RedirectToGame"
	TypeAvatarUpdated           Type = "AvatarUpdated"
	TypePlayerJoined            Type = "PlayerJoined"
	TypeError                   Type = "Error"
)

// Message is the closed set of payloads that can ride in an Envelope.
type Message interface {
	Type() Type
	isMessage()
}

// Lease names the peer currently driving the clock. Term grows by one on every
// claim, so a stale driver can be told apart from the current one.
type Lease struct {
	Holder string `json:"holder"`
	Term   uint64 `json:"term"`
}

// Newer reports whether l supersedes cur. Equal terms from two claimants are
// ordered by holder id so every peer picks the same winner.
func (l Lease) Newer(cur Lease) bool {
	if l.Term != cur.Term {
		return l.Term > cur.Term
	}
	return l.Holder > cur.Holder
}

type Difficulty struct {
	Difficulty engine.Difficulty `json:"difficulty"`
}

type UserInput struct {
	Index int    `json:"index"`
	Input string `json:"input"`
}

type AnimationKind string

const (
	AnimationCorrect   AnimationKind = "correct"
	AnimationIncorrect AnimationKind = "incorrect"
	AnimationInvalid   AnimationKind = "invalid"
)

type Animation struct {
	Index int           `json:"index"`
	Kind  AnimationKind `json:"animationType"`
}

type TimerValue struct {
	Seconds float64 `json:"seconds"`
	Lease   Lease   `json:"lease"`
}

type TimerPause struct {
	Lease Lease `json:"lease"`
}

type Start struct {
	Difficulty engine.Difficulty `json:"difficulty"`
	Match      uint64            `json:"match"`
}

type Avatar struct {
	Username string `json:"username"`
	Seed     string `json:"seed"`
}

type Player struct {
	ID         uint   `json:"id"`
	Username   string `json:"username"`
	ClientID   string `json:"clientId"`
	LobbyID    string `json:"lobbyId"`
	AvatarSeed string `json:"avatarSeed"`
}

type JoinLobby struct{}
type LeaveLobby struct{}
type RequestSnapshot struct{}
type BroadcastDifficulty Difficulty
type BroadcastGameState engine.GameState
type BroadcastUserInput UserInput
type BroadcastAnimation Animation
type BroadcastTimerSync TimerValue
type BroadcastTimerStart TimerValue
type BroadcastTimerPause TimerPause
type BroadcastTimerResume TimerValue
type StartGame Start
type UpdateAvatar Avatar

type ReceiveDifficultyUpdate Difficulty
type ReceiveGameState engine.GameState
type ReceiveUserInput UserInput
type ReceiveAnimation Animation
type ReceiveTimerSync TimerValue
type ReceiveTimerStart TimerValue
type ReceiveTimerPause TimerPause
type ReceiveTimerResume TimerValue
type RedirectToGame Start
type AvatarUpdated Avatar
type PlayerJoined Player

type Error struct {
	Error string `json:"error"`
}

func (JoinLobby) Type() Type            { return TypeJoinLobby }
func (LeaveLobby) Type() Type           { return TypeLeaveLobby }
func (RequestSnapshot) Type() Type      { return TypeRequestSnapshot }
func (BroadcastDifficulty) Type() Type  { return TypeBroadcastDifficulty }
func (BroadcastGameState) Type() Type   { return TypeBroadcastGameState }
func (BroadcastUserInput) Type() Type   { return TypeBroadcastUserInput }
func (BroadcastAnimation) Type() Type   { return TypeBroadcastAnimation }
func (BroadcastTimerSync) Type() Type   { return TypeBroadcastTimerSync }
func (BroadcastTimerStart) Type() Type  { return TypeBroadcastTimerStart }
func (BroadcastTimerPause) Type() Type  { return TypeBroadcastTimerPause }
func (BroadcastTimerResume) Type() Type { return TypeBroadcastTimerResume }
func (StartGame) Type() Type            { return TypeStartGame }
func (UpdateAvatar) Type() Type         { return TypeUpdateAvatar }

func (ReceiveDifficultyUpdate) Type() Type { return TypeReceiveDifficultyUpdate }
func (ReceiveGameState) Type() Type        { return TypeReceiveGameState }
func (ReceiveUserInput) Type() Type        { return TypeReceiveUserInput }
func (ReceiveAnimation) Type() Type        { return TypeReceiveAnimation }
func (ReceiveTimerSync) Type() Type        { return TypeReceiveTimerSync }
func (ReceiveTimerStart) Type() Type       { return TypeReceiveTimerStart }
func (ReceiveTimerPause) Type() Type       { return TypeReceiveTimerPause }
func (ReceiveTimerResume) Type() Type      { return TypeReceiveTimerResume }
func (RedirectToGame) Type() Type          { return TypeRedirectToGame }
func (AvatarUpdated) Type() Type           { return TypeAvatarUpdated }
func (PlayerJoined) Type() Type            { return TypePlayerJoined }
func (Error) Type() Type                   { return TypeError }

func (JoinLobby) isMessage()            {}
func (LeaveLobby) isMessage()           {}
func (RequestSnapshot) isMessage()      {}
func (BroadcastDifficulty) isMessage()  {}
func (BroadcastGameState) isMessage()   {}
func (BroadcastUserInput) isMessage()   {}
func (BroadcastAnimation) isMessage()   {}
func (BroadcastTimerSync) isMessage()   {}
func (BroadcastTimerStart) isMessage()  {}
func (BroadcastTimerPause) isMessage()  {}
func (BroadcastTimerResume) isMessage() {}
func (StartGame) isMessage()            {}
func (UpdateAvatar) isMessage()         {}

func (ReceiveDifficultyUpdate) isMessage() {}
func (ReceiveGameState) isMessage()        {}
func (ReceiveUserInput) isMessage()        {}
func (ReceiveAnimation) isMessage()        {}
func (ReceiveTimerSync) isMessage()        {}
func (ReceiveTimerStart) isMessage()       {}
func (ReceiveTimerPause) isMessage()       {}
func (ReceiveTimerResume) isMessage()      {}
func (RedirectToGame) isMessage()          {}
func (AvatarUpdated) isMessage()           {}
func (PlayerJoined) isMessage()            {}
func (Error) isMessage()                   {}
