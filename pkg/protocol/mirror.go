package protocol

// Audience is who in the group gets a relayed message.
type Audience int

const (
	AudienceGroup  Audience = iota // every member, sender included
	AudienceOthers                 // every member except the sender
)

// Mirror maps a client broadcast to what the group receives. ok is false for
// messages the relay handles itself or never relays.
func Mirror(m Message) (out Message, to Audience, ok bool) {
	switch v := m.(type) {
	case BroadcastDifficulty:
		return ReceiveDifficultyUpdate(v), AudienceGroup, true
	case BroadcastGameState:
		return ReceiveGameState(v), AudienceGroup, true
	case BroadcastUserInput:
		return ReceiveUserInput(v), AudienceOthers, true
	case BroadcastAnimation:
		return ReceiveAnimation(v), AudienceGroup, true
	case BroadcastTimerSync:
		return ReceiveTimerSync(v), AudienceGroup, true
	case BroadcastTimerStart:
		return ReceiveTimerStart(v), AudienceGroup, true
	case BroadcastTimerPause:
		return ReceiveTimerPause(v), AudienceGroup, true
	case BroadcastTimerResume:
		return ReceiveTimerResume(v), AudienceGroup, true
	case StartGame:
		return RedirectToGame(v), AudienceGroup, true
	case UpdateAvatar:
		return AvatarUpdated(v), AudienceGroup, true
	}
	return nil, AudienceGroup, false
}
