package gateway

import (
	"errors"

	"github.com/mcdev12/triviabluff/go/internal/client"
	"github.com/mcdev12/triviabluff/go/internal/session"
)

// Client actions.
const (
	ActionCreate          = "create"
	ActionJoin            = "join"
	ActionStartRound      = "startRound"
	ActionSkipQuestion    = "skipQuestion"
	ActionConfirmQuestion = "confirmQuestion"
	ActionSubmitAnswer    = "submitAnswer"
	ActionStartVoting     = "startVoting"
	ActionSubmitVote      = "submitVote"
	ActionShowResults     = "showResults"
	ActionManualScoring   = "manualScoring"
	ActionAwardPoints     = "awardPoints"
	ActionShowRankings    = "showRankings"
	ActionNextRound       = "nextRound"
	ActionEndSession      = "endSession"
)

// Server message types.
const (
	MessageView   = "view"
	MessageError  = "error"
	MessageJoined = "joined"
)

// Error kinds that only exist on the websocket.
const (
	KindBadMessage   = "bad_message"
	KindRateLimited  = "rate_limited"
	KindNotInSession = "not_in_session"
	KindInSession    = "already_in_session"
)

// ClientMessage is what a browser sends. Only the fields its action needs are set.
type ClientMessage struct {
	Action     string `json:"action"`
	Code       string `json:"code,omitempty"`
	Player     string `json:"player,omitempty"`
	Emoji      string `json:"emoji,omitempty"`
	MaxGuesses int    `json:"maxGuesses,omitempty"`
	Text       string `json:"text,omitempty"`
	Points     int    `json:"points,omitempty"`
}

// ServerMessage is everything pushed to the browser.
type ServerMessage struct {
	Type   string         `json:"type"`
	View   *client.View   `json:"view,omitempty"`
	Error  *ErrorPayload  `json:"error,omitempty"`
	Joined *JoinedPayload `json:"joined,omitempty"`
}

type ErrorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
}

type JoinedPayload struct {
	Code   string `json:"code"`
	Player string `json:"player"`
	IsHost bool   `json:"isHost"`
}

func viewMessage(v client.View) ServerMessage {
	return ServerMessage{Type: MessageView, View: &v}
}

func errorMessage(action, kind string, err error) ServerMessage {
	return ServerMessage{Type: MessageError, Error: &ErrorPayload{Kind: kind, Message: err.Error(), Action: action}}
}

func joinedMessage(code, player string, isHost bool) ServerMessage {
	return ServerMessage{Type: MessageJoined, Joined: &JoinedPayload{Code: code, Player: player, IsHost: isHost}}
}

// errorKind names err for the browser.
func errorKind(err error) string {
	if errors.Is(err, client.ErrNotBound) {
		return KindNotInSession
	}
	return session.Kind(err)
}
