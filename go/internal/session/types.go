package session

import (
	"github.com/mcdev12/triviabluff/go/internal/models"
)

type CreateSessionRequest struct {
	Host       string `json:"host"`
	Emoji      string `json:"emoji"`
	MaxGuesses int    `json:"maxGuesses"`
}

type CreateSessionResponse struct {
	Code    string          `json:"code"`
	Session *models.Session `json:"session"`
}

type JoinSessionRequest struct {
	Code   string `json:"code"`
	Player string `json:"player"`
	Emoji  string `json:"emoji"`
}

type GetSessionRequest struct {
	Code string `json:"code"`
}

// HostActionRequest carries a host-only transition that needs no other input.
type HostActionRequest struct {
	Code  string `json:"code"`
	Actor string `json:"actor"`
}

type ConfirmQuestionRequest struct {
	Code     string          `json:"code"`
	Actor    string          `json:"actor"`
	Question models.Question `json:"question"`
}

type SubmitAnswerRequest struct {
	Code   string `json:"code"`
	Player string `json:"player"`
	Text   string `json:"text"`
}

type SubmitVoteRequest struct {
	Code   string `json:"code"`
	Player string `json:"player"`
	Text   string `json:"text"`
}

type AwardPointsRequest struct {
	Code   string `json:"code"`
	Actor  string `json:"actor"`
	Player string `json:"player"`
	Points int    `json:"points"`
}

type SessionResponse struct {
	Session *models.Session `json:"session"`
}

type PreviewResponse struct {
	Preview models.Preview `json:"preview"`
}
