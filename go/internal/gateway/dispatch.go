package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

var errAlreadyInSession = errors.New("connection is already in a session")

// handleClientMessage decodes one browser message and runs it on the
// connection's controller. Failures go back to this connection only.
func (c *Connection) handleClientMessage(message []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.sendMessage(errorMessage("", KindBadMessage, fmt.Errorf("invalid message: %w", err)))
		return
	}

	log.Debug().
		Str("connection_id", c.ID).
		Str("session_code", c.sessionCode()).
		Str("action", msg.Action).
		Msg("received client message")

	if err := c.dispatch(c.ctx, msg); err != nil {
		kind := errorKind(err)
		switch {
		case errors.Is(err, errAlreadyInSession):
			kind = KindInSession
		case errors.Is(err, errUnknownAction):
			kind = KindBadMessage
		}
		log.Debug().
			Err(err).
			Str("connection_id", c.ID).
			Str("action", msg.Action).
			Str("kind", kind).
			Msg("client action failed")
		c.sendMessage(errorMessage(msg.Action, kind, err))
	}
}

var errUnknownAction = errors.New("unknown action")

func (c *Connection) dispatch(ctx context.Context, msg ClientMessage) error {
	ctrl := c.controller

	switch msg.Action {
	case ActionCreate, ActionJoin:
		if c.sessionCode() != "" {
			return errAlreadyInSession
		}
		if msg.Action == ActionCreate {
			if _, err := ctrl.Create(ctx, msg.Player, msg.Emoji, msg.MaxGuesses); err != nil {
				return err
			}
		} else if err := ctrl.Join(ctx, msg.Code, msg.Player, msg.Emoji); err != nil {
			return err
		}
		code := ctrl.Code()
		c.Manager.moveConnection(c, code)
		c.sendMessage(joinedMessage(code, ctrl.Player(), msg.Action == ActionCreate))
		return ctrl.Start(ctx)

	case ActionStartRound:
		_, err := ctrl.StartRound(ctx)
		return err
	case ActionSkipQuestion:
		_, err := ctrl.SkipQuestion(ctx)
		return err
	case ActionConfirmQuestion:
		return ctrl.ConfirmQuestion(ctx)
	case ActionSubmitAnswer:
		return ctrl.SubmitAnswer(ctx, msg.Text)
	case ActionStartVoting:
		return ctrl.StartVoting(ctx)
	case ActionSubmitVote:
		return ctrl.SubmitVote(ctx, msg.Text)
	case ActionShowResults:
		return ctrl.ShowResults(ctx)
	case ActionManualScoring:
		return ctrl.ManualScoring(ctx)
	case ActionAwardPoints:
		return ctrl.AwardPoints(ctx, msg.Player, msg.Points)
	case ActionShowRankings:
		return ctrl.ShowRankings(ctx)
	case ActionNextRound:
		_, err := ctrl.NextRound(ctx)
		return err
	case ActionEndSession:
		return ctrl.EndSession(ctx)
	default:
		return fmt.Errorf("%w: %q", errUnknownAction, msg.Action)
	}
}
