package session

import (
	"context"
	"errors"
	"net/http"

	"connectrpc.com/connect"

	"github.com/mcdev12/triviabluff/go/internal/models"
)

// SessionServiceName is the fully-qualified name of the session service.
const SessionServiceName = "bluff.v1.SessionService"

// Procedure paths of the session service.
const (
	CreateSessionProcedure          = "/" + SessionServiceName + "/CreateSession"
	JoinSessionProcedure            = "/" + SessionServiceName + "/JoinSession"
	GetSessionProcedure             = "/" + SessionServiceName + "/GetSession"
	StartRoundProcedure             = "/" + SessionServiceName + "/StartRound"
	SkipQuestionProcedure           = "/" + SessionServiceName + "/SkipQuestion"
	ConfirmQuestionProcedure        = "/" + SessionServiceName + "/ConfirmQuestion"
	SubmitAnswerProcedure           = "/" + SessionServiceName + "/SubmitAnswer"
	AdvanceToVotingProcedure        = "/" + SessionServiceName + "/AdvanceToVoting"
	SubmitVoteProcedure             = "/" + SessionServiceName + "/SubmitVote"
	ProceedToResultsProcedure       = "/" + SessionServiceName + "/ProceedToResults"
	ProceedToManualScoringProcedure = "/" + SessionServiceName + "/ProceedToManualScoring"
	AwardPointsProcedure            = "/" + SessionServiceName + "/AwardPoints"
	ProceedToRankingsProcedure      = "/" + SessionServiceName + "/ProceedToRankings"
	NextRoundProcedure              = "/" + SessionServiceName + "/NextRound"
	EndSessionProcedure             = "/" + SessionServiceName + "/EndSession"
)

// SessionApp defines what the service layer needs from the session application
type SessionApp interface {
	CreateSession(ctx context.Context, host, emoji string, maxGuesses int) (string, *models.Session, error)
	JoinSession(ctx context.Context, code, player, emoji string) (*models.Session, error)
	GetSession(ctx context.Context, code string) (*models.Session, error)
	StartRound(ctx context.Context, code, actor string) (models.Preview, error)
	SkipQuestion(ctx context.Context, code, actor string) (models.Preview, error)
	ConfirmQuestion(ctx context.Context, code, actor string, q models.Question) (*models.Session, error)
	SubmitAnswer(ctx context.Context, code, player, text string) (*models.Session, error)
	AdvanceToVoting(ctx context.Context, code, actor string) (*models.Session, error)
	SubmitVote(ctx context.Context, code, player, text string) (*models.Session, error)
	ProceedToResults(ctx context.Context, code, actor string) (*models.Session, error)
	ProceedToManualScoring(ctx context.Context, code, actor string) (*models.Session, error)
	AwardPoints(ctx context.Context, code, actor, player string, points int) (*models.Session, error)
	ProceedToRankings(ctx context.Context, code, actor string) (*models.Session, error)
	NextRound(ctx context.Context, code, actor string) (models.Preview, error)
	EndSession(ctx context.Context, code, actor string) (*models.Session, error)
}

var _ SessionApp = (*App)(nil)

// Service implements the SessionService Connect handlers
type Service struct {
	app SessionApp
}

// NewService creates a new session Connect service
func NewService(app SessionApp) *Service {
	return &Service{app: app}
}

func (s *Service) CreateSession(ctx context.Context, req *connect.Request[CreateSessionRequest]) (*connect.Response[CreateSessionResponse], error) {
	code, sess, err := s.app.CreateSession(ctx, req.Msg.Host, req.Msg.Emoji, req.Msg.MaxGuesses)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&CreateSessionResponse{Code: code, Session: sess}), nil
}

func (s *Service) JoinSession(ctx context.Context, req *connect.Request[JoinSessionRequest]) (*connect.Response[SessionResponse], error) {
	return sessionResponse(s.app.JoinSession(ctx, req.Msg.Code, req.Msg.Player, req.Msg.Emoji))
}

func (s *Service) GetSession(ctx context.Context, req *connect.Request[GetSessionRequest]) (*connect.Response[SessionResponse], error) {
	return sessionResponse(s.app.GetSession(ctx, req.Msg.Code))
}

func (s *Service) StartRound(ctx context.Context, req *connect.Request[HostActionRequest]) (*connect.Response[PreviewResponse], error) {
	return previewResponse(s.app.StartRound(ctx, req.Msg.Code, req.Msg.Actor))
}

func (s *Service) SkipQuestion(ctx context.Context, req *connect.Request[HostActionRequest]) (*connect.Response[PreviewResponse], error) {
	return previewResponse(s.app.SkipQuestion(ctx, req.Msg.Code, req.Msg.Actor))
}

func (s *Service) ConfirmQuestion(ctx context.Context, req *connect.Request[ConfirmQuestionRequest]) (*connect.Response[SessionResponse], error) {
	return sessionResponse(s.app.ConfirmQuestion(ctx, req.Msg.Code, req.Msg.Actor, req.Msg.Question))
}

func (s *Service) SubmitAnswer(ctx context.Context, req *connect.Request[SubmitAnswerRequest]) (*connect.Response[SessionResponse], error) {
	return sessionResponse(s.app.SubmitAnswer(ctx, req.Msg.Code, req.Msg.Player, req.Msg.Text))
}

func (s *Service) AdvanceToVoting(ctx context.Context, req *connect.Request[HostActionRequest]) (*connect.Response[SessionResponse], error) {
	return sessionResponse(s.app.AdvanceToVoting(ctx, req.Msg.Code, req.Msg.Actor))
}

func (s *Service) SubmitVote(ctx context.Context, req *connect.Request[SubmitVoteRequest]) (*connect.Response[SessionResponse], error) {
	return sessionResponse(s.app.SubmitVote(ctx, req.Msg.Code, req.Msg.Player, req.Msg.Text))
}

func (s *Service) ProceedToResults(ctx context.Context, req *connect.Request[HostActionRequest]) (*connect.Response[SessionResponse], error) {
	return sessionResponse(s.app.ProceedToResults(ctx, req.Msg.Code, req.Msg.Actor))
}

func (s *Service) ProceedToManualScoring(ctx context.Context, req *connect.Request[HostActionRequest]) (*connect.Response[SessionResponse], error) {
	return sessionResponse(s.app.ProceedToManualScoring(ctx, req.Msg.Code, req.Msg.Actor))
}

func (s *Service) AwardPoints(ctx context.Context, req *connect.Request[AwardPointsRequest]) (*connect.Response[SessionResponse], error) {
	return sessionResponse(s.app.AwardPoints(ctx, req.Msg.Code, req.Msg.Actor, req.Msg.Player, req.Msg.Points))
}

func (s *Service) ProceedToRankings(ctx context.Context, req *connect.Request[HostActionRequest]) (*connect.Response[SessionResponse], error) {
	return sessionResponse(s.app.ProceedToRankings(ctx, req.Msg.Code, req.Msg.Actor))
}

func (s *Service) NextRound(ctx context.Context, req *connect.Request[HostActionRequest]) (*connect.Response[PreviewResponse], error) {
	return previewResponse(s.app.NextRound(ctx, req.Msg.Code, req.Msg.Actor))
}

func (s *Service) EndSession(ctx context.Context, req *connect.Request[HostActionRequest]) (*connect.Response[SessionResponse], error) {
	return sessionResponse(s.app.EndSession(ctx, req.Msg.Code, req.Msg.Actor))
}

// NewSessionServiceHandler builds an HTTP handler for every session procedure.
// It returns the path to mount the handler on.
func NewSessionServiceHandler(svc *Service, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(JSONCodec{})}, opts...)

	mux := http.NewServeMux()
	mux.Handle(CreateSessionProcedure, connect.NewUnaryHandler(CreateSessionProcedure, svc.CreateSession, opts...))
	mux.Handle(JoinSessionProcedure, connect.NewUnaryHandler(JoinSessionProcedure, svc.JoinSession, opts...))
	mux.Handle(GetSessionProcedure, connect.NewUnaryHandler(GetSessionProcedure, svc.GetSession, opts...))
	mux.Handle(StartRoundProcedure, connect.NewUnaryHandler(StartRoundProcedure, svc.StartRound, opts...))
	mux.Handle(SkipQuestionProcedure, connect.NewUnaryHandler(SkipQuestionProcedure, svc.SkipQuestion, opts...))
	mux.Handle(ConfirmQuestionProcedure, connect.NewUnaryHandler(ConfirmQuestionProcedure, svc.ConfirmQuestion, opts...))
	mux.Handle(SubmitAnswerProcedure, connect.NewUnaryHandler(SubmitAnswerProcedure, svc.SubmitAnswer, opts...))
	mux.Handle(AdvanceToVotingProcedure, connect.NewUnaryHandler(AdvanceToVotingProcedure, svc.AdvanceToVoting, opts...))
	mux.Handle(SubmitVoteProcedure, connect.NewUnaryHandler(SubmitVoteProcedure, svc.SubmitVote, opts...))
	mux.Handle(ProceedToResultsProcedure, connect.NewUnaryHandler(ProceedToResultsProcedure, svc.ProceedToResults, opts...))
	mux.Handle(ProceedToManualScoringProcedure, connect.NewUnaryHandler(ProceedToManualScoringProcedure, svc.ProceedToManualScoring, opts...))
	mux.Handle(AwardPointsProcedure, connect.NewUnaryHandler(AwardPointsProcedure, svc.AwardPoints, opts...))
	mux.Handle(ProceedToRankingsProcedure, connect.NewUnaryHandler(ProceedToRankingsProcedure, svc.ProceedToRankings, opts...))
	mux.Handle(NextRoundProcedure, connect.NewUnaryHandler(NextRoundProcedure, svc.NextRound, opts...))
	mux.Handle(EndSessionProcedure, connect.NewUnaryHandler(EndSessionProcedure, svc.EndSession, opts...))
	return "/" + SessionServiceName + "/", mux
}

func sessionResponse(sess *models.Session, err error) (*connect.Response[SessionResponse], error) {
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&SessionResponse{Session: sess}), nil
}

func previewResponse(p models.Preview, err error) (*connect.Response[PreviewResponse], error) {
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&PreviewResponse{Preview: p}), nil
}

func toConnectError(err error) *connect.Error {
	switch {
	case errors.Is(err, ErrValidation):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, ErrPrecondition):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, ErrPermission):
		return connect.NewError(connect.CodePermissionDenied, err)
	case errors.Is(err, ErrJoinFailed), errors.Is(err, ErrNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, ErrTimedOut):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}
