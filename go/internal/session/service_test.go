package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/triviabluff/go/internal/models"
	"github.com/mcdev12/triviabluff/go/internal/store"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	app, _ := newTestApp(t, store.NewMemoryStore())
	path, handler := NewSessionServiceHandler(NewService(app))
	mux := http.NewServeMux()
	mux.Handle(path, handler)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newClient[Req, Res any](srv *httptest.Server, procedure string) *connect.Client[Req, Res] {
	return connect.NewClient[Req, Res](srv.Client(), srv.URL+procedure, connect.WithCodec(JSONCodec{}))
}

func TestServiceRoundTrip(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)

	create := newClient[CreateSessionRequest, CreateSessionResponse](srv, CreateSessionProcedure)
	join := newClient[JoinSessionRequest, SessionResponse](srv, JoinSessionProcedure)
	start := newClient[HostActionRequest, PreviewResponse](srv, StartRoundProcedure)
	get := newClient[GetSessionRequest, SessionResponse](srv, GetSessionProcedure)

	created, err := create.CallUnary(ctx, connect.NewRequest(&CreateSessionRequest{Host: "host", Emoji: "🦊", MaxGuesses: 2}))
	require.NoError(t, err)
	code := created.Msg.Code
	assert.Equal(t, 2, created.Msg.Session.MaxGuesses)

	_, err = join.CallUnary(ctx, connect.NewRequest(&JoinSessionRequest{Code: code, Player: "ann", Emoji: "🐸"}))
	require.NoError(t, err)

	preview, err := start.CallUnary(ctx, connect.NewRequest(&HostActionRequest{Code: code, Actor: "host"}))
	require.NoError(t, err)
	assert.True(t, preview.Msg.Preview.HostOnly)

	got, err := get.CallUnary(ctx, connect.NewRequest(&GetSessionRequest{Code: code}))
	require.NoError(t, err)
	assert.Equal(t, models.PhaseQuestionPreview, got.Msg.Session.Phase)
	assert.Len(t, got.Msg.Session.Players, 2)
}

func TestServiceErrorCodes(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)

	create := newClient[CreateSessionRequest, CreateSessionResponse](srv, CreateSessionProcedure)
	join := newClient[JoinSessionRequest, SessionResponse](srv, JoinSessionProcedure)
	start := newClient[HostActionRequest, PreviewResponse](srv, StartRoundProcedure)
	vote := newClient[SubmitVoteRequest, SessionResponse](srv, SubmitVoteProcedure)

	_, err := create.CallUnary(ctx, connect.NewRequest(&CreateSessionRequest{Host: "a/b"}))
	assert.Equal(t, connect.CodeInvalidArgument, connect.CodeOf(err))

	_, err = join.CallUnary(ctx, connect.NewRequest(&JoinSessionRequest{Code: "ZZZZZZ", Player: "ann"}))
	assert.Equal(t, connect.CodeNotFound, connect.CodeOf(err))

	created, err := create.CallUnary(ctx, connect.NewRequest(&CreateSessionRequest{Host: "host"}))
	require.NoError(t, err)
	code := created.Msg.Code

	_, err = start.CallUnary(ctx, connect.NewRequest(&HostActionRequest{Code: code, Actor: "host"}))
	assert.Equal(t, connect.CodeFailedPrecondition, connect.CodeOf(err), "one player is not enough")

	_, err = join.CallUnary(ctx, connect.NewRequest(&JoinSessionRequest{Code: code, Player: "ann"}))
	require.NoError(t, err)

	_, err = start.CallUnary(ctx, connect.NewRequest(&HostActionRequest{Code: code, Actor: "ann"}))
	assert.Equal(t, connect.CodePermissionDenied, connect.CodeOf(err))

	_, err = vote.CallUnary(ctx, connect.NewRequest(&SubmitVoteRequest{Code: code, Player: "ann", Text: "x"}))
	assert.Equal(t, connect.CodeFailedPrecondition, connect.CodeOf(err))
}

func TestToConnectError(t *testing.T) {
	tests := []struct {
		err  error
		want connect.Code
	}{
		{ErrValidation, connect.CodeInvalidArgument},
		{ErrPrecondition, connect.CodeFailedPrecondition},
		{ErrPermission, connect.CodePermissionDenied},
		{ErrJoinFailed, connect.CodeNotFound},
		{ErrNotFound, connect.CodeNotFound},
		{ErrTimedOut, connect.CodeDeadlineExceeded},
		{ErrOperationFailed, connect.CodeInternal},
	}
	for _, tt := range tests {
		t.Run(Kind(tt.err), func(t *testing.T) {
			assert.Equal(t, tt.want, toConnectError(tt.err).Code())
		})
	}
}
