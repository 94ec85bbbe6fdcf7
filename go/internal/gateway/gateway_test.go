package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/triviabluff/go/internal/models"
	"github.com/mcdev12/triviabluff/go/internal/questions"
	"github.com/mcdev12/triviabluff/go/internal/session"
	"github.com/mcdev12/triviabluff/go/internal/store"
)

func newTestGateway(t *testing.T, cfg ConnectionConfig) (*httptest.Server, *ConnectionManager) {
	t.Helper()
	app := session.NewApp(store.NewMemoryStore(), questions.MustDefault(), session.DefaultConfig())
	cm := NewConnectionManager(app, cfg)

	mux := http.NewServeMux()
	NewHandler(cm, app).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		cm.CloseAll()
		srv.Close()
	})
	return srv, cm
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/session"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg ClientMessage) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
}

// readUntil reads messages until one satisfies cond.
func readUntil(t *testing.T, conn *websocket.Conn, cond func(ServerMessage) bool) ServerMessage {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		var msg ServerMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if cond(msg) {
			return msg
		}
	}
}

func isType(typ string) func(ServerMessage) bool {
	return func(m ServerMessage) bool { return m.Type == typ }
}

func isErrorKind(kind string) func(ServerMessage) bool {
	return func(m ServerMessage) bool { return m.Type == MessageError && m.Error.Kind == kind }
}

func TestGatewaySessionFlow(t *testing.T) {
	srv, _ := newTestGateway(t, DefaultConnectionConfig())

	host := dial(t, srv)
	send(t, host, ClientMessage{Action: ActionCreate, Player: "host", Emoji: "🦊", MaxGuesses: 1})
	joined := readUntil(t, host, isType(MessageJoined))
	code := joined.Joined.Code
	assert.True(t, joined.Joined.IsHost)
	assert.True(t, session.ValidCode(code))
	readUntil(t, host, func(m ServerMessage) bool {
		return m.Type == MessageView && m.View.Phase == models.PhaseLobby
	})

	ann := dial(t, srv)
	send(t, ann, ClientMessage{Action: ActionJoin, Code: strings.ToLower(code), Player: "ann", Emoji: "🐸"})
	joined = readUntil(t, ann, isType(MessageJoined))
	assert.Equal(t, code, joined.Joined.Code)
	assert.False(t, joined.Joined.IsHost)

	readUntil(t, host, func(m ServerMessage) bool {
		return m.Type == MessageView && len(m.View.Players) == 2 && m.View.CanStartRound
	})

	send(t, host, ClientMessage{Action: ActionStartRound})
	hostView := readUntil(t, host, func(m ServerMessage) bool {
		return m.Type == MessageView && m.View.Phase == models.PhaseQuestionPreview && m.View.Preview != nil
	})
	assert.True(t, hostView.View.Preview.HostOnly)
	annView := readUntil(t, ann, func(m ServerMessage) bool {
		return m.Type == MessageView && m.View.Phase == models.PhaseQuestionPreview
	})
	assert.Nil(t, annView.View.Preview)

	resp, err := http.Get(srv.URL + "/ws/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	var stats ConnectionStats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, 2, stats.TotalConnections)
	assert.Equal(t, 1, stats.ActiveSessions)
	assert.Equal(t, 2, stats.SessionConnections[code])

	state, err := http.Get(srv.URL + "/api/sessions/" + code + "/state")
	require.NoError(t, err)
	defer state.Body.Close()
	require.Equal(t, http.StatusOK, state.StatusCode)
	var doc models.Session
	require.NoError(t, json.NewDecoder(state.Body).Decode(&doc))
	assert.Equal(t, "host", doc.Host)
	assert.Equal(t, models.PhaseQuestionPreview, doc.Phase)
}

func TestGatewaySessionState(t *testing.T) {
	srv, _ := newTestGateway(t, DefaultConnectionConfig())

	tests := []struct {
		path string
		want int
	}{
		{"/api/sessions/ZZZZZZ/state", http.StatusNotFound},
		{"/api/sessions/bad!/state", http.StatusBadRequest},
	}
	for _, tt := range tests {
		resp, err := http.Get(srv.URL + tt.path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, tt.want, resp.StatusCode, tt.path)
	}
}

func TestGatewayErrors(t *testing.T) {
	srv, _ := newTestGateway(t, DefaultConnectionConfig())
	conn := dial(t, srv)

	send(t, conn, ClientMessage{Action: ActionSubmitAnswer, Text: "Sydney"})
	msg := readUntil(t, conn, isType(MessageError))
	assert.Equal(t, KindNotInSession, msg.Error.Kind)
	assert.Equal(t, ActionSubmitAnswer, msg.Error.Action)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	readUntil(t, conn, isErrorKind(KindBadMessage))

	send(t, conn, ClientMessage{Action: "dance"})
	readUntil(t, conn, isErrorKind(KindBadMessage))

	send(t, conn, ClientMessage{Action: ActionJoin, Code: "ZZZZZZ", Player: "ann"})
	readUntil(t, conn, isErrorKind("join_failed"))

	send(t, conn, ClientMessage{Action: ActionCreate, Player: "host"})
	readUntil(t, conn, isType(MessageJoined))
	send(t, conn, ClientMessage{Action: ActionCreate, Player: "host"})
	readUntil(t, conn, isErrorKind(KindInSession))

	send(t, conn, ClientMessage{Action: ActionStartRound})
	readUntil(t, conn, isErrorKind("precondition"))
}

func TestGatewayPermissionDenied(t *testing.T) {
	srv, _ := newTestGateway(t, DefaultConnectionConfig())

	host := dial(t, srv)
	send(t, host, ClientMessage{Action: ActionCreate, Player: "host"})
	code := readUntil(t, host, isType(MessageJoined)).Joined.Code

	ann := dial(t, srv)
	send(t, ann, ClientMessage{Action: ActionJoin, Code: code, Player: "ann"})
	readUntil(t, ann, isType(MessageJoined))

	send(t, ann, ClientMessage{Action: ActionStartRound})
	readUntil(t, ann, isErrorKind("permission"))
}

func TestGatewayRateLimit(t *testing.T) {
	cfg := DefaultConnectionConfig()
	cfg.MessagesPerSecond = 0.01
	cfg.Burst = 1
	srv, _ := newTestGateway(t, cfg)
	conn := dial(t, srv)

	send(t, conn, ClientMessage{Action: "dance"})
	readUntil(t, conn, isErrorKind(KindBadMessage))

	send(t, conn, ClientMessage{Action: "dance"})
	readUntil(t, conn, isErrorKind(KindRateLimited))
}
