package transport

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/roverhub/internal/hub"
	"github.com/autopeer-io/roverhub/internal/hub/model"
	"github.com/autopeer-io/roverhub/internal/hub/store"
	"github.com/autopeer-io/roverhub/pkg/log"
	"github.com/autopeer-io/roverhub/pkg/options"
	"github.com/autopeer-io/roverhub/pkg/protocol"
)

type peer struct {
	t  *testing.T
	ws *websocket.Conn
}

func dial(t *testing.T, url string) *peer {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return &peer{t: t, ws: ws}
}

func (p *peer) write(frame string) {
	p.t.Helper()
	require.NoError(p.t, p.ws.WriteMessage(websocket.TextMessage, []byte(frame)))
}

// next reads frames until one of type typ arrives.
func (p *peer) next(typ protocol.MessageType) protocol.Envelope {
	p.t.Helper()
	require.NoError(p.t, p.ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		_, data, err := p.ws.ReadMessage()
		require.NoError(p.t, err)
		var env protocol.Envelope
		require.NoError(p.t, json.Unmarshal(data, &env))
		if env.Type == typ {
			return env
		}
	}
}

func startHub(t *testing.T) (*hub.Hub, store.Store, string) {
	t.Helper()

	st := store.NewMemory()
	h := hub.New(hub.Config{Store: st, Logger: log.NewNopLogger()})
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = h.Run(ctx) }()

	handler := NewHandler(h, options.NewHubOptions())
	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return h, st, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestEndToEndCommand(t *testing.T) {
	h, st, url := startHub(t)

	frontend := dial(t, url)
	ack := frontend.next(protocol.TypeConnect)
	var admitted protocol.ConnectAck
	require.NoError(t, json.Unmarshal(ack.Payload, &admitted))
	assert.True(t, admitted.Success)
	assert.NotEmpty(t, admitted.SocketID)

	rover := dial(t, url)
	rover.next(protocol.TypeConnect)
	rover.write(`{"type":"CONNECT","payload":{"type":"rover","identifier":"R-001"}}`)

	var bound protocol.ConnectAck
	require.NoError(t, json.Unmarshal(rover.next(protocol.TypeConnect).Payload, &bound))
	assert.Equal(t, "R-001", bound.RoverIdentifier)
	require.Positive(t, bound.RoverID)

	status := frontend.next(protocol.TypeStatusUpdate)
	assert.Equal(t, bound.RoverID, status.RoverID.ID)

	frontend.write(`{"type":"COMMAND","roverId":"R-001","payload":{"command":"move forward 1"}}`)

	cmd := rover.next(protocol.TypeCommand)
	var dispatch protocol.CommandDispatch
	require.NoError(t, json.Unmarshal(cmd.Payload, &dispatch))
	assert.Equal(t, "move forward 1", dispatch.Command)

	var pending protocol.CommandResult
	require.NoError(t, json.Unmarshal(frontend.next(protocol.TypeCommandResponse).Payload, &pending))
	assert.Equal(t, "pending", pending.Status)

	rover.write(`{"type":"COMMAND_RESPONSE","payload":{"commandId":` +
		jsonInt(dispatch.CommandID) + `,"status":"success","response":"Moving forward 1 units"}}`)

	var resolved protocol.CommandResult
	require.NoError(t, json.Unmarshal(frontend.next(protocol.TypeCommandResponse).Payload, &resolved))
	assert.Equal(t, "success", resolved.Status)
	assert.Equal(t, protocol.ID(dispatch.CommandID), resolved.CommandID)

	stored, err := st.GetCommand(context.Background(), dispatch.CommandID)
	require.NoError(t, err)
	assert.Equal(t, model.CommandStatusSuccess, stored.Status)

	require.NoError(t, rover.ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	gone := frontend.next(protocol.TypeDisconnect)
	assert.Equal(t, bound.RoverID, gone.RoverID.ID)

	require.Eventually(t, func() bool {
		conns, err := h.Connections(context.Background())
		return err == nil && len(conns) == 1
	}, 5*time.Second, 20*time.Millisecond)
}

func TestInvalidFrameOverSocket(t *testing.T) {
	_, _, url := startHub(t)

	p := dial(t, url)
	p.next(protocol.TypeConnect)
	p.write(`{"type":42}`)

	var reply protocol.ErrorReply
	require.NoError(t, json.Unmarshal(p.next(protocol.TypeError).Payload, &reply))
	assert.Equal(t, "Invalid message format", reply.Message)

	p.write(`{"type":"CONNECT","payload":{"type":"rover","identifier":"R-002"}}`)
	p.next(protocol.TypeConnect)
}

func TestSendAfterCloseIsDropped(t *testing.T) {
	c := &Conn{send: make(chan []byte, 1), done: make(chan struct{})}
	assert.True(t, c.Send([]byte("a")))
	assert.False(t, c.Send([]byte("b")), "full buffer drops")

	c.Close()
	c.Close()
	<-c.send
	assert.False(t, c.Send([]byte("c")), "closed socket drops")
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
