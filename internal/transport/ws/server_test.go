package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"ropesim/internal/protocol"
	"ropesim/internal/runner"
	"ropesim/internal/sim/tuning"
)

const small = `{"type":"HELLO","protocol_version":"1.0","frame_every":4,"commands":[
{"dir":"R","steps":4},{"dir":"U","steps":4},{"dir":"L","steps":3},{"dir":"D","steps":1},
{"dir":"R","steps":4},{"dir":"D","steps":1},{"dir":"L","steps":5},{"dir":"R","steps":2}]}`

func dial(t *testing.T) *websocket.Conn {
	t.Helper()
	r := runner.New(runner.Config{Tuning: tuning.Defaults()})
	srv := httptest.NewServer(NewServer(r, nil, nil).Handler())
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	return conn
}

func TestStream_FramesThenResult(t *testing.T) {
	conn := dial(t)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(small)))

	frames := map[string]int{}
	var result protocol.ResultMsg
	for {
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		base, err := protocol.DecodeBase(msg)
		require.NoError(t, err)
		if base.Type == protocol.TypeFrame {
			var f protocol.FrameMsg
			require.NoError(t, json.Unmarshal(msg, &f))
			require.Zero(t, f.Step%4, "frame_every not honored")
			require.NotEmpty(t, f.Digest)
			frames[f.Part]++
			continue
		}
		require.Equal(t, protocol.TypeResult, base.Type, string(msg))
		require.NoError(t, json.Unmarshal(msg, &result))
		break
	}

	// Steps 0,4,...,24 for each part.
	require.Equal(t, map[string]int{"part1": 7, "part2": 7}, frames)
	require.NotEmpty(t, result.RunID)
	require.Len(t, result.Parts, 2)
	require.Equal(t, 13, result.Parts[0].Distinct)
	require.Equal(t, 1, result.Parts[1].Distinct)
	require.EqualValues(t, 24, result.Parts[0].Steps)
}

func TestStream_FollowersOverride(t *testing.T) {
	conn := dial(t)
	hello := strings.Replace(small, `"frame_every":4`, `"frame_every":100,"followers":[0]`, 1)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(hello)))

	for {
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		base, _ := protocol.DecodeBase(msg)
		if base.Type != protocol.TypeResult {
			continue
		}
		var result protocol.ResultMsg
		require.NoError(t, json.Unmarshal(msg, &result))
		require.Len(t, result.Parts, 1)
		require.Equal(t, "part1", result.Parts[0].Name)
		require.Equal(t, 0, result.Parts[0].Followers)
		return
	}
}

func TestStream_RejectsBadHello(t *testing.T) {
	cases := map[string]struct {
		hello string
		code  string
	}{
		"not hello":   {`{"type":"FRAME"}`, protocol.ErrProtoBadRequest},
		"bad version": {`{"type":"HELLO","protocol_version":"9.9","commands":[]}`, protocol.ErrProtoBadRequest},
		"bad dir":     {`{"type":"HELLO","commands":[{"dir":"X","steps":1}]}`, protocol.ErrProtoBadRequest},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			conn := dial(t)
			require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(tc.hello)))
			_, msg, err := conn.ReadMessage()
			require.NoError(t, err)
			var em protocol.ErrorMsg
			require.NoError(t, json.Unmarshal(msg, &em))
			require.Equal(t, protocol.TypeError, em.Type)
			require.Equal(t, tc.code, em.Code)

			_, _, err = conn.ReadMessage()
			require.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)
		})
	}
}
