package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"mazerun/protocol"
)

func newTestServer(t *testing.T, cfg RoomConfig) (*RoomManager, *httptest.Server) {
	t.Helper()
	m := NewRoomManager(cfg, zap.NewNop().Sugar())
	mux := http.NewServeMux()
	m.Routes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})
	return m, srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func writeEnvelope(t *testing.T, conn *websocket.Conn, msgType string, payload any) {
	t.Helper()
	b, err := protocol.Encode(msgType, payload)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		t.Fatalf("write %s: %v", msgType, err)
	}
}

func waitFor(t *testing.T, conn *websocket.Conn, msgType string, v any) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	defer conn.SetReadDeadline(time.Time{})
	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", msgType, err)
		}
		env, err := protocol.Decode(b)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if env.Type != msgType {
			continue
		}
		if err := protocol.DecodePayload(env, v); err != nil {
			t.Fatalf("payload %s: %v", msgType, err)
		}
		return
	}
}

func TestWebSocketHostMapAndPositions(t *testing.T) {
	_, srv := newTestServer(t, RoomConfig{MaxClients: 4, PatchRate: 50, DrainGrace: time.Second})

	host := dial(t, srv, "?room=r1")
	var hw protocol.Welcome
	waitFor(t, host, protocol.TypeWelcome, &hw)
	if hw.HostID != hw.SessionID || hw.RoomID != "r1" {
		t.Fatalf("host welcome = %+v", hw)
	}

	guest := dial(t, srv, "?room=r1")
	var gw protocol.Welcome
	waitFor(t, guest, protocol.TypeWelcome, &gw)
	if gw.HostID != hw.SessionID {
		t.Fatalf("guest sees host %q, want %q", gw.HostID, hw.SessionID)
	}

	writeEnvelope(t, host, protocol.TypeSetMapState, protocol.MapPayload{
		Data: []int{0, 1, 0, 1}, Width: 2, Height: 2,
		FogColor: [3]float64{0.5, 0.5, 0.5}, FogDensity: 0.02,
	})
	// setMapState 与后续 getMapState 来自不同连接，先确认房主写入已被处理
	writeEnvelope(t, host, protocol.TypePing, protocol.Ping{ClientTime: 1})
	var pong protocol.Pong
	waitFor(t, host, protocol.TypePong, &pong)

	writeEnvelope(t, guest, protocol.TypeGetMapState, struct{}{})
	var ms protocol.MapPayload
	waitFor(t, guest, protocol.TypeMapState, &ms)
	if ms.Width != 2 || ms.Height != 2 || len(ms.Data) != 4 || ms.Data[1] != 1 {
		t.Fatalf("mapState = %+v", ms)
	}

	writeEnvelope(t, guest, protocol.TypeUpdatePosition, protocol.UpdatePosition{X: 10, Z: -4, RotationY: 1})
	var changed protocol.PlayerEvent
	waitFor(t, host, protocol.TypePlayerChanged, &changed)
	if changed.Player.SessionID != gw.SessionID || changed.Player.X != 10 || changed.Player.Z != -4 {
		t.Fatalf("playerChanged = %+v", changed.Player)
	}

	guest.Close()
	var removed protocol.PlayerRemoved
	waitFor(t, host, protocol.TypePlayerRemoved, &removed)
	if removed.SessionID != gw.SessionID {
		t.Fatalf("removed %q, want %q", removed.SessionID, gw.SessionID)
	}
}

func TestWebSocketRoomFullClosesConnection(t *testing.T) {
	_, srv := newTestServer(t, RoomConfig{MaxClients: 1, PatchRate: 20, DrainGrace: time.Second})

	first := dial(t, srv, "?room=tiny")
	var w protocol.Welcome
	waitFor(t, first, protocol.TypeWelcome, &w)

	second := dial(t, srv, "?room=tiny")
	_ = second.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := second.ReadMessage()
	var ce *websocket.CloseError
	if !errors.As(err, &ce) {
		t.Fatalf("read err = %v, want close error", err)
	}
	if ce.Code != websocket.CloseTryAgainLater || ce.Text != "room full" {
		t.Fatalf("close = %d %q", ce.Code, ce.Text)
	}
}

func TestWebSocketJoinOrCreateSpreadsSessions(t *testing.T) {
	m, srv := newTestServer(t, RoomConfig{MaxClients: 2, PatchRate: 20, DrainGrace: time.Second})

	rooms := map[string]int{}
	for i := 0; i < 3; i++ {
		conn := dial(t, srv, "")
		var w protocol.Welcome
		waitFor(t, conn, protocol.TypeWelcome, &w)
		rooms[w.RoomID]++
	}
	if len(rooms) != 2 {
		t.Fatalf("sessions spread over %d rooms, want 2: %v", len(rooms), rooms)
	}

	resp, err := http.Get(srv.URL + "/rooms")
	if err != nil {
		t.Fatalf("GET /rooms: %v", err)
	}
	defer resp.Body.Close()
	var body struct {
		Rooms []RoomInfo `json:"rooms"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode /rooms: %v", err)
	}
	if len(body.Rooms) != 2 {
		t.Fatalf("listed %d rooms, want 2", len(body.Rooms))
	}
	if body.Rooms[0].Clients != 2 || body.Rooms[1].Clients != 1 {
		t.Fatalf("room clients = %d, %d", body.Rooms[0].Clients, body.Rooms[1].Clients)
	}
	if _, ok := m.Get(body.Rooms[0].ID); !ok {
		t.Fatalf("listed room %s not found", body.Rooms[0].ID)
	}
}

func TestClientConnCloseFlushesThenSendsCloseFrame(t *testing.T) {
	closed := make(chan error, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := NewClientConn(ws)
		go c.writePump()
		c.Enqueue(protocol.MustEncode(protocol.TypePong, protocol.Pong{ClientTime: 7}))
		closed <- c.Close()
	}))
	t.Cleanup(srv.Close)

	conn := dial(t, srv, "")
	if err := <-closed; err != nil {
		t.Fatalf("Close: %v", err)
	}
	var pong protocol.Pong
	waitFor(t, conn, protocol.TypePong, &pong)
	if pong.ClientTime != 7 {
		t.Fatalf("pong = %+v", pong)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	var ce *websocket.CloseError
	if !errors.As(err, &ce) || ce.Code != websocket.CloseNormalClosure {
		t.Fatalf("read err = %v, want normal close", err)
	}
}
