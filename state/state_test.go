package state

import (
	"errors"
	"reflect"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestPlayersKeepJoinOrder(t *testing.T) {
	s := New(nil)
	for _, id := range []string{"c", "a", "b"} {
		s.AddPlayer(id)
	}
	s.RemovePlayer("a")
	s.AddPlayer("d")

	var got []string
	for _, p := range s.Players() {
		got = append(got, p.SessionID)
	}
	want := []string{"c", "b", "d"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
	if s.Len() != 3 {
		t.Fatalf("Len = %d", s.Len())
	}
}

func TestAddPlayerAtOrigin(t *testing.T) {
	s := New(nil)
	p := s.AddPlayer("A")
	if p != (PlayerTransform{SessionID: "A"}) {
		t.Fatalf("new player = %+v, want origin", p)
	}
}

func TestUpdateIdempotent(t *testing.T) {
	s := New(nil)
	s.AddPlayer("A")
	if !s.UpdatePlayerTransform("A", 1, 2, 3, 0.5) {
		t.Fatalf("first update reported no change")
	}
	first, _ := s.Player("A")
	if s.UpdatePlayerTransform("A", 1, 2, 3, 0.5) {
		t.Fatalf("identical update reported a change")
	}
	second, _ := s.Player("A")
	if first != second {
		t.Fatalf("transform changed: %+v -> %+v", first, second)
	}
}

func TestUnknownSessionIsLoggedNotFatal(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	s := New(zap.New(core).Sugar())

	if s.UpdatePlayerTransform("ghost", 1, 1, 1, 1) {
		t.Fatalf("update for unknown session reported change")
	}
	if s.RemovePlayer("ghost") {
		t.Fatalf("remove for unknown session reported success")
	}
	if logs.Len() != 2 {
		t.Fatalf("expected 2 warnings, got %d", logs.Len())
	}
	if got := logs.All()[0].ContextMap()["session"]; got != "ghost" {
		t.Fatalf("warning session field = %v", got)
	}
}

func TestOnlyHostGetsWriter(t *testing.T) {
	s := New(nil)
	s.AddPlayer("A")
	s.AddPlayer("B")

	if _, err := s.WriterFor("A"); !errors.Is(err, ErrNotHost) {
		t.Fatalf("writer before host assigned: err = %v", err)
	}
	s.SetHost("A")
	if _, err := s.WriterFor("B"); !errors.Is(err, ErrNotHost) {
		t.Fatalf("non-host writer: err = %v", err)
	}
	w, err := s.WriterFor("A")
	if err != nil {
		t.Fatalf("host writer: %v", err)
	}
	m := MapState{Data: []int{0, 1, 0, 1}, Width: 2, Height: 2, FogColor: [3]float64{0.5, 0.5, 0.5}, FogDensity: 0.02}
	if err := w.SetMap(m); err != nil {
		t.Fatalf("SetMap: %v", err)
	}
	got, ok := s.GetMap()
	if !ok || !reflect.DeepEqual(got, m) {
		t.Fatalf("GetMap = %+v, %v", got, ok)
	}

	// GetMap 返回副本
	got.Data[0] = 4
	again, _ := s.GetMap()
	if again.Data[0] != 0 {
		t.Fatalf("GetMap leaked internal slice")
	}

	// 房主变更后旧句柄失效
	s.SetHost("B")
	if err := w.SetMap(m); !errors.Is(err, ErrNotHost) {
		t.Fatalf("stale writer: err = %v", err)
	}
}

func TestSetMapValidates(t *testing.T) {
	s := New(nil)
	s.AddPlayer("A")
	s.SetHost("A")
	w, _ := s.WriterFor("A")

	bad := []MapState{
		{Data: []int{0, 1, 0}, Width: 2, Height: 2},
		{Data: []int{0, 9, 0, 1}, Width: 2, Height: 2},
		{Data: nil, Width: 0, Height: 0},
		{Data: []int{0}, Width: 1, Height: 1, FogDensity: -1},
	}
	for _, m := range bad {
		if err := w.SetMap(m); !errors.Is(err, ErrInvalidMap) {
			t.Fatalf("SetMap(%+v) err = %v", m, err)
		}
	}
	if _, ok := s.GetMap(); ok {
		t.Fatalf("invalid map was stored")
	}
}

func TestHostStaysAfterHostRemoved(t *testing.T) {
	s := New(nil)
	s.AddPlayer("A")
	s.SetHost("A")
	s.AddPlayer("B")
	s.RemovePlayer("A")
	if s.HostID() != "A" {
		t.Fatalf("HostID = %q, want stale %q", s.HostID(), "A")
	}
}
