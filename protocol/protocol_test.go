package protocol

import (
	"encoding/json"
	"testing"
)

func TestSetMapStateWireShape(t *testing.T) {
	b, err := Encode(TypeSetMapState, MapPayload{
		Data:       []int{0, 1, 0, 1},
		Width:      2,
		Height:     2,
		FogColor:   [3]float64{0.5, 0.5, 0.5},
		FogDensity: 0.02,
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if raw["type"] != "setMapState" {
		t.Fatalf("type = %v", raw["type"])
	}
	payload, ok := raw["payload"].(map[string]any)
	if !ok {
		t.Fatalf("payload is %T", raw["payload"])
	}
	for _, key := range []string{"data", "width", "height", "fogColor", "fogDensity"} {
		if _, ok := payload[key]; !ok {
			t.Fatalf("payload missing %q: %v", key, payload)
		}
	}
	if fog, _ := payload["fogColor"].([]any); len(fog) != 3 {
		t.Fatalf("fogColor = %v", payload["fogColor"])
	}
}

func TestDecodeUpdatePosition(t *testing.T) {
	env, err := Decode([]byte(`{"type":"updatePosition","payload":{"x":1.5,"y":0,"z":-2,"rotationY":3.14}}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if env.Type != TypeUpdatePosition {
		t.Fatalf("type = %q", env.Type)
	}
	var up UpdatePosition
	if err := DecodePayload(env, &up); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if up.X != 1.5 || up.Z != -2 || up.RotationY != 3.14 {
		t.Fatalf("payload = %+v", up)
	}
}

func TestDecodeEmptyPayload(t *testing.T) {
	env, err := Decode([]byte(`{"type":"getMapState"}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	var v struct{}
	if err := DecodePayload(env, &v); err != nil {
		t.Fatalf("empty payload: %v", err)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	for _, in := range []string{`not json`, `{"payload":{}}`, `[]`} {
		if _, err := Decode([]byte(in)); err == nil {
			t.Fatalf("Decode(%q) succeeded", in)
		}
	}
}
