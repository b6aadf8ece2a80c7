package server

import (
	"encoding/json"
	"net/http"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (m *RoomManager) roomFromQuery(w http.ResponseWriter, r *http.Request) (*Room, bool) {
	roomID := r.URL.Query().Get("room")
	if roomID == "" {
		http.Error(w, "missing room query", http.StatusBadRequest)
		return nil, false
	}
	room, ok := m.Get(roomID)
	if !ok {
		http.Error(w, "room not found", http.StatusNotFound)
		return nil, false
	}
	return room, true
}

// HandleRooms 列出存活房间（房间发现）
// GET /rooms
func (m *RoomManager) HandleRooms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rooms": m.Rooms(r.Context())})
}

// HandleAdminConfig 提供房间配置的读取与更新
// GET /admin/config?room=<id>  返回当前配置
// POST /admin/config?room=<id> 以 JSON 载荷更新部分字段：{"maxClients":6,"hostPolicy":"promote"}
func (m *RoomManager) HandleAdminConfig(w http.ResponseWriter, r *http.Request) {
	room, ok := m.roomFromQuery(w, r)
	if !ok {
		return
	}

	type cfg struct {
		MaxClients *int    `json:"maxClients,omitempty"`
		HostPolicy *string `json:"hostPolicy,omitempty"`
	}

	switch r.Method {
	case http.MethodGet:
		info, err := room.Inspect(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusGone)
			return
		}
		writeJSON(w, http.StatusOK, cfg{MaxClients: &info.MaxClients, HostPolicy: &info.HostPolicy})
	case http.MethodPost:
		var body cfg
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		var u ConfigUpdate
		if body.MaxClients != nil {
			if *body.MaxClients < 1 {
				http.Error(w, "maxClients must be positive", http.StatusBadRequest)
				return
			}
			u.MaxClients = body.MaxClients
		}
		if body.HostPolicy != nil {
			p, err := ParseHostPolicy(*body.HostPolicy)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			u.HostPolicy = &p
		}
		applied, err := room.Configure(r.Context(), u)
		if err != nil {
			http.Error(w, err.Error(), http.StatusGone)
			return
		}
		policy := applied.HostPolicy.String()
		writeJSON(w, http.StatusOK, cfg{MaxClients: &applied.MaxClients, HostPolicy: &policy})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleMetrics 输出指定房间的运行指标
// GET /metrics?room=<id>
func (m *RoomManager) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	room, ok := m.roomFromQuery(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"room":    room.ID,
		"phase":   room.Phase().String(),
		"tick":    room.Tick(),
		"metrics": room.Metrics().Snapshot(),
	})
}

// Routes 注册房间相关的 HTTP 路由
func (m *RoomManager) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", m.HandleWS)
	mux.HandleFunc("/rooms", m.HandleRooms)
	mux.HandleFunc("/admin/config", m.HandleAdminConfig)
	mux.HandleFunc("/metrics", m.HandleMetrics)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
}
