package client

// entry 一个会话对应的渲染条目
type entry struct {
	current Transform
	target  Transform
	local   bool
}

// LocalPlayerIndex 会话 id 到渲染条目的映射，并记录本地会话
type LocalPlayerIndex struct {
	localID string
	entries map[string]*entry
	order   []string
}

// NewLocalPlayerIndex 空索引
func NewLocalPlayerIndex() *LocalPlayerIndex {
	return &LocalPlayerIndex{entries: make(map[string]*entry)}
}

func (x *LocalPlayerIndex) SetLocal(sessionID string) { x.localID = sessionID }

func (x *LocalPlayerIndex) Local() string { return x.localID }

func (x *LocalPlayerIndex) Has(sessionID string) bool {
	_, ok := x.entries[sessionID]
	return ok
}

// add 新建条目，已存在时返回 false
func (x *LocalPlayerIndex) add(sessionID string, t Transform) bool {
	if _, ok := x.entries[sessionID]; ok {
		return false
	}
	x.entries[sessionID] = &entry{current: t, target: t, local: sessionID == x.localID}
	x.order = append(x.order, sessionID)
	return true
}

func (x *LocalPlayerIndex) remove(sessionID string) bool {
	if _, ok := x.entries[sessionID]; !ok {
		return false
	}
	delete(x.entries, sessionID)
	for i, id := range x.order {
		if id == sessionID {
			x.order = append(x.order[:i], x.order[i+1:]...)
			break
		}
	}
	return true
}

// Current 当前渲染位置
func (x *LocalPlayerIndex) Current(sessionID string) (Transform, bool) {
	e, ok := x.entries[sessionID]
	if !ok {
		return Transform{}, false
	}
	return e.current, true
}

// Target 最近一次收到的权威位置
func (x *LocalPlayerIndex) Target(sessionID string) (Transform, bool) {
	e, ok := x.entries[sessionID]
	if !ok {
		return Transform{}, false
	}
	return e.target, true
}

// IDs 按加入顺序返回所有会话（含本地）
func (x *LocalPlayerIndex) IDs() []string {
	return append([]string(nil), x.order...)
}

func (x *LocalPlayerIndex) Len() int { return len(x.order) }
