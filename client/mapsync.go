package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"mazerun/maze"
	"mazerun/protocol"
)

// ErrMapRequestTimeout 所有尝试都未收到地图
var ErrMapRequestTimeout = errors.New("client: map request timed out")

// Fog 场景雾参数
type Fog struct {
	Color   [3]float64
	Density float64
}

// DefaultFog 灰色薄雾
var DefaultFog = Fog{Color: [3]float64{0.5, 0.5, 0.5}, Density: 0.02}

const (
	DefaultMapTimeout = 2 * time.Second
	DefaultMapRetries = 5
)

// MapSyncOptions 地图同步参数
type MapSyncOptions struct {
	// Timeout 单次请求等待回复的时长
	Timeout time.Duration
	// Retries 首次请求之后的重试次数
	Retries int
	// Fog 房主上传地图时附带的雾参数
	Fog Fog
}

func DefaultMapSyncOptions() MapSyncOptions {
	return MapSyncOptions{Timeout: DefaultMapTimeout, Retries: DefaultMapRetries, Fog: DefaultFog}
}

// MapSync 房主上传地图，其他客户端拉取地图。
// 同一时间最多只有一个拉取请求在途，并发的 Fetch 共享它的结果。
type MapSync struct {
	tr    Transport
	scene SceneLoader
	opts  MapSyncOptions
	log   *zap.SugaredLogger

	mu       sync.Mutex
	inflight *mapFetch
}

type mapFetch struct {
	done chan struct{}
	grid [][]int
	fog  Fog
	err  error
}

// NewMapSync scene 可为 nil，此时只返回网格
func NewMapSync(tr Transport, scene SceneLoader, opts MapSyncOptions, log *zap.SugaredLogger) *MapSync {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultMapTimeout
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	return &MapSync{tr: tr, scene: scene, opts: opts, log: log}
}

// Publish 房主上传地图并加载本地场景
func (s *MapSync) Publish(m *maze.Maze) error {
	err := s.tr.Send(protocol.TypeSetMapState, protocol.MapPayload{
		Data:       m.Flatten(),
		Width:      m.Width,
		Height:     m.Height,
		FogColor:   s.opts.Fog.Color,
		FogDensity: s.opts.Fog.Density,
	})
	if err != nil {
		return fmt.Errorf("publish map: %w", err)
	}
	if s.scene != nil {
		s.scene.LoadScene(m.Grid, s.opts.Fog)
	}
	s.log.Infow("map published", "width", m.Width, "height", m.Height, "start", m.Start, "goal", m.Goal)
	return nil
}

// GenerateAndPublish 生成迷宫后上传；生成失败时不会发送任何消息
func (s *MapSync) GenerateAndPublish(g *maze.Generator, width, height int) (*maze.Maze, error) {
	m, err := g.Generate(width, height)
	if err != nil {
		return nil, fmt.Errorf("generate map: %w", err)
	}
	if err := s.Publish(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Fetch 向服务端请求地图，成功后加载场景并返回网格。
// 只阻塞调用方所在的协程。
func (s *MapSync) Fetch(ctx context.Context) ([][]int, Fog, error) {
	s.mu.Lock()
	if f := s.inflight; f != nil {
		s.mu.Unlock()
		select {
		case <-f.done:
			return f.grid, f.fog, f.err
		case <-ctx.Done():
			return nil, Fog{}, ctx.Err()
		}
	}
	f := &mapFetch{done: make(chan struct{})}
	s.inflight = f
	s.mu.Unlock()

	f.grid, f.fog, f.err = s.request(ctx)

	s.mu.Lock()
	s.inflight = nil
	s.mu.Unlock()
	close(f.done)

	if f.err == nil && s.scene != nil {
		s.scene.LoadScene(f.grid, f.fog)
	}
	return f.grid, f.fog, f.err
}

func (s *MapSync) request(ctx context.Context) ([][]int, Fog, error) {
	attempts := s.opts.Retries + 1
	timer := time.NewTimer(s.opts.Timeout)
	defer timer.Stop()

	for i := 1; i <= attempts; i++ {
		if err := s.tr.Send(protocol.TypeGetMapState, struct{}{}); err != nil {
			if errors.Is(err, ErrClosed) {
				return nil, Fog{}, err
			}
			s.log.Warnw("map request not sent", "attempt", i, "err", err)
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(s.opts.Timeout)

	wait:
		for {
			select {
			case p := <-s.tr.MapReplies():
				grid, err := maze.Reconstruct(p.Data, p.Width, p.Height)
				if err != nil {
					s.log.Warnw("discarding malformed map", "attempt", i, "err", err)
					continue
				}
				return grid, Fog{Color: p.FogColor, Density: p.FogDensity}, nil
			case <-timer.C:
				s.log.Debugw("map request timed out", "attempt", i, "of", attempts)
				break wait
			case <-s.tr.Done():
				return nil, Fog{}, fmt.Errorf("map request: %w", ErrClosed)
			case <-ctx.Done():
				return nil, Fog{}, ctx.Err()
			}
		}
	}
	return nil, Fog{}, fmt.Errorf("%w after %d attempts", ErrMapRequestTimeout, attempts)
}

// SpawnPoint 将起点格子换算为世界坐标：
// 迷宫居中铺在地面上，返回起点格子中心，高度为一个单位。
func SpawnPoint(grid [][]int, cellSize float64) (Transform, bool) {
	p, ok := maze.Find(grid, maze.Start)
	if !ok || len(grid) == 0 {
		return Transform{}, false
	}
	cols, rows := float64(len(grid[0])), float64(len(grid))
	return Transform{
		X: (float64(p.X)-cols/2)*cellSize + cellSize/2,
		Y: 1,
		Z: (float64(p.Y)-rows/2)*cellSize + cellSize/2,
	}, true
}
