// mazebot 是一个无界面的房间客户端：
// 作为房主时生成并上传迷宫，否则拉取迷宫，然后绕出生点移动并上报位置。
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mazerun/client"
	"mazerun/config"
	"mazerun/maze"
)

const cellSize = 2.0

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "mazebot:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	var (
		server   = flag.String("server", "ws://localhost:2567/ws", "room websocket endpoint")
		room     = flag.String("room", "", "room id to join; empty lets the server pick")
		fps      = flag.Int("fps", 30, "ticks per second")
		duration = flag.Duration("duration", 30*time.Second, "how long to stay in the room; 0 means until interrupted")
		seed     = flag.Int64("seed", time.Now().UnixNano(), "maze seed when hosting")
	)
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn, error")
	flag.IntVar(&cfg.MazeWidth, "maze-width", cfg.MazeWidth, "generated maze width")
	flag.IntVar(&cfg.MazeHeight, "maze-height", cfg.MazeHeight, "generated maze height")
	flag.Float64Var(&cfg.Smoothing, "smoothing", cfg.Smoothing, "remote player interpolation factor (0,1]")
	flag.Parse()
	if err := cfg.Validate(); err != nil {
		return err
	}
	if *fps < 1 {
		return fmt.Errorf("fps must be positive, got %d", *fps)
	}

	zcfg := zap.NewDevelopmentConfig()
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	zcfg.Level = level
	logger, err := zcfg.Build()
	if err != nil {
		return err
	}
	defer logger.Sync()
	log := logger.Sugar().With("bot", uuid.NewString()[:8])

	target, err := url.Parse(*server)
	if err != nil {
		return fmt.Errorf("server url: %w", err)
	}
	if *room != "" {
		q := target.Query()
		q.Set("room", *room)
		target.RawQuery = q.Encode()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	conn, err := client.Dial(ctx, target.String(), log)
	if err != nil {
		return err
	}
	defer func() {
		if err := conn.Close(); err != nil {
			log.Debugw("close", "err", err)
		}
	}()

	b := &bot{log: log, input: &orbit{centre: make(chan client.Transform, 1)}}
	rec := client.NewReconciler(conn, b, b.input, cfg.Smoothing, log)
	maps := client.NewMapSync(conn, b, client.MapSyncOptions{
		Timeout: cfg.MapTimeout,
		Retries: cfg.MapRetries,
		Fog:     client.DefaultFog,
	}, log)

	ticker := time.NewTicker(time.Second / time.Duration(*fps))
	defer ticker.Stop()
	pingTicker := time.NewTicker(5 * time.Second)
	defer pingTicker.Stop()

	mapStarted := false
	fetched := make(chan error, 1)
	for {
		select {
		case <-ctx.Done():
			log.Infow("leaving room", "room", rec.RoomID(), "rtt", rec.RTT())
			return nil
		case <-conn.Done():
			return fmt.Errorf("connection lost: %w", conn.Err())
		case err := <-fetched:
			if err != nil {
				return err
			}
		case <-pingTicker.C:
			if err := rec.Ping(); err != nil {
				log.Debugw("ping", "err", err)
			}
		case <-ticker.C:
			b.input.advance()
			if err := rec.Tick(); err != nil && !errors.Is(err, client.ErrSendQueueFull) {
				return err
			}
			if mapStarted || !rec.Ready() {
				continue
			}
			mapStarted = true
			if rec.IsHost() {
				gen := maze.NewGenerator(rand.NewSource(*seed))
				if _, err := maps.GenerateAndPublish(gen, cfg.MazeWidth, cfg.MazeHeight); err != nil {
					return err
				}
				continue
			}
			// 拉取地图不能阻塞帧循环
			go func() {
				_, _, err := maps.Fetch(ctx)
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					err = nil
				}
				fetched <- err
			}()
		}
	}
}

// bot 同时充当渲染器与场景加载器，只记录日志
type bot struct {
	log   *zap.SugaredLogger
	input *orbit
}

func (b *bot) Spawn(id string, t client.Transform, visible bool) {
	b.log.Infow("spawn", "session", id, "x", t.X, "z", t.Z, "visible", visible)
}

func (b *bot) Move(id string, t client.Transform) {}

func (b *bot) Despawn(id string) {
	b.log.Infow("despawn", "session", id)
}

// LoadScene 可能在拉取协程中调用，只写入出生点
func (b *bot) LoadScene(grid [][]int, fog client.Fog) {
	spawn, ok := client.SpawnPoint(grid, cellSize)
	if !ok {
		b.log.Warnw("maze has no start cell")
		return
	}
	b.input.setCentre(spawn)
	b.log.Infow("scene loaded", "rows", len(grid), "spawn", fmt.Sprintf("(%.1f, %.1f)", spawn.X, spawn.Z), "fogDensity", fog.Density)
	b.log.Debugf("maze:\n%s", (&maze.Maze{Grid: grid}).String())
}

// orbit 围绕出生点转圈的输入源
type orbit struct {
	centre chan client.Transform
	base   client.Transform
	angle  float64
}

func (o *orbit) setCentre(t client.Transform) {
	select {
	case o.centre <- t:
	default:
	}
}

func (o *orbit) advance() {
	select {
	case t := <-o.centre:
		o.base = t
	default:
	}
	o.angle = client.NormalizeAngle(o.angle + 0.05)
}

func (o *orbit) LocalTransform() client.Transform {
	return client.Transform{
		X:         o.base.X + math.Cos(o.angle)*cellSize/4,
		Y:         o.base.Y,
		Z:         o.base.Z + math.Sin(o.angle)*cellSize/4,
		RotationY: o.angle + math.Pi/2,
	}
}
