package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"

	"mazerun/config"
	"mazerun/server"
)

// mazerun 入口：加载配置，启动 HTTP + WebSocket 服务，并初始化房间管理器
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}
	cfg.RegisterFlags(flag.CommandLine)
	flag.Parse()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}

	// 使用第三方 zap 日志库写入滚动日志文件
	if err := server.InitLogger(server.LoggerOptions{
		FilePath: cfg.LogFile,
		Level:    cfg.LogLevel,
		Console:  cfg.LogConsole,
	}); err != nil {
		panic(err)
	}
	defer server.SyncLogger()

	policy, err := server.ParseHostPolicy(cfg.HostPolicy)
	if err != nil {
		server.Log.Fatalf("host policy: %v", err)
	}
	rm := server.NewRoomManager(server.RoomConfig{
		MaxClients: cfg.MaxClients,
		PatchRate:  cfg.PatchRate,
		DrainGrace: cfg.DrainGrace,
		HostPolicy: policy,
	}, server.Log)

	mux := http.NewServeMux()
	rm.Routes(mux)
	srv := &http.Server{Addr: cfg.Addr, Handler: mux}

	go func() {
		server.Log.Infof("mazerun listening on %s (maxClients=%d hostPolicy=%s)", cfg.Addr, cfg.MaxClients, policy)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			server.Log.Fatalf("listen: %v", err)
		}
	}()

	// 优雅退出（Ctrl+C）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	server.Log.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = multierr.Combine(srv.Shutdown(ctx), rm.Shutdown(ctx))
	if err != nil {
		server.Log.Errorw("shutdown", "err", err)
	}
}
