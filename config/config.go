package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"mazerun/maze"
)

// Config 服务端与客户端共用的运行参数
type Config struct {
	Addr string // HTTP/WebSocket 监听地址

	LogFile    string // 滚动日志文件
	LogLevel   string // debug/info/warn/error
	LogConsole bool   // 同时输出到 stderr

	MaxClients int           // 每个房间的会话上限
	PatchRate  int           // 每秒广播位置变更的次数
	DrainGrace time.Duration // 房间空置多久后销毁
	HostPolicy string        // 房主离开后的处理：freeze/promote/dispose

	MazeWidth  int
	MazeHeight int
	Smoothing  float64 // 远端玩家插值系数 α

	MapTimeout time.Duration // 单次 getMapState 等待时长
	MapRetries int           // getMapState 超时后的重试次数
}

// Default 参考配置
func Default() Config {
	return Config{
		Addr:       ":2567",
		LogFile:    "app.log",
		LogLevel:   "debug",
		LogConsole: false,
		MaxClients: 4,
		PatchRate:  20,
		DrainGrace: 5 * time.Second,
		HostPolicy: "freeze",
		MazeWidth:  21,
		MazeHeight: 21,
		Smoothing:  0.15,
		MapTimeout: 2 * time.Second,
		MapRetries: 5,
	}
}

// Load 依次读取 .env、环境变量；文件缺失不算错误
func Load(envFiles ...string) (Config, error) {
	_ = godotenv.Load(envFiles...)
	return FromEnv(os.LookupEnv)
}

// FromEnv 从给定的查找函数读取配置，未设置的键保留默认值
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	c := Default()
	var err error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		v, ok := lookup(key)
		if !ok || v == "" || err != nil {
			return
		}
		n, perr := strconv.Atoi(v)
		if perr != nil {
			err = fmt.Errorf("environment variable %s must be an integer: %w", key, perr)
			return
		}
		*dst = n
	}
	float := func(key string, dst *float64) {
		v, ok := lookup(key)
		if !ok || v == "" || err != nil {
			return
		}
		f, perr := strconv.ParseFloat(v, 64)
		if perr != nil {
			err = fmt.Errorf("environment variable %s must be a number: %w", key, perr)
			return
		}
		*dst = f
	}
	boolean := func(key string, dst *bool) {
		v, ok := lookup(key)
		if !ok || v == "" || err != nil {
			return
		}
		b, perr := strconv.ParseBool(v)
		if perr != nil {
			err = fmt.Errorf("environment variable %s must be a boolean: %w", key, perr)
			return
		}
		*dst = b
	}
	duration := func(key string, dst *time.Duration) {
		v, ok := lookup(key)
		if !ok || v == "" || err != nil {
			return
		}
		d, perr := time.ParseDuration(v)
		if perr != nil {
			err = fmt.Errorf("environment variable %s must be a duration: %w", key, perr)
			return
		}
		*dst = d
	}

	str("MAZERUN_ADDR", &c.Addr)
	str("MAZERUN_LOG_FILE", &c.LogFile)
	str("MAZERUN_LOG_LEVEL", &c.LogLevel)
	boolean("MAZERUN_LOG_CONSOLE", &c.LogConsole)
	integer("MAZERUN_MAX_CLIENTS", &c.MaxClients)
	integer("MAZERUN_PATCH_RATE", &c.PatchRate)
	duration("MAZERUN_DRAIN_GRACE", &c.DrainGrace)
	str("MAZERUN_HOST_POLICY", &c.HostPolicy)
	integer("MAZERUN_MAZE_WIDTH", &c.MazeWidth)
	integer("MAZERUN_MAZE_HEIGHT", &c.MazeHeight)
	float("MAZERUN_SMOOTHING", &c.Smoothing)
	duration("MAZERUN_MAP_TIMEOUT", &c.MapTimeout)
	integer("MAZERUN_MAP_RETRIES", &c.MapRetries)
	if err != nil {
		return Config{}, err
	}
	return c, c.Validate()
}

// RegisterFlags 命令行参数覆盖环境配置，默认值取自当前配置
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Addr, "addr", c.Addr, "server listen address, e.g. :2567")
	fs.StringVar(&c.LogFile, "log-file", c.LogFile, "rolling log file path")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level: debug, info, warn, error")
	fs.BoolVar(&c.LogConsole, "log-console", c.LogConsole, "also log to stderr")
	fs.IntVar(&c.MaxClients, "max-clients", c.MaxClients, "sessions allowed per room")
	fs.IntVar(&c.PatchRate, "patch-rate", c.PatchRate, "transform patches per second")
	fs.DurationVar(&c.DrainGrace, "drain-grace", c.DrainGrace, "how long an empty room lives before disposal")
	fs.StringVar(&c.HostPolicy, "host-policy", c.HostPolicy, "what happens when the host leaves: freeze, promote, dispose")
	fs.IntVar(&c.MazeWidth, "maze-width", c.MazeWidth, "generated maze width")
	fs.IntVar(&c.MazeHeight, "maze-height", c.MazeHeight, "generated maze height")
	fs.Float64Var(&c.Smoothing, "smoothing", c.Smoothing, "remote player interpolation factor (0,1]")
	fs.DurationVar(&c.MapTimeout, "map-timeout", c.MapTimeout, "wait per getMapState attempt")
	fs.IntVar(&c.MapRetries, "map-retries", c.MapRetries, "getMapState retries after the first attempt times out")
}

// Validate 检查取值范围
func (c Config) Validate() error {
	switch {
	case c.MaxClients < 1:
		return fmt.Errorf("max clients must be positive, got %d", c.MaxClients)
	case c.PatchRate < 1 || c.PatchRate > 1000:
		return fmt.Errorf("patch rate must be in [1,1000], got %d", c.PatchRate)
	case c.DrainGrace < 0:
		return fmt.Errorf("drain grace must not be negative, got %s", c.DrainGrace)
	case c.Smoothing <= 0 || c.Smoothing > 1:
		return fmt.Errorf("smoothing must be in (0,1], got %v", c.Smoothing)
	case c.MapTimeout <= 0:
		return fmt.Errorf("map timeout must be positive, got %s", c.MapTimeout)
	case c.MazeWidth < maze.MinDimension || c.MazeHeight < maze.MinDimension:
		return fmt.Errorf("maze must be at least %dx%d, got %dx%d", maze.MinDimension, maze.MinDimension, c.MazeWidth, c.MazeHeight)
	case c.MapRetries < 0:
		return fmt.Errorf("map retries must not be negative, got %d", c.MapRetries)
	}
	switch c.HostPolicy {
	case "freeze", "promote", "dispose":
	default:
		return fmt.Errorf("unknown host policy %q", c.HostPolicy)
	}
	return nil
}
