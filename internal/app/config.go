package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	capswalk "github.com/david-fong/capswalk-sub001"
	"github.com/david-fong/capswalk-sub001/internal/game"
	"github.com/david-fong/capswalk-sub001/internal/grid"
	"github.com/david-fong/capswalk-sub001/internal/lang"
	"github.com/david-fong/capswalk-sub001/internal/lang/packs"
	"github.com/david-fong/capswalk-sub001/internal/net/proto"
	"github.com/david-fong/capswalk-sub001/internal/net/ws"
	"github.com/david-fong/capswalk-sub001/internal/observability"
	"github.com/david-fong/capswalk-sub001/internal/relay"
	"github.com/david-fong/capswalk-sub001/logging"
)

// LogConfig selects the logging sinks shared by every binary.
type LogConfig struct {
	Sinks    []string      `env:"CAPSWALK_LOG_SINKS" envSeparator:"," envDefault:"console"`
	Level    string        `env:"CAPSWALK_LOG_LEVEL" envDefault:"info"`
	JSONPath string        `env:"CAPSWALK_LOG_JSON_PATH"`
	Buffer   int           `env:"CAPSWALK_LOG_BUFFER" envDefault:"512"`
	Color    bool          `env:"CAPSWALK_LOG_COLOR"`
	Flush    time.Duration `env:"CAPSWALK_LOG_FLUSH" envDefault:"2s"`
}

// Logging converts the environment settings into a router config.
func (c LogConfig) Logging(fields map[string]any) logging.Config {
	cfg := logging.DefaultConfig()
	if len(c.Sinks) > 0 {
		cfg.EnabledSinks = make([]string, 0, len(c.Sinks))
		for _, sink := range c.Sinks {
			if sink = strings.TrimSpace(sink); sink != "" {
				cfg.EnabledSinks = append(cfg.EnabledSinks, sink)
			}
		}
	}
	cfg.MinimumSeverity = logging.ParseSeverity(c.Level)
	if c.Buffer > 0 {
		cfg.BufferSize = c.Buffer
	}
	cfg.JSON.FilePath = c.JSONPath
	if c.Flush > 0 {
		cfg.JSON.FlushInterval = c.Flush
	}
	cfg.Console.UseColor = c.Color
	cfg.Fields = fields
	return cfg
}

// Config is the authority server's environment.
type Config struct {
	Addr            string        `env:"CAPSWALK_ADDR" envDefault:":8080"`
	ClientDir       string        `env:"CAPSWALK_CLIENT_DIR"`
	ShutdownTimeout time.Duration `env:"CAPSWALK_SHUTDOWN_TIMEOUT" envDefault:"5s"`

	Seed           string  `env:"CAPSWALK_SEED" envDefault:"capswalk"`
	System         string  `env:"CAPSWALK_SYSTEM" envDefault:"square"`
	Width          int     `env:"CAPSWALK_WIDTH" envDefault:"16"`
	Height         int     `env:"CAPSWALK_HEIGHT" envDefault:"12"`
	MovementRadius int     `env:"CAPSWALK_MOVEMENT_RADIUS" envDefault:"1"`
	AvoidRadius    int     `env:"CAPSWALK_AVOID_RADIUS"`
	Scheme         string  `env:"CAPSWALK_SCHEME" envDefault:"weight"`
	Humans         int     `env:"CAPSWALK_HUMANS" envDefault:"4"`
	Artificial     int     `env:"CAPSWALK_ARTIFICIAL"`
	MaxFreeValue   float64 `env:"CAPSWALK_MAX_FREE_VALUE" envDefault:"5"`
	Pack           string  `env:"CAPSWALK_PACK" envDefault:"en-lowercase"`
	PackFile       string  `env:"CAPSWALK_PACK_FILE"`
	Phase          string  `env:"CAPSWALK_PHASE" envDefault:"playing"`

	MoveRate  float64       `env:"CAPSWALK_MOVE_RATE" envDefault:"20"`
	MoveBurst int           `env:"CAPSWALK_MOVE_BURST" envDefault:"5"`
	QueueSize int           `env:"CAPSWALK_QUEUE_SIZE" envDefault:"256"`
	WriteWait time.Duration `env:"CAPSWALK_WRITE_WAIT" envDefault:"10s"`

	RedisAddr    string `env:"CAPSWALK_REDIS_ADDR"`
	RedisChannel string `env:"CAPSWALK_REDIS_CHANNEL" envDefault:"capswalk:events"`

	EnablePprof bool `env:"CAPSWALK_ENABLE_PPROF"`

	Log LogConfig
}

// LoadConfig reads the server config from the environment.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Hub validates the game settings and builds the hub config. A PackFile is
// registered under its own name and replaces Pack.
func (c Config) Hub() (capswalk.HubConfig, error) {
	hubCfg := capswalk.DefaultHubConfig()
	scheme, err := lang.ParseScheme(c.Scheme)
	if err != nil {
		return hubCfg, err
	}
	phase, err := game.ParsePhase(c.Phase)
	if err != nil {
		return hubCfg, err
	}
	if c.Width <= 0 || c.Height <= 0 {
		return hubCfg, fmt.Errorf("board %dx%d is empty", c.Width, c.Height)
	}
	if c.Humans < 0 || c.Artificial < 0 {
		return hubCfg, fmt.Errorf("negative roster: %d humans, %d artificial", c.Humans, c.Artificial)
	}
	hubCfg.Game = game.Config{
		Seed:           c.Seed,
		System:         grid.System(c.System),
		Width:          c.Width,
		Height:         c.Height,
		MovementRadius: c.MovementRadius,
		AvoidRadius:    c.AvoidRadius,
		Scheme:         scheme,
		Humans:         c.Humans,
		Artificial:     c.Artificial,
		MaxFreeValue:   c.MaxFreeValue,
	}
	hubCfg.Pack = c.Pack
	if c.PackFile != "" {
		pack, err := packs.LoadFile(c.PackFile)
		if err != nil {
			return hubCfg, err
		}
		if err := packs.Register(pack); err != nil {
			return hubCfg, err
		}
		hubCfg.Pack = pack.Name
	}
	hubCfg.InitialPhase = phase
	return hubCfg, nil
}

// WS builds the websocket handler config.
func (c Config) WS() ws.HandlerConfig {
	return ws.HandlerConfig{
		QueueSize: c.QueueSize,
		WriteWait: c.WriteWait,
		MoveRate:  c.MoveRate,
		MoveBurst: c.MoveBurst,
	}
}

// Observability builds the debug endpoint config.
func (c Config) Observability() observability.Config {
	return observability.Config{EnablePprof: c.EnablePprof}
}

// ReplicaConfig is the replica binary's environment.
type ReplicaConfig struct {
	AuthorityURL   string        `env:"CAPSWALK_AUTHORITY_URL" envDefault:"http://localhost:8080"`
	Codec          string        `env:"CAPSWALK_CODEC" envDefault:"msgpack"`
	Backlog        int           `env:"CAPSWALK_REPLICA_BACKLOG" envDefault:"1024"`
	ReportInterval time.Duration `env:"CAPSWALK_REPLICA_REPORT" envDefault:"10s"`
	RedisAddr      string        `env:"CAPSWALK_REDIS_ADDR"`
	RedisChannel   string        `env:"CAPSWALK_REDIS_CHANNEL" envDefault:"capswalk:events"`

	Log LogConfig
}

// LoadReplicaConfig reads the replica config from the environment.
func LoadReplicaConfig() (ReplicaConfig, error) {
	var cfg ReplicaConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	if _, err := proto.CodecByName(cfg.Codec); err != nil {
		return cfg, err
	}
	if cfg.RedisChannel == "" {
		cfg.RedisChannel = relay.DefaultChannel
	}
	return cfg, nil
}
