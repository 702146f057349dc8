// Package config 从 YAML/JSON 加载 Actor 系统配置
//
// 加载顺序：内置默认值、配置文件（或字节），后加载的覆盖先加载的。
// 时长字段使用 Go 的时长写法，例如 "500ms"、"30s"。
//
// 配置文件示例:
//
//	mailbox_size: 1024
//	task_backing: thread
//	call_timeout: 5s
//	shutdown_timeout: 30s
//	log:
//	  level: debug
//	  format: json
//	supervision:
//	  strategy: backoff
//	  max_restarts: 5
//	  initial_delay: 100ms
//	  max_delay: 5s
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"

	"github.com/lwmacct/251215-go-pkg-actor/pkg/actor"
	"github.com/lwmacct/251215-go-pkg-actor/pkg/task"
)

// 支持的格式
const (
	FormatYAML = "yaml"
	FormatJSON = "json"
)

// 监督策略名
const (
	StrategyOneForOne = "one_for_one"
	StrategyAllForOne = "all_for_one"
	StrategyBackoff   = "backoff"
)

// Config 配置文件结构
type Config struct {
	MailboxSize     int           `koanf:"mailbox_size"`
	TaskBacking     string        `koanf:"task_backing"`
	LockOSThread    bool          `koanf:"lock_os_thread"`
	ThreadPoolIdle  int           `koanf:"thread_pool_idle"`
	CallTimeout     time.Duration `koanf:"call_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	Log             Log           `koanf:"log"`
	Supervision     Supervision   `koanf:"supervision"`
}

// Log 日志配置
type Log struct {
	// Level debug / info / warn / error
	Level string `koanf:"level" json:"level"`
	// Format text / json
	Format string `koanf:"format" json:"format"`
}

// Supervision 默认重启策略
type Supervision struct {
	Strategy     string        `koanf:"strategy"`
	MaxRestarts  int           `koanf:"max_restarts"`
	Within       time.Duration `koanf:"within"`
	InitialDelay time.Duration `koanf:"initial_delay"`
	MaxDelay     time.Duration `koanf:"max_delay"`
}

// Default 内置默认值，与 actor.DefaultSystemConfig 一致
func Default() Config {
	return Config{
		TaskBacking:     task.Fiber.String(),
		ShutdownTimeout: 30 * time.Second,
		Log: Log{
			Level:  "info",
			Format: "text",
		},
		Supervision: Supervision{
			Strategy:     StrategyOneForOne,
			MaxRestarts:  3,
			Within:       time.Minute,
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     10 * time.Second,
		},
	}
}

// Load 从文件加载，格式由扩展名决定；path 为空时只使用默认值
func Load(path string) (*Config, error) {
	k, err := defaults()
	if err != nil {
		return nil, err
	}
	if path != "" {
		parser, err := parserFor(formatOf(path))
		if err != nil {
			return nil, errors.Wrapf(err, "load %s", path)
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return nil, errors.Wrapf(err, "load %s", path)
		}
	}
	return unmarshal(k)
}

// LoadBytes 从字节加载，format 为 FormatYAML 或 FormatJSON
func LoadBytes(data []byte, format string) (*Config, error) {
	k, err := defaults()
	if err != nil {
		return nil, err
	}
	parser, err := parserFor(format)
	if err != nil {
		return nil, err
	}
	if err := k.Load(rawbytes.Provider(data), parser); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}
	return unmarshal(k)
}

func defaults() (*koanf.Koanf, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, errors.Wrap(err, "load defaults")
	}
	return k, nil
}

func unmarshal(k *koanf.Koanf) (*Config, error) {
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func formatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".json":
		return FormatJSON
	default:
		return strings.TrimPrefix(filepath.Ext(path), ".")
	}
}

func parserFor(format string) (koanf.Parser, error) {
	switch strings.ToLower(format) {
	case FormatYAML, "yml":
		return yaml.Parser(), nil
	case FormatJSON:
		return json.Parser(), nil
	default:
		return nil, fmt.Errorf("unsupported config format %q", format)
	}
}

// Validate 校验取值范围
func (c *Config) Validate() error {
	if c.MailboxSize < 0 {
		return fmt.Errorf("mailbox_size must be >= 0, got %d", c.MailboxSize)
	}
	if c.ThreadPoolIdle < 0 {
		return fmt.Errorf("thread_pool_idle must be >= 0, got %d", c.ThreadPoolIdle)
	}
	if c.CallTimeout < 0 || c.ShutdownTimeout < 0 {
		return errors.New("timeouts must be >= 0")
	}
	if _, err := task.ParseBacking(c.TaskBacking); err != nil {
		return errors.Wrap(err, "task_backing")
	}
	if _, err := c.Log.level(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("unsupported log format %q", c.Log.Format)
	}
	if _, err := c.Supervision.Policy(); err != nil {
		return err
	}
	return nil
}

// ═══════════════════════════════════════════════════════════════════════════
// 转换
// ═══════════════════════════════════════════════════════════════════════════

// SystemConfig 转换为 actor.SystemConfig，日志写到 w（nil 为 stderr）
func (c *Config) SystemConfig(w io.Writer) (*actor.SystemConfig, error) {
	backing, err := task.ParseBacking(c.TaskBacking)
	if err != nil {
		return nil, errors.Wrap(err, "task_backing")
	}
	logger, err := c.Log.Logger(w)
	if err != nil {
		return nil, err
	}

	sc := actor.DefaultSystemConfig()
	sc.MailboxSize = c.MailboxSize
	sc.TaskBacking = backing
	sc.LockOSThread = c.LockOSThread
	sc.ThreadPoolIdle = c.ThreadPoolIdle
	sc.CallTimeout = c.CallTimeout
	sc.ShutdownTimeout = c.ShutdownTimeout
	sc.Logger = actor.NewSlogLogger(logger)
	return sc, nil
}

func (l Log) level() (slog.Level, error) {
	var lvl slog.Level
	if l.Level == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("unsupported log level %q", l.Level)
	}
	return lvl, nil
}

// Logger 按级别与格式创建 slog.Logger
func (l Log) Logger(w io.Writer) (*slog.Logger, error) {
	lvl, err := l.level()
	if err != nil {
		return nil, err
	}
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// Policy 按配置创建重启策略
func (s Supervision) Policy() (actor.RestartPolicy, error) {
	switch s.Strategy {
	case "", StrategyOneForOne:
		return actor.NewOneForOneStrategy(s.MaxRestarts, s.Within, actor.DefaultDecider), nil
	case StrategyAllForOne:
		return actor.NewAllForOneStrategy(s.MaxRestarts, s.Within, actor.DefaultDecider), nil
	case StrategyBackoff:
		if s.InitialDelay <= 0 {
			return nil, errors.New("supervision.initial_delay must be > 0 for backoff")
		}
		return actor.NewExponentialBackoffStrategy(s.InitialDelay, s.MaxDelay, s.MaxRestarts, actor.DefaultDecider), nil
	default:
		return nil, fmt.Errorf("unsupported supervision strategy %q", s.Strategy)
	}
}
