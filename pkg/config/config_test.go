package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lwmacct/251215-go-pkg-actor/pkg/actor"
	"github.com/lwmacct/251215-go-pkg-actor/pkg/task"
)

const sampleYAML = `
mailbox_size: 64
task_backing: thread
call_timeout: 250ms
log:
  level: debug
  format: json
supervision:
  strategy: backoff
  max_restarts: 5
  initial_delay: 50ms
  max_delay: 2s
`

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), *cfg)
}

func TestLoadBytesYAML(t *testing.T) {
	cfg, err := LoadBytes([]byte(sampleYAML), FormatYAML)
	require.NoError(t, err)

	assert.Equal(t, 64, cfg.MailboxSize)
	assert.Equal(t, "thread", cfg.TaskBacking)
	assert.Equal(t, 250*time.Millisecond, cfg.CallTimeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, StrategyBackoff, cfg.Supervision.Strategy)
	assert.Equal(t, 2*time.Second, cfg.Supervision.MaxDelay)

	// 未出现的键保留默认值
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, time.Minute, cfg.Supervision.Within)
}

func TestLoadBytesJSON(t *testing.T) {
	cfg, err := LoadBytes([]byte(`{"shutdown_timeout": "5s", "lock_os_thread": true, "log": {"level": "warn"}}`), FormatJSON)
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
	assert.True(t, cfg.LockOSThread)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "actor.yml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.MailboxSize)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	txt := filepath.Join(dir, "actor.toml")
	require.NoError(t, os.WriteFile(txt, []byte("x = 1"), 0o600))
	_, err = Load(txt)
	assert.ErrorContains(t, err, "unsupported config format")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"mailbox", "mailbox_size: -1", "mailbox_size"},
		{"backing", "task_backing: green", "task_backing"},
		{"level", "log: {level: verbose}", "log level"},
		{"format", "log: {format: xml}", "log format"},
		{"strategy", "supervision: {strategy: rest_for_one}", "supervision strategy"},
		{"backoff delay", "supervision: {strategy: backoff, initial_delay: 0s}", "initial_delay"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadBytes([]byte(tt.yaml), FormatYAML)
			assert.ErrorContains(t, err, tt.want)
		})
	}

	_, err := LoadBytes([]byte("{}"), "toml")
	assert.ErrorContains(t, err, "unsupported config format")
}

func TestSystemConfig(t *testing.T) {
	cfg, err := LoadBytes([]byte(sampleYAML), FormatYAML)
	require.NoError(t, err)

	var buf bytes.Buffer
	sc, err := cfg.SystemConfig(&buf)
	require.NoError(t, err)
	assert.Equal(t, 64, sc.MailboxSize)
	assert.Equal(t, task.Thread, sc.TaskBacking)
	assert.Equal(t, 250*time.Millisecond, sc.CallTimeout)
	require.NotNil(t, sc.Logger)

	sc.Logger.Debug("hello", "k", "v")
	assert.Contains(t, buf.String(), `"msg":"hello"`)
	assert.Contains(t, buf.String(), `"k":"v"`)
}

func TestSystemConfigLevelFilters(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "error"

	var buf bytes.Buffer
	sc, err := cfg.SystemConfig(&buf)
	require.NoError(t, err)

	sc.Logger.Debug("quiet")
	sc.Logger.Warn("quiet too")
	assert.Empty(t, buf.String())
	sc.Logger.Error("loud")
	assert.Contains(t, buf.String(), "loud")
}

func TestSupervisionPolicy(t *testing.T) {
	s := Default().Supervision

	p, err := s.Policy()
	require.NoError(t, err)
	assert.IsType(t, &actor.OneForOneStrategy{}, p)

	s.Strategy = StrategyAllForOne
	p, err = s.Policy()
	require.NoError(t, err)
	assert.IsType(t, &actor.AllForOneStrategy{}, p)

	s.Strategy = StrategyBackoff
	p, err = s.Policy()
	require.NoError(t, err)
	backoff, ok := p.(*actor.ExponentialBackoffStrategy)
	require.True(t, ok)
	assert.Equal(t, 100*time.Millisecond, backoff.HandleFailure("m", assert.AnError).Delay)
}

func TestConfiguredSystemRuns(t *testing.T) {
	cfg, err := LoadBytes([]byte("task_backing: thread\nshutdown_timeout: 2s\nlog: {level: error}"), FormatYAML)
	require.NoError(t, err)
	sc, err := cfg.SystemConfig(&bytes.Buffer{})
	require.NoError(t, err)

	sys := actor.NewSystemWithConfig("configured", sc)
	defer sys.Shutdown()
	assert.Equal(t, task.Thread, sys.Config().TaskBacking)
}
