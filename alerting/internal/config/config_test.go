package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NATS.URL)
	assert.Equal(t, "hw.alerts.v1", cfg.Alerts.Sub)
	assert.Equal(t, "alerts", cfg.Alerts.Queue)
	assert.Equal(t, "alerts.ndjson", cfg.Alerts.Log)
	assert.Empty(t, cfg.Alerts.Exec)
	assert.Zero(t, cfg.Alerts.ExecTimeout)
	assert.True(t, cfg.Alerts.Echo)
	assert.False(t, cfg.Alerts.Durable)
	assert.Equal(t, "alert-sink", cfg.Alerts.Consumer)
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("HW_ALERTS_SUB", "hw.alerts.>")
	t.Setenv("HW_ALERTS_QUEUE", "sinks")
	t.Setenv("HW_ALERT_LOG", "/var/log/hw/alerts.ndjson")
	t.Setenv("HW_ALERT_EXEC", "/usr/local/bin/strobe")
	t.Setenv("HW_ALERT_EXEC_TIMEOUT", "3s")
	t.Setenv("HW_ALERTS_DURABLE", "true")

	cfg, err := Load("", nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "hw.alerts.>", cfg.Alerts.Sub)
	assert.Equal(t, "sinks", cfg.Alerts.Queue)
	assert.Equal(t, "/var/log/hw/alerts.ndjson", cfg.Alerts.Log)
	assert.Equal(t, "/usr/local/bin/strobe", cfg.Alerts.Exec)
	assert.Equal(t, 3*time.Second, cfg.Alerts.ExecTimeout)
	assert.True(t, cfg.Alerts.Durable)
}

func TestLoad_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerting.yaml")
	require.NoError(t, os.WriteFile(path, []byte("alerts:\n  log: file.ndjson\n  exec: siren\n"), 0o600))

	flags := pflag.NewFlagSet("alerting", pflag.ContinueOnError)
	keys := RegisterFlags(flags)
	require.NoError(t, flags.Parse([]string{"--log", "flag.ndjson", "--echo=false", "--exec-timeout", "250ms"}))

	cfg, err := Load(path, flags, keys)
	require.NoError(t, err)

	assert.Equal(t, "flag.ndjson", cfg.Alerts.Log)
	assert.Equal(t, "siren", cfg.Alerts.Exec)
	assert.False(t, cfg.Alerts.Echo)
	assert.Equal(t, 250*time.Millisecond, cfg.Alerts.ExecTimeout)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{name: "negative timeout", env: map[string]string{"HW_ALERT_EXEC_TIMEOUT": "-1s"}, wantErr: "exec_timeout"},
		{name: "blank log", env: map[string]string{"HW_ALERT_LOG": " "}, wantErr: "alerts.log"},
		{name: "blank subject", env: map[string]string{"HW_ALERTS_SUB": " "}, wantErr: "alerts.sub"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("", nil, nil)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
