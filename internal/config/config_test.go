package config

import (
	"strings"
	"testing"
	"time"

	"github.com/trueLoving/Stationuli/internal/models"
)

func env(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestApplyEnv(t *testing.T) {
	c := Default()
	err := c.ApplyEnv(env(map[string]string{
		"STATIONULI_PORT":            "9001",
		"STATIONULI_DEVICE_TYPE":     " mobile ",
		"STATIONULI_RECEIVE_DIR":     "/tmp/in",
		"STATIONULI_CHUNK_SIZE":      "4096",
		"STATIONULI_CONNECT_TIMEOUT": "3s",
		"STATIONULI_MULTICAST":       "false",
	}))
	if err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}

	if c.Port != 9001 || c.ReceiveDir != "/tmp/in" || c.ChunkSize != 4096 ||
		c.ConnectTimeout != 3*time.Second || c.Multicast {
		t.Errorf("config %+v", c)
	}
	if c.Type() != models.DeviceMobile {
		t.Errorf("type %s", c.Type())
	}
	if c.IdleTimeout != Default().IdleTimeout {
		t.Error("unset variable changed a field")
	}
}

func TestApplyEnvReportsEveryBadValue(t *testing.T) {
	c := Default()
	err := c.ApplyEnv(env(map[string]string{
		"STATIONULI_PORT":         "70000",
		"STATIONULI_IDLE_TIMEOUT": "soon",
	}))
	if err == nil {
		t.Fatal("expected an error")
	}
	for _, key := range []string{"STATIONULI_PORT", "STATIONULI_IDLE_TIMEOUT"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error %q does not mention %s", err, key)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"chunk size", func(c *Config) { c.ChunkSize = 0 }},
		{"connect timeout", func(c *Config) { c.ConnectTimeout = -time.Second }},
		{"idle timeout", func(c *Config) { c.IdleTimeout = 0 }},
		{"receive dir", func(c *Config) { c.ReceiveDir = " " }},
		{"device type", func(c *Config) { c.DeviceType = "toaster" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(&c)
			if err := c.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
