// Package config holds the node settings shared by the CLI commands.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/trueLoving/Stationuli/internal/models"
	"github.com/trueLoving/Stationuli/internal/transfer"
)

const envPrefix = "STATIONULI_"

type Config struct {
	Port           uint16
	DeviceName     string
	DeviceType     string
	ReceiveDir     string
	ChunkSize      int
	MaxFileSize    uint64
	ConnectTimeout time.Duration
	IdleTimeout    time.Duration
	APIAddr        string
	EventsAddr     string
	Multicast      bool
	Verbose        bool
}

func Default() Config {
	return Config{
		Port:           8080,
		DeviceType:     string(models.DeviceDesktop),
		ReceiveDir:     ".",
		ChunkSize:      transfer.DefaultChunkSize,
		ConnectTimeout: transfer.DefaultConnectTimeout,
		IdleTimeout:    transfer.DefaultIdleTimeout,
		APIAddr:        "127.0.0.1:8765",
		EventsAddr:     "127.0.0.1:8766",
		Multicast:      true,
	}
}

// ApplyEnv overrides fields from STATIONULI_* variables found by lookup.
// Pass os.LookupEnv outside tests.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(envPrefix + key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	parse := func(key string, set func(string) error) {
		v, ok := lookup(envPrefix + key)
		if !ok {
			return
		}
		if err := set(strings.TrimSpace(v)); err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", envPrefix, key, err))
		}
	}

	parse("PORT", func(v string) error {
		n, err := strconv.ParseUint(v, 10, 16)
		c.Port = uint16(n)
		return err
	})
	str("DEVICE_NAME", &c.DeviceName)
	str("DEVICE_TYPE", &c.DeviceType)
	str("RECEIVE_DIR", &c.ReceiveDir)
	parse("CHUNK_SIZE", func(v string) error {
		n, err := strconv.Atoi(v)
		c.ChunkSize = n
		return err
	})
	parse("MAX_FILE_SIZE", func(v string) error {
		n, err := strconv.ParseUint(v, 10, 64)
		c.MaxFileSize = n
		return err
	})
	parse("CONNECT_TIMEOUT", func(v string) (err error) {
		c.ConnectTimeout, err = time.ParseDuration(v)
		return err
	})
	parse("IDLE_TIMEOUT", func(v string) (err error) {
		c.IdleTimeout, err = time.ParseDuration(v)
		return err
	})
	str("API_ADDR", &c.APIAddr)
	str("EVENTS_ADDR", &c.EventsAddr)
	parse("MULTICAST", func(v string) (err error) {
		c.Multicast, err = strconv.ParseBool(v)
		return err
	})
	parse("VERBOSE", func(v string) (err error) {
		c.Verbose, err = strconv.ParseBool(v)
		return err
	})

	return errors.Join(errs...)
}

func (c *Config) FromEnv() error {
	return c.ApplyEnv(os.LookupEnv)
}

// Load returns the defaults with environment overrides applied. Command
// flags are bound on top of the result.
func Load() (Config, error) {
	c := Default()
	err := c.FromEnv()
	return c, err
}

func (c Config) Validate() error {
	var errs []error

	if c.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("chunk size must be positive, got %d", c.ChunkSize))
	}
	if c.ConnectTimeout <= 0 {
		errs = append(errs, errors.New("connect timeout must be positive"))
	}
	if c.IdleTimeout <= 0 {
		errs = append(errs, errors.New("idle timeout must be positive"))
	}
	if strings.TrimSpace(c.ReceiveDir) == "" {
		errs = append(errs, errors.New("receive directory is empty"))
	}
	switch models.DeviceType(strings.ToLower(c.DeviceType)) {
	case models.DeviceDesktop, models.DeviceMobile:
	default:
		errs = append(errs, fmt.Errorf("unknown device type %q", c.DeviceType))
	}

	return errors.Join(errs...)
}

func (c Config) Type() models.DeviceType {
	return models.ParseDeviceType(c.DeviceType)
}

func (c Config) SenderOptions() []transfer.SenderOption {
	return []transfer.SenderOption{
		transfer.WithChunkSize(c.ChunkSize),
		transfer.WithConnectTimeout(c.ConnectTimeout),
	}
}

func (c Config) ReceiverOptions() []transfer.ReceiverOption {
	return []transfer.ReceiverOption{
		transfer.WithIdleTimeout(c.IdleTimeout),
		transfer.WithMaxFileSize(c.MaxFileSize),
	}
}
