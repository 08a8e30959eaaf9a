// config.go: environment-injected, one-shot-per-endpoint configuration
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package netlet

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// UnlimitedSendBufferBytes is the sentinel value for MaxSendBufferBytes that
// disables byte-cap accounting entirely.
const UnlimitedSendBufferBytes int64 = -1

const (
	defaultMaxSendBufferSize        = 32768
	defaultWriteCountUpdateInterval = 30 * time.Second
	envMaxSendBufferSize            = "MAX_SENDBUFFER_SIZE"
	envMaxSendBufferBytes           = "MAX_SENDBUFFER_BYTES"
	envWriteCountUpdateInterval     = "WRITE_COUNT_UPDATE_INTERVAL"
)

// ParseSize converts size strings like "100MB", "1GB", or the literal
// "unlimited" to bytes. Supports case-insensitive input and single-letter
// units (K, M, G, T). The "unlimited" sentinel returns UnlimitedSendBufferBytes.
func ParseSize(s string) (int64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	if strings.EqualFold(s, "unlimited") {
		return UnlimitedSendBufferBytes, nil
	}

	// Handle plain numbers (bytes)
	if val, err := strconv.ParseInt(s, 10, 64); err == nil {
		return val, nil
	}

	// Normalize to uppercase for case-insensitive parsing
	up := strings.ToUpper(s)

	var multiplier int64
	var numStr string

	switch {
	case strings.HasSuffix(up, "KB"):
		multiplier = 1024
		numStr = up[:len(up)-2]
	case strings.HasSuffix(up, "MB"):
		multiplier = 1024 * 1024
		numStr = up[:len(up)-2]
	case strings.HasSuffix(up, "GB"):
		multiplier = 1024 * 1024 * 1024
		numStr = up[:len(up)-2]
	case strings.HasSuffix(up, "TB"):
		multiplier = 1024 * 1024 * 1024 * 1024
		numStr = up[:len(up)-2]
	case strings.HasSuffix(up, "K"):
		multiplier = 1024
		numStr = up[:len(up)-1]
	case strings.HasSuffix(up, "M"):
		multiplier = 1024 * 1024
		numStr = up[:len(up)-1]
	case strings.HasSuffix(up, "G"):
		multiplier = 1024 * 1024 * 1024
		numStr = up[:len(up)-1]
	case strings.HasSuffix(up, "T"):
		multiplier = 1024 * 1024 * 1024 * 1024
		numStr = up[:len(up)-1]
	default:
		return 0, fmt.Errorf("unknown size suffix in %q (supported: KB/K, MB/M, GB/G, TB/T, unlimited)", s)
	}

	val, err := strconv.ParseInt(numStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size number in %q: %v", s, err)
	}

	result := val * multiplier
	if result < 0 {
		return 0, fmt.Errorf("size %q too large", s)
	}

	return result, nil
}

// ParseDuration converts duration strings like "30s", "1m" to time.Duration,
// accepting anything the standard library's time.ParseDuration accepts plus
// the bare "d"/"w" day/week suffixes used elsewhere in the AGILira stack.
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("empty duration string")
	}

	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}

	lower := strings.ToLower(s)

	var multiplier time.Duration
	var numStr string

	switch {
	case strings.HasSuffix(lower, "d"):
		multiplier = 24 * time.Hour
		numStr = lower[:len(lower)-1]
	case strings.HasSuffix(lower, "w"):
		multiplier = 7 * 24 * time.Hour
		numStr = lower[:len(lower)-1]
	default:
		return 0, fmt.Errorf("unknown duration suffix in %q", s)
	}

	val, err := strconv.ParseInt(numStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration number in %q: %v", s, err)
	}

	return time.Duration(val) * multiplier, nil
}

// EnvConfig holds the process-wide, environment-injected defaults described
// in the external interfaces contract. Individual endpoints capture a copy
// at construction time (see NewWithDefaults); changing EnvConfig afterward
// never affects an already-constructed endpoint.
type EnvConfig struct {
	// MaxSendBufferSize bounds any single ring's capacity; a non-power-of-two
	// value is rounded up (and logged) the first time a ring is allocated.
	MaxSendBufferSize int

	// MaxSendBufferBytes caps outstanding send bytes; UnlimitedSendBufferBytes
	// disables accounting.
	MaxSendBufferBytes int64

	// WriteCountUpdateInterval throttles publication of the write-byte
	// counter from the reactor goroutine to the producer.
	WriteCountUpdateInterval time.Duration
}

// defaultEnvConfig returns the library's built-in defaults, used when no
// environment variable or file default is present.
func defaultEnvConfig() EnvConfig {
	return EnvConfig{
		MaxSendBufferSize:        defaultMaxSendBufferSize,
		MaxSendBufferBytes:       UnlimitedSendBufferBytes,
		WriteCountUpdateInterval: defaultWriteCountUpdateInterval,
	}
}

// LoadEnvConfig reads MAX_SENDBUFFER_SIZE, MAX_SENDBUFFER_BYTES and
// WRITE_COUNT_UPDATE_INTERVAL from the environment, falling back to built-in
// defaults for anything unset or unparsable. This is the one-shot load
// performed at process startup (see the package-level defaults snapshot).
func LoadEnvConfig() EnvConfig {
	cfg := defaultEnvConfig()

	if v := os.Getenv(envMaxSendBufferSize); v != "" {
		if n, err := ParseSize(v); err == nil && n > 0 {
			cfg.MaxSendBufferSize = int(n)
		}
	}
	if v := os.Getenv(envMaxSendBufferBytes); v != "" {
		if n, err := ParseSize(v); err == nil {
			cfg.MaxSendBufferBytes = n
		}
	}
	if v := os.Getenv(envWriteCountUpdateInterval); v != "" {
		if d, err := ParseDuration(v); err == nil && d > 0 {
			cfg.WriteCountUpdateInterval = d
		}
	}

	return cfg
}

// defaultConfig is the package-level snapshot endpoints read from when
// constructed with NewWithDefaults. It is loaded once from the environment
// at package init and may later be refreshed by WatchDefaults; refreshing it
// never mutates an endpoint that already captured a copy.
var defaultConfig atomic.Pointer[EnvConfig]

func init() {
	cfg := LoadEnvConfig()
	defaultConfig.Store(&cfg)
}

// CurrentDefaults returns a copy of the current package-level default
// configuration.
func CurrentDefaults() EnvConfig {
	return *defaultConfig.Load()
}

// setDefaults atomically replaces the package-level default configuration.
// Used by WatchDefaults on each file change; never called with a partial or
// invalid configuration.
func setDefaults(cfg EnvConfig) {
	defaultConfig.Store(&cfg)
}
