// config_test.go: size/duration parsing and env-sourced defaults
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package netlet

import (
	"testing"
	"time"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"1024", 1024, false},
		{"1KB", 1024, false},
		{"1MB", 1024 * 1024, false},
		{"2GB", 2 * 1024 * 1024 * 1024, false},
		{"1TB", 1024 * 1024 * 1024 * 1024, false},
		{"4K", 4 * 1024, false},
		{"unlimited", UnlimitedSendBufferBytes, false},
		{"UNLIMITED", UnlimitedSendBufferBytes, false},
		{"", 0, true},
		{"notasize", 0, true},
		{"5XB", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSize(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSize(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Fatalf("ParseSize(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"30s", 30 * time.Second, false},
		{"1m", time.Minute, false},
		{"2d", 48 * time.Hour, false},
		{"1w", 7 * 24 * time.Hour, false},
		{"", 0, true},
		{"garbage", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDuration(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDuration(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Fatalf("ParseDuration(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestLoadEnvConfigDefaultsWithoutEnv(t *testing.T) {
	t.Setenv("MAX_SENDBUFFER_SIZE", "")
	t.Setenv("MAX_SENDBUFFER_BYTES", "")
	t.Setenv("WRITE_COUNT_UPDATE_INTERVAL", "")

	cfg := LoadEnvConfig()
	if cfg.MaxSendBufferSize != defaultMaxSendBufferSize {
		t.Errorf("MaxSendBufferSize = %d, want %d", cfg.MaxSendBufferSize, defaultMaxSendBufferSize)
	}
	if cfg.MaxSendBufferBytes != UnlimitedSendBufferBytes {
		t.Errorf("MaxSendBufferBytes = %d, want unlimited", cfg.MaxSendBufferBytes)
	}
	if cfg.WriteCountUpdateInterval != defaultWriteCountUpdateInterval {
		t.Errorf("WriteCountUpdateInterval = %v, want %v", cfg.WriteCountUpdateInterval, defaultWriteCountUpdateInterval)
	}
}

func TestLoadEnvConfigHonorsOverrides(t *testing.T) {
	t.Setenv("MAX_SENDBUFFER_SIZE", "2MB")
	t.Setenv("MAX_SENDBUFFER_BYTES", "unlimited")
	t.Setenv("WRITE_COUNT_UPDATE_INTERVAL", "5s")

	cfg := LoadEnvConfig()
	if cfg.MaxSendBufferSize != 2*1024*1024 {
		t.Errorf("MaxSendBufferSize = %d, want %d", cfg.MaxSendBufferSize, 2*1024*1024)
	}
	if cfg.WriteCountUpdateInterval != 5*time.Second {
		t.Errorf("WriteCountUpdateInterval = %v, want 5s", cfg.WriteCountUpdateInterval)
	}
}

func TestCurrentDefaultsReflectsSetDefaults(t *testing.T) {
	original := CurrentDefaults()
	defer setDefaults(original)

	setDefaults(EnvConfig{MaxSendBufferSize: 777, MaxSendBufferBytes: 1, WriteCountUpdateInterval: time.Second})

	got := CurrentDefaults()
	if got.MaxSendBufferSize != 777 {
		t.Errorf("CurrentDefaults().MaxSendBufferSize = %d, want 777", got.MaxSendBufferSize)
	}
}
