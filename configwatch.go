// configwatch.go: optional hot-reload of package-level defaults
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package netlet

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/agilira/argus"
)

// fileDefaults is the on-disk shape watched by WatchDefaults. Fields left at
// their zero value keep the currently active default.
type fileDefaults struct {
	MaxSendBufferSize        string `json:"max_sendbuffer_size"`
	MaxSendBufferBytes       string `json:"max_sendbuffer_bytes"`
	WriteCountUpdateInterval string `json:"write_count_update_interval"`
}

// WatchDefaults watches path for changes and refreshes the package-level
// default EnvConfig (see CurrentDefaults) on every write. It never touches an
// endpoint already constructed; only endpoints created with NewWithDefaults
// after a reload observe the new values. Callers typically call this once
// at process startup and keep the returned watcher alive for the process
// lifetime.
//
// The returned argus.Watcher must be closed by the caller to stop watching.
func WatchDefaults(path string, logger *slog.Logger) (*argus.Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	apply := func() {
		raw, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("config watch: read failed", "path", path, "error", err)
			return
		}

		var fd fileDefaults
		if err := json.Unmarshal(raw, &fd); err != nil {
			logger.Warn("config watch: invalid json", "path", path, "error", err)
			return
		}

		next := CurrentDefaults()
		if fd.MaxSendBufferSize != "" {
			if n, err := ParseSize(fd.MaxSendBufferSize); err == nil && n > 0 {
				next.MaxSendBufferSize = int(n)
			} else if err != nil {
				logger.Warn("config watch: bad max_sendbuffer_size", "value", fd.MaxSendBufferSize, "error", err)
			}
		}
		if fd.MaxSendBufferBytes != "" {
			if n, err := ParseSize(fd.MaxSendBufferBytes); err == nil {
				next.MaxSendBufferBytes = n
			} else {
				logger.Warn("config watch: bad max_sendbuffer_bytes", "value", fd.MaxSendBufferBytes, "error", err)
			}
		}
		if fd.WriteCountUpdateInterval != "" {
			if d, err := ParseDuration(fd.WriteCountUpdateInterval); err == nil && d > 0 {
				next.WriteCountUpdateInterval = d
			} else {
				logger.Warn("config watch: bad write_count_update_interval", "value", fd.WriteCountUpdateInterval, "error", err)
			}
		}

		setDefaults(next)
		logger.Info("config watch: defaults refreshed", "path", path)
	}

	// Prime the defaults once synchronously so a fresh process that starts
	// with a file already in place picks it up before the first endpoint is
	// constructed.
	apply()

	watcher, err := argus.Watch(path, func(argus.ChangeEvent) {
		apply()
	})
	if err != nil {
		return nil, fmt.Errorf("watch defaults %q: %w", path, err)
	}

	return watcher, nil
}
