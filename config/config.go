// Copyright (c) 2025 Nuthatch Inc
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml"
)

type StartType int

const (
	// Tells the compositor to start a repl in parallel for interacting with it
	START_REPL = StartType(iota)
	// Tells the compositor to execute a specific command on startup
	START_SINGLE_COMMAND
	// Tells the compositor to start without any specific targets
	START_NONE
)

// envPrefix is the prefix of every environment override, e.g.
// NUTHATCH_DRM_DEVICE.
const envPrefix = "NUTHATCH"

type Config struct {
	StartType StartType `envconfig:"START_TYPE,omitempty" toml:"start_type,omitempty"`
	// What command to execute on start. Only matters if StartType is set to START_SINGLE_COMMAND
	StartCommand *string `envconfig:"START_COMMAND,omitempty" toml:"start_command,omitempty"`
	// Log verbosity, one of logrus' level names
	LogLevel string `envconfig:"LOG_LEVEL,omitempty" toml:"log_level,omitempty"`
	// Pins one GPU device path during bring-up and testing
	DRMDevice string `envconfig:"DRM_DEVICE,omitempty" toml:"drm_device,omitempty"`
	// Hard wall-clock exit for bring-up runs, 0 disables it
	FailsafeSeconds int `envconfig:"FAILSAFE_SECONDS,omitempty" toml:"failsafe_seconds,omitempty"`
}

func defaults() Config {
	return Config{
		StartType: START_NONE,
		LogLevel:  "info",
	}
}

// DefaultPath resolves the config file under the XDG config home.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, "nuthatch", "config.toml")
}

// Load reads the TOML config file and overlays environment variables on top.
// A missing file is not an error; the defaults apply.
func Load(path string) (*Config, error) {
	cfg := defaults()
	raw, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(raw, &cfg); err != nil {
			return nil, err
		}
	case errors.Is(err, fs.ErrNotExist):
		// defaults only
	default:
		return nil, err
	}
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
