// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads and watches Rosemary's configuration.
//
// Supports both TOML and JSON configuration formats, with defaults,
// environment variable overrides, and validation.
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (ROSEMARY_*)
//   - ~/.rosemary/config.toml
//   - ~/.rosemary/config.json
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil && cfg == nil {
//	    log.Fatal(err)
//	}
//
// Hot reload:
//
//	config.Watch(ctx, path, func(cfg *config.Config, err error) {
//	    if err == nil {
//	        client.SetBaseURL(cfg.Server.URL)
//	    }
//	})
package config
