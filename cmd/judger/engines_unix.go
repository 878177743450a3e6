//go:build unix

package main

import (
	"chiko/internal/judge/sandbox/engine"
	"chiko/internal/judge/sandbox/engine/host"
)

func newEngine(cfg SandboxConfig) (engine.Engine, error) {
	if cfg.Driver == driverHost {
		return host.New(), nil
	}
	return engine.NewEngine(cfg.Config)
}
