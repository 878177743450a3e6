//go:build !unix

package main

import (
	"chiko/internal/judge/sandbox/engine"
	appErr "chiko/pkg/errors"
)

func newEngine(cfg SandboxConfig) (engine.Engine, error) {
	if cfg.Driver == driverHost {
		return nil, appErr.Newf(appErr.InvalidParams, "sandbox driver %s is not available on this platform", cfg.Driver)
	}
	return engine.NewEngine(cfg.Config)
}
