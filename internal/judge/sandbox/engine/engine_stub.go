//go:build !linux

package engine

import (
	"context"

	"chiko/internal/judge/sandbox/spec"
	appErr "chiko/pkg/errors"
)

type stubEngine struct{}

func NewEngine(cfg Config) (Engine, error) {
	return &stubEngine{}, nil
}

func (s *stubEngine) ResolveIdentity(rootfs, account string) (spec.Identity, error) {
	return ReadPasswd(rootfs, account)
}

func (s *stubEngine) Start(ctx context.Context, _ spec.InvocationSpec) (Handle, error) {
	return nil, appErr.New(appErr.InvocationRejected).WithMessage("sandbox engine is only supported on linux")
}
