package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/hanko-field/configurator/internal/repositories"
)

// BuildInfo captures runtime metadata exposed via health endpoints.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// HealthServiceDeps bundles collaborators required to construct a health service.
type HealthServiceDeps struct {
	HealthRepository repositories.HealthRepository
	Clock            func() time.Time
	Build            BuildInfo
}

type healthService struct {
	healthRepo repositories.HealthRepository
	clock      func() time.Time
	build      BuildInfo
}

var _ HealthService = (*healthService)(nil)

// NewHealthService assembles the readiness reporter.
func NewHealthService(deps HealthServiceDeps) (HealthService, error) {
	if deps.HealthRepository == nil {
		return nil, errors.New("health service: health repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	build := deps.Build
	if build.StartedAt.IsZero() {
		build.StartedAt = clock()
	}

	return &healthService{
		healthRepo: deps.HealthRepository,
		clock: func() time.Time {
			return clock().UTC()
		},
		build: build,
	}, nil
}

func (s *healthService) Report(ctx context.Context) (HealthReport, error) {
	report, err := s.healthRepo.Collect(ctx)
	if err != nil {
		return HealthReport{}, err
	}

	now := s.clock()
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = now
	}
	report.Version = strings.TrimSpace(s.build.Version)
	report.CommitSHA = strings.TrimSpace(s.build.CommitSHA)
	report.Environment = strings.TrimSpace(s.build.Environment)
	if uptime := now.Sub(s.build.StartedAt); uptime > 0 {
		report.Uptime = uptime
	}
	return report, nil
}
