package services

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/brightcart/api/internal/domain"
	"github.com/brightcart/api/internal/repositories"
)

// HealthServiceDeps wires the health service.
type HealthServiceDeps struct {
	Health      repositories.HealthRepository
	Version     string
	Environment string
	StartedAt   time.Time
	Clock       func() time.Time
}

type healthService struct {
	health      repositories.HealthRepository
	version     string
	environment string
	startedAt   time.Time
	now         func() time.Time
}

// NewHealthService constructs a HealthService.
func NewHealthService(deps HealthServiceDeps) (HealthService, error) {
	if deps.Health == nil {
		return nil, errors.New("health service: health repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	started := deps.StartedAt
	if started.IsZero() {
		started = clock()
	}
	version := strings.TrimSpace(deps.Version)
	if version == "" {
		version = "dev"
	}
	return &healthService{
		health:      deps.Health,
		version:     version,
		environment: strings.TrimSpace(deps.Environment),
		startedAt:   started.UTC(),
		now:         func() time.Time { return clock().UTC() },
	}, nil
}

// Liveness reports that the process is serving without touching dependencies.
func (s *healthService) Liveness(context.Context) HealthReport {
	return s.decorate(HealthReport{Status: domain.HealthStatusOK, GeneratedAt: s.now()})
}

// Readiness probes every dependency.
func (s *healthService) Readiness(ctx context.Context) (HealthReport, error) {
	report, err := s.health.Collect(ctx)
	if err != nil {
		return HealthReport{}, err
	}
	return s.decorate(report), nil
}

func (s *healthService) decorate(report HealthReport) HealthReport {
	report.Version = s.version
	report.Environment = s.environment
	report.Uptime = s.now().Sub(s.startedAt)
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = s.now()
	}
	return report
}
