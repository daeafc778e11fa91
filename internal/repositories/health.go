package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hanko-field/configurator/internal/domain"
)

const defaultProbeTimeout = 1500 * time.Millisecond

// DependencyCheck probes one backing service.
type DependencyCheck struct {
	Name    string
	Timeout time.Duration
	Check   func(context.Context) error
}

type probeHealthRepository struct {
	checks []DependencyCheck
	now    func() time.Time
}

// NewProbeHealthRepository runs checks concurrently on every Collect. A nil
// clock defaults to time.Now.
func NewProbeHealthRepository(checks []DependencyCheck, now func() time.Time) (HealthRepository, error) {
	if len(checks) == 0 {
		return nil, errors.New("health repository: at least one dependency check is required")
	}
	for _, c := range checks {
		if strings.TrimSpace(c.Name) == "" {
			return nil, errors.New("health repository: dependency check missing name")
		}
		if c.Check == nil {
			return nil, fmt.Errorf("health repository: dependency %s missing check function", c.Name)
		}
	}
	if now == nil {
		now = time.Now
	}
	return &probeHealthRepository{checks: append([]DependencyCheck(nil), checks...), now: now}, nil
}

func (r *probeHealthRepository) Collect(ctx context.Context) (domain.HealthReport, error) {
	statuses := make([]domain.DependencyStatus, len(r.checks))
	var wg sync.WaitGroup
	for i, check := range r.checks {
		wg.Add(1)
		go func(i int, check DependencyCheck) {
			defer wg.Done()
			statuses[i] = r.probe(ctx, check)
		}(i, check)
	}
	wg.Wait()

	report := domain.HealthReport{
		Status:      domain.HealthStatusOK,
		Checks:      make(map[string]domain.DependencyStatus, len(r.checks)),
		GeneratedAt: r.now(),
	}
	for i, check := range r.checks {
		s := statuses[i]
		report.Checks[check.Name] = s
		switch {
		case s.Status == domain.HealthStatusError:
			report.Status = domain.HealthStatusError
		case s.Status == domain.HealthStatusDegraded && report.Status == domain.HealthStatusOK:
			report.Status = domain.HealthStatusDegraded
		}
	}
	return report, nil
}

func (r *probeHealthRepository) probe(ctx context.Context, check DependencyCheck) domain.DependencyStatus {
	timeout := check.Timeout
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := r.now()
	err := check.Check(probeCtx)
	end := r.now()

	status := domain.DependencyStatus{Status: domain.HealthStatusOK, Latency: end.Sub(start), CheckedAt: end}
	switch {
	case err == nil && probeCtx.Err() == nil:
	case err == nil:
		status.Status = domain.HealthStatusError
		status.Detail = probeCtx.Err().Error()
	case errors.Is(err, context.DeadlineExceeded):
		status.Status = domain.HealthStatusError
		status.Detail = "timeout"
	case errors.Is(err, context.Canceled):
		status.Status = domain.HealthStatusError
		status.Detail = "cancelled"
	default:
		status.Status = domain.HealthStatusDegraded
		status.Detail = err.Error()
	}
	return status
}
