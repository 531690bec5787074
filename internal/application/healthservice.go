package application

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Health statuses, worst last.
const (
	HealthOK       = "ok"
	HealthDegraded = "degraded"
)

// Pinger is any dependency that can report whether it is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// Ping calls f.
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// ComponentHealth is the probe result for one dependency.
type ComponentHealth struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// HealthSummary is the combined view over every registered dependency.
type HealthSummary struct {
	Status     string            `json:"status"`
	Components []ComponentHealth `json:"components"`
	CheckedAt  time.Time         `json:"checked_at"`
}

// HealthService probes storage and limiter backends for the health endpoint.
type HealthService struct {
	checks  map[string]Pinger
	timeout time.Duration
	now     func() time.Time
}

// NewHealthService creates a HealthService. Each probe is bounded by timeout.
func NewHealthService(timeout time.Duration) *HealthService {
	return &HealthService{
		checks:  make(map[string]Pinger),
		timeout: timeout,
		now:     time.Now,
	}
}

// Register adds a named dependency. It must be called before Check is used.
func (s *HealthService) Register(name string, p Pinger) {
	s.checks[name] = p
}

// Check probes every dependency concurrently. The summary is degraded when
// any probe fails.
func (s *HealthService) Check(ctx context.Context) HealthSummary {
	results := make([]ComponentHealth, 0, len(s.checks))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	for name, p := range s.checks {
		wg.Add(1)
		go func() {
			defer wg.Done()

			probeCtx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()

			c := ComponentHealth{Name: name, Status: HealthOK}
			if err := p.Ping(probeCtx); err != nil {
				c.Status = HealthDegraded
				c.Error = err.Error()
			}

			mu.Lock()
			results = append(results, c)
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })

	return HealthSummary{
		Status:     combinedStatus(results),
		Components: results,
		CheckedAt:  s.now().UTC(),
	}
}

func combinedStatus(components []ComponentHealth) string {
	for _, c := range components {
		if c.Status != HealthOK {
			return HealthDegraded
		}
	}
	return HealthOK
}
