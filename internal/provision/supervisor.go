// ABOUTME: Supervised background provisioning runs, one goroutine per size variant
// ABOUTME: Startup launches it without waiting; callers may observe or await completion

package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/2389/limimin/internal/stamp"
)

// Supervisor runs Provision for several sizes concurrently and collects the
// outcome. A failing run never cancels the others.
type Supervisor struct {
	p      *Provisioner
	logger *slog.Logger

	once sync.Once
	done chan struct{}

	mu      sync.Mutex
	reports []*Report
	errs    []error
}

// NewSupervisor creates a supervisor for p.
func NewSupervisor(p *Provisioner, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		p:      p,
		logger: logger.With("component", "provision-supervisor"),
		done:   make(chan struct{}),
	}
}

// Start launches one provisioning run per size and returns immediately.
// Only the first call has any effect.
func (s *Supervisor) Start(ctx context.Context, sizes ...stamp.Size) {
	s.once.Do(func() {
		var g errgroup.Group
		for _, size := range sizes {
			g.Go(func() error {
				return s.run(ctx, size)
			})
		}

		go func() {
			_ = g.Wait()
			s.logger.Info("background provisioning finished")
			close(s.done)
		}()
	})
}

func (s *Supervisor) run(ctx context.Context, size stamp.Size) error {
	report, err := s.p.Provision(ctx, size)

	s.mu.Lock()
	defer s.mu.Unlock()
	if report != nil {
		s.reports = append(s.reports, report)
	}
	if err != nil {
		s.logger.Error("provisioning run failed", "size", size.String(), "error", err)
		err = fmt.Errorf("provisioning %s: %w", size, err)
		s.errs = append(s.errs, err)
	}
	return err
}

// Done is closed once every run has returned.
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until every run has returned or ctx is done. It returns the
// reports gathered so far and the joined run errors (or ctx's error).
func (s *Supervisor) Wait(ctx context.Context) ([]*Report, error) {
	select {
	case <-s.done:
	case <-ctx.Done():
		reports, _ := s.snapshot()
		return reports, ctx.Err()
	}
	return s.snapshot()
}

func (s *Supervisor) snapshot() ([]*Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reports := make([]*Report, len(s.reports))
	copy(reports, s.reports)
	return reports, errors.Join(s.errs...)
}
