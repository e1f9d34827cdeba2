/*
scheduler.go - Statutory table file watcher

PURPOSE:
  DANE publishes the CPI and the government decrees the minimum wage once a
  year. Operators drop the new table version into the YAML file named by
  LIQUIDADOR_INDEX_FILE; this scheduler picks it up without a restart.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Loads and validates the file on every tick
  - Registers the file's version only if it is new (append-only); a file
    whose version is already registered is ignored, even if its rows differ
  - An invalid file is logged and skipped; the registry is unchanged

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true when a path is set)

USAGE:
  scheduler := NewIndexScheduler(handler, "/etc/liquidador/index.yaml")
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: RegisterTable (also used by POST /api/index)
  - statutory/loader.go: YAML format
*/
package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/liquidador/statutory"
)

// IndexScheduler reloads a statutory table file periodically.
type IndexScheduler struct {
	Handler       *Handler
	Path          string
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewIndexScheduler creates a new scheduler for the given file.
func NewIndexScheduler(handler *Handler, path string) *IndexScheduler {
	return &IndexScheduler{
		Handler:       handler,
		Path:          path,
		CheckInterval: 1 * time.Hour,
		Enabled:       path != "",
		stop:          make(chan struct{}),
	}
}

// Start begins the scheduler.
func (s *IndexScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.Handler.Logger.Info("index scheduler disabled")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.wg.Add(1)

	go s.run()

	s.Handler.Logger.Info("index scheduler started",
		zap.String("path", s.Path),
		zap.Duration("interval", s.CheckInterval),
	)
}

// Stop stops the scheduler.
func (s *IndexScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.ticker = nil
		s.Handler.Logger.Info("index scheduler stopped")
	}
}

func (s *IndexScheduler) run() {
	defer s.wg.Done()

	// Run immediately on start
	s.RunNow(context.Background())

	for {
		select {
		case <-s.ticker.C:
			s.RunNow(context.Background())
		case <-s.stop:
			return
		}
	}
}

// RunNow loads the file once. It reports whether a new version was
// registered.
func (s *IndexScheduler) RunNow(ctx context.Context) (bool, error) {
	logger := s.Handler.Logger.With(zap.String("path", s.Path))

	table, err := statutory.LoadFile(s.Path)
	if err != nil {
		logger.Warn("statutory table file rejected", zap.Error(err))
		return false, err
	}

	err = s.Handler.RegisterTable(ctx, table)
	if errors.Is(err, statutory.ErrVersionExists) {
		logger.Debug("statutory table file unchanged", zap.String("version", table.Version()))
		return false, nil
	}
	if err != nil {
		logger.Error("failed to register statutory table", zap.Error(err))
		return false, err
	}
	return true, nil
}

// GetNextRunTime returns when the next scheduled check will occur.
func (s *IndexScheduler) GetNextRunTime() time.Time {
	return time.Now().Add(s.CheckInterval)
}
