package persona

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MarkAustinGrow/marvins-memory/pkg/logging"
)

type ManagerConfig struct {
	// Source is optional; without one the default profile is served.
	Source        Source
	PollInterval  time.Duration
	RetryInterval time.Duration
	Logger        logging.Logger
}

// Manager serves the current profile and, once started, polls the source
// for changes. A change is detected by comparing document hashes.
type Manager struct {
	source        Source
	pollInterval  time.Duration
	retryInterval time.Duration
	logger        logging.Logger

	mu      sync.RWMutex
	current Profile
	hash    string

	lifecycle sync.Mutex
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func NewManager(cfg ManagerConfig) *Manager {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Minute
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewDiscardLogger()
	}
	m := &Manager{
		source:        cfg.Source,
		pollInterval:  cfg.PollInterval,
		retryInterval: cfg.RetryInterval,
		logger:        cfg.Logger,
		current:       DefaultProfile(),
	}
	m.hash, _ = m.current.Hash()
	return m
}

// Load performs the initial fetch. On failure the previous profile (the
// default on first use) stays in place and the error is returned.
func (m *Manager) Load(ctx context.Context) error {
	if m.source == nil {
		return nil
	}
	_, err := m.refresh(ctx)
	return err
}

// Current returns a copy of the active profile.
func (m *Manager) Current() Profile {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.clone()
}

func (m *Manager) Version() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.Version
}

// refresh loads from the source and swaps the profile when its hash
// changed. It reports whether a change was applied.
func (m *Manager) refresh(ctx context.Context) (bool, error) {
	next, err := m.source.Load(ctx)
	if err != nil {
		return false, err
	}
	hash, err := next.Hash()
	if err != nil {
		return false, err
	}

	m.mu.Lock()
	if hash == m.hash {
		m.mu.Unlock()
		return false, nil
	}
	previous := m.current.Version
	m.current = next
	m.hash = hash
	m.mu.Unlock()

	m.logger.WithFields(logging.Fields{
		"character_id":     next.ID,
		"version":          next.Version,
		"previous_version": previous,
		"detected_at":      time.Now().UTC().Format(time.RFC3339),
	}).Info("Character update detected")
	return true, nil
}

// Start launches the poll loop. Polls are spaced by PollInterval, or by
// RetryInterval after a failed poll. Start is a no-op without a source or
// when already running.
func (m *Manager) Start(ctx context.Context) {
	if m.source == nil {
		return
	}
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	if m.cancel != nil {
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.wg.Add(1)
	go m.run(ctx)
}

// Stop cancels the poll loop and waits for it to exit.
func (m *Manager) Stop() {
	m.lifecycle.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.lifecycle.Unlock()
	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
}

func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()
	wait := m.pollInterval
	for {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		if err := m.poll(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			m.logger.WithError(err).WithField("retry_in", m.retryInterval).Warn("Error polling character changes")
			wait = m.retryInterval
			continue
		}
		wait = m.pollInterval
	}
}

func (m *Manager) poll(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("character poll panic: %v", r)
		}
	}()
	_, err = m.refresh(ctx)
	return err
}
