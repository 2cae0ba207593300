package protocol

import (
	"log/slog"
	"sync"
	"time"
)

// UnbanTimer periodically restores every banned peer to trusted, giving
// punished peers a path back into the network.
type UnbanTimer struct {
	peers    *PeerDB
	interval time.Duration

	sweepMu sync.Mutex
	quit    chan struct{}
	wg      sync.WaitGroup
	logger  *slog.Logger
	metrics *Metrics
}

// NewUnbanTimer builds the timer. Start must be called to run it.
func NewUnbanTimer(peers *PeerDB, interval time.Duration, logger *slog.Logger) *UnbanTimer {
	if interval <= 0 {
		interval = defaultUnbanEveryoneInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &UnbanTimer{
		peers:    peers,
		interval: interval,
		quit:     make(chan struct{}),
		logger:   logger,
		metrics:  coreMetrics(),
	}
}

// Start launches the periodic sweep.
func (t *UnbanTimer) Start() {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				t.Sweep()
			case <-t.quit:
				return
			}
		}
	}()
}

// Stop halts the timer.
func (t *UnbanTimer) Stop() {
	close(t.quit)
	t.wg.Wait()
}

// Sweep unbans everyone once. Overlapping sweeps collapse into one.
func (t *UnbanTimer) Sweep() {
	if !t.sweepMu.TryLock() {
		return
	}
	defer t.sweepMu.Unlock()

	unbanned := t.peers.UnbanAll()
	if len(unbanned) == 0 {
		return
	}
	t.metrics.AddUnbans(len(unbanned))
	t.logger.Info("unban sweep", slog.Int("peers", len(unbanned)))
}
