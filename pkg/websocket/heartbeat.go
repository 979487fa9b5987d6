package websocket

import (
	"context"
	"time"
)

// DefaultHeartbeatInterval is the time between liveness checks.
const DefaultHeartbeatInterval = 5 * time.Second

// StartHeartbeatChecker runs RunHeartbeat in a new goroutine.
func (r *Registry) StartHeartbeatChecker(ctx context.Context, interval time.Duration) {
	go r.RunHeartbeat(ctx, interval)
}

// RunHeartbeat calls CheckHeartbeats every interval until ctx is done.
// It always returns nil, so it can be used directly with errgroup.
func (r *Registry) RunHeartbeat(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.CheckHeartbeats()
		}
	}
}

// CheckHeartbeats runs one liveness pass. A connection that has not
// answered the previous ping is terminated; every other connection is
// marked not-alive and pinged. A pong marks it alive again.
func (r *Registry) CheckHeartbeats() {
	var dead, live []Peer

	r.mu.Lock()
	for _, data := range r.connections {
		if !data.isAlive {
			dead = append(dead, data.peer)
			continue
		}
		data.isAlive = false
		live = append(live, data.peer)
	}
	r.mu.Unlock()

	for _, p := range dead {
		r.logger.Info("terminating unresponsive connection", "conn_id", p.ID())
		r.metrics.Terminated()
		p.Terminate()
	}
	for _, p := range live {
		p.Ping()
	}
}
