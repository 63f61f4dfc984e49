package dnsproxy

import (
	"net"
	"sync"
	"time"
)

// rateLimiter enforces a per-client sliding-window query budget. A
// limiter with maxQueries 0 allows everything and starts no goroutine,
// matching the proxy's default of unlimited queries from the single
// trusted loopback listener.
type rateLimiter struct {
	mu          sync.Mutex
	clients     map[string]*clientWindow
	maxQueries  int
	window      time.Duration
	cleanupTime time.Duration
	shutdownCh  chan struct{}
	wg          sync.WaitGroup
}

type clientWindow struct {
	queries []time.Time
}

func newRateLimiter(maxQueries int, window time.Duration) *rateLimiter {
	rl := &rateLimiter{
		clients:     make(map[string]*clientWindow),
		maxQueries:  maxQueries,
		window:      window,
		cleanupTime: 5 * time.Minute,
		shutdownCh:  make(chan struct{}),
	}
	if maxQueries > 0 {
		rl.wg.Add(1)
		go rl.cleanupLoop()
	}
	return rl
}

// Allow reports whether clientIP may make another query right now, and
// records the attempt if so.
func (rl *rateLimiter) Allow(clientIP net.IP) bool {
	if rl.maxQueries <= 0 {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	key := clientIP.String()
	client, ok := rl.clients[key]
	if !ok {
		client = &clientWindow{queries: make([]time.Time, 0, rl.maxQueries)}
		rl.clients[key] = client
	}

	now := time.Now()
	cutoff := now.Add(-rl.window)
	kept := client.queries[:0]
	for _, ts := range client.queries {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	client.queries = kept

	if len(client.queries) >= rl.maxQueries {
		return false
	}
	client.queries = append(client.queries, now)
	return true
}

func (rl *rateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-rl.window * 2)
	for key, client := range rl.clients {
		recent := false
		for _, ts := range client.queries {
			if ts.After(cutoff) {
				recent = true
				break
			}
		}
		if !recent {
			delete(rl.clients, key)
		}
	}
}

func (rl *rateLimiter) cleanupLoop() {
	defer rl.wg.Done()
	ticker := time.NewTicker(rl.cleanupTime)
	defer ticker.Stop()
	for {
		select {
		case <-rl.shutdownCh:
			return
		case <-ticker.C:
			rl.cleanup()
		}
	}
}

func (rl *rateLimiter) Stop() {
	if rl.maxQueries <= 0 {
		return
	}
	select {
	case <-rl.shutdownCh:
	default:
		close(rl.shutdownCh)
	}
	rl.wg.Wait()
}
