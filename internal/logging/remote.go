package logging

import (
	"encoding/json"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ringBuffer is a fixed-size, thread-safe circular buffer of log
// entries. A full buffer drops its oldest entry rather than blocking
// the logging call site.
type ringBuffer struct {
	entries []logrus.Fields
	size    int
	head    int
	tail    int
	count   int
	mu      sync.Mutex
}

func newRingBuffer(size int) *ringBuffer {
	if size <= 0 {
		size = 1000
	}
	return &ringBuffer{entries: make([]logrus.Fields, size), size: size}
}

func (r *ringBuffer) push(f logrus.Fields) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count == r.size {
		r.head = (r.head + 1) % r.size
		r.count--
	}
	r.entries[r.tail] = f
	r.tail = (r.tail + 1) % r.size
	r.count++
}

func (r *ringBuffer) pop() (logrus.Fields, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count == 0 {
		return nil, false
	}
	f := r.entries[r.head]
	r.head = (r.head + 1) % r.size
	r.count--
	return f, true
}

// RemoteSink forwards log entries as newline-delimited JSON to a
// single TCP endpoint, buffered and flushed on a ticker so a slow or
// unreachable collector never blocks the logging call site.
type RemoteSink struct {
	addr       string
	buffer     *ringBuffer
	shutdownCh chan struct{}
	wg         sync.WaitGroup
}

// NewRemoteSink starts a background worker forwarding to addr.
func NewRemoteSink(addr string) *RemoteSink {
	s := &RemoteSink{addr: addr, buffer: newRingBuffer(1000), shutdownCh: make(chan struct{})}
	s.wg.Add(1)
	go s.worker()
	return s
}

// Levels implements logrus.Hook.
func (s *RemoteSink) Levels() []logrus.Level { return logrus.AllLevels }

// Fire implements logrus.Hook.
func (s *RemoteSink) Fire(entry *logrus.Entry) error {
	fields := make(logrus.Fields, len(entry.Data)+2)
	for k, v := range entry.Data {
		fields[k] = v
	}
	fields["message"] = entry.Message
	fields["level"] = entry.Level.String()
	fields["time"] = entry.Time
	s.buffer.push(fields)
	return nil
}

func (s *RemoteSink) worker() {
	defer s.wg.Done()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-s.shutdownCh:
			s.flush()
			return
		case <-ticker.C:
			s.flush()
		}
	}
}

func (s *RemoteSink) flush() {
	conn, err := net.DialTimeout("tcp", s.addr, 2*time.Second)
	if err != nil {
		return // best-effort: entries stay buffered for the next tick
	}
	defer conn.Close()

	enc := json.NewEncoder(conn)
	for {
		entry, ok := s.buffer.pop()
		if !ok {
			return
		}
		if err := enc.Encode(entry); err != nil {
			return
		}
	}
}

// Stop drains the buffer with a final flush attempt and stops the
// background worker.
func (s *RemoteSink) Stop() {
	close(s.shutdownCh)
	s.wg.Wait()
}
