// Package dnsproxy terminates UDP DNS queries on the loopback interface,
// synthesizing sinkhole answers for blocked names and relaying everything
// else to an upstream resolver, byte-for-byte.
package dnsproxy

import (
	"encoding/binary"
	"fmt"
	"math/rand"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"

	"sinkguard/internal/blocklist"
)

const (
	primaryAddr    = "127.0.0.1:53"
	fallbackAddr   = "127.0.0.1:5353"
	bindDeadline   = 5 * time.Second
	forwardTimeout = 5 * time.Second
	healthInterval = 30 * time.Second
	maxUDPPacket   = 65535
)

// Options configures a Proxy. Zero values disable the corresponding
// ambient feature (cache, rate limiter).
type Options struct {
	Upstreams      []string
	CacheSize      int
	RateLimit      int
	RateLimitWindow time.Duration
	// OnHealthError is invoked from the periodic self-check when the
	// listening socket is found unbound; nil is a valid no-op.
	OnHealthError func(error)
}

// Proxy is the loopback UDP DNS proxy.
type Proxy struct {
	store   *blocklist.Store
	opts    Options
	cache   *responseCache
	limiter *rateLimiter
	stats   *Stats

	mu      sync.Mutex
	conn    net.PacketConn
	port    int
	stopped bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	forwardsMu sync.Mutex
	forwards   map[net.Conn]struct{}
}

// New creates a Proxy bound to store for blocklist lookups. Call Start
// to begin listening.
func New(store *blocklist.Store, opts Options) *Proxy {
	if len(opts.Upstreams) == 0 {
		opts.Upstreams = []string{"8.8.8.8", "8.8.4.4"}
	}
	if opts.RateLimitWindow == 0 {
		opts.RateLimitWindow = time.Second
	}
	return &Proxy{
		store:    store,
		opts:     opts,
		cache:    newResponseCache(opts.CacheSize),
		limiter:  newRateLimiter(opts.RateLimit, opts.RateLimitWindow),
		stats:    newStats(),
		stopCh:   make(chan struct{}),
		forwards: make(map[net.Conn]struct{}),
	}
}

// Start binds the loopback listener, preferring port 53 and falling
// back to 5353, then begins serving queries. Binding must complete
// within a 5-second deadline; failure is returned as *BindFailedError.
func (p *Proxy) Start() error {
	type bindResult struct {
		conn net.PacketConn
		port int
		err  error
	}
	done := make(chan bindResult, 1)

	go func() {
		conn, err := net.ListenPacket("udp", primaryAddr)
		if err != nil {
			logrus.WithError(err).Warn("could not bind primary DNS port, falling back to 5353")
			conn, err = net.ListenPacket("udp", fallbackAddr)
		}
		if err != nil {
			done <- bindResult{err: err}
			return
		}
		port := conn.LocalAddr().(*net.UDPAddr).Port
		done <- bindResult{conn: conn, port: port}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return &BindFailedError{Primary: primaryAddr, Fallback: fallbackAddr, Err: res.err}
		}
		p.mu.Lock()
		p.conn = res.conn
		p.port = res.port
		p.mu.Unlock()
	case <-time.After(bindDeadline):
		return &BindFailedError{Primary: primaryAddr, Fallback: fallbackAddr, Err: fmt.Errorf("timed out after %s", bindDeadline)}
	}

	logrus.WithField("port", p.port).Info("dns proxy listening")

	p.wg.Add(2)
	go p.readLoop()
	go p.healthLoop()
	return nil
}

// Port returns the UDP port the proxy actually bound to (53 or 5353).
func (p *Proxy) Port() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.port
}

// Stats returns a snapshot of the running counters.
func (p *Proxy) Stats() Snapshot {
	return p.stats.Snapshot()
}

func (p *Proxy) readLoop() {
	defer p.wg.Done()
	buf := make([]byte, maxUDPPacket)

	for {
		n, addr, err := p.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-p.stopCh:
				return
			default:
				logrus.WithError(err).Debug("dns proxy read error")
				continue
			}
		}

		pkt := make([]byte, n)
		copy(pkt, buf[:n])
		go p.handle(pkt, addr)
	}
}

func (p *Proxy) handle(pkt []byte, addr net.Addr) {
	p.stats.seen.Add(1)

	if udpAddr, ok := addr.(*net.UDPAddr); ok && !p.limiter.Allow(udpAddr.IP) {
		p.stats.errors.Add(1)
		return
	}

	msg := new(dns.Msg)
	if err := msg.Unpack(pkt); err != nil || len(msg.Question) == 0 {
		// MalformedPacket: dropped and counted, never replied to.
		p.stats.errors.Add(1)
		return
	}

	q := msg.Question[0]
	name := strings.ToLower(strings.TrimSuffix(q.Name, "."))

	if q.Qtype != dns.TypeA && q.Qtype != dns.TypeAAAA {
		p.stats.allowed.Add(1)
		p.forward(pkt, addr, msg.Id, name, q.Qtype)
		return
	}

	if p.store.Current().Contains(name) {
		p.stats.blocked.Add(1)
		p.replySinkhole(addr, msg, q)
		return
	}

	p.stats.allowed.Add(1)
	p.forward(pkt, addr, msg.Id, name, q.Qtype)
}

// replySinkhole synthesizes and sends the blocked-name answer described
// in the query policy: an A record at 127.0.0.1/TTL 300 for A queries,
// an empty NOERROR for AAAA queries.
func (p *Proxy) replySinkhole(addr net.Addr, req *dns.Msg, q dns.Question) {
	reply := new(dns.Msg)
	reply.SetReply(req)
	reply.Authoritative = false
	reply.RecursionAvailable = true
	reply.Rcode = dns.RcodeSuccess

	if q.Qtype == dns.TypeA {
		reply.Answer = append(reply.Answer, &dns.A{
			Hdr: dns.RR_Header{Name: q.Name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 300},
			A:   net.ParseIP("127.0.0.1").To4(),
		})
	}

	out, err := reply.Pack()
	if err != nil {
		p.stats.errors.Add(1)
		return
	}
	if _, err := p.conn.WriteTo(out, addr); err != nil {
		p.stats.errors.Add(1)
	}
}

// forward relays pkt verbatim to a randomly chosen upstream and relays
// the upstream's reply verbatim back to addr, unless a cached answer
// already satisfies the query.
func (p *Proxy) forward(pkt []byte, addr net.Addr, id uint16, name string, qtype uint16) {
	if cached := p.cache.Get(name, qtype); cached != nil {
		patched := make([]byte, len(cached))
		copy(patched, cached)
		if len(patched) >= 2 {
			binary.BigEndian.PutUint16(patched[0:2], id)
		}
		if _, err := p.conn.WriteTo(patched, addr); err != nil {
			p.stats.errors.Add(1)
		}
		return
	}

	upstream := p.opts.Upstreams[rand.Intn(len(p.opts.Upstreams))]
	if !strings.Contains(upstream, ":") {
		upstream += ":53"
	}

	uconn, err := net.Dial("udp", upstream)
	if err != nil {
		p.stats.errors.Add(1)
		return
	}
	p.trackForward(uconn)
	defer func() {
		p.untrackForward(uconn)
		uconn.Close()
	}()

	if err := uconn.SetDeadline(time.Now().Add(forwardTimeout)); err != nil {
		p.stats.errors.Add(1)
		return
	}
	if _, err := uconn.Write(pkt); err != nil {
		p.stats.errors.Add(1)
		return
	}

	buf := make([]byte, maxUDPPacket)
	n, err := uconn.Read(buf)
	if err != nil {
		// Covers both UpstreamTimeout and UpstreamIoError: dropped, counted, no reply.
		p.stats.errors.Add(1)
		return
	}

	reply := buf[:n]
	if _, err := p.conn.WriteTo(reply, addr); err != nil {
		p.stats.errors.Add(1)
		return
	}

	p.maybeCache(reply, name, qtype)
}

func (p *Proxy) maybeCache(reply []byte, name string, qtype uint16) {
	var resp dns.Msg
	if err := resp.Unpack(reply); err != nil {
		return
	}
	if resp.Rcode != dns.RcodeSuccess || len(resp.Answer) == 0 {
		return
	}
	ttl := time.Duration(resp.Answer[0].Header().Ttl) * time.Second
	p.cache.Set(name, qtype, reply, ttl)
}

func (p *Proxy) trackForward(c net.Conn) {
	p.forwardsMu.Lock()
	p.forwards[c] = struct{}{}
	p.forwardsMu.Unlock()
}

func (p *Proxy) untrackForward(c net.Conn) {
	p.forwardsMu.Lock()
	delete(p.forwards, c)
	p.forwardsMu.Unlock()
}

func (p *Proxy) healthLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.mu.Lock()
			conn := p.conn
			p.mu.Unlock()
			if conn == nil {
				continue
			}
			if err := conn.SetReadDeadline(time.Now().Add(time.Second)); err != nil {
				if p.opts.OnHealthError != nil {
					p.opts.OnHealthError(fmt.Errorf("dns proxy listener lost its binding: %w", err))
				}
				continue
			}
			// Restore a zero deadline (no read timeout) after the probe.
			conn.SetReadDeadline(time.Time{})
		}
	}
}

// Stop closes the listener, cancels all outstanding forwards, and
// returns once the socket is released. Idempotent.
func (p *Proxy) Stop() error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	conn := p.conn
	p.mu.Unlock()

	close(p.stopCh)
	if conn != nil {
		conn.Close()
	}

	p.forwardsMu.Lock()
	for c := range p.forwards {
		c.Close()
	}
	p.forwardsMu.Unlock()

	p.cache.Stop()
	p.limiter.Stop()
	p.wg.Wait()

	logrus.Info("dns proxy stopped")
	return nil
}
