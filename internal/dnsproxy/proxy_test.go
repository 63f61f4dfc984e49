package dnsproxy

import (
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/miekg/dns"

	"sinkguard/internal/blocklist"
)

func storeWith(t *testing.T, domains []string) *blocklist.Store {
	t.Helper()
	data, _ := json.Marshal(domains)
	path := filepath.Join(t.TempDir(), "bl.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	b, err := blocklist.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	s := blocklist.NewStore()
	s.Swap(b)
	return s
}

// fakeUpstream answers every query with an A record for the queried
// name at a fixed address, echoing the transaction id, and reports the
// exact bytes it received on receivedCh.
func fakeUpstream(t *testing.T, receivedCh chan<- []byte) (addr string, closeFn func()) {
	t.Helper()
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() {
		buf := make([]byte, 65535)
		for {
			n, raddr, err := conn.ReadFrom(buf)
			if err != nil {
				return
			}
			pkt := make([]byte, n)
			copy(pkt, buf[:n])
			if receivedCh != nil {
				receivedCh <- pkt
			}

			var req dns.Msg
			if err := req.Unpack(pkt); err != nil {
				continue
			}
			resp := new(dns.Msg)
			resp.SetReply(&req)
			if len(req.Question) > 0 && req.Question[0].Qtype == dns.TypeA {
				resp.Answer = append(resp.Answer, &dns.A{
					Hdr: dns.RR_Header{Name: req.Question[0].Name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 60},
					A:   net.ParseIP("93.184.216.34").To4(),
				})
			}
			out, err := resp.Pack()
			if err != nil {
				continue
			}
			conn.WriteTo(out, raddr)
		}
	}()
	return conn.LocalAddr().String(), func() { conn.Close() }
}

func newTestClient(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	if err != nil {
		t.Fatalf("client listen: %v", err)
	}
	return conn
}

func TestForwardsAndRelaysUnblockedName(t *testing.T) {
	upstream, closeUp := fakeUpstream(t, nil)
	defer closeUp()

	store := storeWith(t, []string{"example.com"})
	p := New(store, Options{Upstreams: []string{upstream}})

	client := newTestClient(t)
	defer client.Close()

	req := new(dns.Msg)
	req.SetQuestion("github.com.", dns.TypeA)
	req.Id = 0xABCD
	pkt, _ := req.Pack()

	// Exercise the internal handling path directly, bypassing the real
	// socket bind so the test does not require port 53/5353.
	respCh := make(chan []byte, 1)
	serverConn, _ := net.ListenPacket("udp", "127.0.0.1:0")
	defer serverConn.Close()
	p.conn = serverConn
	go func() {
		buf := make([]byte, 65535)
		n, addr, err := serverConn.ReadFrom(buf)
		if err != nil {
			return
		}
		_ = addr
		respCh <- buf[:n]
	}()

	p.handle(pkt, client.LocalAddr())
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 65535)
	n, _, err := client.ReadFrom(buf)
	if err != nil {
		t.Fatalf("expected a relayed reply: %v", err)
	}

	var resp dns.Msg
	if err := resp.Unpack(buf[:n]); err != nil {
		t.Fatalf("unpack reply: %v", err)
	}
	if resp.Id != req.Id {
		t.Errorf("expected transaction id %d preserved, got %d", req.Id, resp.Id)
	}
	if len(resp.Answer) != 1 {
		t.Fatalf("expected 1 answer relayed from upstream, got %d", len(resp.Answer))
	}

	snap := p.Stats()
	if snap.QueriesSeen != 1 || snap.QueriesAllowed != 1 || snap.QueriesBlocked != 0 {
		t.Errorf("unexpected stats: %+v", snap)
	}
}

func TestBlockedAQuerySynthesizesSinkhole(t *testing.T) {
	store := storeWith(t, []string{"example.com"})
	p := New(store, Options{})

	client := newTestClient(t)
	defer client.Close()

	req := new(dns.Msg)
	req.SetQuestion("www.example.com.", dns.TypeA)
	req.Id = 0x1234
	pkt, _ := req.Pack()

	serverConn, _ := net.ListenPacket("udp", "127.0.0.1:0")
	defer serverConn.Close()
	p.conn = serverConn

	p.handle(pkt, client.LocalAddr())

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 65535)
	n, _, err := client.ReadFrom(buf)
	if err != nil {
		t.Fatalf("expected a sinkhole reply: %v", err)
	}

	var resp dns.Msg
	if err := resp.Unpack(buf[:n]); err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if resp.Id != req.Id {
		t.Errorf("id not preserved: got %d want %d", resp.Id, req.Id)
	}
	if !resp.Response || resp.Rcode != dns.RcodeSuccess {
		t.Errorf("expected QR=1 RCODE=0, got response=%v rcode=%d", resp.Response, resp.Rcode)
	}
	if len(resp.Answer) != 1 {
		t.Fatalf("expected exactly one answer, got %d", len(resp.Answer))
	}
	a, ok := resp.Answer[0].(*dns.A)
	if !ok {
		t.Fatalf("expected an A record, got %T", resp.Answer[0])
	}
	if a.A.String() != "127.0.0.1" || a.Hdr.Ttl != 300 {
		t.Errorf("expected 127.0.0.1/TTL 300, got %s/%d", a.A, a.Hdr.Ttl)
	}

	snap := p.Stats()
	if snap.QueriesBlocked != 1 {
		t.Errorf("expected blocked=1, got %+v", snap)
	}
}

func TestBlockedAAAAQueryReturnsEmptyNoerror(t *testing.T) {
	store := storeWith(t, []string{"example.com"})
	p := New(store, Options{})

	client := newTestClient(t)
	defer client.Close()

	req := new(dns.Msg)
	req.SetQuestion("example.com.", dns.TypeAAAA)
	pkt, _ := req.Pack()

	serverConn, _ := net.ListenPacket("udp", "127.0.0.1:0")
	defer serverConn.Close()
	p.conn = serverConn

	p.handle(pkt, client.LocalAddr())

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 65535)
	n, _, err := client.ReadFrom(buf)
	if err != nil {
		t.Fatalf("expected a reply: %v", err)
	}
	var resp dns.Msg
	if err := resp.Unpack(buf[:n]); err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if resp.Rcode != dns.RcodeSuccess {
		t.Errorf("expected NOERROR, got %d", resp.Rcode)
	}
	if len(resp.Answer) != 0 {
		t.Errorf("expected an empty answer section for blocked AAAA, got %d records", len(resp.Answer))
	}
}

func TestMalformedPacketIsDroppedNotCrashed(t *testing.T) {
	store := storeWith(t, []string{"example.com"})
	p := New(store, Options{})

	serverConn, _ := net.ListenPacket("udp", "127.0.0.1:0")
	defer serverConn.Close()
	p.conn = serverConn

	client := newTestClient(t)
	defer client.Close()

	// 5-octet buffer, well under the 12-octet DNS header.
	p.handle([]byte{0, 1, 2, 3, 4}, client.LocalAddr())

	client.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	buf := make([]byte, 16)
	if _, _, err := client.ReadFrom(buf); err == nil {
		t.Error("a malformed packet must never produce a reply")
	}

	snap := p.Stats()
	if snap.QueriesSeen != 1 || snap.ForwardErrors != 1 {
		t.Errorf("expected seen=1 errors=1, got %+v", snap)
	}
}

func TestSuffixMatchDoesNotBlockShorterAncestor(t *testing.T) {
	store := storeWith(t, []string{"a.b.example.com"})
	bl := store.Current()

	if bl.Contains("example.com") {
		t.Error("a strictly listed longer name must not block its ancestor")
	}
	if !bl.Contains("a.b.example.com") {
		t.Error("the exact listed name must be blocked")
	}
	if !bl.Contains("x.a.b.example.com") {
		t.Error("a subdomain of the listed name must be blocked")
	}
}
