package logging

import (
	"bufio"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestRemoteSinkForwardsEntries(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	received := make(chan map[string]interface{}, 4)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		scanner := bufio.NewScanner(conn)
		for scanner.Scan() {
			var m map[string]interface{}
			if err := json.Unmarshal(scanner.Bytes(), &m); err == nil {
				received <- m
			}
		}
	}()

	sink := NewRemoteSink(ln.Addr().String())
	defer sink.Stop()

	entry := &logrus.Entry{Message: "hello", Level: logrus.InfoLevel, Time: time.Now(), Data: logrus.Fields{"foo": "bar"}}
	if err := sink.Fire(entry); err != nil {
		t.Fatalf("fire: %v", err)
	}

	select {
	case m := <-received:
		if m["message"] != "hello" {
			t.Errorf("expected message hello, got %v", m["message"])
		}
		if m["foo"] != "bar" {
			t.Errorf("expected field foo=bar, got %v", m["foo"])
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for forwarded entry")
	}
}

func TestRemoteSinkIsBestEffortWhenUnreachable(t *testing.T) {
	sink := NewRemoteSink("127.0.0.1:1") // nothing listening
	entry := &logrus.Entry{Message: "ignored", Level: logrus.InfoLevel, Time: time.Now()}
	if err := sink.Fire(entry); err != nil {
		t.Fatalf("fire should never itself error: %v", err)
	}
	sink.Stop()
}

func TestRingBufferDropsOldestWhenFull(t *testing.T) {
	rb := newRingBuffer(2)
	rb.push(logrus.Fields{"n": 1})
	rb.push(logrus.Fields{"n": 2})
	rb.push(logrus.Fields{"n": 3})

	first, ok := rb.pop()
	if !ok || first["n"] != 2 {
		t.Fatalf("expected oldest surviving entry n=2, got %v ok=%v", first, ok)
	}
	second, ok := rb.pop()
	if !ok || second["n"] != 3 {
		t.Fatalf("expected n=3, got %v ok=%v", second, ok)
	}
	if _, ok := rb.pop(); ok {
		t.Fatal("expected buffer to be empty")
	}
}
