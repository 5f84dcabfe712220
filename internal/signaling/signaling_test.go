package signaling

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/loopcall/internal/config"
)

// collect registers a handler on ch that forwards every message to the returned channel.
func collect(ch Channel) <-chan Message {
	out := make(chan Message, 64)
	ch.OnMessage(func(m Message) { out <- m })
	return out
}

func recv(t *testing.T, msgs <-chan Message) Message {
	t.Helper()
	select {
	case m := <-msgs:
		return m
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for signaling message")
		return Message{}
	}
}

func TestLoopbackOrder(t *testing.T) {
	a, b := NewLoopback()
	defer a.Close()
	defer b.Close()

	ctx := context.Background()
	got := collect(b)

	for i := range 50 {
		if err := a.Send(ctx, Message{Type: MsgTypeCandidate, From: config.RoleLocal, SDP: fmt.Sprint(i)}); err != nil {
			t.Fatalf("Send #%d: %v", i, err)
		}
	}

	for i := range 50 {
		m := recv(t, got)
		if m.SDP != fmt.Sprint(i) {
			t.Fatalf("message %d out of order: got %q", i, m.SDP)
		}
	}
}

func TestLoopbackHoldsUntilHandler(t *testing.T) {
	a, b := NewLoopback()
	defer a.Close()
	defer b.Close()

	ctx := context.Background()
	if err := a.Send(ctx, Message{Type: MsgTypeOffer, SDP: "v=0"}); err != nil {
		t.Fatal(err)
	}
	if err := a.Send(ctx, Message{Type: MsgTypeBye}); err != nil {
		t.Fatal(err)
	}

	// Registered after both sends: nothing may be lost.
	got := collect(b)
	if m := recv(t, got); m.Type != MsgTypeOffer {
		t.Fatalf("first message = %s, want offer", m.Type)
	}
	if m := recv(t, got); m.Type != MsgTypeBye {
		t.Fatalf("second message = %s, want bye", m.Type)
	}
}

// A handler that sends back on the same link must not deadlock.
func TestLoopbackReplyFromHandler(t *testing.T) {
	a, b := NewLoopback()
	defer a.Close()
	defer b.Close()

	ctx := context.Background()
	b.OnMessage(func(m Message) {
		_ = b.Send(ctx, Message{Type: MsgTypeAnswer, SDP: m.SDP})
	})
	answers := collect(a)

	if err := a.Send(ctx, Message{Type: MsgTypeOffer, SDP: "x"}); err != nil {
		t.Fatal(err)
	}
	if m := recv(t, answers); m.Type != MsgTypeAnswer || m.SDP != "x" {
		t.Fatalf("unexpected reply %+v", m)
	}
}

func TestLoopbackClose(t *testing.T) {
	a, b := NewLoopback()
	defer b.Close()

	if err := a.Close(); err != nil {
		t.Fatal(err)
	}
	select {
	case <-a.Done():
	default:
		t.Fatal("Done not closed after Close")
	}
	if a.Err() != nil {
		t.Fatalf("Err after local Close = %v, want nil", a.Err())
	}

	ctx := context.Background()
	if err := a.Send(ctx, Message{Type: MsgTypeBye}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Send on closed end = %v, want ErrClosed", err)
	}
	if err := b.Send(ctx, Message{Type: MsgTypeBye}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Send to closed end = %v, want ErrClosed", err)
	}
}

func TestWSRoundTrip(t *testing.T) {
	pin := GeneratePIN(6)
	srv, err := Listen("127.0.0.1:0", pin)
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	type accepted struct {
		ch  *WSChannel
		err error
	}
	acceptCh := make(chan accepted, 1)
	go func() {
		ch, err := srv.Accept(ctx)
		acceptCh <- accepted{ch, err}
	}()

	client, err := Dial(ctx, srv.URL())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	acc := <-acceptCh
	if acc.err != nil {
		t.Fatalf("Accept: %v", acc.err)
	}
	server := acc.ch
	defer server.Close()

	fromClient := collect(server)
	fromServer := collect(client)

	cand := webrtc.ICECandidateInit{Candidate: "candidate:1 1 udp 2130706431 127.0.0.1 50000 typ host"}
	if err := client.Send(ctx, Message{Type: MsgTypeCandidate, From: config.RoleLocal, Candidate: &cand}); err != nil {
		t.Fatal(err)
	}
	m := recv(t, fromClient)
	if m.Type != MsgTypeCandidate || m.From != config.RoleLocal {
		t.Fatalf("unexpected message %+v", m)
	}
	if m.Candidate == nil || m.Candidate.Candidate != cand.Candidate {
		t.Fatalf("candidate mangled: %+v", m.Candidate)
	}

	if err := server.Send(ctx, Message{Type: MsgTypeAnswer, From: config.RoleRemote, SDP: "v=0"}); err != nil {
		t.Fatal(err)
	}
	if m := recv(t, fromServer); m.Type != MsgTypeAnswer || m.From != config.RoleRemote || m.SDP != "v=0" {
		t.Fatalf("unexpected message %+v", m)
	}

	// A bye followed by Close must still reach the other side.
	if err := client.Send(ctx, Message{Type: MsgTypeBye, From: config.RoleLocal}); err != nil {
		t.Fatal(err)
	}
	client.Close()
	if m := recv(t, fromClient); m.Type != MsgTypeBye {
		t.Fatalf("got %s, want bye", m.Type)
	}

	select {
	case <-server.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("server channel not done after peer closed")
	}
	if err := server.Err(); err != nil {
		t.Fatalf("normal close reported as %v", err)
	}
}

func TestWSInvalidPIN(t *testing.T) {
	srv, err := Listen("127.0.0.1:0", "1234")
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := fmt.Sprintf("ws://127.0.0.1:%d/ws?pin=0000", srv.Port())
	if _, err := Dial(ctx, url); !errors.Is(err, ErrInvalidPIN) {
		t.Fatalf("Dial with wrong PIN = %v, want ErrInvalidPIN", err)
	}
}

func TestGeneratePIN(t *testing.T) {
	for _, n := range []int{4, 6, 8} {
		pin := GeneratePIN(n)
		if len(pin) != n {
			t.Errorf("GeneratePIN(%d) = %q", n, pin)
		}
		for _, c := range pin {
			if c < '0' || c > '9' {
				t.Errorf("GeneratePIN(%d) = %q contains non-digit", n, pin)
			}
		}
	}
}

func TestTopic(t *testing.T) {
	if got := Topic("abc", config.RoleLocal); got != "loopcall/abc/local" {
		t.Errorf("Topic(local) = %q", got)
	}
	if got := Topic("abc", config.RoleRemote); got != "loopcall/abc/remote" {
		t.Errorf("Topic(remote) = %q", got)
	}
}
