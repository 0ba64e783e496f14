/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package control

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/hypebeast/go-osc/osc"
	"github.com/rs/zerolog"
)

type recordedCall struct {
	address string
	args    []any
}

// recordingHandler captures dispatched messages and tracks how many handler
// invocations overlap.
type recordingHandler struct {
	mu         sync.Mutex
	calls      []recordedCall
	active     int
	maxActive  int
	handleTime time.Duration
}

func (h *recordingHandler) Handle(ctx context.Context, address string, args []any) error {
	h.mu.Lock()
	h.active++
	if h.active > h.maxActive {
		h.maxActive = h.active
	}
	h.mu.Unlock()

	if h.handleTime > 0 {
		time.Sleep(h.handleTime)
	}

	h.mu.Lock()
	h.calls = append(h.calls, recordedCall{address: address, args: args})
	h.active--
	h.mu.Unlock()
	return nil
}

func (h *recordingHandler) snapshot() []recordedCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]recordedCall(nil), h.calls...)
}

func startTestServer(t *testing.T, handler Handler) (*Server, *osc.Client) {
	t.Helper()

	srv := NewServer("127.0.0.1", 0, handler, zerolog.Nop())
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = srv.Stop() })

	port := srv.Addr().(*net.UDPAddr).Port
	return srv, osc.NewClient("127.0.0.1", port)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestServerDeliversMessage(t *testing.T) {
	handler := &recordingHandler{}
	_, client := startTestServer(t, handler)

	msg := osc.NewMessage("/play")
	msg.Append("intro.mp4")
	if err := client.Send(msg); err != nil {
		t.Fatalf("Send: %v", err)
	}

	waitFor(t, "message delivery", func() bool { return len(handler.snapshot()) == 1 })

	call := handler.snapshot()[0]
	if call.address != "/play" {
		t.Errorf("address = %q, want /play", call.address)
	}
}

func TestServerDeliversArguments(t *testing.T) {
	handler := &recordingHandler{}
	_, client := startTestServer(t, handler)

	msg := osc.NewMessage("/volume_set")
	msg.Append(int32(42))
	if err := client.Send(msg); err != nil {
		t.Fatalf("Send: %v", err)
	}

	waitFor(t, "message delivery", func() bool { return len(handler.snapshot()) == 1 })

	call := handler.snapshot()[0]
	if call.address != "/volume_set" {
		t.Errorf("address = %q, want /volume_set", call.address)
	}
	if len(call.args) != 1 {
		t.Fatalf("args = %v, want one", call.args)
	}
	if v, ok := call.args[0].(int32); !ok || v != 42 {
		t.Errorf("arg = %v (%T), want int32 42", call.args[0], call.args[0])
	}
}

func TestServerFlattensBundles(t *testing.T) {
	handler := &recordingHandler{}
	_, client := startTestServer(t, handler)

	bundle := osc.NewBundle(time.Now())
	bundle.Append(osc.NewMessage("/volume_up"))
	bundle.Append(osc.NewMessage("/volume_down"))
	if err := client.Send(bundle); err != nil {
		t.Fatalf("Send: %v", err)
	}

	waitFor(t, "bundle delivery", func() bool { return len(handler.snapshot()) == 2 })

	calls := handler.snapshot()
	if calls[0].address != "/volume_up" || calls[1].address != "/volume_down" {
		t.Errorf("bundle order = %q, %q", calls[0].address, calls[1].address)
	}
}

func TestServerDispatchesSerially(t *testing.T) {
	handler := &recordingHandler{handleTime: 20 * time.Millisecond}
	_, client := startTestServer(t, handler)

	for i := 0; i < 5; i++ {
		if err := client.Send(osc.NewMessage("/stop")); err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
	}

	waitFor(t, "all messages", func() bool { return len(handler.snapshot()) == 5 })

	handler.mu.Lock()
	maxActive := handler.maxActive
	handler.mu.Unlock()
	if maxActive != 1 {
		t.Errorf("max concurrent handlers = %d, want 1", maxActive)
	}
}

func TestServerStopIsClean(t *testing.T) {
	handler := &recordingHandler{}
	srv, client := startTestServer(t, handler)

	if err := client.Send(osc.NewMessage("/stop")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	waitFor(t, "message delivery", func() bool { return len(handler.snapshot()) == 1 })

	if err := srv.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	// Sends after shutdown go nowhere; the handler must not be called again.
	_ = client.Send(osc.NewMessage("/stop"))
	time.Sleep(100 * time.Millisecond)
	if got := len(handler.snapshot()); got != 1 {
		t.Errorf("calls after Stop = %d, want 1", got)
	}
}
