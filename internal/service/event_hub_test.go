package service

import (
	"testing"
	"time"
)

func TestEventHubStopUnblocksClientTeardown(t *testing.T) {
	hub := NewEventHub(nil)
	go hub.Run()

	client := &eventClient{send: make(chan []byte, 1)}
	if !hub.registerClient(client) {
		t.Fatal("register on a running hub failed")
	}
	waitFor(t, time.Second, "registration", func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return hub.clients[client]
	})

	hub.Stop()

	// A subscriber disconnecting after shutdown must not hang on the hub
	// loop, which is gone by now.
	done := make(chan struct{})
	go func() {
		hub.dropClient(client)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dropClient blocked after Stop")
	}

	if hub.registerClient(&eventClient{send: make(chan []byte, 1)}) {
		t.Error("register succeeded on a stopped hub")
	}
}

func TestEventHubBroadcastsLocalEvents(t *testing.T) {
	hub := NewEventHub(nil)
	go hub.Run()
	defer hub.Stop()

	client := &eventClient{send: make(chan []byte, 4)}
	if !hub.registerClient(client) {
		t.Fatal("register failed")
	}
	waitFor(t, time.Second, "registration", func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return hub.clients[client]
	})

	hub.PublishCallEvent(CallEvent{SessionID: "s1", State: "completed", Timestamp: time.Now()})

	select {
	case payload := <-client.send:
		if len(payload) == 0 {
			t.Error("empty event payload")
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber never received the event")
	}
}
