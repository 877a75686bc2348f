package streaming

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

func progress(sessionID string, processed, total int) SSEEvent {
	return NewProgressEvent(ProgressEvent{
		SessionID:  sessionID,
		FileName:   "jan.csv",
		Processed:  processed,
		Total:      total,
		Percentage: Percent(processed, total),
	})
}

// recv waits for the next event on the client
func recv(t *testing.T, c *Client) SSEEvent {
	t.Helper()
	select {
	case event, ok := <-c.Events:
		require.True(t, ok, "client channel closed while waiting for an event")
		return event
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for event")
		return SSEEvent{}
	}
}

// expectClosed drains the client until its channel is closed
func expectClosed(t *testing.T, c *Client) {
	t.Helper()
	deadline := time.After(waitFor)
	for {
		select {
		case _, ok := <-c.Events:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("client channel was not closed")
		}
	}
}

func expectNothing(t *testing.T, c *Client, within time.Duration) {
	t.Helper()
	select {
	case event, ok := <-c.Events:
		if ok {
			t.Fatalf("unexpected %s event", event.Type)
		}
	case <-time.After(within):
	}
}

func TestHub_ProgressReachesClientInOrder(t *testing.T) {
	hub := NewStreamHub()
	client := hub.Register(context.Background(), "sess-1")
	defer hub.Unregister("sess-1", client)

	for i := 1; i <= 3; i++ {
		hub.Broadcast("sess-1", progress("sess-1", i, 3))
	}

	for i := 1; i <= 3; i++ {
		event := recv(t, client)
		require.Equal(t, EventTypeProgress, event.Type)
		data, ok := event.ProgressData()
		require.True(t, ok)
		assert.Equal(t, i, data.Processed)
	}
}

func TestHub_EveryClientGetsTheEvent(t *testing.T) {
	hub := NewStreamHub()
	clients := make([]*Client, 3)
	for i := range clients {
		clients[i] = hub.Register(context.Background(), "sess-1")
	}
	assert.True(t, hub.IsRunning("sess-1"))

	hub.Broadcast("sess-1", progress("sess-1", 2, 4))

	var wg sync.WaitGroup
	for _, c := range clients {
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			select {
			case event := <-c.Events:
				data, _ := event.ProgressData()
				assert.Equal(t, 50.0, data.Percentage)
			case <-time.After(waitFor):
				t.Error("timed out waiting for event")
			}
		}(c)
	}
	wg.Wait()

	for _, c := range clients {
		hub.Unregister("sess-1", c)
	}
	assert.False(t, hub.IsRunning("sess-1"))
}

func TestHub_SessionsAreIsolated(t *testing.T) {
	hub := NewStreamHub()
	a := hub.Register(context.Background(), "sess-a")
	b := hub.Register(context.Background(), "sess-b")
	defer hub.Unregister("sess-a", a)
	defer hub.Unregister("sess-b", b)

	hub.Broadcast("sess-a", progress("sess-a", 1, 2))

	data, _ := recv(t, a).ProgressData()
	assert.Equal(t, "sess-a", data.SessionID)
	expectNothing(t, b, 100*time.Millisecond)
}

func TestHub_LateClientSeesOnlyLaterEvents(t *testing.T) {
	hub := NewStreamHub()
	first := hub.Register(context.Background(), "sess-1")
	defer hub.Unregister("sess-1", first)

	hub.Broadcast("sess-1", progress("sess-1", 1, 10))
	recv(t, first)

	late := hub.Register(context.Background(), "sess-1")
	defer hub.Unregister("sess-1", late)
	hub.Broadcast("sess-1", progress("sess-1", 5, 10))

	data, _ := recv(t, late).ProgressData()
	assert.Equal(t, 5, data.Processed)
	data, _ = recv(t, first).ProgressData()
	assert.Equal(t, 5, data.Processed)
}

func TestHub_UnregisterClosesClient(t *testing.T) {
	hub := NewStreamHub()
	stays := hub.Register(context.Background(), "sess-1")
	leaves := hub.Register(context.Background(), "sess-1")
	defer hub.Unregister("sess-1", stays)

	hub.Unregister("sess-1", leaves)
	expectClosed(t, leaves)
	assert.True(t, hub.IsRunning("sess-1"), "remaining client keeps the broadcaster")

	hub.Broadcast("sess-1", progress("sess-1", 1, 1))
	recv(t, stays)

	// Unregistering twice is harmless
	hub.Unregister("sess-1", leaves)
	hub.Unregister("unknown", leaves)
}

func TestHub_TerminalEventsStopTheBroadcaster(t *testing.T) {
	tests := []struct {
		name  string
		event SSEEvent
	}{
		{"complete", NewCompleteEvent(CompleteEvent{SessionID: "sess-1", TrackerID: "tracker-1", Success: true, Total: 3, Imported: 3})},
		{"error", NewErrorEvent(ErrorEvent{SessionID: "sess-1", Message: "File parsing errors", Details: []string{"Row 2: Date is required"}})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hub := NewStreamHub()
			client := hub.Register(context.Background(), "sess-1")

			hub.Broadcast("sess-1", progress("sess-1", 3, 3))
			hub.Broadcast("sess-1", tt.event)

			assert.Equal(t, EventTypeProgress, recv(t, client).Type)
			final := recv(t, client)
			assert.Equal(t, tt.event.Type, final.Type)
			assert.True(t, final.Terminal())
			expectClosed(t, client)

			// Events after the terminal one go nowhere
			hub.Broadcast("sess-1", progress("sess-1", 4, 4))
			hub.Unregister("sess-1", client)
			assert.False(t, hub.IsRunning("sess-1"))
		})
	}
}

func TestHub_RegisterAfterTerminalEventStartsFresh(t *testing.T) {
	hub := NewStreamHub()
	first := hub.Register(context.Background(), "sess-1")
	hub.Broadcast("sess-1", NewCompleteEvent(CompleteEvent{SessionID: "sess-1"}))
	recv(t, first)
	expectClosed(t, first)

	second := hub.Register(context.Background(), "sess-1")
	defer hub.Unregister("sess-1", second)
	hub.Broadcast("sess-1", NewHeartbeatEvent())

	assert.Equal(t, EventTypeHeartbeat, recv(t, second).Type)
}

func TestHub_ContextCancellationClosesClients(t *testing.T) {
	hub := NewStreamHub()
	ctx, cancel := context.WithCancel(context.Background())
	client := hub.Register(ctx, "sess-1")

	cancel()
	expectClosed(t, client)
	hub.Unregister("sess-1", client)
}

func TestHub_BroadcastWithoutListeners(t *testing.T) {
	hub := NewStreamHub()
	hub.Broadcast("nobody", progress("nobody", 1, 1))
	assert.False(t, hub.IsRunning("nobody"))
}

func TestBroadcaster_DropsProgressWhenQueueFull(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b := NewSessionBroadcaster(ctx)

	// Not started, so nothing drains the queue
	for i := 0; i < broadcasterBuffer+20; i++ {
		b.Broadcast(progress("sess-1", i, broadcasterBuffer+20))
	}
	assert.Len(t, b.events, broadcasterBuffer)
}

func TestBroadcaster_SlowClientDoesNotBlockOthers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b := NewSessionBroadcaster(ctx)
	slow, fast := NewClient(), NewClient()
	b.Register(slow)
	b.Register(fast)
	b.Start()

	total := clientBuffer * 2
	for batch := 0; batch < 2; batch++ {
		for i := 0; i < clientBuffer; i++ {
			b.Broadcast(progress("sess-1", batch*clientBuffer+i, total))
		}
		for i := 0; i < clientBuffer; i++ {
			data, _ := recv(t, fast).ProgressData()
			assert.Equal(t, batch*clientBuffer+i, data.Processed)
		}
	}

	assert.Len(t, slow.Events, clientBuffer, "slow client keeps only what fits")
	data, _ := recv(t, slow).ProgressData()
	assert.Equal(t, 0, data.Processed)
}

func TestBroadcaster_TerminalEventWaitsForQueueRoom(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b := NewSessionBroadcaster(ctx)
	client := NewClient()
	b.Register(client)

	for i := 0; i < broadcasterBuffer; i++ {
		b.events <- progress("sess-1", i, broadcasterBuffer)
	}
	b.Start()

	b.Broadcast(NewCompleteEvent(CompleteEvent{SessionID: "sess-1", Success: true}))

	sawComplete := false
	deadline := time.After(waitFor)
	for !sawComplete {
		select {
		case event, ok := <-client.Events:
			require.True(t, ok, "channel closed before the complete event arrived")
			sawComplete = event.Type == EventTypeComplete
		case <-deadline:
			t.Fatal("complete event was never delivered")
		}
	}
}

func TestHub_ConcurrentRegistrationAndBroadcast(t *testing.T) {
	hub := NewStreamHub()
	const sessions, clientsPerSession = 5, 4

	var wg sync.WaitGroup
	clients := make(chan struct {
		session string
		client  *Client
	}, sessions*clientsPerSession)

	for s := 0; s < sessions; s++ {
		sessionID := fmt.Sprintf("sess-%d", s)
		for c := 0; c < clientsPerSession; c++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				clients <- struct {
					session string
					client  *Client
				}{sessionID, hub.Register(context.Background(), sessionID)}
			}()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				hub.Broadcast(sessionID, progress(sessionID, i, 10))
			}
		}()
	}
	wg.Wait()
	close(clients)

	for entry := range clients {
		hub.Unregister(entry.session, entry.client)
	}
	for s := 0; s < sessions; s++ {
		assert.False(t, hub.IsRunning(fmt.Sprintf("sess-%d", s)))
	}
}
