package realtime

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recv(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case data := <-c.Send:
		var ev Event
		require.NoError(t, json.Unmarshal(data, &ev))
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
		return Event{}
	}
}

func TestHub_BroadcastToSubscribers(t *testing.T) {
	hub := NewHub(nil)
	doctor := DoctorChannel(uuid.New())

	a := NewClient("a", 4)
	b := NewClient("b", 4)
	hub.Register(a, []string{doctor})
	hub.Register(b, nil)

	assert.Equal(t, 2, hub.ClientCount())
	assert.Equal(t, 1, hub.TopicCount(doctor))

	require.NoError(t, hub.Notify(context.Background(), doctor, Event{Type: EventSlotLocked}))

	ev := recv(t, a)
	assert.Equal(t, EventSlotLocked, ev.Type)
	assert.Equal(t, doctor, ev.Channel)
	assert.Empty(t, b.Send)

	hub.ProcessMessage(b, ClientMessage{Action: "subscribe", Topics: []string{doctor}})
	hub.ProcessMessage(a, ClientMessage{Action: "unsubscribe", Topics: []string{doctor}})
	hub.Broadcast(doctor, Event{Type: EventSlotUnlocked})

	assert.Equal(t, EventSlotUnlocked, recv(t, b).Type)
	assert.Empty(t, a.Send)
}

func TestHub_SlowClientDoesNotBlock(t *testing.T) {
	hub := NewHub(nil)
	c := NewClient("slow", 1)
	hub.Register(c, []string{"doctor:x"})

	hub.Broadcast("doctor:x", Event{Type: "one"})
	hub.Broadcast("doctor:x", Event{Type: "two"})

	assert.Equal(t, "one", recv(t, c).Type)
	assert.Empty(t, c.Send)
}

func TestHub_UnregisterClosesSend(t *testing.T) {
	hub := NewHub(nil)
	c := NewClient("c", 1)
	hub.Register(c, []string{"doctor:x"})

	hub.Unregister(c)
	hub.Unregister(c)

	_, ok := <-c.Send
	assert.False(t, ok)
	assert.Zero(t, hub.TopicCount("doctor:x"))
	assert.Zero(t, hub.ClientCount())
}

func TestHub_WebsocketHandler(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub.Handler())
	defer srv.Close()

	channel := AppointmentChannel(uuid.New())
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?topics=" + channel
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	require.Eventually(t, func() bool { return hub.TopicCount(channel) == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Broadcast(channel, Event{Type: EventAppointmentConfirmed})

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev Event
	require.NoError(t, ws.ReadJSON(&ev))
	assert.Equal(t, EventAppointmentConfirmed, ev.Type)
	assert.Equal(t, channel, ev.Channel)
}

func TestRedisBridge_RelaysAcrossInstances(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	hubA := NewHub(nil)
	hubB := NewHub(nil)
	bridgeA := NewRedisBridge(client, "events", hubA, nil)
	bridgeB := NewRedisBridge(client, "events", hubB, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	readyB := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- bridgeB.Run(ctx, readyB) }()

	select {
	case <-readyB:
	case <-time.After(2 * time.Second):
		t.Fatal("bridge did not subscribe")
	}

	channel := DoctorChannel(uuid.New())
	sub := NewClient("b", 4)
	hubB.Register(sub, []string{channel})

	require.NoError(t, bridgeA.Notify(ctx, channel, Event{Type: EventAppointmentCreated, Timestamp: time.Now()}))

	ev := recv(t, sub)
	assert.Equal(t, EventAppointmentCreated, ev.Type)
	assert.Equal(t, channel, ev.Channel)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("bridge did not stop")
	}
}

func TestRecorder(t *testing.T) {
	r := NewRecorder(2)
	_ = r.Notify(context.Background(), "a", Event{Type: "x"})
	_ = Nop{}.Notify(context.Background(), "a", Event{})

	events := r.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "a", events[0].Channel)
	assert.Empty(t, r.Events())
}
