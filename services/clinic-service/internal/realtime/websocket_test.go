package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/md-rashed-zaman/clinicnear/services/clinic-service/internal/model"
)

func dial(t *testing.T, srv *httptest.Server, header http.Header) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var evt Event
	if err := json.Unmarshal(raw, &evt); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return evt
}

func send(t *testing.T, conn *websocket.Conn, msg ClientMessage) {
	t.Helper()
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestHandlerJoinReceiveLeave(t *testing.T) {
	bus := NewBus(quietLogger(), Options{})
	srv := httptest.NewServer(NewHandler(bus, quietLogger(), []string{"http://localhost:3000"}))
	defer srv.Close()

	conn := dial(t, srv, nil)
	send(t, conn, ClientMessage{Action: "join:clinic", ClinicID: "clinic-1"})
	if evt := readEvent(t, conn); evt.Name != EventSubscribed || evt.ClinicID != "clinic-1" {
		t.Fatalf("unexpected ack: %+v", evt)
	}

	bus.PublishSlotUpdate(context.Background(), "clinic-1", model.SlotEvent{TimeSlotID: "s1"})
	evt := readEvent(t, conn)
	if evt.Name != EventSlotUpdated {
		t.Fatalf("unexpected event: %+v", evt)
	}
	var data model.SlotEvent
	if err := json.Unmarshal(evt.Data, &data); err != nil || data.TimeSlotID != "s1" {
		t.Fatalf("unexpected data: %s (%v)", evt.Data, err)
	}

	send(t, conn, ClientMessage{Action: "leave", ClinicID: "clinic-1"})
	if evt := readEvent(t, conn); evt.Name != EventUnsubscribed {
		t.Fatalf("unexpected ack: %+v", evt)
	}
	if got := bus.Subscribers("clinic-1"); got != 0 {
		t.Fatalf("expected no subscribers, got %d", got)
	}
}

func TestHandlerDetachesOnDisconnect(t *testing.T) {
	bus := NewBus(quietLogger(), Options{})
	srv := httptest.NewServer(NewHandler(bus, quietLogger(), nil))
	defer srv.Close()

	conn := dial(t, srv, nil)
	send(t, conn, ClientMessage{Action: "join", ClinicID: "clinic-1"})
	readEvent(t, conn)
	_ = conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for bus.Connections() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("connection was not detached")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got := bus.Subscribers("clinic-1"); got != 0 {
		t.Fatalf("expected no subscribers, got %d", got)
	}
}

func TestHandlerRejectsUnknownOrigin(t *testing.T) {
	bus := NewBus(quietLogger(), Options{})
	srv := httptest.NewServer(NewHandler(bus, quietLogger(), []string{"http://localhost:3000"}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	header := http.Header{"Origin": []string{"http://evil.test"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err == nil {
		t.Fatalf("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %+v", resp)
	}
}
