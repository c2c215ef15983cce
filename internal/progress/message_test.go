package progress

import (
	"encoding/json"
	"testing"
)

func TestItemMessageWireShape(t *testing.T) {
	snap := Snapshot{
		ADID:          7,
		DomainName:    "corp.example.com",
		Finished:      []string{"USERS"},
		Running:       []string{"MACHINES"},
		TotalFinished: 42,
	}
	msg := itemMessage(snap, 12.5)

	b, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if raw["type"] != "LDAP" {
		t.Fatalf("expected fixed type LDAP, got %v", raw["type"])
	}
	if raw["msg_type"] != "PROGRESS" {
		t.Fatalf("expected msg_type PROGRESS, got %v", raw["msg_type"])
	}
	speed, ok := raw["speed"].(string)
	if !ok {
		t.Fatalf("expected speed to be a JSON string, got %T (%v)", raw["speed"], raw["speed"])
	}
	if speed != "12.5" {
		t.Fatalf("expected speed %q, got %q", "12.5", speed)
	}
	if raw["adid"] != float64(7) {
		t.Fatalf("expected adid 7, got %v", raw["adid"])
	}
}

func TestLifecycleMessageWireShape(t *testing.T) {
	snap := Snapshot{ADID: 3, DomainName: "corp.example.com"}

	for _, tc := range []struct {
		event Lifecycle
		want  string
	}{
		{LifecycleStarted, "STARTED"},
		{LifecycleFinished, "FINISHED"},
		{LifecycleAborted, "ABORTED"},
	} {
		msg := lifecycleMessage(tc.event, snap)
		b, err := json.Marshal(msg)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var raw map[string]interface{}
		if err := json.Unmarshal(b, &raw); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if raw["type"] != "LDAP" {
			t.Fatalf("expected fixed type LDAP, got %v", raw["type"])
		}
		if raw["msg_type"] != tc.want {
			t.Fatalf("expected msg_type %q, got %v", tc.want, raw["msg_type"])
		}
		if _, present := raw["speed"]; present {
			t.Fatalf("lifecycle message should omit speed entirely, got %v", raw["speed"])
		}
	}
}

func TestWebSocketBroadcasterWithoutClientsDoesNotPanic(t *testing.T) {
	b := NewWebSocketBroadcaster()
	// Item/Lifecycle must not panic with no registered clients.
	b.Item(nil, Snapshot{ADID: 1, DomainName: "corp.example.com"})
	b.Lifecycle(nil, LifecycleStarted, Snapshot{ADID: 1, DomainName: "corp.example.com"})
	if err := b.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
