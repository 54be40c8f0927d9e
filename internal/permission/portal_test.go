package permission

import (
	"encoding/json"
	"testing"
)

func TestParseSession(t *testing.T) {
	payload, _ := json.Marshal(Session{Handle: "/org/fd/session/1", RestoreToken: "tok", NodeID: 42})
	s, err := ParseSession(payload)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if s.Handle != "/org/fd/session/1" || s.RestoreToken != "tok" || s.NodeID != 42 {
		t.Fatalf("unexpected session %+v", s)
	}
}

func TestParseSession_MissingHandle(t *testing.T) {
	if _, err := ParseSession([]byte(`{"restore_token":"tok"}`)); err == nil {
		t.Fatal("expected error for missing handle")
	}
}

func TestParseSession_Malformed(t *testing.T) {
	if _, err := ParseSession([]byte("not json")); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}
