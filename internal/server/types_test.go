package server_test

import (
	"encoding/json"
	"testing"

	"github.com/codelens-dev/presence/internal/server"
)

// TestDecodeRegisterMessage verifies decoding of a Register frame,
// including a null current_file.
func TestDecodeRegisterMessage(t *testing.T) {
	raw := []byte(`{"type":"Register","data":{"user_id":"a1","name":"Alice","avatar":"a.png","current_file":null}}`)

	msg, err := server.DecodeClientMessage(raw)
	if err != nil {
		t.Fatalf("DecodeClientMessage failed: %v", err)
	}
	if msg.Type != server.TypeRegister {
		t.Fatalf("Expected type %q, got %q", server.TypeRegister, msg.Type)
	}
	if msg.Register == nil {
		t.Fatal("Register payload is nil")
	}
	if msg.Register.UserID != "a1" || msg.Register.Name != "Alice" || msg.Register.Avatar != "a.png" {
		t.Errorf("Unexpected participant fields: %+v", msg.Register)
	}
	if msg.Register.CurrentFile != nil {
		t.Errorf("Expected nil current_file, got %q", *msg.Register.CurrentFile)
	}
}

// TestDecodeFileFocusMessage verifies decoding of a FileFocus frame.
func TestDecodeFileFocusMessage(t *testing.T) {
	raw := []byte(`{"type":"FileFocus","data":{"file_path":"/src/lib.rs","repo_id":"r1"}}`)

	msg, err := server.DecodeClientMessage(raw)
	if err != nil {
		t.Fatalf("DecodeClientMessage failed: %v", err)
	}
	if msg.Type != server.TypeFileFocus {
		t.Fatalf("Expected type %q, got %q", server.TypeFileFocus, msg.Type)
	}
	if msg.FileFocus == nil {
		t.Fatal("FileFocus payload is nil")
	}
	if msg.FileFocus.FilePath != "/src/lib.rs" || msg.FileFocus.RepoID != "r1" {
		t.Errorf("Unexpected focus fields: %+v", msg.FileFocus)
	}
}

// TestDecodeRejectsInvalidFrames verifies that malformed and unrecognized
// frames are rejected rather than partially decoded.
func TestDecodeRejectsInvalidFrames(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"Not JSON", `not json`},
		{"Unknown type", `{"type":"Teleport","data":{}}`},
		{"Missing type", `{"data":{"user_id":"a1"}}`},
		{"Register with non-object data", `{"type":"Register","data":42}`},
		{"FileFocus with array data", `{"type":"FileFocus","data":[]}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := server.DecodeClientMessage([]byte(tc.raw)); err == nil {
				t.Errorf("Expected decode error for %q", tc.raw)
			}
		})
	}
}

// TestParticipantRoundTrip verifies that encoding then decoding a
// participant preserves every field, including a null current_file.
func TestParticipantRoundTrip(t *testing.T) {
	file := "/src/main.go"
	cases := []struct {
		name        string
		participant server.Participant
	}{
		{"With current file", server.Participant{UserID: "a1", Name: "Alice", Avatar: "a.png", CurrentFile: &file}},
		{"Null current file", server.Participant{UserID: "b2", Name: "Bob", Avatar: "b.png"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			encoded, err := json.Marshal(tc.participant)
			if err != nil {
				t.Fatalf("Marshal failed: %v", err)
			}

			var decoded server.Participant
			if err := json.Unmarshal(encoded, &decoded); err != nil {
				t.Fatalf("Unmarshal failed: %v", err)
			}

			if decoded.UserID != tc.participant.UserID ||
				decoded.Name != tc.participant.Name ||
				decoded.Avatar != tc.participant.Avatar {
				t.Errorf("Round trip changed fields: %+v vs %+v", decoded, tc.participant)
			}

			switch {
			case tc.participant.CurrentFile == nil:
				if decoded.CurrentFile != nil {
					t.Errorf("Expected nil current_file, got %q", *decoded.CurrentFile)
				}
			case decoded.CurrentFile == nil:
				t.Error("current_file lost in round trip")
			case *decoded.CurrentFile != *tc.participant.CurrentFile:
				t.Errorf("Expected current_file %q, got %q", *tc.participant.CurrentFile, *decoded.CurrentFile)
			}
		})
	}
}

// TestServerMessageEncoding verifies the tagged envelope shapes of
// outbound frames.
func TestServerMessageEncoding(t *testing.T) {
	t.Run("UserUpdate", func(t *testing.T) {
		users := map[string]server.Participant{
			"a1": {UserID: "a1", Name: "Alice", Avatar: "a.png"},
		}
		encoded, err := json.Marshal(server.NewUserUpdate(users))
		if err != nil {
			t.Fatalf("Marshal failed: %v", err)
		}

		var frame struct {
			Type string                        `json:"type"`
			Data map[string]server.Participant `json:"data"`
		}
		if err := json.Unmarshal(encoded, &frame); err != nil {
			t.Fatalf("Unmarshal failed: %v", err)
		}
		if frame.Type != server.TypeUserUpdate {
			t.Errorf("Expected type %q, got %q", server.TypeUserUpdate, frame.Type)
		}
		if len(frame.Data) != 1 || frame.Data["a1"].Name != "Alice" {
			t.Errorf("Unexpected data payload: %+v", frame.Data)
		}
	})

	t.Run("Empty UserUpdate", func(t *testing.T) {
		encoded, err := json.Marshal(server.NewUserUpdate(map[string]server.Participant{}))
		if err != nil {
			t.Fatalf("Marshal failed: %v", err)
		}
		if string(encoded) != `{"type":"UserUpdate","data":{}}` {
			t.Errorf("Unexpected encoding for empty snapshot: %s", encoded)
		}
	})

	t.Run("FileActivityUpdate", func(t *testing.T) {
		activity := server.FileActivity{UserID: "a1", FilePath: "/src/lib.rs", RepoID: "r1"}
		encoded, err := json.Marshal(server.NewFileActivityUpdate(activity))
		if err != nil {
			t.Fatalf("Marshal failed: %v", err)
		}

		var frame struct {
			Type string              `json:"type"`
			Data server.FileActivity `json:"data"`
		}
		if err := json.Unmarshal(encoded, &frame); err != nil {
			t.Fatalf("Unmarshal failed: %v", err)
		}
		if frame.Type != server.TypeFileActivityUpdate {
			t.Errorf("Expected type %q, got %q", server.TypeFileActivityUpdate, frame.Type)
		}
		if frame.Data != activity {
			t.Errorf("Expected activity %+v, got %+v", activity, frame.Data)
		}
	})
}
