package wire

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecodeEnvelope_RoundTrip(t *testing.T) {
	payload, _ := json.Marshal(TaskPayload{TaskID: "task_1_abc", Model: "llama3.2:latest"})
	env := Envelope{Type: ChatRequestStream, From: "gateway", To: "node-1", Timestamp: 1700000000, Payload: payload}

	raw, err := EncodeEnvelope(env)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	decoded, err := DecodeEnvelope(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Type != env.Type || decoded.From != env.From || decoded.To != env.To || decoded.Timestamp != env.Timestamp {
		t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, env)
	}
	if string(decoded.Payload) != string(env.Payload) {
		t.Fatalf("payload mismatch: got %s, want %s", decoded.Payload, env.Payload)
	}
}

func TestDecodeEnvelope_UnknownType(t *testing.T) {
	raw := []byte(`{"type":"not_a_real_type","from":"a","to":"b","payload":{}}`)
	_, err := DecodeEnvelope(raw)
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestDecodeEnvelope_InvalidJSON(t *testing.T) {
	_, err := DecodeEnvelope([]byte(`{not json`))
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestDecodeEnvelope_AllKnownTypesAccepted(t *testing.T) {
	for typ := range knownTypes {
		raw, _ := json.Marshal(Envelope{Type: typ, From: "a", To: "b", Payload: json.RawMessage(`{}`)})
		if _, err := DecodeEnvelope(raw); err != nil {
			t.Errorf("type %q rejected: %v", typ, err)
		}
	}
}
