package wire

import (
	"errors"
	"testing"
)

func TestValidateNativeChat(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"messages form", `{"model":"llama3.2:latest","messages":[{"role":"user","content":"hi"}]}`, false},
		{"prompt form", `{"model":"llama3.2:latest","prompt":"hi"}`, false},
		{"missing model", `{"messages":[{"role":"user","content":"hi"}]}`, true},
		{"missing both", `{"model":"llama3.2:latest"}`, true},
		{"invalid json", `{not json`, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateNativeChat([]byte(tc.body))
			if tc.wantErr && !errors.Is(err, ErrMalformed) {
				t.Errorf("expected ErrMalformed, got %v", err)
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestRewriteModel(t *testing.T) {
	body := []byte(`{"model":"old","messages":[{"role":"user","content":"hi"}]}`)
	out, err := RewriteModel(body, "llama3.2:latest")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidateNativeChat(out); err != nil {
		t.Fatalf("rewritten body failed validation: %v", err)
	}
}
