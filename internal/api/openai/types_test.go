package openai

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestStop_Unmarshal(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{`{"stop":"\n"}`, []string{"\n"}},
		{`{"stop":["a","b"]}`, []string{"a", "b"}},
		{`{"stop":null}`, nil},
		{`{}`, nil},
	}

	for _, tt := range tests {
		var req ChatCompletionRequest
		if err := json.Unmarshal([]byte(tt.in), &req); err != nil {
			t.Fatalf("Unmarshal(%s) error = %v", tt.in, err)
		}
		if len(req.Stop) != len(tt.want) {
			t.Fatalf("Stop = %q, want %q", req.Stop, tt.want)
		}
		for i := range tt.want {
			if req.Stop[i] != tt.want[i] {
				t.Errorf("Stop[%d] = %q, want %q", i, req.Stop[i], tt.want[i])
			}
		}
	}
}

func TestContent_Unmarshal(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Content
		wantErr error
	}{
		{"string", `"hello"`, "hello", nil},
		{"null", `null`, "", nil},
		{"text parts", `[{"type":"text","text":"a"},{"type":"text","text":"b"}]`, "a\nb", nil},
		{"image part", `[{"type":"image_url","image_url":{"url":"x"}}]`, "", ErrNonTextContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Content
			err := json.Unmarshal([]byte(tt.in), &c)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("error = %v", err)
			}
			if c != tt.want {
				t.Errorf("Content = %q, want %q", c, tt.want)
			}
		})
	}
}

func TestResponseMessage_NullContent(t *testing.T) {
	data, err := json.Marshal(ResponseMessage{Role: "assistant"})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"role":"assistant","content":null}` {
		t.Errorf("Marshal = %s", data)
	}
}
