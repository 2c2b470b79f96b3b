package api

import "testing"

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
		wantErr  bool
	}{
		{"bare object", `{"a":1}`, `{"a":1}`, false},
		{"fenced object", "```json\n{\"a\":1}\n```", `{"a":1}`, false},
		{"prose around array", `Here you go: [1,2,3] done`, `[1,2,3]`, false},
		{"array of objects", `[{"a":1},{"b":2}]`, `[{"a":1},{"b":2}]`, false},
		{"object holding array", `{"x":[1]}`, `{"x":[1]}`, false},
		{"no json", `I cannot help with that`, "", true},
		{"unterminated", `{"a":1`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.response)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ExtractJSON() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ExtractJSON() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	var target struct {
		Name string `json:"name"`
	}
	if err := DecodeJSON(`result: {"name": "plan"}`, &target); err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
	if target.Name != "plan" {
		t.Errorf("Name = %q", target.Name)
	}

	if err := DecodeJSON(`{"name": }`, &target); err == nil {
		t.Error("expected error for malformed JSON")
	}
}
