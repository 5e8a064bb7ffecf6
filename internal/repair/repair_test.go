package repair_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/MrWong99/personaforge/internal/repair"
)

func TestRepair_Table(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		input string
		want  map[string]any
	}{
		{
			name:  "clean json passes through",
			input: `{"name": "Sarah"}`,
			want:  map[string]any{"name": "Sarah"},
		},
		{
			name:  "markdown fences stripped",
			input: "```json\n{\"name\": \"Sarah\"}\n```",
			want:  map[string]any{"name": "Sarah"},
		},
		{
			name:  "prose before and after",
			input: `Here is the extraction you asked for: {"role": "PM"} Hope that helps!`,
			want:  map[string]any{"role": "PM"},
		},
		{
			name:  "trailing comma removed",
			input: `{"goals": ["ship fast",],}`,
			want:  map[string]any{"goals": []any{"ship fast"}},
		},
		{
			name:  "truncated object closed",
			input: `{"name": "Sarah", "goals": ["ship fast", "reduce chur`,
			want:  map[string]any{"name": "Sarah", "goals": []any{"ship fast", "reduce chur"}},
		},
		{
			name:  "truncated after colon nulled",
			input: `{"name": "Sarah", "goals":`,
			want:  map[string]any{"name": "Sarah", "goals": nil},
		},
		{
			name:  "comma in string preserved",
			input: `{"quote": "a, b, c",}`,
			want:  map[string]any{"quote": "a, b, c"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			fixed, err := repair.Repair(tc.input)
			if err != nil {
				t.Fatalf("Repair(%q) returned error: %v", tc.input, err)
			}
			var got map[string]any
			if err := json.Unmarshal([]byte(fixed), &got); err != nil {
				t.Fatalf("repaired output %q is not valid JSON: %v", fixed, err)
			}
			wantJSON, _ := json.Marshal(tc.want)
			gotJSON, _ := json.Marshal(got)
			if string(wantJSON) != string(gotJSON) {
				t.Errorf("Repair(%q) = %s, want %s", tc.input, gotJSON, wantJSON)
			}
		})
	}
}

func TestRepair_NoStructure(t *testing.T) {
	t.Parallel()

	_, err := repair.Repair("the model refused to answer")
	if !errors.Is(err, repair.ErrNoStructure) {
		t.Errorf("err = %v, want ErrNoStructure", err)
	}
}

func TestDecode_RepairsBeforeFailing(t *testing.T) {
	t.Parallel()

	var out struct {
		Name string `json:"name"`
	}
	raw := "```json\n{\"name\": \"Jordan\"\n```"
	if err := repair.Decode(raw, &out); err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if out.Name != "Jordan" {
		t.Errorf("Name = %q, want %q", out.Name, "Jordan")
	}
}
