package output

import (
	"bytes"
	"strings"
	"testing"
)

func TestJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	f := New(&buf, true)

	if !f.JSONMode() {
		t.Fatal("expected JSON mode")
	}
	if err := f.JSON(map[string]int{"agents": 3}); err != nil {
		t.Fatalf("JSON: %v", err)
	}
	if !strings.Contains(buf.String(), `"agents": 3`) {
		t.Errorf("output = %q", buf.String())
	}
}

func TestSuccessAndWarningMarkers(t *testing.T) {
	var buf bytes.Buffer
	f := New(&buf, false)

	f.Successf("started %s", "miner")
	f.Warningf("stop failed")

	out := buf.String()
	if !strings.Contains(out, "✓ started miner") {
		t.Errorf("missing success marker: %q", out)
	}
	if !strings.Contains(out, "! stop failed") {
		t.Errorf("missing warning marker: %q", out)
	}
}

func TestTableAlignsColumns(t *testing.T) {
	var buf bytes.Buffer
	table := NewTable(&buf, "AGENT", "STATE")
	table.AddRow("127.0.0.1:7011", "executing")
	table.AddRow("10.0.0.5:7011", "idle")
	table.Render()

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("lines = %d, want 4 (header, separator, 2 rows)", len(lines))
	}
	if !strings.HasPrefix(lines[0], "  AGENT") {
		t.Errorf("header = %q", lines[0])
	}
	// The state column starts at the same offset in every row.
	col := strings.Index(lines[2], "executing")
	if got := strings.Index(lines[3], "idle"); got != col {
		t.Errorf("column offsets differ: %d vs %d", col, got)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in     string
		maxLen int
		want   string
	}{
		{"short", 10, "short"},
		{"exactly-ten", 11, "exactly-ten"},
		{"a much longer order file path", 10, "a much ..."},
		{"abc", 2, "ab"},
		{"", 5, ""},
		{"anything", 0, ""},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.maxLen); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.maxLen, got, tt.want)
		}
	}
}

func TestCountStr(t *testing.T) {
	if got := CountStr(1, "agent", "agents"); got != "1 agent" {
		t.Errorf("got %q", got)
	}
	if got := CountStr(3, "agent", "agents"); got != "3 agents" {
		t.Errorf("got %q", got)
	}
}
