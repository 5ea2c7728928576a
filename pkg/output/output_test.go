package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"

	"github.com/zfogg/feedline/pkg/config"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	color.NoColor = true
	var buf bytes.Buffer
	prev := SetWriter(&buf)
	t.Cleanup(func() { SetWriter(prev) })
	return &buf
}

func TestGetOutputFormat(t *testing.T) {
	format := GetOutputFormat()
	if format != FormatJSON && format != FormatText && format != FormatTable {
		t.Errorf("Invalid output format: %v", format)
	}
}

func TestValidateOutputFormat(t *testing.T) {
	tests := []struct {
		format  string
		isValid bool
	}{
		{"json", true},
		{"text", true},
		{"table", true},
		{"invalid", false},
	}

	for _, tt := range tests {
		result := ValidateOutputFormat(tt.format)
		if result != tt.isValid {
			t.Errorf("ValidateOutputFormat(%s): got %v, want %v", tt.format, result, tt.isValid)
		}
	}
}

func TestPrintTable(t *testing.T) {
	buf := capture(t)

	PrintTable([]string{"ID", "Title"}, [][]string{{"p1", "first"}, {"p22", "second"}})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and two rows, got %q", buf.String())
	}
	if !strings.HasPrefix(lines[0], "ID") || !strings.Contains(lines[2], "second") {
		t.Errorf("unexpected table: %q", buf.String())
	}
}

func TestPrintRecordSortedKeys(t *testing.T) {
	buf := capture(t)
	config.Set("output.format", "text")

	if err := PrintRecord("Session", map[string]interface{}{"user": "alice", "expires": "soon"}); err != nil {
		t.Fatal(err)
	}

	out := buf.String()
	if strings.Index(out, "expires") > strings.Index(out, "user") {
		t.Errorf("keys not sorted: %q", out)
	}
}

func TestPrintJSON(t *testing.T) {
	buf := capture(t)
	config.Set("output.format", "json")
	defer config.Set("output.format", "text")

	if err := Print("ignored in json", []string{"a", "b"}); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(buf.String()) != "[\n  \"a\",\n  \"b\"\n]" {
		t.Errorf("unexpected json: %q", buf.String())
	}
}

func TestMessages(t *testing.T) {
	buf := capture(t)

	PrintSuccess("Logged in as %s", "alice")
	PrintError("request failed")
	PrintWarning("list ended early")
	PrintInfo("3 new items")

	out := buf.String()
	for _, want := range []string{"Logged in as alice", "Error: request failed", "Warning: list ended early", "3 new items"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in %q", want, out)
		}
	}
}

func TestHumanizers(t *testing.T) {
	if got := Ago(time.Time{}); got != "-" {
		t.Errorf("Ago(zero) = %q", got)
	}
	if got := Ago(time.Now().Add(-3 * time.Hour)); got != "3 hours ago" {
		t.Errorf("Ago(3h) = %q", got)
	}
	if got := Count(1234567); got != "1,234,567" {
		t.Errorf("Count = %q", got)
	}
	if got := Price(1250, "EUR"); got != "12.50 EUR" {
		t.Errorf("Price = %q", got)
	}
	if got := Price(123456789, ""); got != "1,234,567.89" {
		t.Errorf("Price = %q", got)
	}
}
