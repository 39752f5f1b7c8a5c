package prompt

import (
	"bytes"
	"strings"
	"testing"
)

func TestStdinPrompter_Confirm(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{name: "yes", input: "y\n", want: true},
		{name: "yes word", input: "yes\n", want: true},
		{name: "uppercase", input: "Y\n", want: true},
		{name: "empty defaults to yes", input: "\n", want: true},
		{name: "no", input: "n\n", want: false},
		{name: "anything else is no", input: "maybe\n", want: false},
		{name: "eof defaults to yes", input: "", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			p := New(strings.NewReader(tt.input), &out)
			got, err := p.Confirm("Apply breaking changes?")
			if err != nil {
				t.Fatalf("Confirm failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Confirm = %v, want %v", got, tt.want)
			}
			if !strings.Contains(out.String(), "Apply breaking changes?") {
				t.Errorf("prompt not printed: %q", out.String())
			}
		})
	}
}

func TestFakePrompter(t *testing.T) {
	p := NewFakePrompter(false, true)

	if ok, _ := p.Confirm("first"); ok {
		t.Error("expected first queued answer false")
	}
	if ok, _ := p.Confirm("second"); !ok {
		t.Error("expected second queued answer true")
	}
	if ok, _ := p.Confirm("third"); !ok {
		t.Error("expected exhausted queue to answer yes")
	}
	asked := p.Asked()
	if len(asked) != 3 || asked[0] != "first" {
		t.Errorf("unexpected asked log: %v", asked)
	}
}
