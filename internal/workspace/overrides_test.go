package workspace

import (
	"strings"
	"testing"
)

func TestParseVersionOverrides(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		want    map[string]string
		wantErr bool
	}{
		{
			name:  "empty",
			value: "",
			want:  map[string]string{},
		},
		{
			name:  "single entry",
			value: "nx@15.0.0",
			want:  map[string]string{"nx": "15.0.0"},
		},
		{
			name:  "multiple entries",
			value: "nx@15.0.0,@nrwl/jest@15.1.0",
			want:  map[string]string{"nx": "15.0.0", "@nrwl/jest": "15.1.0"},
		},
		{
			name:  "partial version normalized",
			value: "nx@15",
			want:  map[string]string{"nx": "15.0.0"},
		},
		{
			name:  "tags pass through",
			value: "nx@latest,@nrwl/jest@next",
			want:  map[string]string{"nx": "latest", "@nrwl/jest": "next"},
		},
		{
			name:    "missing separator",
			value:   "nx",
			wantErr: true,
		},
		{
			name:    "scoped package without version",
			value:   "@nrwl/workspace",
			wantErr: true,
		},
		{
			name:    "empty version",
			value:   "nx@",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseVersionOverrides("from", tt.value)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if !strings.Contains(err.Error(), `--from="package@version"`) {
					t.Errorf("error should carry remediation, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("override[%q] = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}
