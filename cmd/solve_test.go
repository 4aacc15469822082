package cmd

import (
	"testing"

	"github.com/costrisk/costrisk/internal/surface"
)

func TestParseStart(t *testing.T) {
	bounds := surface.DefaultBounds()

	valid := []struct {
		name  string
		input string
		want  []float64
	}{
		{"empty defaults to center", "", []float64{400, 80}},
		{"plain pair", "410,78", []float64{410, 78}},
		{"whitespace tolerated", " 405 , 79.5 ", []float64{405, 79.5}},
		{"boundary is feasible", "425,85", []float64{425, 85}},
	}
	for _, tt := range valid {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseStart(tt.input, bounds)
			if err != nil {
				t.Fatalf("parseStart(%q) returned error: %v", tt.input, err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("parseStart(%q) returned %d values, want %d", tt.input, len(got), len(tt.want))
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("parseStart(%q)[%d] = %g, want %g", tt.input, i, got[i], tt.want[i])
				}
			}
		})
	}

	invalid := []struct {
		name  string
		input string
	}{
		{"single value", "405"},
		{"three values", "405,79.5,3"},
		{"not a number", "abc,79"},
		{"outside the box", "500,80"},
	}
	for _, tt := range invalid {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseStart(tt.input, bounds); err == nil {
				t.Errorf("Expected error for start %q", tt.input)
			}
		})
	}
}
