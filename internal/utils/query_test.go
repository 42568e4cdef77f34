package utils

import "testing"

func TestClampLimit(t *testing.T) {
	cases := map[string]struct {
		in   string
		max  int
		want int
	}{
		"empty":          {"", 500, 0},
		"not a number":   {"abc", 500, 0},
		"negative":       {"-3", 500, 0},
		"zero":           {"0", 500, 0},
		"padded":         {" 25 ", 500, 25},
		"leading zeros":  {"007", 500, 7},
		"capped":         {"10000", 500, 500},
		"uncapped":       {"10000", 0, 10000},
		"overflow":       {"999999999999999999999999", 500, 0},
		"fractional":     {"2.5", 500, 0},
		"exactly at max": {"500", 500, 500},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if got := ClampLimit(tc.in, tc.max); got != tc.want {
				t.Fatalf("ClampLimit(%q, %d) = %d; want %d", tc.in, tc.max, got, tc.want)
			}
		})
	}
}
