package utils

import "testing"

func TestAtoiDefault(t *testing.T) {
	cases := []struct {
		s    string
		def  int
		want int
	}{
		{"", 10, 10},
		{"42", 0, 42},
		{"-13", 1, -13},
		{"0012", 99, 12},
		{"x", 5, 5},
		{" 42", 7, 7},
		{"999999999999999999999999", -1, -1},
	}
	for _, tc := range cases {
		if got := AtoiDefault(tc.s, tc.def); got != tc.want {
			t.Fatalf("AtoiDefault(%q, %d) = %d; want %d", tc.s, tc.def, got, tc.want)
		}
	}
}

func TestQueryLimit(t *testing.T) {
	cases := []struct {
		s         string
		max, want int
	}{
		{"", 0, 0},
		{"25", 0, 25},
		{" 25 ", 0, 25},
		{"-3", 0, 0},
		{"abc", 0, 0},
		{"", 50, 50},
		{"10", 50, 10},
		{"500", 50, 50},
		{"-1", 50, 50},
	}
	for _, tc := range cases {
		if got := QueryLimit(tc.s, tc.max); got != tc.want {
			t.Fatalf("QueryLimit(%q, %d) = %d; want %d", tc.s, tc.max, got, tc.want)
		}
	}
}
