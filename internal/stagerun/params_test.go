package stagerun

import (
	"reflect"
	"testing"
)

func TestCliParamsScalars(t *testing.T) {
	args := cliParams(map[string]any{
		"sampleRate":    int64(500),
		"useClassifier": true,
	})
	want := []string{"--sampleRate", "500", "--useClassifier", "True", "--"}
	if !reflect.DeepEqual(args, want) {
		t.Fatalf("unexpected args: %v", args)
	}
}

func TestCliParamsNestedMap(t *testing.T) {
	args := cliParams(map[string]any{
		"map": map[string]any{
			"B:bars":  "bars",
			"S:slate": "slate",
		},
	})
	want := []string{"--map", "B:bars:bars", "--map", "S:slate:slate", "--"}
	if !reflect.DeepEqual(args, want) {
		t.Fatalf("unexpected args: %v", args)
	}
}

func TestCliParamsEmpty(t *testing.T) {
	if args := cliParams(nil); args != nil {
		t.Fatalf("expected no args, got %v", args)
	}
}

func TestQueryParams(t *testing.T) {
	qs := queryParams(map[string]any{
		"threshold": 0.5,
		"pretty":    true,
	})
	if qs != "?pretty=True&threshold=0.5" {
		t.Fatalf("unexpected querystring: %q", qs)
	}
	if queryParams(nil) != "" {
		t.Fatal("empty params should produce no querystring")
	}
}

func TestFormatValue(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{true, "True"},
		{false, "False"},
		{int64(42), "42"},
		{0.25, "0.25"},
		{float64(10), "10"},
		{"plain", "plain"},
	}
	for _, tc := range cases {
		if got := formatValue(tc.in); got != tc.want {
			t.Fatalf("formatValue(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
