package podmanrt

import "testing"

func TestParseBytes(t *testing.T) {
	cases := map[string]uint64{
		"45.2MB": 45200000,
		"1.5GiB": 1610612736,
		"512kB":  512000,
		"--":     0,
		"":       0,
	}
	for in, want := range cases {
		if got := parseBytes(in); got != want {
			t.Errorf("parseBytes(%q) = %d, want %d", in, got, want)
		}
	}
}
