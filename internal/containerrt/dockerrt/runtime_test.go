package dockerrt

import "testing"

func TestParseMemory(t *testing.T) {
	cases := map[string]int64{
		"512m": 512 * 1024 * 1024,
		"1g":   1024 * 1024 * 1024,
		"256k": 256 * 1024,
	}
	for in, want := range cases {
		got, err := parseMemory(in)
		if err != nil {
			t.Fatalf("parseMemory(%q) error: %v", in, err)
		}
		if got != want {
			t.Errorf("parseMemory(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestClampRetries(t *testing.T) {
	if clampRetries(0) != 1 {
		t.Error("expected 0 to clamp to 1")
	}
	if clampRetries(10) != 5 {
		t.Error("expected 10 to clamp to 5")
	}
	if clampRetries(3) != 3 {
		t.Error("expected 3 to pass through unchanged")
	}
}
