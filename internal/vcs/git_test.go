package vcs

import "testing"

func TestFingerprintOf(t *testing.T) {
	a := fingerprintOf(" M foo.go\n", "foo.go | 2 +-\n")
	b := fingerprintOf(" M foo.go\n", "foo.go | 2 +-\n")
	if a != b {
		t.Errorf("same inputs produced different fingerprints: %s vs %s", a, b)
	}

	c := fingerprintOf(" M foo.go\n M bar.go\n", "foo.go | 2 +-\n")
	if a == c {
		t.Error("different status produced identical fingerprint")
	}

	// Content must not leak across the field boundary.
	d := fingerprintOf(" M foo.go\n M", " bar.go\n")
	e := fingerprintOf(" M foo.go\n", " M bar.go\n")
	if d == e {
		t.Error("field boundary not separated in fingerprint input")
	}

	if len(a) != 16 {
		t.Errorf("fingerprint length = %d, want 16", len(a))
	}
}

func TestCountPorcelainLines(t *testing.T) {
	cases := []struct {
		status string
		want   int
	}{
		{"", 0},
		{"\n", 0},
		{" M foo.go\n", 1},
		{" M foo.go\n?? new.go\nA  staged.go\n", 3},
	}
	for _, tc := range cases {
		if got := countPorcelainLines(tc.status); got != tc.want {
			t.Errorf("countPorcelainLines(%q) = %d, want %d", tc.status, got, tc.want)
		}
	}
}
