package version

import "testing"

func TestInfo(t *testing.T) {
	Version, Commit, Date = "v1.0.0", "abc1234", "2026-05-04"
	defer func() { Version, Commit, Date = "dev", "none", "unknown" }()

	if got, want := Info(), "v1.0.0 (commit abc1234, built 2026-05-04)"; got != want {
		t.Errorf("Info() = %q, want %q", got, want)
	}
}
