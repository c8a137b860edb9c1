package version

import (
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	got := String()
	if !strings.HasPrefix(got, "dronepad "+Version) {
		t.Fatalf("String() = %q", got)
	}
	if !strings.Contains(got, Commit) {
		t.Fatalf("String() = %q, missing commit", got)
	}
}
