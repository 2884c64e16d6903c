package ids

import (
	"testing"
	"time"
)

func TestNewIsSortableAndUnique(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	prev := ""
	for i := 0; i < 1000; i++ {
		id := New()
		if !Valid(id) {
			t.Fatalf("generated id %q does not parse", id)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = struct{}{}
		if prev != "" && id <= prev {
			t.Fatalf("ids not monotonic: %q after %q", id, prev)
		}
		prev = id
	}
}

func TestNewAtEncodesTimestamp(t *testing.T) {
	earlier := NewAt(time.Unix(1_600_000_000, 0))
	later := NewAt(time.Unix(1_700_000_000, 0))
	if earlier >= later {
		t.Fatalf("expected %q < %q", earlier, later)
	}
}

func TestValidRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "42", "not-a-ulid", "01ARZ3NDEKTSV4RRFFQ69G5FA"} {
		if Valid(s) {
			t.Fatalf("expected %q to be invalid", s)
		}
	}
}
