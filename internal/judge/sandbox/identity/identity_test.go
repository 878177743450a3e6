package identity

import (
	"regexp"
	"sync"
	"testing"
)

var hexID = regexp.MustCompile(`^[0-9a-f]{32}$`)

func TestNewFormat(t *testing.T) {
	id, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !hexID.MatchString(id.String()) {
		t.Fatalf("unexpected id format %q", id)
	}
}

func TestNewUniqueUnderConcurrency(t *testing.T) {
	const total = 10000
	const workers = 16

	ids := make(chan TaskID, total)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for i := 0; i < n; i++ {
				id, err := New()
				if err != nil {
					t.Errorf("New: %v", err)
					return
				}
				ids <- id
			}
		}(total / workers)
	}
	wg.Wait()
	close(ids)

	seen := make(map[TaskID]struct{}, total)
	for id := range ids {
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate task id %s", id)
		}
		seen[id] = struct{}{}
	}
	if len(seen) != (total/workers)*workers {
		t.Fatalf("expected %d ids, got %d", (total/workers)*workers, len(seen))
	}
}

func TestNaming(t *testing.T) {
	id := TaskID("0123456789abcdef0123456789abcdef")
	if got := id.Hostname("chiko", "compiler"); got != "chiko-compiler-0123456789abcdef0123456789abcdef" {
		t.Fatalf("unexpected hostname %q", got)
	}
	if got := id.Hostname("", "runner"); got != "runner-0123456789abcdef0123456789abcdef" {
		t.Fatalf("unexpected hostname %q", got)
	}
	if got := id.CgroupName("runner"); got != "runner-0123456789abcdef0123456789abcdef" {
		t.Fatalf("unexpected cgroup name %q", got)
	}
}
