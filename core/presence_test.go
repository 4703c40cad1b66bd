package core

import (
	"fmt"
	"sync"
	"testing"
)

func TestPresenceJoinDropCounts(t *testing.T) {
	reg := NewPresenceRegistry()

	const joins = 7
	for i := 0; i < joins; i++ {
		count := reg.Join(fmt.Sprintf("conn-%d", i), UserDescriptor{UserID: fmt.Sprintf("u%d", i)})
		if count != i+1 {
			t.Fatalf("join %d returned count %d", i, count)
		}
	}

	const drops = 3
	for i := 0; i < drops; i++ {
		count := reg.Drop(fmt.Sprintf("conn-%d", i))
		if count != joins-i-1 {
			t.Fatalf("drop %d returned count %d", i, count)
		}
	}

	if got := reg.Size(); got != joins-drops {
		t.Fatalf("size = %d, want %d", got, joins-drops)
	}
}

func TestPresenceRejoinReplaces(t *testing.T) {
	reg := NewPresenceRegistry()

	reg.Join("conn-1", UserDescriptor{UserID: "u1", Name: "Ana"})
	count := reg.Join("conn-1", UserDescriptor{UserID: "u2", Name: "Ben"})
	if count != 1 {
		t.Fatalf("re-join returned count %d, want 1", count)
	}
	desc, ok := reg.Get("conn-1")
	if !ok || desc.UserID != "u2" {
		t.Fatalf("descriptor = %+v, want replaced by u2", desc)
	}
}

func TestPresenceDropAbsentIsNoop(t *testing.T) {
	reg := NewPresenceRegistry()
	reg.Join("conn-1", UserDescriptor{UserID: "u1"})

	if count := reg.Drop("unknown"); count != 1 {
		t.Fatalf("drop absent returned %d, want 1", count)
	}
}

// Concurrent joins and drops must still leave the registry consistent: the
// count returned by each mutation reflects the map size at that instant and
// the final size equals joins minus drops.
func TestPresenceConcurrentMutation(t *testing.T) {
	reg := NewPresenceRegistry()

	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reg.Join(fmt.Sprintf("conn-%d", i), UserDescriptor{UserID: fmt.Sprintf("u%d", i)})
		}(i)
	}
	wg.Wait()

	for i := 0; i < n/2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reg.Drop(fmt.Sprintf("conn-%d", i))
		}(i)
	}
	wg.Wait()

	if got := reg.Size(); got != n/2 {
		t.Fatalf("size = %d, want %d", got, n/2)
	}
}
