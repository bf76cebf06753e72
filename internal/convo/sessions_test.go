package convo

import (
	"sync"
	"testing"
)

func TestSessionStoreRoundTrip(t *testing.T) {
	s := NewSessionStore()
	if _, ok := s.Get("123"); ok {
		t.Fatal("empty store must not return a session")
	}

	s.Set("123", Session{State: StateCategorySelection})
	sess, ok := s.Get("123")
	if !ok || sess.State != StateCategorySelection {
		t.Fatalf("expected stored session, got %+v ok=%v", sess, ok)
	}
	if sess.UpdatedAt.IsZero() {
		t.Fatal("Set must stamp UpdatedAt")
	}

	s.Delete("123")
	if _, ok := s.Get("123"); ok {
		t.Fatal("deleted session must be gone")
	}
}

func TestSessionStoreCopiesOnGet(t *testing.T) {
	s := NewSessionStore()
	s.Set("123", Session{State: StateCategorySelection, Category: "pharmacology"})

	sess, _ := s.Get("123")
	sess.Category = "mutated"

	again, _ := s.Get("123")
	if again.Category != "pharmacology" {
		t.Fatal("mutating a returned session must not change the stored one")
	}
}

func TestSessionStoreConcurrentAccess(t *testing.T) {
	s := NewSessionStore()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.Set("user", Session{State: StateMaterialSelection})
				s.Get("user")
				s.Delete("user")
			}
		}()
	}
	wg.Wait()
	if s.Len() > 1 {
		t.Fatalf("unexpected session count %d", s.Len())
	}
}
