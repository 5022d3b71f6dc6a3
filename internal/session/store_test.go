package session

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"pdfchat/internal/vectorstore"
)

func TestStore_Lifecycle(t *testing.T) {
	s := NewStore()

	if _, ok := s.Get("default"); ok {
		t.Fatal("new store should have no sessions")
	}

	a := &State{Document: DocumentInfo{ID: "a", Filename: "a.pdf"}, Index: vectorstore.Empty()}
	if prev := s.Replace("default", a); prev != nil {
		t.Errorf("first Replace() returned %v, want nil", prev)
	}

	b := &State{Document: DocumentInfo{ID: "b", Filename: "b.pdf"}, Index: vectorstore.Empty()}
	if prev := s.Replace("default", b); prev != a {
		t.Errorf("second Replace() returned %v, want previous state", prev)
	}

	got, ok := s.Get("default")
	if !ok || got.Document.ID != "b" {
		t.Errorf("Get() = %v, %v, want state b", got, ok)
	}

	s.Replace("other", a)
	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}
	if ids := s.IDs(); fmt.Sprint(ids) != "[default other]" {
		t.Errorf("IDs() = %v", ids)
	}

	removed, ok := s.Reset("default")
	if !ok || removed != b {
		t.Errorf("Reset() = %v, %v, want state b", removed, ok)
	}
	if _, ok := s.Reset("default"); ok {
		t.Error("second Reset() should report nothing removed")
	}
	if _, ok := s.Get("other"); !ok {
		t.Error("Reset() must not touch other sessions")
	}
}

func TestStore_ConcurrentReplaceAndGet(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	states := make([]*State, 8)
	for i := range states {
		idx, err := vectorstore.NewBruteForceBuilder().Build(ctx, nil, nil)
		if err != nil {
			t.Fatal(err)
		}
		states[i] = &State{Document: DocumentInfo{ID: fmt.Sprint(i)}, Index: idx}
	}

	var wg sync.WaitGroup
	for i := range states {
		wg.Add(2)
		go func(st *State) {
			defer wg.Done()
			s.Replace("default", st)
		}(states[i])
		go func() {
			defer wg.Done()
			if st, ok := s.Get("default"); ok && st.Index == nil {
				t.Error("observed state without index")
			}
		}()
	}
	wg.Wait()

	got, ok := s.Get("default")
	if !ok {
		t.Fatal("expected a state after concurrent replaces")
	}
	found := false
	for _, st := range states {
		if st == got {
			found = true
		}
	}
	if !found {
		t.Error("final state is not one of the installed states")
	}
}
