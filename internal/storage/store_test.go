package storage_test

import (
	"testing"

	"github.com/xtxerr/feedoracle/internal/errors"
	"github.com/xtxerr/feedoracle/internal/feed"
	"github.com/xtxerr/feedoracle/internal/storage"
	testhelp "github.com/xtxerr/feedoracle/internal/testing"
)

func spotFeed() feed.Feed {
	return feed.New(feed.Spot, testhelp.DemoParams())
}

func TestStore_AddGet(t *testing.T) {
	s := storage.New()
	f := spotFeed()

	if _, err := s.Add(f, 70000, 1000); err != nil {
		t.Fatalf("Add: %v", err)
	}

	got, err := s.Get(f)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Value != 70000 || got.Timestamp != 1000 {
		t.Errorf("Get = %+v", got)
	}

	// Same identity built independently.
	again := feed.New(feed.Spot, feed.Enum(0, 1))
	if _, err := s.Get(again); err != nil {
		t.Errorf("Get with equal identity: %v", err)
	}
}

func TestStore_AddDuplicate(t *testing.T) {
	s := storage.New()
	f := spotFeed()

	if _, err := s.Add(f, 1, 1); err != nil {
		t.Fatalf("Add: %v", err)
	}
	_, err := s.Add(f, 2, 2)
	if !errors.IsAlreadyExists(err) {
		t.Fatalf("expected AlreadyExists, got %v", err)
	}

	got, _ := s.Get(f)
	if got.Value != 1 {
		t.Errorf("duplicate add overwrote value: %v", got.Value)
	}
}

func TestStore_GetMissing(t *testing.T) {
	s := storage.New()
	_, err := s.Get(spotFeed())
	if !errors.IsNotFound(err) {
		t.Fatalf("expected NotFound, got %v", err)
	}
	if errors.ErrorToCode(err) != errors.CodeNotFound {
		t.Errorf("code = %s", errors.CodeName(errors.ErrorToCode(err)))
	}
}

func TestStore_Update(t *testing.T) {
	s := storage.New()
	f := spotFeed()

	if err := s.Update(f, 1, 1); !errors.IsNotFound(err) {
		t.Fatalf("Update missing: expected NotFound, got %v", err)
	}

	slot, _ := s.Add(f, 1, 1)
	if err := s.Update(f, 2, 5); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, _ := s.Get(f)
	if got.Value != 2 || got.Timestamp != 5 {
		t.Errorf("after Update = %+v", got)
	}
	if s2, ok := s.Lookup(f); !ok || s2 != slot {
		t.Errorf("Update moved slot: %v -> %v", slot, s2)
	}
	if s.Count() != 1 {
		t.Errorf("Count = %d", s.Count())
	}
}

func TestStore_Remove(t *testing.T) {
	s := storage.New()
	f := spotFeed()

	if err := s.Remove(f); !errors.IsNotFound(err) {
		t.Fatalf("Remove missing: expected NotFound, got %v", err)
	}

	s.Add(f, 1, 1)
	if err := s.Remove(f); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := s.Get(f); !errors.IsNotFound(err) {
		t.Errorf("Get after Remove: %v", err)
	}
	if s.Count() != 0 {
		t.Errorf("Count = %d", s.Count())
	}

	// Re-add after remove is allowed.
	if _, err := s.Add(f, 3, 3); err != nil {
		t.Errorf("Add after Remove: %v", err)
	}
}

func TestStore_ResetIsolatesEpochs(t *testing.T) {
	s := storage.New()
	f := spotFeed()

	s.Add(f, 1, 1)
	s.Reset()

	if s.Version() != 1 {
		t.Errorf("Version = %d, want 1", s.Version())
	}
	if _, err := s.Get(f); !errors.IsNotFound(err) {
		t.Errorf("Get after Reset: %v", err)
	}
	if s.Count() != 0 {
		t.Errorf("Count after Reset = %d", s.Count())
	}

	if _, err := s.Add(f, 2, 2); err != nil {
		t.Fatalf("Add after Reset: %v", err)
	}
	got, _ := s.Get(f)
	if got.Value != 2 {
		t.Errorf("Get = %v, want 2", got.Value)
	}
}

func TestStore_AddAt(t *testing.T) {
	s := storage.New()
	a := feed.New(feed.Spot, feed.Enum(0, 1))
	b := feed.New(feed.Spot, feed.Enum(0, 2))
	c := feed.New(feed.Spot, feed.Enum(0, 3))

	slotA, _ := s.Add(a, 1, 1)
	s.Add(b, 2, 2)

	// Live slot is not reused.
	slotC, err := s.AddAt(c, 3, 3, slotA)
	if err != nil {
		t.Fatalf("AddAt: %v", err)
	}
	if slotC == slotA {
		t.Fatal("AddAt reused a live slot")
	}
	if got, _ := s.Get(a); got.Value != 1 {
		t.Errorf("a overwritten: %v", got.Value)
	}

	// Freed slot is reused.
	s.Remove(a)
	d := feed.New(feed.Spot, feed.Enum(0, 4))
	slotD, err := s.AddAt(d, 4, 4, slotA)
	if err != nil {
		t.Fatalf("AddAt: %v", err)
	}
	if slotD != slotA {
		t.Errorf("AddAt slot = %d, want %d", slotD, slotA)
	}

	// Out of range appends.
	e := feed.New(feed.Spot, feed.Enum(0, 5))
	slotE, _ := s.AddAt(e, 5, 5, 99)
	if int(slotE) != 3 {
		t.Errorf("AddAt out of range slot = %d, want 3", slotE)
	}
}

func TestStore_Snapshot(t *testing.T) {
	s := storage.New()
	s.Add(feed.New(feed.Spot, feed.Enum(0, 1)), 1, 10)
	s.Add(feed.New(feed.Forward, testhelp.ExpiryParams(100)), 2, 20)
	s.Add(feed.New(feed.Spot, feed.Enum(0, 2)), 3, 30)
	s.Remove(feed.New(feed.Spot, feed.Enum(0, 2)))

	entries := s.Snapshot()
	if len(entries) != 2 {
		t.Fatalf("Snapshot len = %d, want 2", len(entries))
	}
	if entries[1].Feed.Type != feed.Forward || entries[1].Data.Value != 2 {
		t.Errorf("entries[1] = %+v", entries[1])
	}
}

func TestStore_Stats(t *testing.T) {
	s := storage.New()
	f := spotFeed()
	s.Add(f, 1, 1)
	s.Get(f)
	s.Get(feed.New(feed.Forward, testhelp.DemoParams()))
	s.Update(f, 2, 2)

	st := s.Stats()
	if st.Adds != 1 || st.Updates != 1 || st.Hits != 1 || st.Misses != 1 {
		t.Errorf("Stats = %+v", st)
	}
	if st.Entries != 1 || st.Slots != 1 {
		t.Errorf("Stats entries = %d slots = %d", st.Entries, st.Slots)
	}
}

func TestStore_Concurrent(t *testing.T) {
	s := storage.New()
	h := testhelp.NewTestHelper(t)

	for i := 0; i < 16; i++ {
		asset := uint8(i)
		h.Go(func() error {
			f := feed.New(feed.Spot, feed.Enum(0, asset))
			if _, err := s.Add(f, float64(asset), 1); err != nil {
				return err
			}
			for j := 0; j < 100; j++ {
				if err := s.Update(f, float64(j), int64(j)); err != nil {
					return err
				}
				if _, err := s.Get(f); err != nil {
					return err
				}
			}
			return nil
		})
	}
	h.Wait()

	if s.Count() != 16 {
		t.Errorf("Count = %d, want 16", s.Count())
	}
}
