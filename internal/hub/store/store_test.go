package store

import (
	"context"
	"slices"
	"testing"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if data, err := s.Load(ctx, "lobby"); err != nil || data != nil {
		t.Fatalf("Load on empty store = (%v, %v), want (nil, nil)", data, err)
	}

	if err := s.Save(ctx, "lobby", []byte(`{"board":{}}`)); err != nil {
		t.Fatal(err)
	}
	data, err := s.Load(ctx, "lobby")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"board":{}}` {
		t.Errorf("loaded %q", data)
	}

	// The store must hand out copies, not its internal buffer.
	data[0] = 'X'
	reloaded, _ := s.Load(ctx, "lobby")
	if string(reloaded) != `{"board":{}}` {
		t.Error("mutation of a loaded snapshot leaked into the store")
	}

	if err := s.Delete(ctx, "lobby"); err != nil {
		t.Fatal(err)
	}
	if data, _ := s.Load(ctx, "lobby"); data != nil {
		t.Error("snapshot survived delete")
	}
}

func TestMemoryStoreRooms(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for _, room := range []string{"zulu", "alpha", "lobby"} {
		if err := s.Save(ctx, room, []byte("{}")); err != nil {
			t.Fatal(err)
		}
	}

	rooms, err := s.Rooms(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(rooms, []string{"alpha", "lobby", "zulu"}) {
		t.Errorf("rooms = %v, want sorted list", rooms)
	}
}
