package storage

import (
	"context"
	"reflect"
	"testing"
	"time"

	"secretsanta/internal/models"
)

func TestRecords_RoundTrip(t *testing.T) {
	ctx := context.Background()
	records := NewRecords(NewMemoryKV(), "office")
	now := time.Date(2024, 12, 3, 9, 30, 0, 0, time.UTC)

	participants := []models.Participant{
		{ID: "p-1", Name: "Alice"},
		{ID: "p-2", Name: "Bob", HasReceivedMatch: true},
	}
	matches := []models.Match{
		{Giver: "Alice", Receiver: "Bob", Timestamp: now},
	}

	if err := records.SaveParticipants(ctx, participants); err != nil {
		t.Fatalf("SaveParticipants: %v", err)
	}
	if err := records.SaveMatches(ctx, matches); err != nil {
		t.Fatalf("SaveMatches: %v", err)
	}

	gotP, err := records.LoadParticipants(ctx)
	if err != nil {
		t.Fatalf("LoadParticipants: %v", err)
	}
	if !reflect.DeepEqual(gotP, participants) {
		t.Errorf("participants = %+v, want %+v", gotP, participants)
	}

	gotM, err := records.LoadMatches(ctx)
	if err != nil {
		t.Fatalf("LoadMatches: %v", err)
	}
	if len(gotM) != 1 || gotM[0].Giver != "Alice" || gotM[0].Receiver != "Bob" || !gotM[0].Timestamp.Equal(now) {
		t.Errorf("matches = %+v, want %+v", gotM, matches)
	}
}

func TestRecords_MissingAndCorrupt(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	records := NewRecords(kv, "office")

	t.Run("Missing records load empty", func(t *testing.T) {
		p, err := records.LoadParticipants(ctx)
		if err != nil || p == nil || len(p) != 0 {
			t.Errorf("LoadParticipants = %v, %v; want empty list", p, err)
		}
		m, err := records.LoadMatches(ctx)
		if err != nil || m == nil || len(m) != 0 {
			t.Errorf("LoadMatches = %v, %v; want empty list", m, err)
		}
	})

	t.Run("Corrupt records load empty", func(t *testing.T) {
		_ = kv.Put(ctx, "office/participants", []byte("{not json"))
		_ = kv.Put(ctx, "office/santaMatches", []byte(`{"giver": 1}`))
		p, err := records.LoadParticipants(ctx)
		if err != nil || len(p) != 0 {
			t.Errorf("LoadParticipants = %v, %v; want empty list", p, err)
		}
		m, err := records.LoadMatches(ctx)
		if err != nil || len(m) != 0 {
			t.Errorf("LoadMatches = %v, %v; want empty list", m, err)
		}
	})

	t.Run("Empty match list removes the record", func(t *testing.T) {
		_ = records.SaveMatches(ctx, []models.Match{{Giver: "A", Receiver: "B", Timestamp: time.Now()}})
		if err := records.SaveMatches(ctx, nil); err != nil {
			t.Fatalf("SaveMatches: %v", err)
		}
		if _, found, _ := kv.Get(ctx, "office/santaMatches"); found {
			t.Error("match record still present after saving an empty list")
		}
	})

	t.Run("Groups do not share keys", func(t *testing.T) {
		other := NewRecords(kv, "family")
		_ = records.SaveParticipants(ctx, []models.Participant{{ID: "1", Name: "Alice"}})
		p, _ := other.LoadParticipants(ctx)
		if len(p) != 0 {
			t.Errorf("family sees office participants: %+v", p)
		}
	})
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	kv, err := Open(ctx, Options{Driver: DriverMemory})
	if err != nil {
		t.Fatalf("Open(memory): %v", err)
	}
	defer kv.Close()
	if _, ok := kv.(*MemoryKV); !ok {
		t.Errorf("Open(memory) = %T, want *MemoryKV", kv)
	}

	if _, err := Open(ctx, Options{Driver: "etcd"}); err == nil {
		t.Error("expected error for unknown driver")
	}
}
