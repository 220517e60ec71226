package profile

import (
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"tankwar/internal/game"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "profiles.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func sampleRecord(id string) game.ProfileRecord {
	return game.ProfileRecord{
		PlayerID:    id,
		Name:        "Rusty",
		Faction:     "rust",
		Crypto:      420,
		TotalCrypto: 1337,
		Level:       7,
		Kills:       21,
		Deaths:      9,
		Badges:      []string{"first-blood", "cluster-lord"},
		Title:       "Sergeant",
		UpdatedAt:   time.Unix(1700000000, 0),
	}
}

func TestLoadMissingReturnsNil(t *testing.T) {
	st := testStore(t)

	rec, err := st.Load("ghost")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected nil record for unknown player, got %+v", rec)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	st := testStore(t)
	want := sampleRecord("p1")

	if err := st.Save(want); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := st.Load("p1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got == nil {
		t.Fatal("expected a record")
	}
	if got.Name != want.Name || got.Faction != want.Faction {
		t.Errorf("identity mismatch: got %s/%s", got.Name, got.Faction)
	}
	if got.Crypto != want.Crypto || got.TotalCrypto != want.TotalCrypto {
		t.Errorf("crypto mismatch: got %d/%d", got.Crypto, got.TotalCrypto)
	}
	if got.Level != want.Level || got.Kills != want.Kills || got.Deaths != want.Deaths {
		t.Errorf("stats mismatch: got level=%d kills=%d deaths=%d", got.Level, got.Kills, got.Deaths)
	}
	if !reflect.DeepEqual(got.Badges, want.Badges) {
		t.Errorf("badges mismatch: got %v want %v", got.Badges, want.Badges)
	}
	if got.Title != want.Title {
		t.Errorf("title mismatch: got %q", got.Title)
	}
	if got.UpdatedAt.Unix() != want.UpdatedAt.Unix() {
		t.Errorf("updated_at mismatch: got %d want %d", got.UpdatedAt.Unix(), want.UpdatedAt.Unix())
	}
}

func TestSaveUpserts(t *testing.T) {
	st := testStore(t)
	rec := sampleRecord("p1")
	if err := st.Save(rec); err != nil {
		t.Fatalf("save: %v", err)
	}

	rec.Crypto = 9000
	rec.Kills = 50
	rec.Badges = append(rec.Badges, "warlord")
	if err := st.Save(rec); err != nil {
		t.Fatalf("second save: %v", err)
	}

	n, err := st.Count()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected a single row after upsert, got %d", n)
	}
	got, err := st.Load("p1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Crypto != 9000 || got.Kills != 50 {
		t.Errorf("upsert did not replace values: crypto=%d kills=%d", got.Crypto, got.Kills)
	}
	if len(got.Badges) != 3 {
		t.Errorf("expected 3 badges, got %v", got.Badges)
	}
}

func TestSaveBatch(t *testing.T) {
	st := testStore(t)

	recs := []game.ProfileRecord{sampleRecord("a"), sampleRecord("b"), sampleRecord("c")}
	recs[1].Crypto = -12 // debt survives persistence
	if err := st.SaveBatch(recs); err != nil {
		t.Fatalf("save batch: %v", err)
	}

	n, err := st.Count()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 rows, got %d", n)
	}
	got, err := st.Load("b")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Crypto != -12 {
		t.Errorf("expected negative balance to round-trip, got %d", got.Crypto)
	}
}

func TestEmptyBadgesLoadAsEmpty(t *testing.T) {
	st := testStore(t)
	rec := sampleRecord("p1")
	rec.Badges = nil
	if err := st.Save(rec); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := st.Load("p1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got.Badges) != 0 {
		t.Errorf("expected no badges, got %v", got.Badges)
	}
}

func TestWipeAllBatches(t *testing.T) {
	st := testStore(t)
	var recs []game.ProfileRecord
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		recs = append(recs, sampleRecord(id))
	}
	if err := st.SaveBatch(recs); err != nil {
		t.Fatalf("save batch: %v", err)
	}

	deleted, err := st.WipeAll(3)
	if err != nil {
		t.Fatalf("wipe: %v", err)
	}
	if deleted != 7 {
		t.Errorf("expected 7 deletions, got %d", deleted)
	}
	n, err := st.Count()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Errorf("expected empty table, got %d rows", n)
	}
}
