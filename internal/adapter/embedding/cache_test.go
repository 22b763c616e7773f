package embedding

import (
	"errors"
	"path/filepath"
	"testing"

	"finsight/internal/domain"
)

func newTestCache(t *testing.T) *BoltCache {
	t.Helper()
	cache, err := OpenBoltCache(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { cache.Close() })
	return cache
}

func TestBoltCache_PutGet(t *testing.T) {
	cache := newTestCache(t)

	hash := domain.HashText("some article text")
	if _, found, err := cache.Get(hash); err != nil || found {
		t.Fatalf("expected miss, found=%v err=%v", found, err)
	}

	want := []float32{0.1, 0.2, 0.3}
	if err := cache.Put(hash, want); err != nil {
		t.Fatal(err)
	}

	got, found, err := cache.Get(hash)
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("expected hit after put")
	}
	if len(got) != 3 || got[0] != 0.1 || got[2] != 0.3 {
		t.Errorf("unexpected vector: %v", got)
	}

	size, err := cache.Size()
	if err != nil {
		t.Fatal(err)
	}
	if size != 1 {
		t.Errorf("expected size 1, got %d", size)
	}
}

func TestCachedEmbedder_SkipsRemoteOnHit(t *testing.T) {
	cache := newTestCache(t)
	mock := NewMockEmbedder(8)
	cached := NewCachedEmbedder(mock, cache)

	texts := []string{"Federal Reserve cuts rates", "Bitcoin hits new high"}

	first, err := cached.Embed(texts)
	if err != nil {
		t.Fatal(err)
	}
	if mock.Calls != 1 {
		t.Fatalf("expected 1 upstream call, got %d", mock.Calls)
	}

	second, err := cached.Embed(texts)
	if err != nil {
		t.Fatal(err)
	}
	if mock.Calls != 1 {
		t.Errorf("expected cached call to skip upstream, got %d calls", mock.Calls)
	}
	for i := range first {
		for j := range first[i] {
			if first[i][j] != second[i][j] {
				t.Fatalf("cached vector %d differs at %d", i, j)
			}
		}
	}
}

func TestCachedEmbedder_PartialHitPreservesOrder(t *testing.T) {
	cache := newTestCache(t)
	mock := NewMockEmbedder(8)
	cached := NewCachedEmbedder(mock, cache)

	if _, err := cached.Embed([]string{"known text"}); err != nil {
		t.Fatal(err)
	}

	vectors, err := cached.Embed([]string{"fresh one", "known text", "fresh two"})
	if err != nil {
		t.Fatal(err)
	}
	if len(vectors) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(vectors))
	}

	// The cached entry must land in its original position.
	direct, err := mock.Embed([]string{"known text"})
	if err != nil {
		t.Fatal(err)
	}
	for j := range direct[0] {
		if vectors[1][j] != direct[0][j] {
			t.Fatal("cached vector not aligned with its input position")
		}
	}
}

func TestCachedEmbedder_EmptyTextRejected(t *testing.T) {
	cache := newTestCache(t)
	cached := NewCachedEmbedder(NewMockEmbedder(8), cache)

	_, err := cached.Embed([]string{""})
	var invalid *domain.InvalidInputError
	if !errors.As(err, &invalid) {
		t.Errorf("expected InvalidInputError, got %v", err)
	}
}

func TestBoltCache_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache.db")

	cache, err := OpenBoltCache(path)
	if err != nil {
		t.Fatal(err)
	}
	hash := domain.HashText("persisted")
	if err := cache.Put(hash, []float32{1, 2}); err != nil {
		t.Fatal(err)
	}
	cache.Close()

	reopened, err := OpenBoltCache(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	_, found, err := reopened.Get(hash)
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Error("expected cache entry to survive reopen")
	}
}
