package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rhuss/funcrun/pkg/functions"
	"github.com/rhuss/funcrun/pkg/storage"
)

func makeFunction(name string) functions.Function {
	return functions.Function{
		Name:        name,
		Description: "adds two numbers",
		Runtime:     functions.Runtime{Kind: functions.RuntimePython},
		Deps:        []string{"numpy>=1.26"},
		Code:        "def run(a, b):\n    return a + b\n",
		CreatedAt:   1000,
		UpdatedAt:   1000,
	}
}

func TestSaveAndGet(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	if err := s.Save(ctx, makeFunction("add")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := s.Get(ctx, "add")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Name != "add" {
		t.Errorf("Name = %q, want %q", got.Name, "add")
	}
	if len(got.Deps) != 1 || got.Deps[0] != "numpy>=1.26" {
		t.Errorf("Deps = %v", got.Deps)
	}

	// Mutating the returned copy must not change the stored function.
	got.Deps[0] = "changed"
	again, _ := s.Get(ctx, "add")
	if again.Deps[0] != "numpy>=1.26" {
		t.Error("stored function was mutated through a returned copy")
	}

	ok, err := s.Exists(ctx, "add")
	if err != nil || !ok {
		t.Errorf("Exists = %v, %v", ok, err)
	}
}

func TestGetNotFound(t *testing.T) {
	s := New(0)

	_, err := s.Get(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if ok, _ := s.Exists(context.Background(), "missing"); ok {
		t.Error("Exists should be false")
	}
}

func TestDuplicateSave(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	s.Save(ctx, makeFunction("add"))
	if err := s.Save(ctx, makeFunction("add")); !errors.Is(err, storage.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
}

func TestUpdate(t *testing.T) {
	s := New(0)
	s.now = func() time.Time { return time.Unix(2000, 0) }
	ctx := context.Background()

	s.Save(ctx, makeFunction("add"))

	desc := "adds numbers"
	got, err := s.Update(ctx, "add", functions.Update{Description: &desc})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if got.Description != desc {
		t.Errorf("Description = %q, want %q", got.Description, desc)
	}
	if got.Code != makeFunction("add").Code {
		t.Error("absent fields must be left unchanged")
	}
	if got.UpdatedAt != 2000 || got.CreatedAt != 1000 {
		t.Errorf("timestamps = %d/%d, want 1000/2000", got.CreatedAt, got.UpdatedAt)
	}

	if _, err := s.Update(ctx, "missing", functions.Update{}); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	s.Save(ctx, makeFunction("add"))
	if err := s.Delete(ctx, "add"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Get(ctx, "add"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.Delete(ctx, "add"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestListPagination(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	for _, name := range []string{"delta", "alpha", "charlie", "bravo", "echo"} {
		s.Save(ctx, makeFunction(name))
	}

	page, err := s.List(ctx, functions.ListOptions{Limit: 2})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(page.Data) != 2 || page.Data[0].Name != "alpha" || page.Data[1].Name != "bravo" {
		t.Fatalf("first page = %+v", page.Data)
	}
	if !page.HasMore || page.NextCursor != "bravo" {
		t.Errorf("HasMore = %v, NextCursor = %q", page.HasMore, page.NextCursor)
	}

	var names []string
	cursor := ""
	for {
		p, err := s.List(ctx, functions.ListOptions{Limit: 2, After: cursor})
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		for _, fn := range p.Data {
			names = append(names, fn.Name)
		}
		if !p.HasMore {
			break
		}
		cursor = p.NextCursor
	}
	want := []string{"alpha", "bravo", "charlie", "delta", "echo"}
	if fmt.Sprint(names) != fmt.Sprint(want) {
		t.Errorf("paged names = %v, want %v", names, want)
	}
}

func TestSearch(t *testing.T) {
	s := New(0)
	ctx := context.Background()

	for i, name := range []string{"add_numbers", "Addresses", "multiply"} {
		fn := makeFunction(name)
		fn.UpdatedAt = int64(1000 + i)
		s.Save(ctx, fn)
	}

	got, err := s.Search(ctx, "ADD", 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d matches, want 2", len(got))
	}
	if got[0].Name != "Addresses" {
		t.Errorf("most recently updated should come first, got %q", got[0].Name)
	}

	limited, _ := s.Search(ctx, "add", 1)
	if len(limited) != 1 {
		t.Errorf("limit not applied, got %d", len(limited))
	}
}

func TestLRUEviction(t *testing.T) {
	s := New(3) // max 3 entries
	ctx := context.Background()

	s.Save(ctx, makeFunction("fn_a"))
	s.Save(ctx, makeFunction("fn_b"))
	s.Save(ctx, makeFunction("fn_c"))

	// Reading fn_a makes fn_b the least recently used.
	if _, err := s.Get(ctx, "fn_a"); err != nil {
		t.Fatalf("expected fn_a to exist, got %v", err)
	}

	s.Save(ctx, makeFunction("fn_d"))

	if ok, _ := s.Exists(ctx, "fn_b"); ok {
		t.Error("expected fn_b to be evicted")
	}
	for _, name := range []string{"fn_a", "fn_c", "fn_d"} {
		if ok, _ := s.Exists(ctx, name); !ok {
			t.Errorf("expected %s to exist after eviction", name)
		}
	}
}

func TestLRUEviction_Unlimited(t *testing.T) {
	s := New(0) // unlimited
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		s.Save(ctx, makeFunction(fmt.Sprintf("fn_%d", i)))
	}

	s.mu.RLock()
	count := len(s.entries)
	s.mu.RUnlock()

	if count != 100 {
		t.Errorf("expected 100 entries, got %d", count)
	}
}
