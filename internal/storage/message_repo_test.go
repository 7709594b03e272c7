package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
)

func newTestRepo(t *testing.T) *MessageRepo {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	if err := Migrate(db); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewMessageRepo(db)
}

func TestMessageRepo_Upsert(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		messages  []MessageRecord
		wantCount int
		wantErr   bool
	}{
		{
			name:      "empty batch",
			messages:  nil,
			wantCount: 0,
		},
		{
			name: "two messages",
			messages: []MessageRecord{
				{ID: "m1", UserID: "u1", UserName: "Sophia Al-Farsi", Timestamp: "2024-05-01T10:00:00Z", Text: "Book a table for two."},
				{ID: "m2", UserID: "u2", UserName: "Vikram Desai", Text: "I have three cars."},
			},
			wantCount: 2,
		},
		{
			name:     "missing id",
			messages: []MessageRecord{{UserID: "u1", UserName: "Sophia", Text: "hello"}},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newTestRepo(t)
			n, err := repo.Upsert(ctx, tt.messages)
			if tt.wantErr {
				if err == nil {
					t.Error("Upsert() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Upsert() error = %v", err)
			}
			if n != tt.wantCount {
				t.Errorf("Upsert() = %d, want %d", n, tt.wantCount)
			}
			count, err := repo.Count(ctx)
			if err != nil {
				t.Fatalf("Count() error = %v", err)
			}
			if count != tt.wantCount {
				t.Errorf("Count() = %d, want %d", count, tt.wantCount)
			}
		})
	}
}

func TestMessageRepo_UpsertReplaces(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	if _, err := repo.Upsert(ctx, []MessageRecord{{ID: "m1", UserID: "u1", UserName: "Layla", Text: "old"}}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if _, err := repo.Upsert(ctx, []MessageRecord{{ID: "m1", UserID: "u1", UserName: "Layla Kawaguchi", Text: "new"}}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	got, err := repo.GetByIDs(ctx, []string{"m1"})
	if err != nil {
		t.Fatalf("GetByIDs() error = %v", err)
	}
	if got["m1"].Text != "new" || got["m1"].UserName != "Layla Kawaguchi" {
		t.Errorf("GetByIDs() = %+v, want replaced row", got)
	}
	if n, _ := repo.Count(ctx); n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}
}

func TestMessageRepo_GetByIDs(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	// More rows than one IN (...) batch holds.
	messages := make([]MessageRecord, 0, 620)
	ids := make([]string, 0, 621)
	for i := range 620 {
		id := fmt.Sprintf("m%03d", i)
		messages = append(messages, MessageRecord{ID: id, UserID: "u1", UserName: "Sophia Al-Farsi", Text: "text " + id})
		ids = append(ids, id)
	}
	ids = append(ids, "missing")
	if _, err := repo.Upsert(ctx, messages); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	got, err := repo.GetByIDs(ctx, ids)
	if err != nil {
		t.Fatalf("GetByIDs() error = %v", err)
	}
	if len(got) != 620 {
		t.Errorf("GetByIDs() returned %d rows, want 620", len(got))
	}
	if _, ok := got["missing"]; ok {
		t.Error("GetByIDs() should omit unknown ids")
	}
	if got["m007"].Text != "text m007" {
		t.Errorf("GetByIDs()[m007] = %+v", got["m007"])
	}

	empty, err := repo.GetByIDs(ctx, nil)
	if err != nil || len(empty) != 0 {
		t.Errorf("GetByIDs(nil) = %v, %v; want empty map", empty, err)
	}
}

func TestMessageRepo_ListAuthors(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	_, err := repo.Upsert(ctx, []MessageRecord{
		{ID: "m1", UserID: "u2", UserName: "Vikram Desai", Text: "a"},
		{ID: "m2", UserID: "u1", UserName: "Layla Kawaguchi", Text: "b"},
		{ID: "m3", UserID: "u1", UserName: "Layla Kawaguchi", Text: "c"},
		{ID: "m4", UserID: "u3", UserName: "Layla", Text: "d"},
	})
	if err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	authors, err := repo.ListAuthors(ctx)
	if err != nil {
		t.Fatalf("ListAuthors() error = %v", err)
	}

	want := []Author{
		{ID: "u1", Name: "Layla Kawaguchi", MessageCount: 2},
		{ID: "u2", Name: "Vikram Desai", MessageCount: 1},
		{ID: "u3", Name: "Layla", MessageCount: 1},
	}
	if len(authors) != len(want) {
		t.Fatalf("ListAuthors() returned %d authors, want %d", len(authors), len(want))
	}
	for i := range want {
		if authors[i] != want[i] {
			t.Errorf("ListAuthors()[%d] = %+v, want %+v", i, authors[i], want[i])
		}
	}
}
