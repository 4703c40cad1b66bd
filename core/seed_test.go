package core

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type fakeLearningRepo struct {
	paths  map[string]*LearningPath
	nextID int
}

func newFakeLearningRepo() *fakeLearningRepo {
	return &fakeLearningRepo{paths: map[string]*LearningPath{}}
}

func (f *fakeLearningRepo) ListByUser(_ context.Context, userID string) ([]LearningPath, error) {
	var out []LearningPath
	for _, p := range f.paths {
		if p.UserID == userID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeLearningRepo) FindByID(_ context.Context, id string) (*LearningPath, error) {
	if p, ok := f.paths[id]; ok {
		return p, nil
	}
	return nil, ErrNotFound
}

func (f *fakeLearningRepo) Create(_ context.Context, userID string, input LearningPathInput) (*LearningPath, error) {
	f.nextID++
	p := &LearningPath{
		ID:        string(rune('a' + f.nextID)),
		UserID:    userID,
		Title:     input.Title,
		Topic:     input.Topic,
		Steps:     input.Steps,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	f.paths[p.ID] = p
	return p, nil
}

func (f *fakeLearningRepo) Update(_ context.Context, id string, input LearningPathInput) (*LearningPath, error) {
	p, ok := f.paths[id]
	if !ok {
		return nil, ErrNotFound
	}
	p.Title, p.Topic, p.Steps = input.Title, input.Topic, input.Steps
	p.UpdatedAt = time.Now()
	return p, nil
}

func (f *fakeLearningRepo) Delete(_ context.Context, id string) error {
	if _, ok := f.paths[id]; !ok {
		return ErrNotFound
	}
	delete(f.paths, id)
	return nil
}

const seedYAML = `paths:
  - title: "Intro to Go"
    topic: go
    owner_email: owner@example.com
    steps:
      - title: "Install the toolchain"
        description: "Set up Go locally."
        resource_url: "https://go.dev/dl"
      - title: "Tour of Go"
  - title: "Orphaned Path"
    topic: misc
    owner_email: nobody@example.com
    steps: []
`

func writeSeedFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write seed file: %v", err)
	}
	return path
}

func TestSeedLearningPaths(t *testing.T) {
	owner := &UserRecord{ID: "u1", Name: "Owner", Email: "owner@example.com", Role: RoleUser}
	users := newFakeUserRepo(owner)
	paths := newFakeLearningRepo()

	file := writeSeedFile(t, seedYAML)
	if err := SeedLearningPaths(context.Background(), file, users, paths); err != nil {
		t.Fatalf("seed: %v", err)
	}

	created, err := paths.ListByUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("created %d paths, want 1 (orphan skipped)", len(created))
	}
	if created[0].Title != "Intro to Go" || len(created[0].Steps) != 2 {
		t.Fatalf("created path = %+v", created[0])
	}
	if created[0].Steps[0].ResourceURL != "https://go.dev/dl" {
		t.Fatalf("step = %+v", created[0].Steps[0])
	}
}

func TestSeedLearningPathsIdempotent(t *testing.T) {
	owner := &UserRecord{ID: "u1", Name: "Owner", Email: "owner@example.com", Role: RoleUser}
	users := newFakeUserRepo(owner)
	paths := newFakeLearningRepo()

	file := writeSeedFile(t, seedYAML)
	for i := 0; i < 2; i++ {
		if err := SeedLearningPaths(context.Background(), file, users, paths); err != nil {
			t.Fatalf("seed #%d: %v", i+1, err)
		}
	}

	created, _ := paths.ListByUser(context.Background(), "u1")
	if len(created) != 1 {
		t.Fatalf("created %d paths after reseed, want 1", len(created))
	}
}

func TestSeedLearningPathsMissingFileIsNoop(t *testing.T) {
	users := newFakeUserRepo()
	paths := newFakeLearningRepo()
	if err := SeedLearningPaths(context.Background(), filepath.Join(t.TempDir(), "absent.yaml"), users, paths); err != nil {
		t.Fatalf("missing file should be skipped, got %v", err)
	}
}

func TestSeedLearningPathsRejectsInvalidEntry(t *testing.T) {
	users := newFakeUserRepo()
	paths := newFakeLearningRepo()

	file := writeSeedFile(t, "paths:\n  - topic: go\n    owner_email: a@b.c\n")
	if err := SeedLearningPaths(context.Background(), file, users, paths); err == nil {
		t.Fatal("entry without title should fail")
	}
}
