package statestore

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/scrypster/lorebook/pkg/types"
)

// newTestStore writes a minimal valid state file into a temp dir and returns
// a store loaded from it.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "state.json")
	if err := Init(path); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}

	s := New(path)
	if _, err := s.Load(); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	return s
}

func TestLoadMissingFileIsCorrupt(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "absent.json"))

	_, err := s.Load()
	if !errors.Is(err, ErrStorageCorrupt) {
		t.Fatalf("Load() on missing file = %v, want ErrStorageCorrupt", err)
	}
}

func TestLoadMalformedFileIsCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := New(path).Load()
	if !errors.Is(err, ErrStorageCorrupt) {
		t.Fatalf("Load() on malformed file = %v, want ErrStorageCorrupt", err)
	}
}

func TestMergeRegistersNewEntities(t *testing.T) {
	s := newTestStore(t)

	warnings := s.Merge([]types.NewEntityProposal{
		{SuggestedID: "jingya_community", Name: "静雅小区", Type: types.TypeLocation, Tier: types.TierMajor, Description: "老小区"},
	}, nil, nil, 1)
	if len(warnings) != 0 {
		t.Fatalf("Merge() warnings = %v, want none", warnings)
	}

	doc := s.Document()
	e, bucket, ok := doc.FindEntity("jingya_community")
	if !ok {
		t.Fatal("entity not registered")
	}
	if bucket != types.TypeLocation {
		t.Errorf("bucket = %q, want %q", bucket, types.TypeLocation)
	}
	if e.CreatedChapter != 1 {
		t.Errorf("CreatedChapter = %d, want 1", e.CreatedChapter)
	}
	if e.FirstAppearance != "正文/第0001章.md" {
		t.Errorf("FirstAppearance = %q", e.FirstAppearance)
	}

	targets := doc.AliasIndex["静雅小区"]
	if len(targets) != 1 || targets[0].ID != "jingya_community" {
		t.Errorf("alias index = %v", targets)
	}
}

func TestMergeDuplicateIDWarnsAndSkips(t *testing.T) {
	s := newTestStore(t)

	p := types.NewEntityProposal{SuggestedID: "yefan", Name: "叶凡", Type: types.TypeCharacter, Tier: types.TierCore, Description: "主角"}
	if w := s.Merge([]types.NewEntityProposal{p}, nil, nil, 1); len(w) != 0 {
		t.Fatalf("first Merge() warnings = %v", w)
	}

	clash := p
	clash.Description = "overwrite attempt"
	warnings := s.Merge([]types.NewEntityProposal{clash}, nil, nil, 2)
	if len(warnings) != 1 || !strings.Contains(warnings[0], ErrDuplicateEntity.Error()) {
		t.Fatalf("Merge() warnings = %v, want duplicate warning", warnings)
	}

	// The original registration must be untouched: IDs are immutable once created.
	e, _, _ := s.Document().FindEntity("yefan")
	if e.Description != "主角" {
		t.Errorf("Description = %q, duplicate registration overwrote entity", e.Description)
	}
	if e.CreatedChapter != 1 {
		t.Errorf("CreatedChapter = %d, want 1", e.CreatedChapter)
	}
}

func TestMergeStateChangeAppendsHistory(t *testing.T) {
	s := newTestStore(t)
	s.Merge([]types.NewEntityProposal{
		{SuggestedID: "yefan", Name: "叶凡", Type: types.TypeCharacter},
	}, nil, nil, 1)

	warnings := s.Merge(nil, []types.StateChangeProposal{
		{EntityID: "yefan", Field: "location", New: "静雅小区3号楼602室", Reason: "租房成功"},
	}, nil, 1)
	if len(warnings) != 0 {
		t.Fatalf("Merge() warnings = %v", warnings)
	}

	e, _, _ := s.Document().FindEntity("yefan")
	if got := e.Current["location"]; got != "静雅小区3号楼602室" {
		t.Errorf("Current[location] = %v", got)
	}
	if len(e.History) != 1 {
		t.Fatalf("len(History) = %d, want 1", len(e.History))
	}
	rec := e.History[0]
	if rec.Chapter != 1 || rec.Field != "location" || rec.Old != "" || rec.New != "静雅小区3号楼602室" {
		t.Errorf("history record = %+v", rec)
	}
}

func TestMergeStateChangeUnknownEntityWarns(t *testing.T) {
	s := newTestStore(t)

	warnings := s.Merge(nil, []types.StateChangeProposal{
		{EntityID: "nobody", Field: "status", New: "gone"},
	}, nil, 1)
	if len(warnings) != 1 || !strings.Contains(warnings[0], ErrEntityNotFound.Error()) {
		t.Fatalf("Merge() warnings = %v, want entity-not-found warning", warnings)
	}
}

// Reprocessing the same chapter with identical extraction output must be a
// no-op: no duplicate history entries, no duplicate relationship edges.
func TestMergeIsIdempotentPerChapter(t *testing.T) {
	s := newTestStore(t)

	newEntities := []types.NewEntityProposal{
		{SuggestedID: "yefan", Name: "叶凡", Type: types.TypeCharacter, Tier: types.TierCore},
		{SuggestedID: "guwanqing", Name: "顾晚晴", Type: types.TypeCharacter, Tier: types.TierCore},
	}
	changes := []types.StateChangeProposal{
		{EntityID: "yefan", Field: "status", Old: "找工作", New: "租房中", Reason: "成为租客"},
	}
	rels := []types.RelationshipProposal{
		{FromID: "yefan", ToID: "guwanqing", Type: "房东-租客", Description: "叶凡租住顾晚晴的房子"},
	}

	s.Merge(newEntities, changes, rels, 1)
	s.Merge(newEntities, changes, rels, 1) // reprocess

	e, _, _ := s.Document().FindEntity("yefan")
	if len(e.History) != 1 {
		t.Errorf("len(History) = %d after reprocess, want 1", len(e.History))
	}
	if len(s.Document().Relationships) != 1 {
		t.Errorf("len(Relationships) = %d after reprocess, want 1", len(s.Document().Relationships))
	}
	if targets := s.Document().AliasIndex["叶凡"]; len(targets) != 1 {
		t.Errorf("alias targets = %v after reprocess, want 1", targets)
	}
}

func TestPersistLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	s.Merge([]types.NewEntityProposal{
		{SuggestedID: "yefan", Name: "叶凡", Type: types.TypeCharacter, Tier: types.TierCore, Description: "主角"},
	}, []types.StateChangeProposal{
		{EntityID: "yefan", Field: "location", New: "602室"},
	}, []types.RelationshipProposal{
		{FromID: "yefan", ToID: "guwanqing", Type: "房东-租客"},
	}, 1)
	if err := s.Persist(); err != nil {
		t.Fatalf("Persist() failed: %v", err)
	}

	// Rewriting the state unchanged must be a no-op under structural equality.
	s2 := New(s.path)
	first, err := s2.Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if err := s2.Persist(); err != nil {
		t.Fatalf("Persist() failed: %v", err)
	}

	second, err := New(s.path).Load()
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}

	if !reflect.DeepEqual(first.Entities, second.Entities) {
		t.Error("entities changed across persist(load())")
	}
	if !reflect.DeepEqual(first.AliasIndex, second.AliasIndex) {
		t.Error("alias index changed across persist(load())")
	}
	if !reflect.DeepEqual(first.Relationships, second.Relationships) {
		t.Error("relationships changed across persist(load())")
	}
	if !reflect.DeepEqual(first.Metadata, second.Metadata) {
		t.Error("metadata changed across persist(load())")
	}
}

// Unknown top-level fields must survive a load/persist cycle so that schema
// additions remain backward-readable.
func TestPersistPreservesUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	content := `{
		"entities_v3": {},
		"alias_index": {},
		"relationships": [],
		"metadata": {"current_chapter": 0},
		"style_samples": [{"chapter": 1, "score": 80}]
	}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	s := New(path)
	if _, err := s.Load(); err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if err := s.Persist(); err != nil {
		t.Fatalf("Persist() failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("rewritten state is not valid JSON: %v", err)
	}
	if _, ok := raw["style_samples"]; !ok {
		t.Error("unknown field style_samples dropped on rewrite")
	}
}

func TestPersistIsAtomic(t *testing.T) {
	s := newTestStore(t)
	s.Merge([]types.NewEntityProposal{
		{SuggestedID: "yefan", Name: "叶凡", Type: types.TypeCharacter},
	}, nil, nil, 1)
	if err := s.Persist(); err != nil {
		t.Fatalf("Persist() failed: %v", err)
	}

	// No temp files may linger next to the state file.
	entries, err := os.ReadDir(filepath.Dir(s.path))
	if err != nil {
		t.Fatal(err)
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".state-") {
			t.Errorf("leftover temp file %s", entry.Name())
		}
	}
}
