// Package statestore owns the canonical entity registry, alias index, and
// relationship list, persisted as a single JSON document (state.json).
//
// The store follows a strict read-modify-write cycle per chapter: Load pulls
// the full document into memory, Merge mutates it, Persist writes it back
// atomically. Persistence is always an explicit, separate step so a failed
// run never leaves a partially written state file behind.
package statestore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/lorebook/pkg/types"
)

// Known top-level keys of the state document. Anything else found in the
// file is carried through Load and Persist untouched so that newer schema
// additions survive a round trip through an older binary.
const (
	keyEntities      = "entities_v3"
	keyAliasIndex    = "alias_index"
	keyRelationships = "relationships"
	keyMetadata      = "metadata"
)

// Document is the in-memory form of the state file.
type Document struct {
	// Entities maps type bucket → entity ID → entity.
	Entities map[string]map[string]types.Entity

	// AliasIndex maps surface form → candidate targets. One surface form may
	// map to several entities; disambiguation is the resolver's job.
	AliasIndex map[string][]types.AliasTarget

	Relationships []types.Relationship

	// Metadata holds current_chapter, updated_at, and whatever else earlier
	// or later schema versions put there.
	Metadata map[string]any

	// extra preserves unknown top-level fields across a load/persist cycle.
	extra map[string]json.RawMessage
}

// Store provides atomic read-modify-write access to one state file.
type Store struct {
	path string
	doc  *Document
}

// New creates a store bound to the given state file path.
// Nothing is read from disk until Load is called.
func New(path string) *Store {
	return &Store{path: path}
}

// Init writes an empty state document to path unless one already exists.
// Used by the CLI init command to bootstrap a new project.
func Init(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("statestore: %s already exists", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("statestore: failed to create storage directory: %w", err)
	}

	s := &Store{
		path: path,
		doc: &Document{
			Entities:      make(map[string]map[string]types.Entity),
			AliasIndex:    make(map[string][]types.AliasTarget),
			Relationships: nil,
			Metadata:      map[string]any{"current_chapter": 0},
			extra:         make(map[string]json.RawMessage),
		},
	}
	return s.Persist()
}

// Load reads and parses the full state document.
// A missing or malformed file fails with ErrStorageCorrupt: the store never
// invents an empty registry behind the caller's back.
func (s *Store) Load() (*Document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageCorrupt, err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageCorrupt, err)
	}

	doc := &Document{
		Entities:   make(map[string]map[string]types.Entity),
		AliasIndex: make(map[string][]types.AliasTarget),
		Metadata:   make(map[string]any),
		extra:      make(map[string]json.RawMessage),
	}

	if msg, ok := raw[keyEntities]; ok {
		if err := json.Unmarshal(msg, &doc.Entities); err != nil {
			return nil, fmt.Errorf("%w: bad %s: %v", ErrStorageCorrupt, keyEntities, err)
		}
	}
	if msg, ok := raw[keyAliasIndex]; ok {
		if err := json.Unmarshal(msg, &doc.AliasIndex); err != nil {
			return nil, fmt.Errorf("%w: bad %s: %v", ErrStorageCorrupt, keyAliasIndex, err)
		}
	}
	if msg, ok := raw[keyRelationships]; ok {
		if err := json.Unmarshal(msg, &doc.Relationships); err != nil {
			return nil, fmt.Errorf("%w: bad %s: %v", ErrStorageCorrupt, keyRelationships, err)
		}
	}
	if msg, ok := raw[keyMetadata]; ok {
		if err := json.Unmarshal(msg, &doc.Metadata); err != nil {
			return nil, fmt.Errorf("%w: bad %s: %v", ErrStorageCorrupt, keyMetadata, err)
		}
	}

	for key, msg := range raw {
		switch key {
		case keyEntities, keyAliasIndex, keyRelationships, keyMetadata:
		default:
			doc.extra[key] = msg
		}
	}

	s.doc = doc
	return doc, nil
}

// Document returns the currently loaded document, or nil before Load.
func (s *Store) Document() *Document {
	return s.doc
}

// FindEntity locates an entity by ID across all type buckets.
// Entity counts are small, so a linear scan over buckets is fine.
func (d *Document) FindEntity(id string) (*types.Entity, string, bool) {
	for bucket, entities := range d.Entities {
		if e, ok := entities[id]; ok {
			return &e, bucket, true
		}
	}
	return nil, "", false
}

// Merge applies one chapter's confirmed facts to the in-memory document, in
// order: new-entity registration, alias index append, state-change
// application with history, relationship append.
//
// Per-item problems (duplicate IDs, unknown entity IDs, invalid tiers) are
// not fatal: the offending item is skipped and a warning is returned for the
// report. Merge never touches the disk; call Persist afterwards.
func (s *Store) Merge(newEntities []types.NewEntityProposal,
	changes []types.StateChangeProposal,
	relationships []types.RelationshipProposal,
	chapter int) []string {

	var warnings []string
	doc := s.doc

	// (a) + (b): register new entities and index their canonical names.
	for _, p := range newEntities {
		if _, _, exists := doc.FindEntity(p.SuggestedID); exists {
			warnings = append(warnings,
				fmt.Sprintf("%v: %q already registered, skipping %q", ErrDuplicateEntity, p.SuggestedID, p.Name))
			continue
		}

		tier := p.Tier
		if !types.IsValidTier(tier) {
			warnings = append(warnings,
				fmt.Sprintf("invalid tier %q for %q, defaulting to %q", p.Tier, p.Name, types.TierMinor))
			tier = ""
		}
		if tier == "" {
			tier = types.TierMinor
		}

		bucket := p.Type
		if bucket == "" {
			bucket = types.TypeCharacter
		}
		if doc.Entities[bucket] == nil {
			doc.Entities[bucket] = make(map[string]types.Entity)
		}

		doc.Entities[bucket][p.SuggestedID] = types.Entity{
			ID:            p.SuggestedID,
			CanonicalName: p.Name,
			Aliases:       []string{},
			Type:          bucket,
			Tier:          tier,
			Description:   p.Description,
			Current: map[string]any{
				types.LastChapterKey: chapter,
			},
			History:         []types.StateRecord{},
			CreatedChapter:  chapter,
			FirstAppearance: fmt.Sprintf("正文/第%04d章.md", chapter),
		}

		target := types.AliasTarget{ID: p.SuggestedID, Type: bucket}
		if !containsTarget(doc.AliasIndex[p.Name], target) {
			doc.AliasIndex[p.Name] = append(doc.AliasIndex[p.Name], target)
		}
	}

	// (c): apply state changes, appending history records.
	for _, c := range changes {
		entity, bucket, ok := doc.FindEntity(c.EntityID)
		if !ok {
			warnings = append(warnings,
				fmt.Sprintf("%v: state change for %q (%s) skipped", ErrEntityNotFound, c.EntityID, c.Field))
			continue
		}

		old := ""
		if v, ok := entity.Current[c.Field]; ok && v != nil {
			old = fmt.Sprint(v)
		}

		// A change that would not alter the value records nothing. This is
		// what keeps reprocessing a chapter from duplicating history.
		if old == c.New {
			continue
		}

		entity.Current[c.Field] = c.New
		entity.Current[types.LastChapterKey] = chapter
		entity.History = append(entity.History, types.StateRecord{
			Chapter: chapter,
			Field:   c.Field,
			Old:     old,
			New:     c.New,
			Reason:  c.Reason,
		})
		doc.Entities[bucket][c.EntityID] = *entity
	}

	// (d): append relationship edges. The data model enforces no uniqueness,
	// but an edge identical to one already recorded for this chapter is a
	// reprocessing artifact, not a new fact.
	for _, r := range relationships {
		if hasEdge(doc.Relationships, r, chapter) {
			continue
		}
		doc.Relationships = append(doc.Relationships, types.Relationship{
			ID:          "rel:" + uuid.NewString(),
			FromID:      r.FromID,
			ToID:        r.ToID,
			Type:        r.Type,
			Description: r.Description,
			Chapter:     chapter,
			CreatedAt:   time.Now().UTC(),
		})
	}

	doc.Metadata["current_chapter"] = chapter
	doc.Metadata["updated_at"] = time.Now().UTC().Format(time.RFC3339)

	return warnings
}

// Persist writes the full document back to disk atomically: the document is
// serialized to a temp file in the same directory and renamed over the state
// file, so a crash mid-write can never leave a truncated state.json.
func (s *Store) Persist() error {
	if s.doc == nil {
		return fmt.Errorf("statestore: nothing loaded to persist")
	}

	raw := make(map[string]json.RawMessage, len(s.doc.extra)+4)
	for key, msg := range s.doc.extra {
		raw[key] = msg
	}

	var err error
	if raw[keyEntities], err = json.Marshal(s.doc.Entities); err != nil {
		return fmt.Errorf("statestore: failed to marshal entities: %w", err)
	}
	if raw[keyAliasIndex], err = json.Marshal(s.doc.AliasIndex); err != nil {
		return fmt.Errorf("statestore: failed to marshal alias index: %w", err)
	}
	if raw[keyRelationships], err = json.Marshal(s.doc.Relationships); err != nil {
		return fmt.Errorf("statestore: failed to marshal relationships: %w", err)
	}
	if raw[keyMetadata], err = json.Marshal(s.doc.Metadata); err != nil {
		return fmt.Errorf("statestore: failed to marshal metadata: %w", err)
	}

	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("statestore: failed to marshal document: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return fmt.Errorf("statestore: failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("statestore: failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("statestore: failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("statestore: failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("statestore: failed to replace state file: %w", err)
	}

	return nil
}

func containsTarget(targets []types.AliasTarget, t types.AliasTarget) bool {
	for _, existing := range targets {
		if existing == t {
			return true
		}
	}
	return false
}

func hasEdge(edges []types.Relationship, r types.RelationshipProposal, chapter int) bool {
	for _, e := range edges {
		if e.FromID == r.FromID && e.ToID == r.ToID && e.Type == r.Type && e.Chapter == chapter {
			return true
		}
	}
	return false
}
