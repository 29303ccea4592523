// Package engine orchestrates one chapter-processing run: read the chapter,
// extract proposals, resolve uncertain mentions, merge into the state store,
// segment scenes, project into the relational index, embed scenes, and write
// the run report.
package engine

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"unicode"

	"github.com/scrypster/lorebook/internal/config"
	"github.com/scrypster/lorebook/internal/embedding"
	"github.com/scrypster/lorebook/internal/extraction"
	"github.com/scrypster/lorebook/internal/index"
	"github.com/scrypster/lorebook/internal/report"
	"github.com/scrypster/lorebook/internal/resolve"
	"github.com/scrypster/lorebook/internal/segment"
	"github.com/scrypster/lorebook/internal/statestore"
	"github.com/scrypster/lorebook/pkg/types"
)

// Pipeline holds the wired components for chapter processing.
//
// Failure policy: state-store load and persist, index writes, and report
// writes are fatal to the run; everything else (missing chapter file,
// unresolvable mentions, duplicate registrations, embedding failures)
// degrades to report warnings.
type Pipeline struct {
	cfg       *config.Config
	store     *statestore.Store
	writer    *index.Writer
	extractor *extraction.Engine
	provider  embedding.Provider
	vectors   *embedding.VectorStore
	logger    *log.Logger
}

// New wires a pipeline from explicit components. The vector store may be
// nil, in which case scene vectors are computed (per the provider) but not
// persisted.
func New(cfg *config.Config, store *statestore.Store, writer *index.Writer,
	extractor *extraction.Engine, provider embedding.Provider, logger *log.Logger) *Pipeline {

	if provider == nil {
		provider = embedding.NoopProvider{}
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[lorebook] ", log.LstdFlags)
	}
	return &Pipeline{
		cfg:       cfg,
		store:     store,
		writer:    writer,
		extractor: extractor,
		provider:  provider,
		logger:    logger,
	}
}

// FromConfig wires the full production pipeline: rule file, state store,
// SQLite index, and the embedding client when enabled.
func FromConfig(cfg *config.Config, logger *log.Logger) (*Pipeline, error) {
	rules, err := extraction.LoadRules(cfg.Extraction.RulesPath)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	writer, err := index.NewWriter(cfg.Index.DBPath)
	if err != nil {
		return nil, err
	}

	p := New(cfg,
		statestore.New(cfg.StatePath()),
		writer,
		extraction.DefaultEngine(rules, cfg.Extraction.PromotionThreshold, cfg.Extraction.StopwordLanguage),
		nil,
		logger,
	)

	if cfg.Embedding.Enabled {
		p.provider = embedding.NewClient(embedding.ClientConfig{
			BaseURL:           cfg.Embedding.EmbedderURL,
			Model:             cfg.Embedding.Model,
			Timeout:           cfg.Embedding.Timeout,
			RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
			Burst:             cfg.Embedding.Burst,
		})
	}

	return p, nil
}

// WithVectorStore attaches a scene-vector store for embedding persistence.
func (p *Pipeline) WithVectorStore(vectors *embedding.VectorStore) *Pipeline {
	p.vectors = vectors
	return p
}

// Close releases the pipeline's database handles.
func (p *Pipeline) Close() error {
	if p.vectors != nil {
		p.vectors.Close()
	}
	return p.writer.Close()
}

// ProcessChapter runs the full pipeline for one chapter and returns the run
// report. The report has already been written to disk when the returned
// error is nil.
func (p *Pipeline) ProcessChapter(ctx context.Context, chapter int) (types.Report, error) {
	var warnings []string

	text, warning := p.readChapter(chapter)
	if warning != "" {
		warnings = append(warnings, warning)
	}

	doc, err := p.store.Load()
	if err != nil {
		return types.Report{}, err
	}

	prior := extraction.Prior{Entities: doc.Entities, AliasIndex: doc.AliasIndex}
	result := p.extractor.Extract(text, prior)
	p.logger.Printf("chapter %d: extracted %d appearances, %d new entities, %d state changes, %d relationships, %d uncertain",
		chapter, len(result.Appeared), len(result.NewEntities), len(result.StateChanges),
		len(result.Relationships), len(result.Uncertain))

	adopted, resolveWarnings := resolve.Resolve(result.Uncertain)
	warnings = append(warnings, resolveWarnings...)

	mergeWarnings := p.store.Merge(result.NewEntities, result.StateChanges, result.Relationships, chapter)
	warnings = append(warnings, mergeWarnings...)

	if err := p.store.Persist(); err != nil {
		return types.Report{}, err
	}

	appearances := withAdopted(result.Appeared, adopted, doc)
	scenes := p.segmentScenes(text, doc)

	record := types.ChapterRecord{
		Chapter:   chapter,
		Title:     chapterTitle(text),
		Location:  firstLocation(scenes),
		WordCount: countRunes(text),
		Entities:  entityIDs(appearances),
		Scenes:    sceneSummaries(scenes),
	}
	if err := p.writer.ReplaceChapter(ctx, record, appearances, scenes); err != nil {
		return types.Report{}, err
	}

	warnings = append(warnings, p.embedScenes(ctx, chapter, scenes)...)

	run := report.Build(chapter, types.ReportDetails{
		EntitiesAppeared: appearances,
		EntitiesNew:      result.NewEntities,
		StateChanges:     result.StateChanges,
		RelationshipsNew: result.Relationships,
		Scenes:           scenes,
		Uncertain:        result.Uncertain,
		Adopted:          adopted,
	}, warnings)

	if err := report.Write(p.cfg.ReportPath(chapter), run); err != nil {
		return types.Report{}, err
	}

	p.logger.Printf("chapter %d: done, %d warnings, report %s",
		chapter, len(run.Warnings), p.cfg.ReportPath(chapter))
	return run, nil
}

// readChapter reads the chapter source file. A missing or unreadable file is
// not fatal: extraction proceeds over empty text and the report records why.
func (p *Pipeline) readChapter(chapter int) (string, string) {
	path := p.cfg.ChapterPath(chapter)
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Sprintf("章节文件缺失: %s (%v)", path, err)
	}
	return string(data), ""
}

// segmentScenes builds the splitter from the post-merge document so that
// entities registered this chapter already participate in segmentation.
func (p *Pipeline) segmentScenes(text string, doc *statestore.Document) []types.Scene {
	locations := make(map[string]string)
	for _, e := range doc.Entities[types.TypeLocation] {
		locations[e.CanonicalName] = e.CanonicalName
		for _, alias := range e.Aliases {
			locations[alias] = e.CanonicalName
		}
	}

	entities := make(map[string]string)
	for _, e := range doc.Entities[types.TypeCharacter] {
		entities[e.CanonicalName] = e.ID
		for _, alias := range e.Aliases {
			entities[alias] = e.ID
		}
	}

	return segment.NewSplitter(locations, entities).Split(text)
}

// embedScenes computes and persists scene vectors. Every failure is a
// warning; the chapter run has already committed its state and index writes.
func (p *Pipeline) embedScenes(ctx context.Context, chapter int, scenes []types.Scene) []string {
	var warnings []string
	for _, scene := range scenes {
		text := strings.TrimSpace(scene.Location + " " + scene.Summary)
		if text == "" {
			continue
		}

		vector, err := p.provider.Embed(ctx, text)
		if err != nil {
			warnings = append(warnings,
				fmt.Sprintf("embedding scene %d failed (%s): %v", scene.Index, p.provider.Name(), err))
			continue
		}
		if vector == nil || p.vectors == nil {
			continue
		}

		if err := p.vectors.UpsertScene(ctx, chapter, scene.Index, scene.Location, scene.Summary, vector); err != nil {
			warnings = append(warnings, fmt.Sprintf("storing scene %d vector failed: %v", scene.Index, err))
		}
	}
	return warnings
}

// withAdopted folds resolved mentions into the appearance list: an adopted
// mention is an appearance of its entity under the uncertain surface form.
func withAdopted(appeared []types.Appearance, adopted []types.AdoptedMention,
	doc *statestore.Document) []types.Appearance {

	result := append([]types.Appearance(nil), appeared...)
	for _, a := range adopted {
		merged := false
		for i := range result {
			if result[i].EntityID != a.AdoptedID {
				continue
			}
			if !containsString(result[i].Mentions, a.Mention) {
				result[i].Mentions = append(result[i].Mentions, a.Mention)
			}
			merged = true
			break
		}
		if merged {
			continue
		}

		entityType := types.TypeCharacter
		if _, bucket, ok := doc.FindEntity(a.AdoptedID); ok {
			entityType = bucket
		}
		result = append(result, types.Appearance{
			EntityID:   a.AdoptedID,
			EntityType: entityType,
			Mentions:   []string{a.Mention},
			Confidence: a.Confidence,
		})
	}
	return result
}

// chapterTitle takes the first non-blank line, stripped of markdown heading
// markers.
func chapterTitle(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		return strings.TrimSpace(strings.TrimLeft(line, "#"))
	}
	return ""
}

func firstLocation(scenes []types.Scene) string {
	for _, s := range scenes {
		if s.Location != "" {
			return s.Location
		}
	}
	return ""
}

func sceneSummaries(scenes []types.Scene) []string {
	summaries := make([]string, 0, len(scenes))
	for _, s := range scenes {
		summaries = append(summaries, s.Summary)
	}
	return summaries
}

func entityIDs(appearances []types.Appearance) []string {
	ids := make([]string, 0, len(appearances))
	for _, a := range appearances {
		ids = append(ids, a.EntityID)
	}
	return ids
}

// countRunes counts non-whitespace runes, the word-count convention for CJK
// prose.
func countRunes(text string) int {
	count := 0
	for _, r := range text {
		if !unicode.IsSpace(r) {
			count++
		}
	}
	return count
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
