// Package extraction derives typed proposals from chapter text.
//
// The engine is a registry of independent recognizers. Each recognizer sees
// the chapter text plus the prior knowledge base and yields zero or more
// confidence-scored proposals; outputs are concatenated without assuming
// mutual exclusivity. Order communicates no priority — conflicts are settled
// at state-merge time, not here.
package extraction

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"unicode"

	"github.com/scrypster/lorebook/pkg/types"
)

// Prior is the knowledge the extraction engine may consult: the current
// entity registry and alias index, as loaded from the state store.
type Prior struct {
	// Entities maps type bucket → entity ID → entity.
	Entities map[string]map[string]types.Entity

	// AliasIndex maps surface form → candidate targets.
	AliasIndex map[string][]types.AliasTarget
}

// KnowsEntity reports whether an entity with the given ID is registered.
func (p Prior) KnowsEntity(id string) bool {
	for _, bucket := range p.Entities {
		if _, ok := bucket[id]; ok {
			return true
		}
	}
	return false
}

// KnowsSurface reports whether a surface form already resolves via the alias
// index or matches a registered canonical name.
func (p Prior) KnowsSurface(surface string) bool {
	if len(p.AliasIndex[surface]) > 0 {
		return true
	}
	for _, bucket := range p.Entities {
		for _, e := range bucket {
			if e.CanonicalName == surface {
				return true
			}
			for _, alias := range e.Aliases {
				if alias == surface {
					return true
				}
			}
		}
	}
	return false
}

// Result is the combined output of an extraction pass.
type Result struct {
	Appeared      []types.Appearance
	NewEntities   []types.NewEntityProposal
	StateChanges  []types.StateChangeProposal
	Relationships []types.RelationshipProposal
	Uncertain     []types.UncertainMention
}

// add concatenates another recognizer's output into this result.
func (r *Result) add(other Result) {
	r.Appeared = append(r.Appeared, other.Appeared...)
	r.NewEntities = append(r.NewEntities, other.NewEntities...)
	r.StateChanges = append(r.StateChanges, other.StateChanges...)
	r.Relationships = append(r.Relationships, other.Relationships...)
	r.Uncertain = append(r.Uncertain, other.Uncertain...)
}

// Recognizer proposes facts given chapter text and prior knowledge.
// Recognizers are best-effort and side-effect free: they never mutate the
// prior and never fail the run.
type Recognizer interface {
	// Name identifies the recognizer in reports and logs.
	Name() string

	// Recognize scans the text and returns proposals.
	Recognize(text string, prior Prior) Result
}

// SuggestID derives a stable entity ID from a name. The derivation is
// deterministic and chapter-independent so that reprocessing or later
// chapters can never mint a colliding ID for the same name.
//
// ASCII letters and digits survive as a lowercase underscore-joined slug;
// names without any ASCII letters whose other runes were dropped (e.g. CJK
// names, with or without embedded digits) fall back to a hash-derived ID.
// The fallback guards digit-only residue: "602室" and "602号" must not both
// slug to "602".
func SuggestID(name string) string {
	var b strings.Builder
	hasLetter := false
	dropped := false
	lastWasSep := true
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
			hasLetter = true
			lastWasSep = false
		case r >= '0' && r <= '9':
			b.WriteRune(r)
			lastWasSep = false
		case unicode.IsSpace(r) || r == '-' || r == '_':
			if !lastWasSep {
				b.WriteByte('_')
				lastWasSep = true
			}
		default:
			dropped = true
		}
	}

	slug := strings.Trim(b.String(), "_")
	if slug != "" && (hasLetter || !dropped) {
		return slug
	}

	sum := sha256.Sum256([]byte(name))
	return fmt.Sprintf("ent_%x", sum[:5])
}
