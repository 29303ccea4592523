package extraction

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/scrypster/lorebook/pkg/types"
)

// RuleSet is the declarative recognizer configuration. Rules keep one
// narrative's vocabulary (character names, trigger phrases, relationship
// labels) out of code: the engine stays generic, the YAML file carries the
// work-specific knowledge.
type RuleSet struct {
	NewEntities   []NewEntityRule    `yaml:"new_entities"`
	StateChanges  []StateChangeRule  `yaml:"state_changes"`
	Relationships []RelationshipRule `yaml:"relationships"`
	Uncertain     []UncertainRule    `yaml:"uncertain"`
}

// Trigger decides whether a rule fires for a given chapter text.
// All phrases in AllOf must be present; if AnyOf is non-empty, at least one
// of its phrases must be present as well. A trigger with neither list never
// fires.
type Trigger struct {
	AllOf []string `yaml:"all_of"`
	AnyOf []string `yaml:"any_of"`
}

// Fires evaluates the trigger against the chapter text.
func (t Trigger) Fires(text string) bool {
	if len(t.AllOf) == 0 && len(t.AnyOf) == 0 {
		return false
	}

	for _, phrase := range t.AllOf {
		if !strings.Contains(text, phrase) {
			return false
		}
	}

	if len(t.AnyOf) == 0 {
		return true
	}
	for _, phrase := range t.AnyOf {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}

// NewEntityRule proposes registering an entity when its trigger fires.
// ID is optional; when empty it is derived deterministically from Name.
type NewEntityRule struct {
	ID          string  `yaml:"id"`
	Name        string  `yaml:"name"`
	Type        string  `yaml:"type"`
	Tier        string  `yaml:"tier"`
	Description string  `yaml:"desc"`
	When        Trigger `yaml:"when"`
}

// StateChangeRule proposes a field mutation when its trigger fires.
type StateChangeRule struct {
	Entity string  `yaml:"entity"`
	Field  string  `yaml:"field"`
	Old    string  `yaml:"old"`
	New    string  `yaml:"new"`
	Reason string  `yaml:"reason"`
	When   Trigger `yaml:"when"`
}

// RelationshipRule proposes a directed edge when its trigger fires.
type RelationshipRule struct {
	From        string  `yaml:"from"`
	To          string  `yaml:"to"`
	Type        string  `yaml:"type"`
	Description string  `yaml:"description"`
	When        Trigger `yaml:"when"`
}

// UncertainRule emits an unresolved mention when its trigger fires, leaving
// adoption to the resolver's confidence policy.
type UncertainRule struct {
	Mention    string              `yaml:"mention"`
	Context    string              `yaml:"context"`
	Confidence float64             `yaml:"confidence"`
	Candidates []types.AliasTarget `yaml:"candidates"`
	When       Trigger             `yaml:"when"`
}

// LoadRules reads a RuleSet from a YAML file. A missing file is not an
// error: extraction simply runs without rule recognizers.
func LoadRules(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &RuleSet{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("extraction: failed to read rules file: %w", err)
	}

	var rules RuleSet
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("extraction: failed to parse rules file %s: %w", path, err)
	}

	return &rules, nil
}

// RuleRecognizer evaluates a RuleSet against chapter text.
type RuleRecognizer struct {
	rules *RuleSet
}

// NewRuleRecognizer creates a recognizer over the given rule set.
func NewRuleRecognizer(rules *RuleSet) *RuleRecognizer {
	if rules == nil {
		rules = &RuleSet{}
	}
	return &RuleRecognizer{rules: rules}
}

// Name implements Recognizer.
func (r *RuleRecognizer) Name() string { return "rules" }

// ruleConfidence is assigned to rule-driven proposals: triggers are authored
// per work, so a firing rule is a strong but not exact signal.
const ruleConfidence = 0.9

// Recognize implements Recognizer.
func (r *RuleRecognizer) Recognize(text string, prior Prior) Result {
	var result Result

	for _, rule := range r.rules.NewEntities {
		if !rule.When.Fires(text) {
			continue
		}

		id := rule.ID
		if id == "" {
			id = SuggestID(rule.Name)
		}

		// Already-registered entities are the dictionary's business; the
		// rule only introduces unknowns.
		if prior.KnowsEntity(id) || prior.KnowsSurface(rule.Name) {
			continue
		}

		result.NewEntities = append(result.NewEntities, types.NewEntityProposal{
			SuggestedID: id,
			Name:        rule.Name,
			Type:        rule.Type,
			Tier:        rule.Tier,
			Description: rule.Description,
			Confidence:  ruleConfidence,
		})
	}

	for _, rule := range r.rules.StateChanges {
		if !rule.When.Fires(text) {
			continue
		}
		result.StateChanges = append(result.StateChanges, types.StateChangeProposal{
			EntityID: rule.Entity,
			Field:    rule.Field,
			Old:      rule.Old,
			New:      rule.New,
			Reason:   rule.Reason,
		})
	}

	for _, rule := range r.rules.Relationships {
		if !rule.When.Fires(text) {
			continue
		}
		result.Relationships = append(result.Relationships, types.RelationshipProposal{
			FromID:      rule.From,
			ToID:        rule.To,
			Type:        rule.Type,
			Description: rule.Description,
		})
	}

	for _, rule := range r.rules.Uncertain {
		if !rule.When.Fires(text) {
			continue
		}
		result.Uncertain = append(result.Uncertain, types.UncertainMention{
			Mention:    rule.Mention,
			Context:    rule.Context,
			Candidates: rule.Candidates,
			Confidence: rule.Confidence,
		})
	}

	return result
}
