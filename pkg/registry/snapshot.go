// Package registry holds the canonical schema and business-rule set as an
// immutable snapshot, swapped atomically on reload.
package registry

import (
	"sort"
	"strings"

	"github.com/jinzhu/inflection"

	"github.com/claimsight-ai/claimsight-engine/pkg/models"
)

// Snapshot is one immutable view of the schema and rules. In-flight pipelines
// hold the snapshot they started with; reloads never mutate a published
// snapshot.
type Snapshot struct {
	Schema *models.SchemaDescriptor
	// Rules in declaration order. Violations are reported in this order.
	Rules []models.BusinessRule

	// normalized name -> canonical table name
	tableNames map[string]string
	// canonical table -> normalized name -> canonical column name
	columnNames map[string]map[string]string
}

// normalizeName lowercases and singularizes a table or column reference so
// "Claims", "claims" and "claim" all resolve to the same entity.
func normalizeName(name string) string {
	return inflection.Singular(strings.ToLower(strings.TrimSpace(name)))
}

// newSnapshot indexes a validated schema and rule set.
func newSnapshot(schema *models.SchemaDescriptor, rules []models.BusinessRule) *Snapshot {
	s := &Snapshot{
		Schema:      schema,
		Rules:       rules,
		tableNames:  make(map[string]string),
		columnNames: make(map[string]map[string]string),
	}

	for i := range schema.Tables {
		t := &schema.Tables[i]
		s.tableNames[normalizeName(t.Name)] = t.Name
		for _, syn := range t.Synonyms {
			s.tableNames[normalizeName(syn)] = t.Name
		}

		cols := make(map[string]string)
		for j := range t.Columns {
			c := &t.Columns[j]
			cols[normalizeName(c.Name)] = c.Name
			for _, syn := range c.Synonyms {
				cols[normalizeName(syn)] = c.Name
			}
		}
		s.columnNames[t.Name] = cols
	}

	return s
}

// ResolveTable maps a free-form table reference (synonyms, plurals, casing)
// to its canonical name.
func (s *Snapshot) ResolveTable(name string) (string, bool) {
	canonical, ok := s.tableNames[normalizeName(name)]
	return canonical, ok
}

// ResolveColumn maps a free-form column reference within a canonical table.
func (s *Snapshot) ResolveColumn(table, column string) (string, bool) {
	cols, ok := s.columnNames[table]
	if !ok {
		return "", false
	}
	canonical, ok := cols[normalizeName(column)]
	return canonical, ok
}

// SuggestTable returns candidate canonical table names whose normalized form
// shares a prefix with the reference, for "did you mean" clarifications.
// Results are sorted for determinism.
func (s *Snapshot) SuggestTable(name string) []string {
	norm := normalizeName(name)
	seen := make(map[string]bool)
	for key, canonical := range s.tableNames {
		if strings.HasPrefix(key, norm) || strings.HasPrefix(norm, key) {
			seen[canonical] = true
		}
	}
	suggestions := make([]string, 0, len(seen))
	for t := range seen {
		suggestions = append(suggestions, t)
	}
	sort.Strings(suggestions)
	return suggestions
}

// RulesInScope returns the rules whose scope intersects the intent's
// referenced entities, preserving declaration order.
func (s *Snapshot) RulesInScope(intent *models.StructuredIntent) []models.BusinessRule {
	var inScope []models.BusinessRule
	for _, rule := range s.Rules {
		if !intent.ReferencesTable(rule.Scope.Table) {
			continue
		}
		if rule.Scope.Column != "" && !intent.ReferencesColumn(rule.Scope.Table, rule.Scope.Column) {
			// Required-filter rules fire on the table regardless of whether
			// the missing column is referenced; that is the point of them.
			if rule.Kind != models.RuleKindRequiredFilter {
				continue
			}
		}
		inScope = append(inScope, rule)
	}
	return inScope
}

// Relationship returns the declared relationship linking the two tables in
// either direction, or nil.
func (s *Snapshot) Relationship(tableA, tableB string) *models.Relationship {
	for i := range s.Schema.Relationships {
		r := &s.Schema.Relationships[i]
		if (r.SourceTable == tableA && r.TargetTable == tableB) ||
			(r.SourceTable == tableB && r.TargetTable == tableA) {
			return r
		}
	}
	return nil
}
