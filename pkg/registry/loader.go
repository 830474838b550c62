package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/claimsight-ai/claimsight-engine/pkg/apperrors"
	"github.com/claimsight-ai/claimsight-engine/pkg/models"
)

// rulesFile is the on-disk shape of the rules document.
type rulesFile struct {
	Rules []models.BusinessRule `yaml:"rules"`
}

// Load reads and validates the schema and rules documents. Any invariant
// violation is a configuration error; the process must refuse to serve until
// the registry is fixed.
func Load(schemaPath, rulesPath string) (*Snapshot, error) {
	schemaBytes, err := os.ReadFile(schemaPath)
	if err != nil {
		return nil, fmt.Errorf("%w: read schema %s: %v", apperrors.ErrConfiguration, schemaPath, err)
	}

	var schema models.SchemaDescriptor
	if err := yaml.Unmarshal(schemaBytes, &schema); err != nil {
		return nil, fmt.Errorf("%w: parse schema: %v", apperrors.ErrConfiguration, err)
	}

	rulesBytes, err := os.ReadFile(rulesPath)
	if err != nil {
		return nil, fmt.Errorf("%w: read rules %s: %v", apperrors.ErrConfiguration, rulesPath, err)
	}

	var rf rulesFile
	if err := yaml.Unmarshal(rulesBytes, &rf); err != nil {
		return nil, fmt.Errorf("%w: parse rules: %v", apperrors.ErrConfiguration, err)
	}

	return Build(&schema, rf.Rules)
}

// Build validates a schema and rule set and produces an immutable snapshot.
// Split from Load so tests and reloads can construct snapshots from memory.
func Build(schema *models.SchemaDescriptor, rules []models.BusinessRule) (*Snapshot, error) {
	if err := validateSchema(schema); err != nil {
		return nil, err
	}

	for i := range rules {
		rules[i].DeclOrder = i
		if err := validateRule(&rules[i], schema); err != nil {
			return nil, err
		}
	}

	return newSnapshot(schema, rules), nil
}

func validateSchema(schema *models.SchemaDescriptor) error {
	if len(schema.Tables) == 0 {
		return fmt.Errorf("%w: schema declares no tables", apperrors.ErrConfiguration)
	}

	seenTables := make(map[string]bool)
	for i := range schema.Tables {
		t := &schema.Tables[i]
		if t.Name == "" {
			return fmt.Errorf("%w: table %d has no name", apperrors.ErrConfiguration, i)
		}
		if seenTables[t.Name] {
			return fmt.Errorf("%w: duplicate table %q", apperrors.ErrConfiguration, t.Name)
		}
		seenTables[t.Name] = true

		if len(t.Columns) == 0 {
			return fmt.Errorf("%w: table %q has no columns", apperrors.ErrConfiguration, t.Name)
		}
		seenCols := make(map[string]bool)
		for j := range t.Columns {
			c := &t.Columns[j]
			if c.Name == "" {
				return fmt.Errorf("%w: table %q column %d has no name", apperrors.ErrConfiguration, t.Name, j)
			}
			if seenCols[c.Name] {
				return fmt.Errorf("%w: duplicate column %q.%q", apperrors.ErrConfiguration, t.Name, c.Name)
			}
			seenCols[c.Name] = true
			if !models.IsValidSemanticType(c.SemanticType) {
				return fmt.Errorf("%w: column %q.%q has unknown semantic type %q",
					apperrors.ErrConfiguration, t.Name, c.Name, c.SemanticType)
			}
		}
	}

	for _, rel := range schema.Relationships {
		if !schema.HasColumn(rel.SourceTable, rel.SourceColumn) {
			return fmt.Errorf("%w: relationship references unknown column %s.%s",
				apperrors.ErrConfiguration, rel.SourceTable, rel.SourceColumn)
		}
		if !schema.HasColumn(rel.TargetTable, rel.TargetColumn) {
			return fmt.Errorf("%w: relationship references unknown column %s.%s",
				apperrors.ErrConfiguration, rel.TargetTable, rel.TargetColumn)
		}
	}

	return nil
}

func validateRule(rule *models.BusinessRule, schema *models.SchemaDescriptor) error {
	if rule.ID == "" {
		return fmt.Errorf("%w: rule %d has no id", apperrors.ErrConfiguration, rule.DeclOrder)
	}
	if !models.IsValidRuleKind(rule.Kind) {
		return fmt.Errorf("%w: rule %q has unknown kind %q", apperrors.ErrConfiguration, rule.ID, rule.Kind)
	}
	if !models.IsValidSeverity(rule.Severity) {
		return fmt.Errorf("%w: rule %q has unknown severity %q", apperrors.ErrConfiguration, rule.ID, rule.Severity)
	}

	table := schema.Table(rule.Scope.Table)
	if table == nil {
		return fmt.Errorf("%w: rule %q scoped to unknown table %q", apperrors.ErrConfiguration, rule.ID, rule.Scope.Table)
	}
	if rule.Scope.Column != "" && table.Column(rule.Scope.Column) == nil {
		return fmt.Errorf("%w: rule %q scoped to unknown column %s.%s",
			apperrors.ErrConfiguration, rule.ID, rule.Scope.Table, rule.Scope.Column)
	}

	switch rule.Kind {
	case models.RuleKindRequiredFilter:
		if rule.RequiredFilterColumn == "" {
			return fmt.Errorf("%w: rule %q requires required_filter_column", apperrors.ErrConfiguration, rule.ID)
		}
		if table.Column(rule.RequiredFilterColumn) == nil {
			return fmt.Errorf("%w: rule %q requires filter on unknown column %s.%s",
				apperrors.ErrConfiguration, rule.ID, rule.Scope.Table, rule.RequiredFilterColumn)
		}
	case models.RuleKindValueRange:
		if rule.Min == nil && rule.Max == nil {
			return fmt.Errorf("%w: rule %q declares neither min nor max", apperrors.ErrConfiguration, rule.ID)
		}
		if rule.Scope.Column == "" {
			return fmt.Errorf("%w: rule %q needs a column scope", apperrors.ErrConfiguration, rule.ID)
		}
	case models.RuleKindEnum:
		if rule.Scope.Column == "" {
			return fmt.Errorf("%w: rule %q needs a column scope", apperrors.ErrConfiguration, rule.ID)
		}
		col := table.Column(rule.Scope.Column)
		if len(col.AllowedValues) == 0 {
			return fmt.Errorf("%w: rule %q needs allowed_values on column %s.%s",
				apperrors.ErrConfiguration, rule.ID, rule.Scope.Table, rule.Scope.Column)
		}
	case models.RuleKindForbiddenCombination:
		if len(rule.Combination) < 2 {
			return fmt.Errorf("%w: rule %q needs at least two combination members", apperrors.ErrConfiguration, rule.ID)
		}
		for _, m := range rule.Combination {
			if table.Column(m.Column) == nil {
				return fmt.Errorf("%w: rule %q combination references unknown column %s.%s",
					apperrors.ErrConfiguration, rule.ID, rule.Scope.Table, m.Column)
			}
		}
	case models.RuleKindForbiddenJoin:
		if schema.Table(rule.ForbiddenJoinTable) == nil {
			return fmt.Errorf("%w: rule %q forbids join to unknown table %q",
				apperrors.ErrConfiguration, rule.ID, rule.ForbiddenJoinTable)
		}
	case models.RuleKindMetricThreshold:
		if len(rule.Thresholds) == 0 || rule.ThresholdCategoryColumn == "" {
			return fmt.Errorf("%w: rule %q needs thresholds and threshold_category_column", apperrors.ErrConfiguration, rule.ID)
		}
		if table.Column(rule.ThresholdCategoryColumn) == nil {
			return fmt.Errorf("%w: rule %q threshold category column %s.%s unknown",
				apperrors.ErrConfiguration, rule.ID, rule.Scope.Table, rule.ThresholdCategoryColumn)
		}
	}

	return nil
}
