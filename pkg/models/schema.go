package models

// SemanticType classifies what a column means, beyond its storage type.
// The planner and validator use this for type-compatibility checks.
type SemanticType string

const (
	SemanticTypeIdentifier SemanticType = "identifier"
	SemanticTypeMetric     SemanticType = "metric"    // numeric, aggregatable
	SemanticTypeCategory   SemanticType = "category"  // enumerable dimension
	SemanticTypeTimestamp  SemanticType = "timestamp" // date/time, window-able
	SemanticTypeText       SemanticType = "text"
)

// IsValidSemanticType checks if the given type is one the registry accepts.
func IsValidSemanticType(t SemanticType) bool {
	switch t {
	case SemanticTypeIdentifier, SemanticTypeMetric, SemanticTypeCategory,
		SemanticTypeTimestamp, SemanticTypeText:
		return true
	}
	return false
}

// ColumnDescriptor describes one column of a warehouse table.
type ColumnDescriptor struct {
	Name         string       `yaml:"name" json:"name"`
	SemanticType SemanticType `yaml:"type" json:"type"`
	Nullable     bool         `yaml:"nullable" json:"nullable"`
	Description  string       `yaml:"description,omitempty" json:"description,omitempty"`
	Synonyms     []string     `yaml:"synonyms,omitempty" json:"synonyms,omitempty"`
	// AllowedValues, when set, is the closed set of values this column may take.
	// Business rules of kind "enum" reference it.
	AllowedValues []string `yaml:"allowed_values,omitempty" json:"allowed_values,omitempty"`
}

// TableDescriptor describes one warehouse table with its ordered columns.
type TableDescriptor struct {
	Name        string             `yaml:"name" json:"name"`
	Description string             `yaml:"description,omitempty" json:"description,omitempty"`
	Synonyms    []string           `yaml:"synonyms,omitempty" json:"synonyms,omitempty"`
	Columns     []ColumnDescriptor `yaml:"columns" json:"columns"`
}

// Column returns the descriptor for the named column, or nil if absent.
func (t *TableDescriptor) Column(name string) *ColumnDescriptor {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}

// Relationship declares a foreign-key-like link between two columns.
// The planner may only join along declared relationships.
type Relationship struct {
	SourceTable  string `yaml:"source_table" json:"source_table"`
	SourceColumn string `yaml:"source_column" json:"source_column"`
	TargetTable  string `yaml:"target_table" json:"target_table"`
	TargetColumn string `yaml:"target_column" json:"target_column"`
}

// SchemaDescriptor is the canonical data model of the warehouse: tables,
// columns with semantic types, and declared relationships. Immutable after
// load; owned by the registry snapshot.
type SchemaDescriptor struct {
	Tables        []TableDescriptor `yaml:"tables" json:"tables"`
	Relationships []Relationship    `yaml:"relationships,omitempty" json:"relationships,omitempty"`
}

// Table returns the descriptor for the named table, or nil if absent.
func (s *SchemaDescriptor) Table(name string) *TableDescriptor {
	for i := range s.Tables {
		if s.Tables[i].Name == name {
			return &s.Tables[i]
		}
	}
	return nil
}

// HasColumn reports whether table.column exists in the schema.
func (s *SchemaDescriptor) HasColumn(table, column string) bool {
	t := s.Table(table)
	return t != nil && t.Column(column) != nil
}
