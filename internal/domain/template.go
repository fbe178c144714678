package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// ColumnMapping maps one original column to a target column, or drops it.
type ColumnMapping struct {
	OriginalName string `json:"originalName"`
	MappedName   string `json:"mappedName,omitempty"`
	Skip         bool   `json:"skip,omitempty"`
}

// SheetMapping is the template entry for one original sheet name.
type SheetMapping struct {
	OriginalName string          `json:"originalName"`
	MappedName   string          `json:"mappedName,omitempty"`
	Skip         bool            `json:"skip"`
	Columns      []ColumnMapping `json:"columns,omitempty"`
}

// SheetMappings is a custom type for storing the ordered sheet mappings as JSON.
type SheetMappings []SheetMapping

// Value implements the driver.Valuer interface for database serialization.
func (m SheetMappings) Value() (driver.Value, error) {
	if m == nil {
		return "[]", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (m *SheetMappings) Scan(value interface{}) error {
	if value == nil {
		*m = SheetMappings{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan SheetMappings")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, m)
}

// MappingTemplate is a stored, reusable mapping of sheets and columns to target identifiers.
// The pipeline only reads templates.
type MappingTemplate struct {
	ID            string        `gorm:"type:text;primaryKey" json:"id"`
	Name          string        `gorm:"type:text" json:"name"`
	SheetMappings SheetMappings `gorm:"type:text" json:"sheet_mappings"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// TableName returns the database table name for MappingTemplate.
func (MappingTemplate) TableName() string {
	return "mapping_templates"
}
