package db

import (
	"errors"
	"strconv"
)

// IndexFieldType enumerates the FT field types a passage index uses.
type IndexFieldType int

const (
	// IndexFieldText is a full-text field.
	IndexFieldText IndexFieldType = iota
	// IndexFieldTag is an exact-match tag field.
	IndexFieldTag
	// IndexFieldVector is an HNSW vector field with COSINE distance.
	IndexFieldVector
)

// IndexField maps one JSON path of a stored document to a queryable alias.
type IndexField struct {
	Path  string // JSON path, e.g. $.content
	Alias string // name used in queries and RETURN
	Type  IndexFieldType

	// HNSW options, vector fields only. Zero M or EFConstruct keeps the server default.
	VectorDim         int
	VectorM           int
	VectorEFConstruct int
}

// IndexDefinition is an FT index over JSON documents stored under one key prefix.
type IndexDefinition struct {
	Name   string
	Prefix string
	Fields []IndexField
}

// Validate checks that the index definition is well-formed. Scores returned by
// SearchKNN assume a single cosine vector field.
func (idx *IndexDefinition) Validate() error {
	if idx.Name == "" {
		return errors.New("index name is required")
	}
	if !IsValidIdentifier(idx.Name) {
		return errors.New("index name contains invalid characters")
	}
	if len(idx.Fields) == 0 {
		return errors.New("at least one field is required")
	}

	seen := make(map[string]bool)
	vectors := 0
	for i := range idx.Fields {
		f := &idx.Fields[i]
		if f.Path == "" || f.Alias == "" {
			return errors.New("field path and alias are required at index " + strconv.Itoa(i))
		}
		if seen[f.Alias] {
			return errors.New("duplicate field name: " + f.Alias)
		}
		seen[f.Alias] = true

		if f.Type == IndexFieldVector {
			vectors++
			if f.VectorDim <= 0 {
				return errors.New("vector field requires positive DIM")
			}
		}
	}
	if vectors > 1 {
		return errors.New("at most one vector field is supported")
	}

	return nil
}

// IsValidIdentifier returns true if s matches [a-zA-Z0-9_:-]+.
func IsValidIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		isAlpha := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		isDigit := r >= '0' && r <= '9'
		isSpecial := r == '_' || r == ':' || r == '-'
		if !isAlpha && !isDigit && !isSpecial {
			return false
		}
	}
	return true
}
