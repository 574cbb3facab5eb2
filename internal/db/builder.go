package db

// IndexBuilder is a fluent builder for JSON FT index definitions.
type IndexBuilder struct {
	def IndexDefinition
}

// NewIndex starts an index over documents whose keys start with prefix.
func NewIndex(name, prefix string) *IndexBuilder {
	return &IndexBuilder{def: IndexDefinition{Name: name, Prefix: prefix}}
}

// Text indexes the JSON path as full text under alias.
func (b *IndexBuilder) Text(path, alias string) *IndexBuilder {
	return b.field(IndexField{Path: path, Alias: alias, Type: IndexFieldText})
}

// Tag indexes the JSON path as an exact-match tag under alias.
func (b *IndexBuilder) Tag(path, alias string) *IndexBuilder {
	return b.field(IndexField{Path: path, Alias: alias, Type: IndexFieldTag})
}

// Vector indexes the JSON path as an HNSW cosine vector of dim under alias.
func (b *IndexBuilder) Vector(path, alias string, dim, m, efConstruct int) *IndexBuilder {
	return b.field(IndexField{
		Path:              path,
		Alias:             alias,
		Type:              IndexFieldVector,
		VectorDim:         dim,
		VectorM:           m,
		VectorEFConstruct: efConstruct,
	})
}

func (b *IndexBuilder) field(f IndexField) *IndexBuilder {
	b.def.Fields = append(b.def.Fields, f)
	return b
}

// Build validates and returns the index definition.
func (b *IndexBuilder) Build() (*IndexDefinition, error) {
	def := b.def
	def.Fields = append([]IndexField(nil), b.def.Fields...)
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}
