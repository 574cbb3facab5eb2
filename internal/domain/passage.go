package domain

// PassageMetadata is the provenance attached to a chunk at ingestion time.
type PassageMetadata struct {
	SourceID     string `json:"source_id"`
	Title        string `json:"title"`
	LocatorURL   string `json:"locator_url"`
	IsAmendment  bool   `json:"is_amendment"`
	LawName      string `json:"law_name,omitempty"`
	ArticleTitle string `json:"article_title,omitempty"`
	Part         string `json:"part,omitempty"`
}

// PassageChunk is an immutable slice of source legal text.
type PassageChunk struct {
	Content  string          `json:"content"`
	Metadata PassageMetadata `json:"metadata"`
}

// Source returns the best human-readable provenance for prompts.
func (p PassageChunk) Source() string {
	switch {
	case p.Metadata.LocatorURL != "":
		return p.Metadata.LocatorURL
	case p.Metadata.Title != "":
		return p.Metadata.Title
	case p.Metadata.LawName != "":
		return p.Metadata.LawName
	default:
		return p.Metadata.SourceID
	}
}

// ScoredPassage is one retrieval hit. Higher Score means more similar.
type ScoredPassage struct {
	Chunk PassageChunk
	Score float64
}

// IndexedPassage is a chunk plus its embedding, as written by ingestion and
// read back by every passage backend. The JSON form is one line of the flat index.
type IndexedPassage struct {
	ID        string          `json:"id,omitempty"`
	Content   string          `json:"content"`
	Metadata  PassageMetadata `json:"metadata"`
	Embedding []float32       `json:"embedding"`
}

// Chunk drops the embedding.
func (p IndexedPassage) Chunk() PassageChunk {
	return PassageChunk{Content: p.Content, Metadata: p.Metadata}
}
