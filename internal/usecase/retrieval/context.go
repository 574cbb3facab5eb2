package retrieval

import (
	"strings"

	"github.com/kailas-cloud/qanoneed/internal/domain"
)

// DefaultContextPassages is the number of passages rendered into a prompt.
const DefaultContextPassages = 5

const passageSeparator = "\n\n---\n\n"

// BuildContext renders the top limit passages with their source line.
func BuildContext(passages []domain.ScoredPassage, limit int) string {
	if limit <= 0 {
		limit = DefaultContextPassages
	}
	if len(passages) > limit {
		passages = passages[:limit]
	}

	parts := make([]string, 0, len(passages))
	for _, p := range passages {
		parts = append(parts, "📜 المصدر: "+p.Chunk.Source()+"\n"+p.Chunk.Content)
	}
	return strings.Join(parts, passageSeparator)
}
