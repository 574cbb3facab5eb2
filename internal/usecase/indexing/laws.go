package indexing

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/kailas-cloud/qanoneed/internal/domain"
)

// Law is one statute from the scraped law dump.
type Law struct {
	ID       string
	Name     string
	URL      string
	Articles []Article
}

// Article is one article or section of a law.
type Article struct {
	Title       string
	Part        string
	Text        string
	IsAmendment bool
	Amendments  []Amendment
}

// Amendment is a later wording attached to an article.
type Amendment struct {
	Text      string
	SourceURL string
}

type wireLaw struct {
	ID       json.RawMessage `json:"law_id"`
	LawName  string          `json:"law_name"`
	Name     string          `json:"name"`
	URL      string          `json:"url"`
	Articles []wireArticle   `json:"articles"`
}

type wireArticle struct {
	Title       string          `json:"title"`
	Part        json.RawMessage `json:"part"`
	Text        string          `json:"text"`
	Content     string          `json:"content"`
	IsAmendment bool            `json:"is_amendment"`
	Amendments  []struct {
		Text      string `json:"text"`
		SourceURL string `json:"source_url"`
	} `json:"amendments"`
}

// ReadLaws decodes a stream of law objects. It accepts JSONL (one law per
// line) and the single-document form {"laws": [...]}, or a mix.
func ReadLaws(r io.Reader) ([]Law, error) {
	dec := json.NewDecoder(r)
	var laws []Law
	for n := 1; ; n++ {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) {
				return laws, nil
			}
			return nil, fmt.Errorf("%w: law record %d: %w", domain.ErrInvalidInput, n, err)
		}

		var wrapper struct {
			Laws []wireLaw `json:"laws"`
		}
		if err := json.Unmarshal(raw, &wrapper); err == nil && wrapper.Laws != nil {
			for _, w := range wrapper.Laws {
				laws = append(laws, w.law())
			}
			continue
		}

		var w wireLaw
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, fmt.Errorf("%w: law record %d: %w", domain.ErrInvalidInput, n, err)
		}
		laws = append(laws, w.law())
	}
}

func (w wireLaw) law() Law {
	l := Law{ID: scalar(w.ID), Name: w.LawName, URL: w.URL}
	if l.Name == "" {
		l.Name = w.Name
	}
	for _, a := range w.Articles {
		art := Article{Title: a.Title, Part: scalar(a.Part), Text: a.Text, IsAmendment: a.IsAmendment}
		if art.Text == "" {
			art.Text = a.Content
		}
		for _, am := range a.Amendments {
			art.Amendments = append(art.Amendments, Amendment{Text: am.Text, SourceURL: am.SourceURL})
		}
		l.Articles = append(l.Articles, art)
	}
	return l
}

// scalar renders a JSON string or number as text. null and other shapes give "".
func scalar(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// Passages chunks every article and amendment of law. IDs are stable across
// runs: {law}:{article}:{chunk}, and {law}:{article}:a{amendment}:{chunk}.
func Passages(law Law, c Chunker) []domain.IndexedPassage {
	var out []domain.IndexedPassage
	base := domain.PassageMetadata{SourceID: law.ID, LocatorURL: law.URL, LawName: law.Name}

	for ai, art := range law.Articles {
		meta := base
		meta.ArticleTitle = art.Title
		meta.Part = art.Part
		meta.Title = title(law.Name, art.Title)
		meta.IsAmendment = art.IsAmendment

		for ci, chunk := range c.Split(art.Text) {
			out = append(out, domain.IndexedPassage{
				ID:       fmt.Sprintf("%s:%d:%d", law.ID, ai, ci),
				Content:  chunk,
				Metadata: meta,
			})
		}

		for mi, am := range art.Amendments {
			amMeta := meta
			amMeta.IsAmendment = true
			if am.SourceURL != "" {
				amMeta.LocatorURL = am.SourceURL
			}
			for ci, chunk := range c.Split(am.Text) {
				out = append(out, domain.IndexedPassage{
					ID:       fmt.Sprintf("%s:%d:a%d:%d", law.ID, ai, mi, ci),
					Content:  chunk,
					Metadata: amMeta,
				})
			}
		}
	}
	return out
}

func title(law, article string) string {
	switch {
	case law == "":
		return article
	case article == "":
		return law
	default:
		return law + " - " + article
	}
}
