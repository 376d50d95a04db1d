package disclosure

import (
	"sort"
	"strconv"
	"strings"
)

// Document kinds.
const (
	KindAdmin = "admin"
	KindEvent = "event"
	KindUser  = "user"
	KindClaim = "claim"
)

const maxTermLength = 64
const minPrefixLen = 2
const maxPrefixLen = 24

// SearchDocument is one indexed record in the disclosure graph.
type SearchDocument struct {
	ID         string `json:"id"`
	Kind       string `json:"kind"`
	Title      string `json:"title"`
	Subtitle   string `json:"subtitle"`
	Detail     string `json:"detail"`
	SearchText string `json:"searchText"`
}

// SearchResult is one scored hit.
type SearchResult struct {
	Document SearchDocument `json:"document"`
	Score    int            `json:"score"`
}

// Index is the in-memory inverted index over a set of SearchDocuments: a
// postings list from token (full term or prefix) to the documents
// containing it.
type Index struct {
	docs     map[string]SearchDocument
	postings map[string]map[string]bool // token -> set of doc ids
}

// BuildIndex tokenizes and indexes every document.
func BuildIndex(docs []SearchDocument) *Index {
	idx := &Index{
		docs:     make(map[string]SearchDocument, len(docs)),
		postings: make(map[string]map[string]bool),
	}
	for _, d := range docs {
		idx.docs[d.ID] = d
		for _, field := range []string{d.Title, d.Subtitle, d.Detail, d.SearchText} {
			for _, term := range tokenize(field) {
				idx.index(term, d.ID)
				for _, prefix := range prefixesOf(term) {
					idx.index(prefix, d.ID)
				}
			}
		}
	}
	return idx
}

func (idx *Index) index(token, docID string) {
	set, ok := idx.postings[token]
	if !ok {
		set = make(map[string]bool)
		idx.postings[token] = set
	}
	set[docID] = true
}

// tokenize lowercases, splits on whitespace and common punctuation, dedups,
// and caps each term at 64 chars.
func tokenize(s string) []string {
	lower := strings.ToLower(s)
	fields := strings.FieldsFunc(lower, func(r rune) bool {
		switch {
		case r == ' ' || r == '\t' || r == '\n':
			return true
		case strings.ContainsRune(",.;:!?()[]{}'\"/\\|_@#$%^&*+=<>~`", r):
			return true
		}
		return false
	})
	seen := make(map[string]bool, len(fields))
	var out []string
	for _, f := range fields {
		if len(f) > maxTermLength {
			f = f[:maxTermLength]
		}
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

// prefixesOf returns every prefix of term with length in [2, min(24, len)].
func prefixesOf(term string) []string {
	n := len(term)
	upper := n
	if upper > maxPrefixLen {
		upper = maxPrefixLen
	}
	if upper < minPrefixLen {
		return nil
	}
	out := make([]string, 0, upper-minPrefixLen+1)
	for l := minPrefixLen; l <= upper; l++ {
		out = append(out, term[:l])
	}
	return out
}

// Search tokenizes query, intersects postings across every query term, and
// scores the surviving documents.
func (idx *Index) Search(query string) []SearchResult {
	terms := tokenize(query)
	if len(terms) == 0 {
		return nil
	}

	var candidates map[string]bool
	for _, t := range terms {
		hits := idx.postings[t]
		if candidates == nil {
			candidates = make(map[string]bool, len(hits))
			for id := range hits {
				candidates[id] = true
			}
			continue
		}
		for id := range candidates {
			if !hits[id] {
				delete(candidates, id)
			}
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	lowerQuery := strings.ToLower(strings.TrimSpace(query))

	results := make([]SearchResult, 0, len(candidates))
	for id := range candidates {
		doc := idx.docs[id]
		score := scoreDocument(doc, terms, lowerQuery)
		results = append(results, SearchResult{Document: doc, Score: score})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Document.ID < results[j].Document.ID
	})
	return results
}

// scoreDocument implements the §4.H weight table: an exact full-query
// substring match in searchText/title/subtitle/detail, plus a per-term match
// against title/subtitle/searchText.
func scoreDocument(doc SearchDocument, terms []string, lowerQuery string) int {
	score := 0
	if lowerQuery != "" {
		if strings.Contains(strings.ToLower(doc.SearchText), lowerQuery) {
			score += 12
		}
		if strings.Contains(strings.ToLower(doc.Title), lowerQuery) {
			score += 8
		}
		if strings.Contains(strings.ToLower(doc.Subtitle), lowerQuery) {
			score += 4
		}
		if strings.Contains(strings.ToLower(doc.Detail), lowerQuery) {
			score += 2
		}
	}
	title := strings.ToLower(doc.Title)
	subtitle := strings.ToLower(doc.Subtitle)
	searchText := strings.ToLower(doc.SearchText)
	for _, term := range terms {
		if strings.Contains(title, term) {
			score += 3
		}
		if strings.Contains(subtitle, term) {
			score += 2
		}
		if strings.Contains(searchText, term) {
			score += 1
		}
	}
	return score
}

// DocumentsFromGraph flattens a disclosure Graph into the searchable
// document set: one admin doc per admin, one event doc per owned event, one
// user doc per related-user group, one claim doc per individual transfer.
func DocumentsFromGraph(graph *Graph) []SearchDocument {
	var docs []SearchDocument
	for _, admin := range graph.Admins {
		docs = append(docs, SearchDocument{
			ID:         "admin:" + admin.AdminID,
			Kind:       KindAdmin,
			Title:      admin.Name,
			Subtitle:   admin.Source,
			Detail:     admin.AdminID,
			SearchText: strings.Join([]string{admin.Name, admin.Source, admin.AdminID}, " "),
		})
		for _, ev := range admin.Events {
			docs = append(docs, SearchDocument{
				ID:         "event:" + ev.EventID,
				Kind:       KindEvent,
				Title:      ev.EventID,
				Subtitle:   ev.State,
				Detail:     admin.Name,
				SearchText: strings.Join([]string{ev.EventID, ev.State, admin.Name}, " "),
			})
		}
		for _, u := range admin.Users {
			docs = append(docs, SearchDocument{
				ID:         "user:" + u.GroupKey,
				Kind:       KindUser,
				Title:      u.GroupKey,
				Subtitle:   admin.Name,
				Detail:     claimCountLabel(len(u.Transfers)),
				SearchText: u.GroupKey,
			})
			for _, t := range u.Transfers {
				docs = append(docs, SearchDocument{
					ID:         "claim:" + t.EntryHash,
					Kind:       KindClaim,
					Title:      t.EventID,
					Subtitle:   t.GroupKey,
					Detail:     t.TxSignature,
					SearchText: strings.Join([]string{t.EventID, t.GroupKey, t.TxSignature, t.ReceiptPubkey}, " "),
				})
			}
		}
	}
	return docs
}

func claimCountLabel(n int) string {
	if n == 1 {
		return "1 claim"
	}
	return strconv.Itoa(n) + " claims"
}
