package storage

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/dgraph-io/badger/v4"

	"github.com/Benny93/kin-go/internal/graph"
	"github.com/Benny93/kin-go/internal/kb"
)

// Key prefixes for FTS
const (
	prefixFTSToken = "fts:t:" // fts:t:token:nodeID -> frequency
	prefixFTSMeta  = "fts:m:" // fts:m:nodeID -> serialized metadata
)

// FTSIndex is an inverted index over character names, aliases and QIDs.
type FTSIndex struct {
	db *badger.DB
}

// NewFTSIndex creates a new FTS index using the given BadgerDB instance.
func NewFTSIndex(db *badger.DB) *FTSIndex {
	return &FTSIndex{db: db}
}

// tokenize splits a name into searchable tokens: each word with
// punctuation removed, plus the whole name in resolver-normalized form so
// "Mr. Darcy" is also found as "mrdarcy".
func tokenize(text string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(tok string) {
		if tok != "" && !seen[tok] {
			seen[tok] = true
			out = append(out, tok)
		}
	}
	for _, word := range strings.Fields(text) {
		add(alnum(word))
	}
	add(alnum(kb.Normalize(text)))
	return out
}

func alnum(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return -1
	}, s)
}

// nodeText is the searchable text of a node.
func nodeText(node *graph.GraphNode) []string {
	texts := []string{node.Name, node.QID}
	return append(texts, node.Aliases...)
}

// nodeTokens returns token frequencies over every searchable field.
func nodeTokens(node *graph.GraphNode) map[string]int {
	freq := make(map[string]int)
	for _, text := range nodeText(node) {
		for _, tok := range tokenize(text) {
			freq[tok]++
		}
	}
	return freq
}

// tokenScore scores one indexed token against a query token: its frequency
// on an exact match, half a point on a prefix match.
func tokenScore(query, indexed string, freq int) float64 {
	switch {
	case indexed == query:
		return float64(freq)
	case strings.HasPrefix(indexed, query):
		return 0.5
	}
	return 0
}

// IndexNode adds or updates a node in the FTS index.
func (f *FTSIndex) IndexNode(node *graph.GraphNode) error {
	if f.db == nil {
		return nil
	}

	txn := f.db.NewTransaction(true)
	defer txn.Discard()

	if err := f.deleteNodeTokens(txn, node.ID); err != nil {
		return fmt.Errorf("clearing tokens: %w", err)
	}

	for token, freq := range nodeTokens(node) {
		key := fmt.Sprintf("%s%s:%s", prefixFTSToken, token, node.ID)
		if err := txn.Set([]byte(key), []byte(strconv.Itoa(freq))); err != nil {
			return fmt.Errorf("setting token index: %w", err)
		}
	}

	meta := map[string]any{
		"id":      node.ID,
		"name":    node.Name,
		"qid":     node.QID,
		"label":   string(node.Label),
		"aliases": strings.Join(node.Aliases, ", "),
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshaling metadata: %w", err)
	}
	if err := txn.Set([]byte(prefixFTSMeta+node.ID), metaJSON); err != nil {
		return fmt.Errorf("setting metadata: %w", err)
	}

	return txn.Commit()
}

// deleteNodeTokens removes all token indexes for a node.
func (f *FTSIndex) deleteNodeTokens(txn *badger.Txn, nodeID string) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefixFTSToken)
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)

	var keysToDelete [][]byte
	searchSuffix := ":" + nodeID
	for it.Rewind(); it.Valid(); it.Next() {
		key := it.Item().KeyCopy(nil)
		if strings.HasSuffix(string(key), searchSuffix) {
			keysToDelete = append(keysToDelete, key)
		}
	}
	it.Close()

	for _, key := range keysToDelete {
		if err := txn.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

// Search scores nodes by exact and prefix token matches.
func (f *FTSIndex) Search(query string, limit int) ([]SearchResult, error) {
	if f.db == nil {
		return []SearchResult{}, nil
	}

	queryTokens := tokenize(query)
	if len(queryTokens) == 0 {
		return []SearchResult{}, nil
	}

	nodeScores := make(map[string]float64)

	txn := f.db.NewTransaction(false)
	defer txn.Discard()

	for _, qt := range queryTokens {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixFTSToken + qt)
		it := txn.NewIterator(opts)

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			// fts:t:token:nodeID; tokens never contain ':'.
			rest := strings.TrimPrefix(string(item.Key()), prefixFTSToken)
			token, nodeID, ok := strings.Cut(rest, ":")
			if !ok {
				continue
			}

			var freq int
			_ = item.Value(func(val []byte) error {
				freq, _ = strconv.Atoi(string(val))
				return nil
			})
			nodeScores[nodeID] += tokenScore(qt, token, freq)
		}
		it.Close()
	}

	results := make([]SearchResult, 0, len(nodeScores))
	for nodeID, score := range nodeScores {
		if score <= 0 {
			continue
		}

		metaItem, err := txn.Get([]byte(prefixFTSMeta + nodeID))
		if err != nil {
			continue
		}

		var meta map[string]any
		_ = metaItem.Value(func(val []byte) error {
			return json.Unmarshal(val, &meta)
		})

		results = append(results, SearchResult{
			NodeID:   nodeID,
			Score:    score,
			NodeName: getString(meta, "name"),
			QID:      getString(meta, "qid"),
			Label:    getString(meta, "label"),
			Snippet:  getString(meta, "aliases"),
		})
	}

	return limitResults(results, limit), nil
}

// getString safely extracts a string from a map.
func getString(m map[string]any, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// RemoveNode removes a node from the FTS index.
func (f *FTSIndex) RemoveNode(nodeID string) error {
	if f.db == nil {
		return nil
	}

	txn := f.db.NewTransaction(true)
	defer txn.Discard()

	if err := f.deleteNodeTokens(txn, nodeID); err != nil {
		return err
	}
	if err := txn.Delete([]byte(prefixFTSMeta + nodeID)); err != nil {
		return err
	}
	return txn.Commit()
}

// IndexSize returns the number of indexed (token, node) entries.
func (f *FTSIndex) IndexSize() (int, error) {
	if f.db == nil {
		return 0, nil
	}

	count := 0
	txn := f.db.NewTransaction(false)
	defer txn.Discard()

	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefixFTSToken)
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		count++
	}
	return count, nil
}
