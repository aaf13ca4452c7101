// Package builtin implements the financial research tools: web search,
// EDGAR full-text search, HTML page extraction, and document retrieval
// through the language-synthesis oracle.
package builtin

import (
	"sort"
	"sync"
)

// DocStore holds parsed documents for one orchestration loop. Pages are
// stored under caller-chosen keys by parse_html_page and read back by
// retrieve_information, keeping large page bodies out of the conversation.
// Each loop owns its store; stores are never shared across questions.
type DocStore struct {
	mu   sync.RWMutex
	docs map[string]string
}

// NewDocStore creates an empty document store.
func NewDocStore() *DocStore {
	return &DocStore{docs: make(map[string]string)}
}

// Put stores content under key and reports whether an existing document
// was overwritten.
func (s *DocStore) Put(key, content string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, overwrote := s.docs[key]
	s.docs[key] = content
	return overwrote
}

// Get returns the document stored under key.
func (s *DocStore) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	content, ok := s.docs[key]
	return content, ok
}

// Keys returns the stored keys in sorted order.
func (s *DocStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.docs))
	for k := range s.docs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of stored documents.
func (s *DocStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}
