package entity

import (
	"encoding/json"
	"fmt"
	"sort"
	"unicode/utf8"
)

// Method identifies which detector produced a record
type Method string

const (
	// MethodPattern marks records found by fixed textual patterns
	MethodPattern Method = "pattern"
	// MethodSemantic marks records found by a named-entity model
	MethodSemantic Method = "semantic"
)

// Record is a single detected entity, keyed by its exact surface text
type Record struct {
	Text      string   `json:"text"`
	Method    Method   `json:"method"`
	Type      string   `json:"type"`
	Languages []string `json:"languages,omitempty"`
}

// Set is an insertion-ordered collection of records keyed by surface text.
// The zero value is not usable; call NewSet.
type Set struct {
	order   []string
	records map[string]*Record
}

// NewSet creates an empty entity set
func NewSet() *Set {
	return &Set{records: make(map[string]*Record)}
}

// Add registers r only if its surface text is not present yet.
// It reports whether the record was inserted.
func (s *Set) Add(r Record) bool {
	if _, exists := s.records[r.Text]; exists {
		return false
	}
	s.insert(r)
	return true
}

// Put registers r, replacing any record with the same surface text.
// A replaced record keeps its original position.
func (s *Set) Put(r Record) {
	if existing, exists := s.records[r.Text]; exists {
		*existing = clone(r)
		return
	}
	s.insert(r)
}

// AddLanguage appends lang to the record's languages unless already present.
// It reports false when no record exists for text.
func (s *Set) AddLanguage(text, lang string) bool {
	r, exists := s.records[text]
	if !exists {
		return false
	}
	for _, l := range r.Languages {
		if l == lang {
			return true
		}
	}
	r.Languages = append(r.Languages, lang)
	return true
}

// Get returns a copy of the record for text
func (s *Set) Get(text string) (Record, bool) {
	r, exists := s.records[text]
	if !exists {
		return Record{}, false
	}
	return clone(*r), true
}

// Len returns the number of unique entities
func (s *Set) Len() int {
	return len(s.order)
}

// Records returns copies of all records in insertion order
func (s *Set) Records() []Record {
	out := make([]Record, 0, len(s.order))
	for _, text := range s.order {
		out = append(out, clone(*s.records[text]))
	}
	return out
}

// Merge puts every record of other into s, in other's order.
// Records from other win over records already in s.
func (s *Set) Merge(other *Set) {
	if other == nil {
		return
	}
	for _, r := range other.Records() {
		s.Put(r)
	}
}

// ByLength returns the records ordered by ascending surface text length
// in characters. Records of equal length keep insertion order.
func (s *Set) ByLength() []Record {
	out := s.Records()
	sort.SliceStable(out, func(i, j int) bool {
		return utf8.RuneCountInString(out[i].Text) < utf8.RuneCountInString(out[j].Text)
	})
	return out
}

// Types counts records per type
func (s *Set) Types() map[string]int {
	counts := make(map[string]int)
	for _, text := range s.order {
		counts[s.records[text].Type]++
	}
	return counts
}

// MarshalJSON encodes the set as an ordered array of records
func (s *Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Records())
}

// UnmarshalJSON decodes an ordered array of records. Duplicate surface
// texts in the input keep their first occurrence.
func (s *Set) UnmarshalJSON(data []byte) error {
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("failed to decode entity set: %w", err)
	}
	s.order = nil
	s.records = make(map[string]*Record, len(records))
	for _, r := range records {
		s.Add(r)
	}
	return nil
}

func (s *Set) insert(r Record) {
	c := clone(r)
	s.records[r.Text] = &c
	s.order = append(s.order, r.Text)
}

func clone(r Record) Record {
	if r.Languages != nil {
		r.Languages = append([]string(nil), r.Languages...)
	}
	return r
}
