package entities

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Kind tags the variant of a Reference.
type Kind string

const (
	KindVerse    Kind = "verse"
	KindCitation Kind = "citation"
	KindBook     Kind = "book"
)

// Reference is a pointer into a source text. The set of variants is closed:
// VerseRange, Citation and BookReference.
type Reference interface {
	Kind() Kind
	// Properties returns the variant's fields keyed by their stored names.
	Properties() map[string]any
	sealed()
}

// VerseRange points at verses InitVerse..FinalVerse of one chapter.
type VerseRange struct {
	Chapter    int `json:"chapter" validate:"min=1,max=114"`
	InitVerse  int `json:"init_verse" validate:"min=0"`
	FinalVerse int `json:"final_verse" validate:"gtefield=InitVerse"`
}

func (VerseRange) Kind() Kind { return KindVerse }
func (VerseRange) sealed()    {}

func (v VerseRange) Properties() map[string]any {
	return map[string]any{
		"chapter":     int64(v.Chapter),
		"init_verse":  int64(v.InitVerse),
		"final_verse": int64(v.FinalVerse),
	}
}

// Contains reports whether o lies entirely inside v.
func (v VerseRange) Contains(o VerseRange) bool {
	return v.Chapter == o.Chapter && v.InitVerse <= o.InitVerse && v.FinalVerse >= o.FinalVerse
}

// Citation points at a numbered entry of a named collection.
type Citation struct {
	Collection string `json:"collection" validate:"required,max=200"`
	Number     string `json:"number" validate:"required,max=50"`
}

func (Citation) Kind() Kind { return KindCitation }
func (Citation) sealed()    {}

func (c Citation) Properties() map[string]any {
	return map[string]any{"collection": c.Collection, "number": c.Number}
}

// BookReference points at a page of a book.
type BookReference struct {
	ISBN string `json:"isbn" validate:"required,max=32"`
	Name string `json:"name" validate:"required,max=300"`
	Page int    `json:"page" validate:"min=0"`
}

func (BookReference) Kind() Kind { return KindBook }
func (BookReference) sealed()    {}

func (b BookReference) Properties() map[string]any {
	return map[string]any{"isbn": b.ISBN, "name": b.Name, "page": int64(b.Page)}
}

// IsBook reports whether ref is a BookReference.
func IsBook(ref Reference) bool {
	return ref != nil && ref.Kind() == KindBook
}

// StoredReference is a Reference as persisted: with its node id and creation time.
type StoredReference struct {
	ID        string
	CreatedAt time.Time
	Reference Reference
}

// MarshalJSON flattens the variant fields next to the id and kind tag.
func (s StoredReference) MarshalJSON() ([]byte, error) {
	out := map[string]any{"id": s.ID}
	if s.Reference != nil {
		for k, v := range s.Reference.Properties() {
			out[k] = v
		}
		out["kind"] = s.Reference.Kind()
	}
	return json.Marshal(out)
}

var fieldSets = map[Kind][]string{
	KindVerse:    {"chapter", "init_verse", "final_verse"},
	KindCitation: {"collection", "number"},
	KindBook:     {"isbn", "name", "page"},
}

// ClassifyProperties determines the variant of an untagged property map by its
// field set. Zero or several matching variants is an error.
func ClassifyProperties(props map[string]any) (Kind, error) {
	var matches []Kind
	for _, kind := range []Kind{KindVerse, KindCitation, KindBook} {
		if hasAll(props, fieldSets[kind]) {
			matches = append(matches, kind)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return "", fmt.Errorf("reference properties match no known kind")
	default:
		return "", fmt.Errorf("reference properties are ambiguous between %v", matches)
	}
}

// ReferenceFromProperties rebuilds the variant of the given kind.
func ReferenceFromProperties(kind Kind, props map[string]any) (Reference, error) {
	switch kind {
	case KindVerse:
		chapter, err1 := intProperty(props, "chapter")
		initVerse, err2 := intProperty(props, "init_verse")
		finalVerse, err3 := intProperty(props, "final_verse")
		if err := firstError(err1, err2, err3); err != nil {
			return nil, err
		}
		return VerseRange{Chapter: chapter, InitVerse: initVerse, FinalVerse: finalVerse}, nil
	case KindCitation:
		collection, err1 := stringProperty(props, "collection")
		number, err2 := stringProperty(props, "number")
		if err := firstError(err1, err2); err != nil {
			return nil, err
		}
		return Citation{Collection: collection, Number: number}, nil
	case KindBook:
		isbn, err1 := stringProperty(props, "isbn")
		name, err2 := stringProperty(props, "name")
		page, err3 := intProperty(props, "page")
		if err := firstError(err1, err2, err3); err != nil {
			return nil, err
		}
		return BookReference{ISBN: isbn, Name: name, Page: page}, nil
	default:
		return nil, fmt.Errorf("unknown reference kind %q", kind)
	}
}

func hasAll(props map[string]any, keys []string) bool {
	for _, k := range keys {
		if v, ok := props[k]; !ok || v == nil {
			return false
		}
	}
	return true
}

func intProperty(props map[string]any, key string) (int, error) {
	switch v := props[key].(type) {
	case int64:
		return int(v), nil
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case float64:
		if v == math.Trunc(v) {
			return int(v), nil
		}
	}
	return 0, fmt.Errorf("property %q is not an integer: %v", key, props[key])
}

func stringProperty(props map[string]any, key string) (string, error) {
	s, ok := props[key].(string)
	if !ok {
		return "", fmt.Errorf("property %q is not a string: %v", key, props[key])
	}
	return s, nil
}

func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
