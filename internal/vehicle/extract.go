// Package vehicle pulls year, make, model and ignition type out of a visitor
// question with fixed word rules. A field is only set when a rule matched it
// outright; anything ambiguous is left empty for the assistant to clarify.
package vehicle

import (
	"sort"
	"strings"
	"unicode"
)

type Ignition string

const (
	IgnitionUnknown     Ignition = ""
	IgnitionPushToStart Ignition = "push_to_start"
	IgnitionStandardKey Ignition = "standard_key"
)

// Label is the human-readable form used in lookup queries and prompts.
func (i Ignition) Label() string {
	switch i {
	case IgnitionPushToStart:
		return "Push to Start"
	case IgnitionStandardKey:
		return "Standard Key"
	}
	return ""
}

// Attributes holds the extracted fields; empty means not found.
type Attributes struct {
	Year     string
	Make     string
	Model    string
	Ignition Ignition
}

// Complete reports whether there is enough to run a record lookup.
func (a Attributes) Complete() bool {
	return a.Year != "" && a.Make != "" && a.Model != ""
}

func (a Attributes) Empty() bool {
	return a == Attributes{}
}

type phrase struct {
	words []string
	label string
}

type Extractor struct {
	makes    []phrase
	ignition [2][]phrase
	stop     map[string]bool
	modelOf  map[string][]string
	yields   map[string]bool
}

func NewExtractor(r *Rules) *Extractor {
	e := &Extractor{
		stop:    make(map[string]bool, len(r.StopWords)),
		modelOf: map[string][]string{},
		yields:  map[string]bool{},
	}
	seen := map[string]bool{}
	for _, m := range r.Makes {
		if len(m.ModelOf) > 0 {
			e.modelOf[m.Name] = m.ModelOf
		}
		if m.Yields {
			e.yields[m.Name] = true
		}
		for _, alias := range append([]string{m.Name}, m.Aliases...) {
			words := tokenize(alias)
			key := strings.Join(words, " ")
			if len(words) == 0 || seen[key] {
				continue
			}
			seen[key] = true
			e.makes = append(e.makes, phrase{words: words, label: m.Name})
		}
	}
	// Longest alias first so "land rover" or "mercedes benz" are never
	// shadowed by a shorter entry.
	sort.SliceStable(e.makes, func(i, j int) bool {
		a, b := strings.Join(e.makes[i].words, " "), strings.Join(e.makes[j].words, " ")
		if len(a) != len(b) {
			return len(a) > len(b)
		}
		return a < b
	})
	e.ignition[0] = phrases(r.Ignition.PushToStart, string(IgnitionPushToStart))
	e.ignition[1] = phrases(r.Ignition.StandardKey, string(IgnitionStandardKey))
	for _, w := range r.StopWords {
		for _, t := range tokenize(w) {
			e.stop[t] = true
		}
	}
	return e
}

// Extract is pure: the same text always yields the same Attributes.
func (e *Extractor) Extract(text string) Attributes {
	toks := tokenize(text)
	used := make([]bool, len(toks))
	var a Attributes

	for i, t := range toks {
		if isYear(t) {
			a.Year = t
			used[i] = true
			break
		}
	}
	a.Ignition = e.matchIgnition(toks, used)
	a.Make = e.matchMake(toks, used)
	if a.Make != "" {
		a.Model = e.remainder(toks, used)
	}
	return a
}

// matchIgnition consumes every ignition phrase so none leak into the model;
// the push-to-start family wins when both appear.
func (e *Extractor) matchIgnition(toks []string, used []bool) Ignition {
	result := IgnitionUnknown
	for _, family := range e.ignition {
		for _, p := range family {
			for _, at := range find(toks, used, p.words) {
				mark(used, at, len(p.words))
				if result == IgnitionUnknown {
					result = Ignition(p.label)
				}
			}
		}
	}
	return result
}

type makeHit struct {
	label string
	at, n int
}

// matchMake returns the single make named in the text, or "" when none or
// more than one distinct make is mentioned. Names that are also a model of
// another named make, or plain vehicle vocabulary, step aside first and are
// left for the model.
func (e *Extractor) matchMake(toks []string, used []bool) string {
	var hits []makeHit
	named := map[string]bool{}
	for _, p := range e.makes {
		for _, at := range find(toks, used, p.words) {
			mark(used, at, len(p.words))
			hits = append(hits, makeHit{label: p.label, at: at, n: len(p.words)})
			named[p.label] = true
		}
	}
	if len(named) > 1 {
		strong := map[string]bool{}
		for l := range named {
			if !e.yields[l] {
				strong[l] = true
			}
		}
		for _, h := range hits {
			if e.stepsAside(h.label, named, strong) {
				for i := h.at; i < h.at+h.n; i++ {
					used[i] = false
				}
				delete(named, h.label)
			}
		}
	}
	if len(named) != 1 {
		return ""
	}
	for l := range named {
		return l
	}
	return ""
}

func (e *Extractor) stepsAside(label string, named, strong map[string]bool) bool {
	for _, parent := range e.modelOf[label] {
		if named[parent] {
			return true
		}
	}
	if e.yields[label] {
		for l := range strong {
			if l != label {
				return true
			}
		}
	}
	return false
}

func (e *Extractor) remainder(toks []string, used []bool) string {
	var out []string
	for i, t := range toks {
		if used[i] || e.stop[t] || isYear(t) {
			continue
		}
		out = append(out, t)
	}
	return strings.Join(out, " ")
}

func phrases(list []string, label string) []phrase {
	out := make([]phrase, 0, len(list))
	for _, s := range list {
		if words := tokenize(s); len(words) > 0 {
			out = append(out, phrase{words: words, label: label})
		}
	}
	// Longer phrases first within a family ("push button start" before "push button").
	sort.SliceStable(out, func(i, j int) bool { return len(out[i].words) > len(out[j].words) })
	return out
}

func tokenize(s string) []string {
	s = strings.ToLower(strings.ReplaceAll(s, "’", "'"))
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
	out := fields[:0]
	for _, f := range fields {
		if f = strings.Trim(f, "'"); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// find returns every start index where words occur on tokens not yet consumed.
func find(toks []string, used []bool, words []string) []int {
	var hits []int
	for i := 0; i+len(words) <= len(toks); i++ {
		ok := true
		for j, w := range words {
			if used[i+j] || toks[i+j] != w {
				ok = false
				break
			}
		}
		if ok {
			hits = append(hits, i)
			i += len(words) - 1
		}
	}
	return hits
}

func mark(used []bool, at, n int) {
	for i := at; i < at+n; i++ {
		used[i] = true
	}
}

func isYear(t string) bool {
	if len(t) != 4 || !(strings.HasPrefix(t, "19") || strings.HasPrefix(t, "20")) {
		return false
	}
	for _, r := range t {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
