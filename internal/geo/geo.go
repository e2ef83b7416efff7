// Package geo is the read-only country lookup shared by every session: it
// normalizes free-form country names to standardized codes and finds country
// mentions in query text.
package geo

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Country is one entry of the lookup table.
type Country struct {
	Name    string
	ISO2    string
	ISO3    string
	MapName string
	Aliases []string
}

// Mention is a country reference found in text, Surface being the text as written.
type Mention struct {
	Surface string
	Country Country
	Offset  int
}

type term struct {
	text    string
	exact   bool
	country int
}

var (
	index = map[string]int{}
	terms []term
)

func init() {
	for i, c := range table {
		keys := append([]string{c.Name, c.ISO2, c.ISO3, c.MapName}, c.Aliases...)
		for _, k := range keys {
			index[normalize(k)] = i
		}
		for _, t := range append([]string{c.Name}, c.Aliases...) {
			terms = append(terms, term{text: t, exact: letterCount(t) <= 3, country: i})
		}
	}
}

// Lookup resolves a country name, alias or ISO code.
func Lookup(name string) (Country, bool) {
	i, ok := index[normalize(name)]
	if !ok {
		return Country{}, false
	}
	return table[i], true
}

// All returns a copy of the lookup table.
func All() []Country {
	out := make([]Country, len(table))
	copy(out, table)
	return out
}

// Scan returns every distinct country mentioned in text, in order of first
// appearance. Longer matches win over the shorter names they contain, so
// "South Sudan" is not also reported as "Sudan". Terms of three letters or
// fewer ("US", "UK") only match when written exactly, never "us".
func Scan(text string) []Mention {
	type match struct {
		start, end, country int
	}
	var found []match
	for _, t := range terms {
		for _, start := range findTerm(text, t) {
			found = append(found, match{start: start, end: start + len(t.text), country: t.country})
		}
	}
	sort.Slice(found, func(i, j int) bool {
		if found[i].start != found[j].start {
			return found[i].start < found[j].start
		}
		return found[i].end > found[j].end
	})

	var (
		out     []Mention
		seen    = map[int]bool{}
		covered = -1
	)
	for _, m := range found {
		if m.start < covered {
			continue
		}
		covered = m.end
		if seen[m.country] {
			continue
		}
		seen[m.country] = true
		out = append(out, Mention{Surface: text[m.start:m.end], Country: table[m.country], Offset: m.start})
	}
	return out
}

// Mentioned reports whether name refers to something the text actually talks
// about: either the literal name appears, or the country it resolves to is
// found by Scan.
func Mentioned(text, name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	if len(findTerm(text, term{text: name, exact: letterCount(name) <= 3})) > 0 {
		return true
	}
	c, ok := Lookup(name)
	if !ok {
		return false
	}
	for _, m := range Scan(text) {
		if m.Country.ISO3 == c.ISO3 {
			return true
		}
	}
	return false
}

func findTerm(text string, t term) []int {
	n := len(t.text)
	if n == 0 || n > len(text) {
		return nil
	}
	var hits []int
	for i := 0; i+n <= len(text); i++ {
		window := text[i : i+n]
		if t.exact {
			if window != t.text {
				continue
			}
		} else if !strings.EqualFold(window, t.text) {
			continue
		}
		if boundaryBefore(text, i) && boundaryAfter(text, i+n) {
			hits = append(hits, i)
		}
	}
	return hits
}

func boundaryBefore(text string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:i])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func boundaryAfter(text string, i int) bool {
	if i >= len(text) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(text[i:])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func letterCount(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			n++
		}
	}
	return n
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "the ")
	s = strings.ReplaceAll(s, ".", "")
	return strings.Join(strings.Fields(s), " ")
}
