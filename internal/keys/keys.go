// Package keys detects and resolves citation key collisions between
// bibliography records.
package keys

import (
	"fmt"
	"maps"
	"strconv"
	"strings"
	"unicode"

	"bibkeys/internal/utils/bibtexparser"
)

type SuffixStyle string

const (
	StyleNumeric SuffixStyle = "numeric"
	StyleAlpha   SuffixStyle = "alpha"

	DefaultSeparator = "_"
)

// Reference is a single citation record.
type Reference struct {
	Key         string            `json:"key"`
	EntryType   string            `json:"entry_type"`
	Fields      map[string]string `json:"fields"`
	OriginalKey string            `json:"original_key,omitempty"`
	FilePath    string            `json:"file_path,omitempty"`
}

// Options controls how colliding keys are rewritten.
//
// An empty Separator means DefaultSeparator for StyleNumeric and no separator
// for StyleAlpha. Reserved keys are treated as already taken, so any incoming
// reference using one of them is renamed.
type Options struct {
	Separator       string      `json:"separator" yaml:"separator" mapstructure:"separator"`
	Style           SuffixStyle `json:"style" yaml:"style" mapstructure:"style"`
	CaseInsensitive bool        `json:"case_insensitive" yaml:"case_insensitive" mapstructure:"case_insensitive"`
	Reserved        []string    `json:"-" yaml:"-" mapstructure:"-"`
}

func DefaultOptions() Options {
	return Options{Style: StyleNumeric}
}

// Validate reports an error for an unknown suffix style.
func (o Options) Validate() error {
	switch o.Style {
	case "", StyleNumeric, StyleAlpha:
		return nil
	default:
		return fmt.Errorf("unknown suffix style %q (want %q or %q)", o.Style, StyleNumeric, StyleAlpha)
	}
}

func (o Options) normalize(key string) string {
	if o.CaseInsensitive {
		return strings.ToLower(key)
	}
	return key
}

func (o Options) suffix(key string, n int) string {
	switch o.Style {
	case StyleAlpha:
		return key + o.Separator + alphaIndex(n)
	default:
		sep := o.Separator
		if sep == "" {
			sep = DefaultSeparator
		}
		return key + sep + strconv.Itoa(n)
	}
}

// alphaIndex maps 1..26 to a..z, 27 to aa and so on.
func alphaIndex(n int) string {
	var b []byte
	for n > 0 {
		n--
		b = append([]byte{byte('a' + n%26)}, b...)
		n /= 26
	}
	return string(b)
}

// DuplicateGroup holds every reference sharing one key.
type DuplicateGroup struct {
	Key        string       `json:"key"`
	References []*Reference `json:"references"`
}

// Rename records one key rewrite. Index points into the resolved slice.
type Rename struct {
	Index int    `json:"index"`
	From  string `json:"from"`
	To    string `json:"to"`
}

// FindDuplicateKeys returns the keys used by more than one reference. Groups
// are ordered by the first occurrence of their key and members keep input
// order. The returned references point into refs.
func FindDuplicateKeys(refs []Reference, opts Options) []DuplicateGroup {
	index := make(map[string]int)
	var groups []DuplicateGroup

	for i := range refs {
		k := opts.normalize(refs[i].Key)
		pos, ok := index[k]
		if !ok {
			index[k] = len(groups)
			groups = append(groups, DuplicateGroup{Key: refs[i].Key})
			pos = len(groups) - 1
		}
		groups[pos].References = append(groups[pos].References, &refs[i])
	}

	duplicates := make([]DuplicateGroup, 0)
	for _, g := range groups {
		if len(g.References) > 1 {
			duplicates = append(duplicates, g)
		}
	}
	return duplicates
}

// ResolveDuplicateKeys returns a copy of refs in which every key is unique.
//
// The first occurrence of a key keeps it unless the key is reserved. Later
// occurrences get key+separator+n with n counting from 1, skipping any
// candidate already used by an input key, a reserved key or an earlier rename.
func ResolveDuplicateKeys(refs []Reference, opts Options) ([]Reference, []Rename) {
	used := make(map[string]bool, len(refs)+len(opts.Reserved))
	reserved := make(map[string]bool, len(opts.Reserved))
	for _, k := range opts.Reserved {
		reserved[opts.normalize(k)] = true
		used[opts.normalize(k)] = true
	}
	for _, ref := range refs {
		used[opts.normalize(ref.Key)] = true
	}

	claimed := make(map[string]bool, len(refs))
	next := make(map[string]int)
	resolved := make([]Reference, len(refs))
	var renames []Rename

	for i, ref := range refs {
		out := clone(ref)
		if out.OriginalKey == "" {
			out.OriginalKey = ref.Key
		}

		k := opts.normalize(ref.Key)
		if !claimed[k] && !reserved[k] {
			claimed[k] = true
			resolved[i] = out
			continue
		}

		n := next[k]
		if n == 0 {
			n = 1
		}
		candidate := opts.suffix(ref.Key, n)
		for used[opts.normalize(candidate)] {
			n++
			candidate = opts.suffix(ref.Key, n)
		}
		next[k] = n + 1
		used[opts.normalize(candidate)] = true

		out.OriginalKey = ref.Key
		out.Key = candidate
		resolved[i] = out
		renames = append(renames, Rename{Index: i, From: ref.Key, To: candidate})
	}

	return resolved, renames
}

// MergeReport summarises a Merge call.
type MergeReport struct {
	Inputs           int      `json:"inputs"`
	Total            int      `json:"total"`
	DroppedIdentical int      `json:"dropped_identical"`
	Output           int      `json:"output"`
	Renames          []Rename `json:"renames"`
}

// Merge concatenates sets in order and resolves the combined keys. With
// dropIdentical, a reference whose key, type and fields all equal an earlier
// one is dropped instead of renamed.
func Merge(sets [][]Reference, opts Options, dropIdentical bool) ([]Reference, MergeReport) {
	report := MergeReport{Inputs: len(sets)}

	var combined []Reference
	for _, set := range sets {
		report.Total += len(set)
		for _, ref := range set {
			if dropIdentical && containsIdentical(combined, ref, opts) {
				report.DroppedIdentical++
				continue
			}
			combined = append(combined, ref)
		}
	}

	resolved, renames := ResolveDuplicateKeys(combined, opts)
	report.Output = len(resolved)
	report.Renames = renames
	return resolved, report
}

func containsIdentical(refs []Reference, ref Reference, opts Options) bool {
	for _, other := range refs {
		if opts.normalize(other.Key) == opts.normalize(ref.Key) &&
			strings.EqualFold(other.EntryType, ref.EntryType) &&
			maps.Equal(other.Fields, ref.Fields) {
			return true
		}
	}
	return false
}

func clone(ref Reference) Reference {
	out := ref
	out.Fields = maps.Clone(ref.Fields)
	if out.Fields == nil {
		out.Fields = map[string]string{}
	}
	return out
}

// FromEntries converts parsed entries into references tagged with filePath.
func FromEntries(entries []bibtexparser.BibEntry, filePath string) []Reference {
	refs := make([]Reference, 0, len(entries))
	for _, e := range entries {
		refs = append(refs, Reference{
			Key:         e.CiteName,
			EntryType:   e.Type,
			Fields:      maps.Clone(e.Fields),
			OriginalKey: e.CiteName,
			FilePath:    filePath,
		})
	}
	return refs
}

func ToEntries(refs []Reference) []bibtexparser.BibEntry {
	entries := make([]bibtexparser.BibEntry, 0, len(refs))
	for _, r := range refs {
		entries = append(entries, bibtexparser.BibEntry{
			Type:     r.EntryType,
			CiteName: r.Key,
			Fields:   r.Fields,
			RawEntry: bibtexparser.FormatEntry(r.EntryType, r.Key, r.Fields),
		})
	}
	return entries
}

// StandardizedFilename builds LastName_Year_First_Three_Words.pdf for ref.
func StandardizedFilename(ref Reference) string {
	author := ref.Fields["author"]
	if strings.TrimSpace(author) == "" {
		author = "Unknown"
	}
	year := strings.TrimSpace(ref.Fields["year"])
	if year == "" {
		year = "XXXX"
	}
	title := ref.Fields["title"]
	if strings.TrimSpace(title) == "" {
		title = "Untitled"
	}

	first := strings.Split(author, " and ")[0]
	first = strings.NewReplacer("{", "", "}", "").Replace(first)
	var lastName string
	if comma := strings.Index(first, ","); comma >= 0 {
		lastName = strings.TrimSpace(first[:comma])
	} else if words := strings.Fields(first); len(words) > 0 {
		lastName = words[len(words)-1]
	}
	lastName = strings.ReplaceAll(lastName, " ", "")
	if lastName == "" {
		lastName = "Unknown"
	}

	cleanTitle := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return r
		}
		return -1
	}, title)
	words := strings.Fields(cleanTitle)
	if len(words) > 3 {
		words = words[:3]
	}

	return fmt.Sprintf("%s_%s_%s.pdf", lastName, year, strings.Join(words, "_"))
}
