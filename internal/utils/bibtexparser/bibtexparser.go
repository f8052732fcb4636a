package bibtexparser

import (
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/nickng/bibtex"
)

// ErrMalformed is returned when the input is not valid BibTeX.
var ErrMalformed = errors.New("malformed bibtex")

type BibEntry struct {
	Type     string
	CiteName string
	Fields   map[string]string
	RawEntry string
}

var (
	whitespacePattern = regexp.MustCompile(`\s+`)
	arXivPattern      = regexp.MustCompile(`(?i)arXiv:(\d{4}\.\d{4,5}|[a-zA-Z\-]+/\d{7})`)
)

// parseMu serialises bibtex.Parse, which keeps its state in package variables.
var parseMu sync.Mutex

// Parse reads every entry from r in input order. Entries sharing a cite key are
// all kept.
func Parse(r io.Reader) ([]BibEntry, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read bibtex: %w", err)
	}
	normalized, err := normalizeValues(string(content))
	if err != nil {
		return nil, err
	}

	parseMu.Lock()
	bib, err := bibtex.Parse(strings.NewReader(normalized))
	parseMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	entries := make([]BibEntry, 0, len(bib.Entries))
	for i, raw := range bib.Entries {
		entry, err := parseEntry(raw)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i+1, err)
		}
		entries = append(entries, *entry)
	}

	return entries, nil
}

func ParseString(content string) ([]BibEntry, error) {
	if strings.TrimSpace(content) == "" {
		return []BibEntry{}, nil
	}
	return Parse(strings.NewReader(content))
}

func ParseFile(path string) ([]BibEntry, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	entries, err := ParseString(string(content))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return entries, nil
}

func parseEntry(raw *bibtex.BibEntry) (*BibEntry, error) {
	citeName := strings.TrimSpace(raw.CiteName)
	if citeName == "" {
		return nil, fmt.Errorf("%w: entry of type %q has an empty cite key", ErrMalformed, raw.Type)
	}

	entry := &BibEntry{
		Type:     strings.ToLower(strings.TrimSpace(raw.Type)),
		CiteName: citeName,
		Fields:   make(map[string]string, len(raw.Fields)),
	}

	for name, value := range raw.Fields {
		if value == nil {
			continue
		}
		entry.Fields[strings.ToLower(strings.TrimSpace(name))] = cleanFieldValue(value.String())
	}

	if arxivID := extractArXivID(entry.Fields); arxivID != "" {
		entry.Fields["arxiv"] = arxivID
	}

	entry.RawEntry = FormatEntry(entry.Type, entry.CiteName, entry.Fields)
	return entry, nil
}

// FormatEntry renders a single entry with its fields sorted by name.
func FormatEntry(entryType, citeName string, fields map[string]string) string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	fmt.Fprintf(&b, "@%s{%s,\n", entryType, citeName)
	for i, name := range names {
		fmt.Fprintf(&b, "  %s = {%s}", name, fields[name])
		if i < len(names)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString("}\n")
	return b.String()
}

// Format renders entries in the order given, separated by blank lines.
func Format(entries []BibEntry) string {
	var b strings.Builder
	for i, entry := range entries {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(FormatEntry(entry.Type, entry.CiteName, entry.Fields))
	}
	return b.String()
}

func cleanFieldValue(value string) string {
	value = strings.ReplaceAll(value, "\n", " ")
	value = strings.ReplaceAll(value, "\t", " ")
	value = whitespacePattern.ReplaceAllString(value, " ")
	return strings.TrimSpace(value)
}

func extractArXivID(fields map[string]string) string {
	for _, field := range []string{"eprint", "journal", "title", "url", "doi", "arxiv"} {
		if value, ok := fields[field]; ok {
			if matches := arXivPattern.FindStringSubmatch(value); matches != nil {
				return matches[1]
			}
		}
	}

	return ""
}

// DisplayAuthor returns the author field with braces removed, shortened to
// "et al." past 300 characters.
func DisplayAuthor(fields map[string]string) string {
	author, ok := fields["author"]
	if !ok {
		return ""
	}
	return cleanAuthorField(author)
}

func cleanAuthorField(author string) string {
	author = strings.ReplaceAll(author, "{", "")
	author = strings.ReplaceAll(author, "}", "")
	author = strings.TrimSpace(author)

	if len(author) > 300 {
		// Find the last comma or space before the 300th character
		lastCommaIndex := strings.LastIndex(author[:300], ",")
		lastSpaceIndex := strings.LastIndex(author[:300], " ")
		truncateIndex := lastCommaIndex
		if lastSpaceIndex > lastCommaIndex {
			truncateIndex = lastSpaceIndex
		}
		if truncateIndex != -1 {
			author = author[:truncateIndex] + " et al."
		} else {
			author = author[:300] + "..."
		}
	}
	return author
}
