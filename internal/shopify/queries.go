package shopify

import (
	"embed"
	"fmt"
	"strings"
	"sync"
	"unicode"
)

//go:embed queries/*.graphql
var queryFS embed.FS

// Document is one parsed query-library file: a set of named operations plus
// the fragments they share. The remote API requires every referenced fragment
// to be present in the submitted query text, so Resolve always appends all of
// a document's fragments to the requested operation.
type Document struct {
	operations map[string]string
	fragments  []string
}

// QueryLibrary resolves named operations from the embedded query documents,
// grouped by subject (product, store, order). Documents are static assets;
// each is parsed once per process lifetime.
type QueryLibrary struct {
	mu   sync.Mutex
	docs map[string]*Document
}

// NewQueryLibrary creates an empty library over the embedded documents.
func NewQueryLibrary() *QueryLibrary {
	return &QueryLibrary{docs: make(map[string]*Document)}
}

// Load parses and caches the document for the given query type.
func (l *QueryLibrary) Load(queryType string) (*Document, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if doc, ok := l.docs[queryType]; ok {
		return doc, nil
	}

	raw, err := queryFS.ReadFile(fmt.Sprintf("queries/%s.graphql", queryType))
	if err != nil {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("unknown query type %q", queryType)}
	}

	doc, err := parseDocument(string(raw))
	if err != nil {
		return nil, &ConfigurationError{Reason: fmt.Sprintf("malformed query document %q: %v", queryType, err)}
	}

	l.docs[queryType] = doc
	return doc, nil
}

// Resolve returns the text of one named operation together with every
// fragment defined in the same document.
func (l *QueryLibrary) Resolve(queryType, operationName string) (string, error) {
	doc, err := l.Load(queryType)
	if err != nil {
		return "", err
	}

	op, ok := doc.operations[operationName]
	if !ok {
		return "", &ConfigurationError{
			Reason: fmt.Sprintf("operation %q not found in query document %q", operationName, queryType),
		}
	}

	parts := append([]string{op}, doc.fragments...)
	return strings.Join(parts, "\n\n"), nil
}

// parseDocument splits a GraphQL document into its top-level definitions.
func parseDocument(raw string) (*Document, error) {
	doc := &Document{operations: make(map[string]string)}

	i := 0
	for i < len(raw) {
		i = skipIgnored(raw, i)
		if i >= len(raw) {
			break
		}

		start := i
		keyword, next := readWord(raw, i)
		if keyword == "" {
			return nil, fmt.Errorf("unexpected character %q at offset %d", raw[i], i)
		}

		switch keyword {
		case "query", "mutation", "fragment":
		default:
			return nil, fmt.Errorf("unexpected definition %q", keyword)
		}

		i = skipIgnored(raw, next)
		name, next := readWord(raw, i)
		if name == "" {
			return nil, fmt.Errorf("missing name after %q", keyword)
		}
		i = next

		end, err := findBlockEnd(raw, i)
		if err != nil {
			return nil, fmt.Errorf("definition %q: %w", name, err)
		}
		text := strings.TrimSpace(raw[start:end])

		if keyword == "fragment" {
			doc.fragments = append(doc.fragments, text)
		} else {
			doc.operations[name] = text
		}
		i = end
	}

	if len(doc.operations) == 0 {
		return nil, fmt.Errorf("document defines no operations")
	}
	return doc, nil
}

// findBlockEnd returns the offset just past the closing brace of the
// definition's selection set.
func findBlockEnd(raw string, i int) (int, error) {
	depth := 0
	opened := false
	for ; i < len(raw); i++ {
		switch raw[i] {
		case '#':
			for i < len(raw) && raw[i] != '\n' {
				i++
			}
		case '{':
			depth++
			opened = true
		case '}':
			depth--
			if opened && depth == 0 {
				return i + 1, nil
			}
			if depth < 0 {
				return 0, fmt.Errorf("unbalanced braces")
			}
		}
	}
	return 0, fmt.Errorf("unterminated block")
}

func skipIgnored(raw string, i int) int {
	for i < len(raw) {
		c := raw[i]
		if c == '#' {
			for i < len(raw) && raw[i] != '\n' {
				i++
			}
			continue
		}
		if unicode.IsSpace(rune(c)) || c == ',' {
			i++
			continue
		}
		break
	}
	return i
}

func readWord(raw string, i int) (string, int) {
	start := i
	for i < len(raw) {
		c := raw[i]
		if c == '_' || unicode.IsLetter(rune(c)) || (i > start && unicode.IsDigit(rune(c))) {
			i++
			continue
		}
		break
	}
	return raw[start:i], i
}
