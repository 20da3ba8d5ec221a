package shopify

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
)

// epochSentinel bounds a pass that has never run; a checkpoint before 2001 is
// treated as "import everything".
const epochSentinel = "2000-01-01T00:00:00Z"

// Bulk identifier-only scans use a larger page size, trading round-trips
// against payload size.
const idsPageMultiplier = 10

var dateFilterPattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}Z`)

// Walker drives cursor pagination: it repeatedly executes one operation with
// an advancing cursor and hands every flattened record to the caller, until
// the remote source reports no further pages. Pagination is strictly
// sequential; each page's cursor depends on the previous page's last edge.
type Walker struct {
	client   *Client
	logger   *logrus.Entry
	pageSize int
}

// NewWalker creates a pagination walker over the given client.
func NewWalker(client *Client, pageSize int, logger *logrus.Logger) *Walker {
	return &Walker{
		client:   client,
		logger:   logger.WithField("component", "pagination-walker"),
		pageSize: pageSize,
	}
}

// Walk pages through the named operation. The filter is either
// "updated_at:>{since}" or the caller-supplied override; either way it must
// contain a full UTC timestamp. fn is called once per record; its error stops
// the walk.
func (w *Walker) Walk(ctx context.Context, queryType, operationName, since, customFilter string, fn func(record map[string]interface{}) error) error {
	if since == "" {
		since = epochSentinel
	}

	filter := fmt.Sprintf("updated_at:>%s", since)
	if customFilter != "" {
		filter = customFilter
	}

	if !dateFilterPattern.MatchString(filter) {
		return &ConfigurationError{
			Reason: fmt.Sprintf("invalid date format in query %q, expected YYYY-MM-DDTHH:MM:SSZ", filter),
		}
	}

	limit := w.pageSize
	if strings.Contains(operationName, "Ids") {
		limit *= idsPageMultiplier
	}

	w.logger.WithFields(logrus.Fields{
		"operation": operationName,
		"filter":    filter,
		"limit":     limit,
	}).Debug("Starting paginated walk")

	var cursor string
	total := 0
	for {
		variables := map[string]interface{}{
			"query": filter,
			"limit": limit,
		}
		if cursor != "" {
			variables["cursor"] = cursor
		}

		resp, err := w.client.Execute(ctx, queryType, operationName, variables)
		if err != nil {
			return err
		}

		data, err := Validate(resp)
		if err != nil {
			return err
		}

		edges, err := edgesOf(data)
		if err != nil {
			return err
		}
		if len(edges) == 0 {
			break
		}

		for _, e := range edges {
			edge, ok := e.(map[string]interface{})
			if !ok {
				continue
			}
			record, ok := flattenValue(edge["node"]).(map[string]interface{})
			if !ok {
				continue
			}
			total++
			if err := fn(record); err != nil {
				return err
			}
		}

		last, _ := edges[len(edges)-1].(map[string]interface{})
		cursor, _ = last["cursor"].(string)
		if cursor == "" {
			break
		}
	}

	w.logger.WithFields(logrus.Fields{
		"operation": operationName,
		"records":   total,
	}).Debug("Paginated walk finished")

	return nil
}

// edgesOf descends through single-key wrapper objects until it reaches an
// edges list.
func edgesOf(data map[string]interface{}) ([]interface{}, error) {
	v := interface{}(data)
	for {
		m, ok := v.(map[string]interface{})
		if !ok {
			return nil, &ProtocolError{Messages: []string{"response data carries no edges list"}}
		}
		if edges, ok := m["edges"].([]interface{}); ok {
			return edges, nil
		}
		if len(m) != 1 {
			return nil, &ProtocolError{Messages: []string{"response data carries no edges list"}}
		}
		for _, inner := range m {
			v = inner
		}
	}
}
