package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/forcekit/client-go/internal/apierrors"
)

// QueryOptions controls how a query is paged.
type QueryOptions struct {
	// FirstPageOnly returns the first page without following continuation
	// links. Use QueryPage to learn whether the result was truncated.
	FirstPageOnly bool
	// IncludeDeleted queries deleted and archived records as well.
	IncludeDeleted bool
}

// versionPrefix matches the versioned data prefix of a continuation link.
var versionPrefix = regexp.MustCompile(`^/services/data/v[0-9]+(\.[0-9]+)?`)

// Query runs soql and returns every matching record in server order.
func (c *Client) Query(ctx context.Context, soql string, opts QueryOptions) ([]Record, error) {
	page, err := c.queryFirst(ctx, soql, opts.IncludeDeleted)
	if err != nil {
		return nil, err
	}

	records := append([]Record{}, page.Records...)
	if opts.FirstPageOnly {
		return records, nil
	}

	seen := make(map[string]bool)
	for pages := 1; !page.Done && page.NextRecordsURL != ""; pages++ {
		// A link the server already handed out would page forever.
		if seen[page.NextRecordsURL] {
			return nil, &apierrors.ValidationError{
				Subject: "query result",
				Errors:  []string{fmt.Sprintf("continuation link %s repeats after page %d", page.NextRecordsURL, pages)},
			}
		}
		seen[page.NextRecordsURL] = true

		c.logger.Debug("fetching next query page", "page", pages+1, "records", len(records))
		page, err = c.QueryMore(ctx, page.NextRecordsURL)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch page %d: %w", pages+1, err)
		}
		records = append(records, page.Records...)
	}
	return records, nil
}

// QueryPage runs soql and returns only the first page, including its
// completion flag and continuation link.
func (c *Client) QueryPage(ctx context.Context, soql string, opts QueryOptions) (*QueryResult, error) {
	return c.queryFirst(ctx, soql, opts.IncludeDeleted)
}

// QueryMore fetches the page a continuation link points to.
func (c *Client) QueryMore(ctx context.Context, nextRecordsURL string) (*QueryResult, error) {
	if nextRecordsURL == "" {
		return nil, fmt.Errorf("continuation link is required")
	}

	var result QueryResult
	if err := c.Do(ctx, http.MethodGet, c.continuationPath(nextRecordsURL), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) queryFirst(ctx context.Context, soql string, includeDeleted bool) (*QueryResult, error) {
	if strings.TrimSpace(soql) == "" {
		return nil, fmt.Errorf("query is required")
	}

	resource := "/query/"
	if includeDeleted {
		resource = "/queryAll/"
	}

	var result QueryResult
	if err := c.Do(ctx, http.MethodGet, resource+"?q="+url.QueryEscape(soql), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// continuationPath reduces a server continuation link to a path relative to
// the versioned data prefix, dropping any scheme and host.
func (c *Client) continuationPath(next string) string {
	if u, err := url.Parse(next); err == nil && u.Host != "" {
		next = u.RequestURI()
	}

	own := strings.TrimSuffix(DataPathPrefix, "/") + "/" + c.apiVersion
	if strings.HasPrefix(next, own) {
		return strings.TrimPrefix(next, own)
	}
	if loc := versionPrefix.FindStringIndex(next); loc != nil {
		return next[loc[1]:]
	}
	return next
}
