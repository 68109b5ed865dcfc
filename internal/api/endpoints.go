package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

func sobjectPath(sobjectType string, parts ...string) string {
	var b strings.Builder
	b.WriteString("/sobjects/")
	b.WriteString(url.PathEscape(sobjectType))
	b.WriteString("/")
	for i, p := range parts {
		if i > 0 {
			b.WriteString("/")
		}
		b.WriteString(url.PathEscape(p))
	}
	return b.String()
}

func requireType(sobjectType string) error {
	if sobjectType == "" {
		return fmt.Errorf("object type is required")
	}
	return nil
}

// Get retrieves one record. When fields is empty the server returns every
// readable field.
func (c *Client) Get(ctx context.Context, sobjectType, id string, fields ...string) (Record, error) {
	if err := requireType(sobjectType); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, fmt.Errorf("record ID is required")
	}

	path := sobjectPath(sobjectType, id)
	if len(fields) > 0 {
		path += "?fields=" + url.QueryEscape(strings.Join(fields, ","))
	}

	var result Record
	if err := c.Do(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// Create inserts a record and returns its new ID.
func (c *Client) Create(ctx context.Context, sobjectType string, record any) (*SaveResult, error) {
	if err := requireType(sobjectType); err != nil {
		return nil, err
	}

	var resp saveResponse
	if err := c.Do(ctx, http.MethodPost, sobjectPath(sobjectType), record, &resp); err != nil {
		return nil, err
	}
	return &SaveResult{ID: resp.ID, Success: resp.Success}, nil
}

// Update patches the given fields of an existing record.
func (c *Client) Update(ctx context.Context, sobjectType, id string, record any) error {
	if err := requireType(sobjectType); err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("record ID is required")
	}
	return c.Do(ctx, http.MethodPatch, sobjectPath(sobjectType, id), record, nil)
}

// Upsert creates or updates the record whose externalField equals
// externalValue.
func (c *Client) Upsert(ctx context.Context, sobjectType, externalField, externalValue string, record any) (*UpsertResult, error) {
	if err := requireType(sobjectType); err != nil {
		return nil, err
	}
	if externalField == "" || externalValue == "" {
		return nil, fmt.Errorf("external ID field and value are required")
	}

	// Older API versions answer an update with 204 and no body.
	result := UpsertResult{Success: true}
	if err := c.Do(ctx, http.MethodPatch, sobjectPath(sobjectType, externalField, externalValue), record, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Delete removes a record.
func (c *Client) Delete(ctx context.Context, sobjectType, id string) error {
	if err := requireType(sobjectType); err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("record ID is required")
	}
	return c.Do(ctx, http.MethodDelete, sobjectPath(sobjectType, id), nil, nil)
}

// Limits returns the org's API limits keyed by limit name.
func (c *Client) Limits(ctx context.Context) (map[string]Limit, error) {
	var result map[string]Limit
	if err := c.Do(ctx, http.MethodGet, "/limits/", nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// Describe returns object metadata, including its fields.
func (c *Client) Describe(ctx context.Context, sobjectType string) (*SObjectDescribe, error) {
	if err := requireType(sobjectType); err != nil {
		return nil, err
	}

	var result SObjectDescribe
	if err := c.Do(ctx, http.MethodGet, sobjectPath(sobjectType, "describe")+"/", nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
