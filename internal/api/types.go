package api

import (
	"encoding/json"
)

// Record is one row of a query result or a fetched record, keyed by field
// API name. Nested relationships decode as map[string]any.
type Record map[string]any

// RecordAttributes is the "attributes" object the server attaches to records.
type RecordAttributes struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// Attributes returns the record's type and URL, if present.
func (r Record) Attributes() RecordAttributes {
	var attrs RecordAttributes
	raw, ok := r["attributes"].(map[string]any)
	if !ok {
		return attrs
	}
	attrs.Type, _ = raw["type"].(string)
	attrs.URL, _ = raw["url"].(string)
	return attrs
}

// QueryResult is one page of a SOQL query response.
type QueryResult struct {
	TotalSize      int      `json:"totalSize"`
	Done           bool     `json:"done"`
	NextRecordsURL string   `json:"nextRecordsUrl,omitempty"`
	Records        []Record `json:"records"`
}

// SaveResult is the outcome of a record create.
type SaveResult struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
}

// saveResponse is the raw create response. Its errors field is dropped.
type saveResponse struct {
	ID      string          `json:"id"`
	Success bool            `json:"success"`
	Errors  json.RawMessage `json:"errors,omitempty"`
}

// UpsertResult is the outcome of an upsert by external ID.
type UpsertResult struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Created bool   `json:"created"`
}

// Limit is one entry of the org limits resource.
type Limit struct {
	Max       int `json:"Max"`
	Remaining int `json:"Remaining"`
}

// Used returns how much of the limit has been consumed.
func (l Limit) Used() int {
	return l.Max - l.Remaining
}

// FieldDescribe is the subset of field metadata exposed by Describe.
type FieldDescribe struct {
	Name        string   `json:"name"`
	Label       string   `json:"label"`
	Type        string   `json:"type"`
	Length      int      `json:"length"`
	Nillable    bool     `json:"nillable"`
	Createable  bool     `json:"createable"`
	Updateable  bool     `json:"updateable"`
	ExternalID  bool     `json:"externalId"`
	ReferenceTo []string `json:"referenceTo,omitempty"`
}

// SObjectDescribe is the subset of object metadata exposed by Describe.
type SObjectDescribe struct {
	Name       string          `json:"name"`
	Label      string          `json:"label"`
	KeyPrefix  string          `json:"keyPrefix"`
	Custom     bool            `json:"custom"`
	Createable bool            `json:"createable"`
	Updateable bool            `json:"updateable"`
	Deletable  bool            `json:"deletable"`
	Queryable  bool            `json:"queryable"`
	Fields     []FieldDescribe `json:"fields"`
}

// Field returns the named field, or false when the object has no such field.
func (d *SObjectDescribe) Field(name string) (FieldDescribe, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDescribe{}, false
}
