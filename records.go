package forcekit

import (
	"fmt"
	"reflect"
	"time"

	"github.com/mitchellh/mapstructure"
)

// dateTimeLayouts are the timestamp forms the REST API emits.
var dateTimeLayouts = []string{
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05.000Z0700",
	time.RFC3339Nano,
	"2006-01-02",
}

// DecodeRecords maps query records onto a slice of structs. out must be a
// pointer to a slice. Fields are matched by their json tag, falling back to
// the field name, so the struct used to Create a record can read it back.
// Date and datetime strings decode into time.Time fields.
func DecodeRecords(records []Record, out any) error {
	input := make([]map[string]any, len(records))
	for i, r := range records {
		input[i] = r
	}
	return decode(input, out)
}

// DecodeRecord maps one record onto a struct. out must be a pointer.
func DecodeRecord(record Record, out any) error {
	return decode(map[string]any(record), out)
}

func decode(input, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		DecodeHook:       stringToTimeHook,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("decode records: %w", err)
	}
	if err := dec.Decode(input); err != nil {
		return fmt.Errorf("decode records: %w", err)
	}
	return nil
}

func stringToTimeHook(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf(time.Time{}) {
		return data, nil
	}
	s := reflect.ValueOf(data).String()
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return nil, fmt.Errorf("cannot parse %q as a date or datetime", s)
}
