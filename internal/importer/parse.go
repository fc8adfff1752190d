package importer

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var timeLayouts = []string{
	"2006-01-02 15:04:05-0700",
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05",
}

// parseTime accepts the export's timestamp layouts or unix seconds. Blank values are nil.
func parseTime(raw string) (*time.Time, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			utc := parsed.UTC()
			return &utc, nil
		}
	}
	seconds, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("unrecognised timestamp %q", value)
	}
	parsed := time.Unix(int64(seconds), 0).UTC()
	return &parsed, nil
}

func parseID(raw string) (uint, error) {
	value, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return uint(value), nil
}

// parseOptionalID treats blank and "0" as no reference.
func parseOptionalID(raw string) (*uint, error) {
	value := strings.TrimSpace(raw)
	if value == "" || value == "0" {
		return nil, nil
	}
	id, err := parseID(value)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func parseInt(raw string) (int, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", raw)
	}
	return value, nil
}

func parseOptionalInt(raw string) (*int, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid integer %q", raw)
	}
	result := int(parsed)
	return &result, nil
}

func parseOptionalFloat(raw string) (*float64, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid number %q", raw)
	}
	return &parsed, nil
}

func parseFlag(raw string) (bool, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return false, nil
	}
	return strconv.ParseBool(value)
}

// field returns column i of a record, or "" when the row is short.
func field(record []string, i int) string {
	if i < len(record) {
		return record[i]
	}
	return ""
}
