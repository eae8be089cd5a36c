// Package schema guesses the meaning of fields in records whose shape is not
// known ahead of time.
package schema

import (
	"strings"

	"bronze-harvest/internal/opendata"
)

// PriorityDateFields are checked in order, case-insensitively, before falling
// back to the first candidate in record order.
var PriorityDateFields = []string{
	"date",
	"dateheure",
	"datetime",
	"timestamp",
	"date_time",
	"date_heure",
}

// DateCandidates returns the fields whose name contains "date" or "time"
// and whose value is a string, a number or null, in record order.
func DateCandidates(fields opendata.Fields) []string {
	var candidates []string
	for _, f := range fields {
		name := strings.ToLower(f.Name)
		if !strings.Contains(name, "date") && !strings.Contains(name, "time") {
			continue
		}
		if !f.Value.IsScalar() {
			continue
		}
		candidates = append(candidates, f.Name)
	}
	return candidates
}

// DetectDateField returns the name of the field most likely to hold the
// record's date, spelled as in the record. The result is a best guess.
func DetectDateField(fields opendata.Fields) (string, bool) {
	candidates := DateCandidates(fields)
	if len(candidates) == 0 {
		return "", false
	}

	for _, p := range PriorityDateFields {
		for _, c := range candidates {
			if strings.ToLower(c) == p {
				return c, true
			}
		}
	}

	return candidates[0], true
}
