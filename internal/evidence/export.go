package evidence

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// ExportRecord is a flattened run record for compliance export, used by
// `redactd audit export --format csv|json`. Entity counts are folded
// into a deterministic "TYPE=N" list so CSV rows stay one line.
type ExportRecord struct {
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	Source        string    `json:"source"`
	Output        string    `json:"output,omitempty"`
	Medium        string    `json:"medium"`
	State         string    `json:"state"`
	Validation    string    `json:"validation"`
	FindingsTotal int       `json:"findings_total"`
	EntityCounts  []string  `json:"entity_counts,omitempty"`
	InputHash     string    `json:"input_hash"`
	OutputHash    string    `json:"output_hash,omitempty"`
	DurationMS    int64     `json:"duration_ms"`
	HasError      bool      `json:"has_error"`
}

// ToExportRecord builds an ExportRecord from a full run Record.
func ToExportRecord(r *Record) ExportRecord {
	rec := ExportRecord{
		ID:            r.ID,
		Timestamp:     r.Timestamp,
		Source:        r.Source,
		Output:        r.Output,
		Medium:        r.Medium,
		State:         r.State,
		Validation:    r.Validation,
		FindingsTotal: r.FindingsTotal,
		InputHash:     r.InputHash,
		OutputHash:    r.OutputHash,
		DurationMS:    r.DurationMS,
		HasError:      r.Error != "",
	}

	entities := make([]string, 0, len(r.EntityCounts))
	for entity := range r.EntityCounts {
		entities = append(entities, entity)
	}
	sort.Strings(entities)
	for _, entity := range entities {
		rec.EntityCounts = append(rec.EntityCounts, entity+"="+strconv.Itoa(r.EntityCounts[entity]))
	}
	return rec
}

// EntityCountsCSV returns the folded counts as one CSV cell.
func (r *ExportRecord) EntityCountsCSV() string {
	return strings.Join(r.EntityCounts, ";")
}
