package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// StringArray is a custom type for storing string arrays as JSON in the database.
type StringArray []string

// Value implements the driver.Valuer interface for database serialization.
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = StringArray{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan StringArray")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, a)
}

// ResearchEntry is the persisted form of a published CanonicalRecord.
// (source, external_id) is unique so re-publishing an item updates it in place.
type ResearchEntry struct {
	ID               string           `gorm:"type:text;primaryKey" json:"id"`
	Source           string           `gorm:"type:text;not null;index:idx_research_source,unique" json:"source"`
	ExternalID       string           `gorm:"type:text;not null;index:idx_research_source,unique" json:"external_id"`
	Title            string           `gorm:"type:varchar(500)" json:"title"`
	Content          string           `gorm:"type:text" json:"content"`
	URL              string           `gorm:"type:varchar(2048)" json:"url"`
	Tags             StringArray      `gorm:"type:text" json:"tags"`
	Metadata         JSONMap          `gorm:"type:text" json:"metadata"`
	Score            float64          `gorm:"index:idx_research_score" json:"score"`
	ComplianceStatus ComplianceStatus `gorm:"type:text;index" json:"compliance_status"`
	ComplianceNotes  StringArray      `gorm:"type:text" json:"compliance_notes"`
	PublishedAt      time.Time        `json:"published_at"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// TableName returns the database table name for ResearchEntry.
func (ResearchEntry) TableName() string {
	return "research_entries"
}

// NewResearchEntry converts a canonical record into its persisted form.
func NewResearchEntry(r CanonicalRecord) *ResearchEntry {
	meta := make(JSONMap, len(r.Metadata))
	for k, v := range r.Metadata {
		meta[k] = v
	}
	return &ResearchEntry{
		ID:               r.ID,
		Source:           r.Source,
		ExternalID:       r.ExternalID,
		Title:            r.Title,
		Content:          r.Content,
		URL:              r.URL,
		Tags:             StringArray(append([]string(nil), r.Tags...)),
		Metadata:         meta,
		Score:            r.Score,
		ComplianceStatus: r.ComplianceStatus,
		ComplianceNotes:  StringArray(append([]string(nil), r.ComplianceNotes...)),
		PublishedAt:      r.PublishedAt,
		CreatedAt:        r.CreatedAt,
	}
}
