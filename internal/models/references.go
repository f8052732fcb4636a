package models

import (
	"gorm.io/gorm"

	"github.com/google/uuid"
)

type Reference struct {
	gorm.Model
	ProjectID   uuid.UUID         `gorm:"type:uuid;uniqueIndex:idx_project_key;not null" json:"project_id"`
	Key         string            `gorm:"uniqueIndex:idx_project_key;not null" json:"key"`
	OriginalKey string            `json:"original_key"`
	EntryType   string            `json:"entry_type"`
	Fields      map[string]string `gorm:"serializer:json;type:text" json:"fields"`
	FilePath    string            `json:"file_path,omitempty"`
	RawBibEntry string            `json:"raw_bib_entry"`
}

func (Reference) TableName() string {
	return "bib_references"
}
