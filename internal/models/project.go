package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Project struct {
	ID         uuid.UUID   `gorm:"type:uuid;primary_key" json:"id"`
	Name       string      `gorm:"uniqueIndex;not null" json:"name"`
	References []Reference `gorm:"constraint:OnDelete:CASCADE" json:"references,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// BeforeCreate assigns an ID in Go so the schema works on SQLite as well as Postgres.
func (p *Project) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
