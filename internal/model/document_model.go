package model

import (
	"time"

	"github.com/google/uuid"
)

type Document struct {
	Id                  uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	OriginalName        string     `gorm:"type:text;not null"`
	StoredName          string     `gorm:"type:text;not null"`
	FilePath            string     `gorm:"type:text;not null"`
	FileSize            int64      `gorm:"not null"`
	FileType            string     `gorm:"type:varchar(16);not null"`
	Status              string     `gorm:"type:varchar(16);not null;default:'pending';index"`
	ChunkCount          int        `gorm:"not null;default:0"`
	ErrorDetail         string     `gorm:"type:text"`
	ClaimToken          *uuid.UUID `gorm:"type:uuid"`
	ProcessingStartedAt *time.Time `gorm:"index"`
	ProcessedAt         *time.Time
	CreatedAt           time.Time `gorm:"autoCreateTime"`
	UpdatedAt           time.Time `gorm:"autoUpdateTime"`
}

func (Document) TableName() string {
	return "documents"
}
