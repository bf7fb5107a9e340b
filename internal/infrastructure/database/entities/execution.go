package entities

import (
	"time"

	"gorm.io/datatypes"
)

// Execution is the persisted execution record. Parameters are an opaque
// tool-specific document; the orchestration layer never reads into them.
type Execution struct {
	ID              string `gorm:"type:varchar(40);primaryKey"`
	ToolName        string `gorm:"type:varchar(64);not null;index"`
	Category        string `gorm:"type:varchar(32);not null"`
	Status          string `gorm:"type:varchar(16);not null;index"`
	InputRef        string `gorm:"type:varchar(255)"`
	OutputRef       string `gorm:"type:varchar(255)"`
	OutputBytes     int64
	Parameters      datatypes.JSON `gorm:"type:jsonb"`
	ErrorMessage    string         `gorm:"type:text"`
	ErrorDetail     string         `gorm:"type:text"`
	CreatedAt       time.Time      `gorm:"autoCreateTime;index"`
	StartedAt       *time.Time
	CompletedAt     *time.Time
	DurationSeconds *float64
}

func (Execution) TableName() string {
	return "executions"
}
