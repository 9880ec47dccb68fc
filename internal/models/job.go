package models

import (
	"time"

	"gorm.io/datatypes"
)

// Job is the durable record of a unit of asynchronous work. It is created
// by enqueue and mutated only by the queue's own dispatch/retry logic,
// never by handler code.
type Job struct {
	ID              string         `gorm:"type:varchar(36);primaryKey"`
	Type            string         `gorm:"type:varchar(255);not null;index"`
	Payload         datatypes.JSON `gorm:"type:jsonb"`
	Priority        int            `gorm:"not null;default:0;index"`
	DedupKey        string         `gorm:"type:varchar(255);index:idx_jobs_dedup_active,unique,where:dedup_key IS NOT NULL AND dedup_key <> '' AND (status = 'created' OR status = 'queued' OR status = 'active')"`
	Status          string         `gorm:"type:varchar(50);not null;default:'created';index"`
	Attempts        int            `gorm:"not null;default:0"`
	RetryLimit      int            `gorm:"not null;default:3"`
	RetryBaseMS     int64          `gorm:"not null;default:2000"`
	RetryMultiplier float64        `gorm:"not null;default:2"`
	AvailableAt     time.Time      `gorm:"index"`
	LockedAt        *time.Time
	LockedBy        string         `gorm:"type:varchar(64)"`
	Result          datatypes.JSON `gorm:"type:jsonb"`
	Error           string         `gorm:"type:text"`
	CreatedAt       time.Time      `gorm:"autoCreateTime"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime"`
}

// Terminal reports whether the job has reached a state that permits no
// further transitions.
func (j *Job) Terminal() bool {
	switch j.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Job states. Transitions move forward only: created, queued, active, then
// completed or failed. Cancelled is reachable from queued alone.
const (
	StatusCreated   = "created"
	StatusQueued    = "queued"
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)
