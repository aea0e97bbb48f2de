package jobs

import "time"

const TypeBlobCleanup = "BLOB_CLEANUP"

type Job struct {
	ID    uint64 `gorm:"primaryKey"`
	AppID string `gorm:"type:text;index;not null"`

	Type    string `gorm:"type:text;not null"` // BLOB_CLEANUP
	Payload []byte `gorm:"type:jsonb;not null;default:'{}'::jsonb"`

	RunAt  time.Time `gorm:"index;not null"`
	Status string    `gorm:"index;not null;default:'PENDING'"` // PENDING/RUNNING/DONE/FAILED

	Attempts    int `gorm:"not null;default:0"`
	MaxAttempts int `gorm:"not null;default:8"`

	LockedBy *string    `gorm:"type:text"`
	LockedAt *time.Time `gorm:"type:timestamptz"`

	LastError *string `gorm:"type:text"`

	CreatedAt time.Time `gorm:"not null;default:now()"`
	UpdatedAt time.Time `gorm:"not null;default:now()"`
}

type blobCleanupPayload struct {
	URLs []string `json:"urls"`
}
