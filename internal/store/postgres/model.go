package postgres

import (
	"time"

	"memorymap/internal/memory"

	"github.com/lib/pq"
)

// NotifyChannel carries the app id of every changed memories row.
const NotifyChannel = "memories_changed"

// MemoryRow is the persisted form of memory.Memory. Rows are scoped by AppID.
type MemoryRow struct {
	ID            string         `gorm:"primaryKey;type:text"`
	AppID         string         `gorm:"type:text;index;not null"`
	Story         string         `gorm:"type:text;not null"`
	Lat           float64        `gorm:"type:double precision;not null"`
	Lng           float64        `gorm:"type:double precision;not null"`
	ContributorID string         `gorm:"type:text;index;not null"`
	CreatedMs     int64          `gorm:"index;not null"`
	ImageURLs     pq.StringArray `gorm:"column:image_urls;type:text[];not null;default:'{}'"`
}

func (MemoryRow) TableName() string { return "memories" }

// AuthorizedSession is the append-only allow-list of sessions that passed the key check.
type AuthorizedSession struct {
	AppID        string    `gorm:"primaryKey;type:text"`
	UID          string    `gorm:"primaryKey;type:text"`
	AuthorizedAt time.Time `gorm:"not null;default:now()"`
}

func toRow(appID string, m memory.Memory) MemoryRow {
	return MemoryRow{
		ID:            m.ID,
		AppID:         appID,
		Story:         m.Story,
		Lat:           m.Location.Lat,
		Lng:           m.Location.Lng,
		ContributorID: m.ContributorID,
		CreatedMs:     m.Timestamp,
		ImageURLs:     pq.StringArray(memory.CopyURLs(m.ImageURLs)),
	}
}

func fromRow(r MemoryRow) memory.Memory {
	return memory.Memory{
		ID:            r.ID,
		Story:         r.Story,
		Location:      memory.Location{Lat: r.Lat, Lng: r.Lng},
		ContributorID: r.ContributorID,
		Timestamp:     r.CreatedMs,
		ImageURLs:     memory.CopyURLs(r.ImageURLs),
	}
}
