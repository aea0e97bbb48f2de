package firestore

import (
	"fmt"
	"time"

	"memorymap/internal/memory"

	"cloud.google.com/go/firestore"
)

type locationDoc struct {
	Lat float64 `firestore:"lat"`
	Lng float64 `firestore:"lng"`
}

type memoryDoc struct {
	Story         string      `firestore:"story"`
	Location      locationDoc `firestore:"location"`
	ContributorID string      `firestore:"contributorId"`
	Timestamp     int64       `firestore:"timestamp"`
	ImageURLs     []string    `firestore:"imageUrls"`
}

type sessionDoc struct {
	AuthorizedAt time.Time `firestore:"authorizedAt"`
}

func toDoc(m memory.Memory) memoryDoc {
	return memoryDoc{
		Story:         m.Story,
		Location:      locationDoc{Lat: m.Location.Lat, Lng: m.Location.Lng},
		ContributorID: m.ContributorID,
		Timestamp:     m.Timestamp,
		ImageURLs:     memory.CopyURLs(m.ImageURLs),
	}
}

func fromDoc(id string, d memoryDoc) memory.Memory {
	return memory.Memory{
		ID:            id,
		Story:         d.Story,
		Location:      memory.Location{Lat: d.Location.Lat, Lng: d.Location.Lng},
		ContributorID: d.ContributorID,
		Timestamp:     d.Timestamp,
		ImageURLs:     memory.CopyURLs(d.ImageURLs),
	}
}

func fromSnapshot(snap *firestore.DocumentSnapshot) (memory.Memory, error) {
	var d memoryDoc
	if err := snap.DataTo(&d); err != nil {
		return memory.Memory{}, fmt.Errorf("decode memory %s: %w", snap.Ref.ID, err)
	}
	return fromDoc(snap.Ref.ID, d), nil
}

// fromSnapshots decodes snaps and re-applies the id tie-break Firestore's
// timestamp ordering does not give.
func fromSnapshots(snaps []*firestore.DocumentSnapshot) ([]memory.Memory, error) {
	out := make([]memory.Memory, 0, len(snaps))
	for _, snap := range snaps {
		m, err := fromSnapshot(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	memory.SortNewestFirst(out)
	return out, nil
}
