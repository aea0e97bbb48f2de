package memory

import "sort"

// Location is a point on the map in decimal degrees.
type Location struct {
	Lat float64 `json:"lat" validate:"min=-90,max=90"`
	Lng float64 `json:"lng" validate:"min=-180,max=180"`
}

// Memory is a single pin on the map. Records are immutable once created,
// except for the ImageURLs back-fill, and are deleted wholesale.
type Memory struct {
	ID            string   `json:"id"`
	Story         string   `json:"story"`
	Location      Location `json:"location"`
	ContributorID string   `json:"contributorId"`
	Timestamp     int64    `json:"timestamp"` // ms since epoch
	ImageURLs     []string `json:"imageUrls"`
}

// Fields holds the only values that may change after creation.
type Fields struct {
	ImageURLs []string
}

// SortNewestFirst orders records by descending timestamp, ties broken by id.
func SortNewestFirst(ms []Memory) {
	sort.SliceStable(ms, func(i, j int) bool {
		if ms[i].Timestamp != ms[j].Timestamp {
			return ms[i].Timestamp > ms[j].Timestamp
		}
		return ms[i].ID < ms[j].ID
	})
}

// Clone returns a copy that shares no slices with m.
func (m Memory) Clone() Memory {
	out := m
	out.ImageURLs = CopyURLs(m.ImageURLs)
	return out
}

// CopyURLs copies urls, turning nil into an empty slice so the wire form is never null.
func CopyURLs(urls []string) []string {
	out := make([]string, len(urls))
	copy(out, urls)
	return out
}
