// Package mapview turns the live memory set into map markers. Drawing is
// left to a Renderer backed by whatever map widget the client embeds.
package mapview

import (
	"sync"
	"time"

	"memorymap/internal/memory"
)

// Renderer is the external map widget.
type Renderer interface {
	ClearMarkers()
	AddMarker(Marker)
	PlaceTransient(memory.Location)
	RemoveTransient()
	PanTo(memory.Location)
}

// ImageViewer shows a record's photos.
type ImageViewer interface {
	Show(urls []string)
}

type Marker struct {
	ID       string
	Location memory.Location
	Popup    Popup
}

// Actions are the popup buttons for one marker. Delete is nil unless the
// session is authorized; ViewPhotos is nil when the record has no photos.
type Actions struct {
	ViewPhotos func()
	Delete     func()
}

type Callbacks struct {
	// OnLocation receives the point chosen by an authorized click and
	// reports whether it was taken. A rejected point gets no marker.
	OnLocation func(memory.Location) bool
	// OnMessage receives user-facing hints, e.g. when an unauthorized
	// session clicks the map.
	OnMessage func(string)
	// OnDelete is invoked from a marker's delete action.
	OnDelete func(id string)
}

const MsgAuthorizeFirst = "Please authorize first to add a memory."

type View struct {
	r      Renderer
	viewer ImageViewer
	cb     Callbacks
	loc    *time.Location

	mu         sync.Mutex
	records    []memory.Memory
	authorized bool
	transient  *memory.Location
	actions    map[string]Actions
}

func New(r Renderer, viewer ImageViewer, cb Callbacks) *View {
	return &View{r: r, viewer: viewer, cb: cb, actions: map[string]Actions{}}
}

// SetTimeZone sets the zone popup dates are shown in. Defaults to local time.
func (v *View) SetTimeZone(loc *time.Location) {
	v.mu.Lock()
	v.loc = loc
	v.renderLocked()
	v.mu.Unlock()
}

// SetRecords replaces the rendered set. The transient marker is kept.
func (v *View) SetRecords(ms []memory.Memory) {
	cp := make([]memory.Memory, len(ms))
	for i, m := range ms {
		cp[i] = m.Clone()
	}
	v.mu.Lock()
	v.records = cp
	v.renderLocked()
	v.mu.Unlock()
}

func (v *View) SetAuthorized(ok bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.authorized == ok {
		return
	}
	v.authorized = ok
	if !ok {
		v.clearTransientLocked()
	}
	v.renderLocked()
}

// Click handles a click on empty map area.
func (v *View) Click(loc memory.Location) {
	if loc.Lat < -90 || loc.Lat > 90 || loc.Lng < -180 || loc.Lng > 180 {
		return
	}

	v.mu.Lock()
	if !v.authorized {
		v.mu.Unlock()
		if v.cb.OnMessage != nil {
			v.cb.OnMessage(MsgAuthorizeFirst)
		}
		return
	}
	v.mu.Unlock()

	if v.cb.OnLocation != nil && !v.cb.OnLocation(loc) {
		return
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.authorized {
		return
	}
	v.clearTransientLocked()
	v.transient = &loc
	v.r.PlaceTransient(loc)
	v.r.PanTo(loc)
}

func (v *View) ClearTransient() {
	v.mu.Lock()
	v.clearTransientLocked()
	v.mu.Unlock()
}

func (v *View) clearTransientLocked() {
	if v.transient != nil {
		v.r.RemoveTransient()
		v.transient = nil
	}
}

// Transient returns the selected location, if any.
func (v *View) Transient() (memory.Location, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.transient == nil {
		return memory.Location{}, false
	}
	return *v.transient, true
}

func (v *View) Actions(id string) (Actions, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	a, ok := v.actions[id]
	return a, ok
}

// ViewPhotos opens the image viewer with every photo of id.
func (v *View) ViewPhotos(id string) bool {
	a, ok := v.Actions(id)
	if !ok || a.ViewPhotos == nil {
		return false
	}
	a.ViewPhotos()
	return true
}

// Delete runs the delete action of id. It does nothing unless authorized.
func (v *View) Delete(id string) bool {
	a, ok := v.Actions(id)
	if !ok || a.Delete == nil {
		return false
	}
	a.Delete()
	return true
}

// Focus pans to a rendered record.
func (v *View) Focus(id string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, m := range v.records {
		if m.ID == id {
			v.r.PanTo(m.Location)
			return true
		}
	}
	return false
}

func (v *View) renderLocked() {
	v.r.ClearMarkers()
	v.actions = make(map[string]Actions, len(v.records))
	for _, m := range v.records {
		var a Actions
		if len(m.ImageURLs) > 0 && v.viewer != nil {
			urls := memory.CopyURLs(m.ImageURLs)
			a.ViewPhotos = func() { v.viewer.Show(urls) }
		}
		if v.authorized && v.cb.OnDelete != nil {
			id := m.ID
			a.Delete = func() { v.cb.OnDelete(id) }
		}
		v.actions[m.ID] = a
		v.r.AddMarker(Marker{
			ID:       m.ID,
			Location: m.Location,
			Popup:    BuildPopup(m, v.authorized, v.loc),
		})
	}
}
