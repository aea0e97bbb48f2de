package mapview

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"memorymap/internal/memory"
)

const (
	popupTitle  = "A Memory Shared"
	dateLayout  = "Jan 2, 2006"
	unknownDate = "Date Unknown"
)

// Popup is the content shown when a marker is opened.
type Popup struct {
	Title      string
	StoryHTML  template.HTML // escaped story, newlines as <br>
	Date       string
	PhotoCount int
	PhotoLabel string // empty when there are no photos
	CanDelete  bool
}

var popupTmpl = template.Must(template.New("popup").Parse(`<div class="memory-popup">
<h3>{{.Title}}</h3>
<p class="story">{{.StoryHTML}}</p>
{{- if .PhotoCount}}
<button class="view-photos">{{.PhotoLabel}}</button>
{{- end}}
<hr>
<p class="date">Marked on: <span>{{.Date}}</span></p>
{{- if .CanDelete}}
<button class="delete-pin">Delete Pin</button>
{{- end}}
</div>`))

// BuildPopup escapes the story before turning newlines into line breaks, so
// markup in a story is shown as text.
func BuildPopup(m memory.Memory, canDelete bool, loc *time.Location) Popup {
	p := Popup{
		Title:      popupTitle,
		StoryHTML:  storyHTML(m.Story),
		Date:       formatDate(m.Timestamp, loc),
		PhotoCount: len(m.ImageURLs),
		CanDelete:  canDelete,
	}
	if n := len(m.ImageURLs); n > 0 {
		p.PhotoLabel = fmt.Sprintf("View %d Photo", n)
		if n != 1 {
			p.PhotoLabel += "s"
		}
	}
	return p
}

func storyHTML(story string) template.HTML {
	story = strings.ReplaceAll(story, "\r\n", "\n")
	lines := strings.Split(story, "\n")
	for i, l := range lines {
		lines[i] = template.HTMLEscapeString(l)
	}
	return template.HTML(strings.Join(lines, "<br>"))
}

func formatDate(ms int64, loc *time.Location) string {
	if ms == 0 {
		return unknownDate
	}
	if loc == nil {
		loc = time.Local
	}
	return time.UnixMilli(ms).In(loc).Format(dateLayout)
}

// HTML renders the popup for widgets that take markup.
func (p Popup) HTML() (template.HTML, error) {
	var buf bytes.Buffer
	if err := popupTmpl.Execute(&buf, p); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}
