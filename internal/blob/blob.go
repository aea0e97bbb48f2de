// Package blob uploads photos to object storage and hands back public urls.
package blob

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// Store is an object store that serves uploaded objects at public urls.
type Store interface {
	Upload(ctx context.Context, r io.Reader, size int64, contentType, key string) (string, error)
	Delete(ctx context.Context, key string) error
	// KeyFromURL reverses Upload's url, reporting false for foreign urls.
	KeyFromURL(url string) (string, bool)
}

const maxNameLen = 64

// ObjectKey builds a collision-resistant key for one upload attempt:
// artifacts/<appID>/memories/<owner>/<name>_<unixMillis>_<rand>.
func ObjectKey(appID, owner, filename string, now time.Time) string {
	return fmt.Sprintf("artifacts/%s/memories/%s/%s_%d_%s",
		sanitize(appID), sanitize(owner), sanitize(filename), now.UnixMilli(), uuid.NewString()[:8])
}

func sanitize(s string) string {
	// drop any client-supplied directories
	if i := strings.LastIndexAny(s, `/\`); i >= 0 {
		s = s[i+1:]
	}
	var b strings.Builder
	for _, r := range s {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
		if b.Len() >= maxNameLen {
			break
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "file"
	}
	return out
}
