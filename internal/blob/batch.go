package blob

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// File is one photo selected for upload.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Uploader uploads a single file and returns its public url.
type Uploader interface {
	UploadFile(ctx context.Context, f File) (string, error)
}

// UploadAll uploads files concurrently, at most limit at a time. A failed
// file is logged and skipped, never retried, and never aborts the batch.
// The returned urls keep the input order of the files that succeeded.
func UploadAll(ctx context.Context, up Uploader, files []File, limit int, log *zap.Logger) []string {
	if len(files) == 0 {
		return []string{}
	}
	if limit <= 0 {
		limit = 4
	}
	if log == nil {
		log = zap.NewNop()
	}

	urls := make([]string, len(files))
	var g errgroup.Group
	g.SetLimit(limit)
	for i, f := range files {
		g.Go(func() error {
			u, err := up.UploadFile(ctx, f)
			if err != nil {
				log.Warn("photo upload skipped", zap.String("name", f.Name), zap.Error(err))
				return nil
			}
			urls[i] = u
			return nil
		})
	}
	_ = g.Wait()

	out := make([]string, 0, len(files))
	for _, u := range urls {
		if u != "" {
			out = append(out, u)
		}
	}
	return out
}
