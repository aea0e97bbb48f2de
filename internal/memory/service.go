package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Store persists memories and the authorized-session allow-list.
type Store interface {
	Create(ctx context.Context, m Memory) (string, error)
	Get(ctx context.Context, id string) (Memory, error)
	List(ctx context.Context) ([]Memory, error)
	UpdateFields(ctx context.Context, id string, f Fields) error
	// Delete succeeds when id does not exist.
	Delete(ctx context.Context, id string) error

	// Subscribe pushes the full current set, newest first, immediately and on
	// every change until the returned func is called or ctx is done. The
	// returned func is safe to call more than once.
	Subscribe(ctx context.Context, onRecords func([]Memory), onError func(error)) (func(), error)

	AuthorizeSession(ctx context.Context, uid string) error
	IsSessionAuthorized(ctx context.Context, uid string) (bool, error)

	Close() error
}

// KeyChecker validates the shared posting key.
type KeyChecker interface {
	Check(key string) error
}

// CleanupQueue schedules removal of a deleted record's images.
type CleanupQueue interface {
	EnqueueBlobCleanup(ctx context.Context, urls []string) error
}

type Service struct {
	Store   Store
	Gate    KeyChecker
	Cleanup CleanupQueue // optional
	Now     func() time.Time
	Log     *zap.Logger
}

type CreateInput struct {
	Location  *Location `json:"location" validate:"required"`
	Story     string    `json:"story" validate:"required,max=5000"`
	ImageURLs []string  `json:"imageUrls" validate:"max=10,dive,http_url"`
}

// Authorize checks key and, when uid is known, records the session on the allow-list.
func (s *Service) Authorize(ctx context.Context, uid, key string) error {
	if s.Gate == nil {
		return ErrConfiguration
	}
	if err := s.Gate.Check(key); err != nil {
		return err
	}
	if uid == "" {
		return nil
	}
	if err := s.Store.AuthorizeSession(ctx, uid); err != nil {
		return fmt.Errorf("record authorized session: %w", err)
	}
	return nil
}

// RequirePoster fails unless uid is a session that passed the key check.
func (s *Service) RequirePoster(ctx context.Context, uid string) error {
	if uid == "" {
		return ErrUnauthorized
	}
	ok, err := s.Store.IsSessionAuthorized(ctx, uid)
	if err != nil {
		return fmt.Errorf("lookup authorized session: %w", err)
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

func (s *Service) Create(ctx context.Context, uid string, in CreateInput) (string, error) {
	if err := s.RequirePoster(ctx, uid); err != nil {
		return "", err
	}

	in.Story = strings.TrimSpace(in.Story)
	if err := Validate(in); err != nil {
		return "", err
	}

	m := Memory{
		Story:         in.Story,
		Location:      *in.Location,
		ContributorID: uid,
		Timestamp:     s.now().UnixMilli(),
		ImageURLs:     CopyURLs(in.ImageURLs),
	}
	id, err := s.Store.Create(ctx, m)
	if err != nil {
		return "", fmt.Errorf("create memory: %w", err)
	}
	return id, nil
}

// Delete removes id. Deleting a record that is already gone is not an error.
func (s *Service) Delete(ctx context.Context, uid, id string) error {
	if err := s.RequirePoster(ctx, uid); err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: id is required", ErrValidation)
	}

	var images []string
	if s.Cleanup != nil {
		m, err := s.Store.Get(ctx, id)
		switch {
		case err == nil:
			images = m.ImageURLs
		case errors.Is(err, ErrNotFound):
		default:
			return fmt.Errorf("load memory: %w", err)
		}
	}

	if err := s.Store.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete memory: %w", err)
	}

	if len(images) > 0 {
		// the record is gone; leftover blobs are only wasted storage
		if err := s.Cleanup.EnqueueBlobCleanup(ctx, images); err != nil {
			s.log().Warn("enqueue blob cleanup failed", zap.String("id", id), zap.Error(err))
		}
	}
	return nil
}

func (s *Service) List(ctx context.Context) ([]Memory, error) {
	ms, err := s.Store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	SortNewestFirst(ms)
	return ms, nil
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) log() *zap.Logger {
	if s.Log != nil {
		return s.Log
	}
	return zap.NewNop()
}
