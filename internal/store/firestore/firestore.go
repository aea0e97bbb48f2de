// Package firestore stores memories in Cloud Firestore under
// artifacts/<appId>/public/data/memories, with the allow-list kept in
// artifacts/<appId>/authorizedUsers/<uid>.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"memorymap/internal/memory"

	"cloud.google.com/go/firestore"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type Config struct {
	ProjectID string
	// CredentialsJSON is a service account key; empty means application default credentials.
	CredentialsJSON string
	AppID           string
}

type Store struct {
	client *firestore.Client
	appID  string
	log    *zap.Logger
}

var _ memory.Store = (*Store)(nil)

func New(ctx context.Context, c Config, log *zap.Logger) (*Store, error) {
	if c.ProjectID == "" {
		return nil, fmt.Errorf("%w: FIRESTORE_PROJECT_ID is required", memory.ErrConfiguration)
	}
	var opts []option.ClientOption
	if c.CredentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(c.CredentialsJSON)))
	}
	client, err := firestore.NewClient(ctx, c.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{client: client, appID: c.AppID, log: log}, nil
}

func (s *Store) memories() *firestore.CollectionRef {
	return s.client.Collection("artifacts").Doc(s.appID).
		Collection("public").Doc("data").Collection("memories")
}

func (s *Store) sessions() *firestore.CollectionRef {
	return s.client.Collection("artifacts").Doc(s.appID).Collection("authorizedUsers")
}

func (s *Store) Create(ctx context.Context, m memory.Memory) (string, error) {
	ref, _, err := s.memories().Add(ctx, toDoc(m))
	if err != nil {
		return "", err
	}
	return ref.ID, nil
}

func (s *Store) Get(ctx context.Context, id string) (memory.Memory, error) {
	snap, err := s.memories().Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return memory.Memory{}, memory.ErrNotFound
		}
		return memory.Memory{}, err
	}
	return fromSnapshot(snap)
}

func (s *Store) List(ctx context.Context) ([]memory.Memory, error) {
	snaps, err := s.ordered().Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}
	return fromSnapshots(snaps)
}

func (s *Store) UpdateFields(ctx context.Context, id string, f memory.Fields) error {
	_, err := s.memories().Doc(id).Update(ctx, []firestore.Update{
		{Path: "imageUrls", Value: memory.CopyURLs(f.ImageURLs)},
	})
	if status.Code(err) == codes.NotFound {
		return memory.ErrNotFound
	}
	return err
}

// Delete on a missing document is a no-op in Firestore.
func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.memories().Doc(id).Delete(ctx)
	return err
}

func (s *Store) ordered() firestore.Query {
	return s.memories().OrderBy("timestamp", firestore.Desc)
}

// Subscribe listens to query snapshots. A broken listener is reported through
// onError and restarted with backoff; the last delivered set stays valid.
func (s *Store) Subscribe(ctx context.Context, onRecords func([]memory.Memory), onError func(error)) (func(), error) {
	ctx, cancel := context.WithCancel(ctx)
	var (
		mu      sync.Mutex
		stopped bool
	)
	deliver := func(fn func()) {
		mu.Lock()
		defer mu.Unlock()
		if !stopped {
			fn()
		}
	}

	go func() {
		delay := time.Second
		for {
			err := s.listen(ctx, func(ms []memory.Memory) {
				delay = time.Second
				deliver(func() { onRecords(ms) })
			})
			if ctx.Err() != nil {
				return
			}
			s.log.Warn("firestore listener stopped", zap.Error(err), zap.Duration("retry_in", delay))
			if onError != nil {
				deliver(func() { onError(err) })
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay = min(delay*2, time.Minute)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			mu.Lock()
			stopped = true
			mu.Unlock()
		})
	}, nil
}

func (s *Store) listen(ctx context.Context, fn func([]memory.Memory)) error {
	it := s.ordered().Snapshots(ctx)
	defer it.Stop()
	for {
		qs, err := it.Next()
		if err != nil {
			if errors.Is(err, iterator.Done) {
				return errors.New("snapshot stream ended")
			}
			return err
		}
		snaps, err := qs.Documents.GetAll()
		if err != nil {
			return err
		}
		ms, err := fromSnapshots(snaps)
		if err != nil {
			return err
		}
		fn(ms)
	}
}

func (s *Store) AuthorizeSession(ctx context.Context, uid string) error {
	_, err := s.sessions().Doc(uid).Create(ctx, sessionDoc{AuthorizedAt: time.Now().UTC()})
	if status.Code(err) == codes.AlreadyExists {
		return nil
	}
	return err
}

func (s *Store) IsSessionAuthorized(ctx context.Context, uid string) (bool, error) {
	_, err := s.sessions().Doc(uid).Get(ctx)
	switch status.Code(err) {
	case codes.OK:
		return true, nil
	case codes.NotFound:
		return false, nil
	default:
		return false, err
	}
}

func (s *Store) Close() error {
	return s.client.Close()
}
