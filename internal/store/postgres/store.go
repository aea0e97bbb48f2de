// Package postgres is the gorm-backed document store. Change notifications
// come from a trigger (see db.AutoMigrateAndIndexes) and are consumed with a
// lib/pq listener.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"memorymap/internal/memory"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Store struct {
	DB    *gorm.DB
	DSN   string // used by LISTEN connections
	AppID string
	Log   *zap.Logger
}

var _ memory.Store = (*Store)(nil)

func (s *Store) scoped(ctx context.Context) *gorm.DB {
	return s.DB.WithContext(ctx).Where("app_id = ?", s.AppID)
}

func (s *Store) Create(ctx context.Context, m memory.Memory) (string, error) {
	m.ID = uuid.NewString()
	row := toRow(s.AppID, m)
	if err := s.DB.WithContext(ctx).Create(&row).Error; err != nil {
		return "", err
	}
	return row.ID, nil
}

func (s *Store) Get(ctx context.Context, id string) (memory.Memory, error) {
	var row MemoryRow
	if err := s.scoped(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return memory.Memory{}, memory.ErrNotFound
		}
		return memory.Memory{}, err
	}
	return fromRow(row), nil
}

func (s *Store) List(ctx context.Context) ([]memory.Memory, error) {
	var rows []MemoryRow
	if err := s.scoped(ctx).Order("created_ms desc, id asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]memory.Memory, 0, len(rows))
	for _, r := range rows {
		out = append(out, fromRow(r))
	}
	return out, nil
}

func (s *Store) UpdateFields(ctx context.Context, id string, f memory.Fields) error {
	res := s.scoped(ctx).Model(&MemoryRow{}).
		Where("id = ?", id).
		Update("image_urls", pq.StringArray(memory.CopyURLs(f.ImageURLs)))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return memory.ErrNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	return s.scoped(ctx).Where("id = ?", id).Delete(&MemoryRow{}).Error
}

func (s *Store) AuthorizeSession(ctx context.Context, uid string) error {
	row := AuthorizedSession{AppID: s.AppID, UID: uid, AuthorizedAt: time.Now()}
	return s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row).Error
}

func (s *Store) IsSessionAuthorized(ctx context.Context, uid string) (bool, error) {
	var n int64
	err := s.scoped(ctx).Model(&AuthorizedSession{}).Where("uid = ?", uid).Count(&n).Error
	return n > 0, err
}

// Subscribe opens a dedicated LISTEN connection and re-reads the full set on
// every notification for this app id, and after every reconnect.
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

	l := pq.NewListener(s.DSN, 2*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil && ctx.Err() == nil {
			s.log().Warn("memories listener event", zap.Int("event", int(ev)), zap.Error(err))
			if onError != nil {
				deliver(func() { onError(fmt.Errorf("listen %s: %w", NotifyChannel, err)) })
			}
		}
	})
	if err := l.Listen(NotifyChannel); err != nil {
		cancel()
		_ = l.Close()
		return nil, fmt.Errorf("listen %s: %w", NotifyChannel, err)
	}

	go s.pump(ctx, l, deliver, onRecords, onError)

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

func (s *Store) pump(ctx context.Context, l *pq.Listener, deliver func(func()), onRecords func([]memory.Memory), onError func(error)) {
	defer func() { _ = l.Close() }()

	push := func() {
		ms, err := s.List(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			if onError != nil {
				deliver(func() { onError(err) })
			}
			return
		}
		deliver(func() { onRecords(ms) })
	}

	push()

	keepalive := time.NewTicker(90 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case n := <-l.Notify:
			// nil after a reconnect: anything may have changed meanwhile
			if n != nil && n.Extra != s.AppID {
				continue
			}
			push()
		case <-keepalive.C:
			go func() { _ = l.Ping() }()
		}
	}
}

func (s *Store) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) log() *zap.Logger {
	if s.Log != nil {
		return s.Log
	}
	return zap.NewNop()
}
