// Package shell is the posting state machine behind the map UI:
// Unauthorized → Authorized → LocationSelected → Saving → Authorized,
// falling back to LocationSelected (or Unauthorized) when a save fails.
package shell

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"memorymap/internal/blob"
	"memorymap/internal/client"
	"memorymap/internal/mapview"
	"memorymap/internal/memory"

	"go.uber.org/zap"
)

type State int

const (
	Unauthorized State = iota
	Authorized
	LocationSelected
	Saving
)

func (s State) String() string {
	switch s {
	case Unauthorized:
		return "unauthorized"
	case Authorized:
		return "authorized"
	case LocationSelected:
		return "location_selected"
	case Saving:
		return "saving"
	default:
		return "unknown"
	}
}

var (
	ErrClosed     = errors.New("shell closed")
	ErrNoLocation = errors.New("select a location on the map first")
	ErrBusy       = errors.New("a memory is already being saved")
)

const (
	DefaultErrorTTL  = 5 * time.Second
	DefaultMaxPhotos = 5

	msgEmptyStory      = "Please write a story before saving."
	msgRevoked         = "Your authorization is no longer valid. Please enter the key again."
	msgBadKey          = "Invalid authorization key."
	msgAuthorizeFailed = "Could not check the key. Please try again."
	msgSaveFailed      = "Failed to save memory. Please try again."
	msgDeleteFailed    = "Failed to delete memory pin."
	msgServer          = "Server error. Please try again later."
	msgLiveInterrupt   = "Live updates interrupted. Showing the last known pins."
)

// API is the server surface the shell drives; *client.Client implements it.
type API interface {
	StartSession(ctx context.Context) (client.Session, error)
	Authorize(ctx context.Context, key string) error
	SaveMemory(ctx context.Context, in memory.CreateInput) (string, error)
	DeleteMemory(ctx context.Context, id string) error
	UploadFile(ctx context.Context, f blob.File) (string, error)
	Subscribe(ctx context.Context, onRecords func([]memory.Memory), onError func(error)) (func(), error)
}

// Snapshot is a copy of the shell state for display.
type Snapshot struct {
	State    State
	UID      string
	Location *memory.Location
	Draft    string
	Error    string
	Records  []memory.Memory
}

type Shell struct {
	ErrorTTL          time.Duration
	MaxPhotos         int
	UploadConcurrency int

	api  API
	view *mapview.View
	log  *zap.Logger

	mu          sync.Mutex
	closed      bool
	state       State
	session     client.Session
	location    *memory.Location
	draft       string
	errText     string
	errSeq      uint64
	records     []memory.Memory
	unsubscribe func()
}

func New(api API, r mapview.Renderer, viewer mapview.ImageViewer, log *zap.Logger) *Shell {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Shell{
		ErrorTTL:          DefaultErrorTTL,
		MaxPhotos:         DefaultMaxPhotos,
		UploadConcurrency: 3,
		api:               api,
		log:               log,
	}
	s.view = mapview.New(r, viewer, mapview.Callbacks{
		OnLocation: s.selectLocation,
		OnMessage:  func(msg string) { s.flash(msg) },
		OnDelete: func(id string) {
			go func() { _ = s.Delete(context.Background(), id) }()
		},
	})
	return s
}

// View is the map view-model; clicks and popup actions go through it.
func (s *Shell) View() *mapview.View { return s.view }

// Start opens an anonymous session and subscribes to the live set.
func (s *Shell) Start(ctx context.Context) error {
	sess, err := s.api.StartSession(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.session = sess
	s.mu.Unlock()

	unsubscribe, err := s.api.Subscribe(ctx, s.onRecords, s.onSubscriptionError)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		unsubscribe()
		return ErrClosed
	}
	s.unsubscribe = unsubscribe
	s.mu.Unlock()
	return nil
}

// Records only ever change here; a saved memory shows up once the
// subscription delivers it.
func (s *Shell) onRecords(ms []memory.Memory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.records = ms
	s.view.SetRecords(ms)
}

func (s *Shell) onSubscriptionError(err error) {
	s.log.Warn("live subscription error", zap.Error(err))
	s.flash(msgLiveInterrupt)
}

func (s *Shell) Authorize(ctx context.Context, key string) error {
	err := s.api.Authorize(ctx, key)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return err
	}
	if err != nil {
		if memory.IsAuthError(err) {
			if s.state != Unauthorized {
				s.revokeLocked()
			}
			s.setErrorLocked(msgBadKey, false)
		} else if errors.Is(err, client.ErrServer) {
			s.setErrorLocked(msgServer, true)
		} else {
			s.setErrorLocked(msgAuthorizeFailed, true)
		}
		return err
	}
	if s.state == Unauthorized {
		s.state = Authorized
	}
	s.clearErrorLocked()
	s.view.SetAuthorized(true)
	return nil
}

// selectLocation reports whether loc became the pending location. Clicks
// are ignored while a memory is being saved.
func (s *Shell) selectLocation(loc memory.Location) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.state == Unauthorized || s.state == Saving {
		return false
	}
	s.location = &loc
	s.state = LocationSelected
	return true
}

func (s *Shell) SetDraft(story string) {
	s.mu.Lock()
	s.draft = story
	s.mu.Unlock()
}

// Submit uploads files, skipping any that fail, then creates the memory with
// the urls that made it. It returns once the create call has settled, even
// when the shell was closed in the meantime.
func (s *Shell) Submit(ctx context.Context, story string, files []blob.File) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	switch s.state {
	case Saving:
		s.mu.Unlock()
		return ErrBusy
	case LocationSelected:
	default:
		s.mu.Unlock()
		return ErrNoLocation
	}
	s.draft = story
	story = strings.TrimSpace(story)
	if story == "" {
		s.setErrorLocked(msgEmptyStory, false)
		s.mu.Unlock()
		return memory.ErrValidation
	}
	loc := *s.location
	s.state = Saving
	s.clearErrorLocked()
	s.mu.Unlock()

	if s.MaxPhotos > 0 && len(files) > s.MaxPhotos {
		files = files[:s.MaxPhotos]
	}
	urls := blob.UploadAll(ctx, s.api, files, s.UploadConcurrency, s.log)
	_, err := s.api.SaveMemory(ctx, memory.CreateInput{Location: &loc, Story: story, ImageURLs: urls})

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return err
	}
	if s.state != Saving {
		// Revoked while saving; the session has to authorize again.
		if err == nil {
			s.draft = ""
		}
		return err
	}
	if err != nil {
		s.log.Warn("save memory failed", zap.Error(err))
		s.state = LocationSelected
		if memory.IsAuthError(err) {
			s.revokeLocked()
		} else {
			s.setErrorLocked(messageFor(err), !errors.Is(err, memory.ErrValidation))
		}
		return err
	}
	s.state = Authorized
	s.location = nil
	s.draft = ""
	s.view.ClearTransient()
	return nil
}

// Delete removes a memory. The rendered set updates through the subscription.
func (s *Shell) Delete(ctx context.Context, id string) error {
	err := s.api.DeleteMemory(ctx, id)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || err == nil {
		return err
	}
	if memory.IsAuthError(err) {
		s.revokeLocked()
	} else {
		s.setErrorLocked(msgDeleteFailed, true)
	}
	return err
}

// Close tears down the subscription. Later callbacks and in-flight calls
// leave the state untouched.
func (s *Shell) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	// outside the lock: the subscription waits for a running callback,
	// which may be blocked on s.mu
	if unsubscribe != nil {
		unsubscribe()
	}
}

func (s *Shell) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		State:   s.state,
		UID:     s.session.UID,
		Draft:   s.draft,
		Error:   s.errText,
		Records: s.records,
	}
	if s.location != nil {
		loc := *s.location
		snap.Location = &loc
	}
	return snap
}

func (s *Shell) revokeLocked() {
	s.state = Unauthorized
	s.location = nil
	s.view.SetAuthorized(false)
	s.setErrorLocked(msgRevoked, false)
}

func (s *Shell) flash(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.setErrorLocked(msg, true)
	}
}

func (s *Shell) setErrorLocked(msg string, autoDismiss bool) {
	s.errText = msg
	s.errSeq++
	if !autoDismiss || s.ErrorTTL <= 0 {
		return
	}
	seq := s.errSeq
	time.AfterFunc(s.ErrorTTL, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if !s.closed && s.errSeq == seq {
			s.errText = ""
		}
	})
}

func (s *Shell) clearErrorLocked() {
	s.errText = ""
	s.errSeq++
}

func messageFor(err error) string {
	var apiErr *client.APIError
	switch {
	case errors.Is(err, memory.ErrValidation) && errors.As(err, &apiErr) && apiErr.Message != "":
		return apiErr.Message
	case errors.Is(err, client.ErrServer):
		return msgServer
	default:
		return msgSaveFailed
	}
}
