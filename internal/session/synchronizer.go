// Package session はプロバイダーセッションとストアの同期、
// およびブラウザコンテキストのライフサイクル管理を提供する。
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/hitoshi/ebuddy/internal/identity"
	"github.com/hitoshi/ebuddy/internal/store"
)

// State は同期の状態。
type State int

// 同期の状態
const (
	Uninitialized State = iota
	Syncing
	SyncedAuth
	SyncedAnon
	Failed
)

// String は状態名を返す。
func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Syncing:
		return "syncing"
	case SyncedAuth:
		return "synced_auth"
	case SyncedAnon:
		return "synced_anon"
	case Failed:
		return "error"
	default:
		return "unknown"
	}
}

// ErrAlreadyStarted はStartが2回呼ばれた場合のエラー。
var ErrAlreadyStarted = errors.New("synchronizer already started")

// TransitionFunc は状態遷移の通知を受け取る。
type TransitionFunc func(from, to State)

// Synchronizer はプロバイダーのセッション変化を購読し、ストアに反映する。
// 1つのgoroutineが通知を受信順に処理し、ストアへの書き込みが終わるまで次の通知を読まない。
type Synchronizer struct {
	auth     *identity.Auth
	store    *store.Store
	onChange TransitionFunc

	mu      sync.Mutex
	state   State
	sub     *identity.Subscription
	stopped bool
	lastErr string
	done    chan struct{}
}

// SynchronizerOption はSynchronizerの設定を変更する。
type SynchronizerOption func(*Synchronizer)

// WithTransitionFunc は状態遷移の通知先を設定する。
func WithTransitionFunc(f TransitionFunc) SynchronizerOption {
	return func(s *Synchronizer) { s.onChange = f }
}

// NewSynchronizer はUninitialized状態のSynchronizerを生成する。
func NewSynchronizer(auth *identity.Auth, st *store.Store, opts ...SynchronizerOption) *Synchronizer {
	s := &Synchronizer{
		auth:  auth,
		store: st,
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start は購読を開始し、受信ループをgoroutineで起動する。
// ctxがキャンセルされるとStopと同様に購読を終了する。
func (s *Synchronizer) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub != nil || s.stopped {
		return ErrAlreadyStarted
	}

	s.transitionLocked(Syncing)
	s.sub = s.auth.OnAuthStateChanged()
	go s.run(ctx, s.sub)
	return nil
}

// Stop は購読を解除する。以降の状態遷移は発生しない。
// 受信ループの終了を待ってから戻る。
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	s.stopped = true
	sub := s.sub
	s.mu.Unlock()

	if sub == nil {
		return
	}
	sub.Unsubscribe()
	<-s.done
}

// State は現在の状態を返す。
func (s *Synchronizer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastError はFailed状態に遷移した原因のメッセージを返す。
func (s *Synchronizer) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Done は受信ループの終了時にクローズされるチャネルを返す。
func (s *Synchronizer) Done() <-chan struct{} {
	return s.done
}

func (s *Synchronizer) run(ctx context.Context, sub *identity.Subscription) {
	defer close(s.done)
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if !s.apply(ev) {
				sub.Unsubscribe()
				return
			}
		case <-ctx.Done():
			s.mu.Lock()
			s.stopped = true
			s.mu.Unlock()
			sub.Unsubscribe()
			return
		}
	}
}

// apply は1件の通知をストアに反映する。購読を継続する場合はtrueを返す。
func (s *Synchronizer) apply(ev identity.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}

	switch {
	case ev.Err != nil:
		s.lastErr = ev.Err.Error()
		slog.Error("auth state change error", slog.String("error", s.lastErr))
		s.store.Dispatch(store.SyncFailed{Message: s.lastErr})
		s.transitionLocked(Failed)
		return false
	case ev.User != nil:
		s.store.Dispatch(store.SessionChanged{User: ev.User.Serialize()})
		s.transitionLocked(SyncedAuth)
	default:
		s.store.Dispatch(store.SessionChanged{User: nil})
		s.transitionLocked(SyncedAnon)
	}
	return true
}

func (s *Synchronizer) transitionLocked(to State) {
	from := s.state
	s.state = to
	if s.onChange != nil {
		s.onChange(from, to)
	}
}
