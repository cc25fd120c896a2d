// Package store はブラウザコンテキストごとのセッション状態コンテナを提供する。
// 状態はDispatchされたアクションによってのみ変更され、読み出しは常にコピーを返す。
package store

import (
	"log/slog"
	"sync"

	"github.com/hitoshi/ebuddy/internal/model"
)

// Store はセッション状態のコンテナ。
// Dispatchはミューテックスで直列化され、Watchの購読者には最新の状態のみが届く。
type Store struct {
	mu       sync.Mutex
	state    State
	watchers map[uint64]chan State
	nextID   uint64
	logger   *slog.Logger
}

// Option はStoreの設定を変更する。
type Option func(*Store)

// WithLogger はアクションのデバッグログ出力先を設定する。
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithInitialState は初期状態を設定する。
func WithInitialState(st State) Option {
	return func(s *Store) { s.state = st.Clone() }
}

// New は空の状態のStoreを生成する。
func New(opts ...Option) *Store {
	s := &Store{
		watchers: make(map[uint64]chan State),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dispatch はアクションを両パーティションのreducerに適用する。
func (s *Store) Dispatch(action Action) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := State{
		Auth:    reduceAuth(s.state.Auth, action),
		User:    reduceUser(s.state.User, action),
		Version: s.state.Version + 1,
	}
	s.state = next

	s.logger.Debug("store dispatch",
		slog.String("action", action.Type()),
		slog.Uint64("version", next.Version),
	)

	for _, ch := range s.watchers {
		offerLatest(ch, next.Clone())
	}
}

// Snapshot は現在の状態のコピーを返す。
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Session は現在の状態から導出したセッションを返す。
func (s *Store) Session() model.Session {
	return s.Snapshot().Session()
}

// Watch は状態変化の購読を開始する。
// チャネルには現在の状態が最初に届き、処理が追いつかない場合は最新の状態だけが残る。
// 返された関数で購読を終了するとチャネルはクローズされる。
func (s *Store) Watch() (<-chan State, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	ch := make(chan State, 1)
	ch <- s.state.Clone()
	s.watchers[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.watchers, id)
			close(ch)
		})
	}
	return ch, cancel
}

// CachedAuthUID は認証パーティションのユーザーIDを返す。
func (s *Store) CachedAuthUID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.Auth.User == nil {
		return ""
	}
	return s.state.Auth.User.UID
}

// CachedProfileID はキャッシュされたプロフィールのIDを返す。
func (s *Store) CachedProfileID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.User.Profile == nil {
		return ""
	}
	return s.state.User.Profile.ID
}

// offerLatest はバッファ1のチャネルに最新の値を置く。古い値が残っていれば捨てる。
// 送信はs.muを保持した状態でのみ行われるため、取り出し後の送信はブロックしない。
func offerLatest(ch chan State, st State) {
	select {
	case ch <- st:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	ch <- st
}
