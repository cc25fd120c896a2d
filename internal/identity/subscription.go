package identity

import "sync"

// Subscription は状態変化の購読。
// 通知は購読者ごとの無制限キューに積まれ、Eventsチャネルに発生順で配送される。
// 発行側が購読者の処理を待つことはない。
type Subscription struct {
	id    uint64
	owner *Auth

	mu    sync.Mutex
	queue []Event

	wake   chan struct{}
	events chan Event
	done   chan struct{}
	once   sync.Once
}

func newSubscription(id uint64, owner *Auth) *Subscription {
	return &Subscription{
		id:     id,
		owner:  owner,
		wake:   make(chan struct{}, 1),
		events: make(chan Event),
		done:   make(chan struct{}),
	}
}

// Events は通知を受け取るチャネルを返す。Unsubscribe後にクローズされる。
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Unsubscribe は購読を終了する。複数回呼び出しても安全。
// 呼び出し後、未配送の通知は破棄される。
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		close(s.done)
		s.owner.removeSubscription(s.id)
	})
}

// Done は購読終了時にクローズされるチャネルを返す。
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) enqueue(ev Event) {
	s.mu.Lock()
	s.queue = append(s.queue, ev)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription) pump() {
	defer close(s.events)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			}
		}
		ev := s.queue[0]
		s.queue[0] = Event{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.events <- ev:
		case <-s.done:
			return
		}
	}
}
