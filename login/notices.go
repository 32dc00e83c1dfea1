package login

import (
	"sync"
	"time"
)

// NoticeKind tells the front end how to style a notice
type NoticeKind string

const (
	NoticeError   NoticeKind = "error"
	NoticeSuccess NoticeKind = "success"
	NoticeInfo    NoticeKind = "info"
)

// DefaultNoticeTTL is how long a notice stays visible
const DefaultNoticeTTL = 5 * time.Second

// Notice is a transient, user visible message
type Notice struct {
	ID        uint64
	Kind      NoticeKind
	Text      string
	CreatedAt time.Time
}

// NoticeBoard holds at most one notice. Each notice is dismissed on its own
// after the ttl; showing a new one replaces the old one and its timer.
type NoticeBoard struct {
	mu      sync.Mutex
	current *Notice
	nextID  uint64
	ttl     time.Duration
	timer   *time.Timer
	nowTime func() time.Time
}

// NewNoticeBoard creates an empty board. A ttl <= 0 uses DefaultNoticeTTL.
func NewNoticeBoard(ttl time.Duration) *NoticeBoard {
	if ttl <= 0 {
		ttl = DefaultNoticeTTL
	}
	return &NoticeBoard{ttl: ttl, nowTime: time.Now}
}

// Show replaces the current notice
func (b *NoticeBoard) Show(kind NoticeKind, text string) Notice {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	n := Notice{ID: b.nextID, Kind: kind, Text: text, CreatedAt: b.nowTime()}
	b.current = &n

	if b.timer != nil {
		b.timer.Stop()
	}
	id := n.ID
	b.timer = time.AfterFunc(b.ttl, func() { b.dismiss(id) })
	return n
}

// Current returns the visible notice, if any
func (b *NoticeBoard) Current() (Notice, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current == nil {
		return Notice{}, false
	}
	return *b.current, true
}

// Dismiss removes the current notice
func (b *NoticeBoard) Dismiss() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.current = nil
}

// dismiss clears the notice only if it is still the one the timer was set for
func (b *NoticeBoard) dismiss(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.current != nil && b.current.ID == id {
		b.current = nil
		b.timer = nil
	}
}
