package playback

import (
	"sync"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/fellowship/internal/queue"
)

// mailbox is an unbounded queue of closures for the engine goroutine. put
// never blocks, so timers and backend callbacks can post from anywhere,
// including the engine goroutine itself.
type mailbox struct {
	mu     sync.Mutex
	items  []func()
	closed bool
	signal chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{signal: make(chan struct{}, 1)}
}

func (m *mailbox) put(fn func()) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.items = append(m.items, fn)
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
	return true
}

func (m *mailbox) drain() []func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := m.items
	m.items = nil
	return items
}

func (m *mailbox) close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
}

// QueueStore persists the queue between runs.
type QueueStore interface {
	SaveQueue(items []queue.Item, index int) error
}

// SettingsStore persists the settings between runs.
type SettingsStore interface {
	SaveSettings(s Settings) error
}

type queueState struct {
	items []queue.Item
	index int
}

// saver writes the latest queue and settings in the background. Only the
// newest pending value of each is written.
type saver struct {
	queues   QueueStore
	settings SettingsStore
	logger   *log.Logger

	mu              sync.Mutex
	pendingQueue    *queueState
	pendingSettings *Settings

	kick chan struct{}
	stop chan struct{}
	done chan struct{}
}

func newSaver(queues QueueStore, settings SettingsStore, logger *log.Logger) *saver {
	s := &saver{
		queues:   queues,
		settings: settings,
		logger:   logger,
		kick:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *saver) saveQueue(items []queue.Item, index int) {
	if s.queues == nil {
		return
	}
	s.mu.Lock()
	s.pendingQueue = &queueState{items: items, index: index}
	s.mu.Unlock()
	s.poke()
}

func (s *saver) saveSettings(settings Settings) {
	if s.settings == nil {
		return
	}
	s.mu.Lock()
	s.pendingSettings = &settings
	s.mu.Unlock()
	s.poke()
}

func (s *saver) poke() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

func (s *saver) run() {
	defer close(s.done)
	for {
		select {
		case <-s.kick:
			s.flush()
		case <-s.stop:
			s.flush()
			return
		}
	}
}

func (s *saver) flush() {
	s.mu.Lock()
	q, st := s.pendingQueue, s.pendingSettings
	s.pendingQueue, s.pendingSettings = nil, nil
	s.mu.Unlock()

	if q != nil {
		if err := s.queues.SaveQueue(q.items, q.index); err != nil {
			s.logger.Warn("Failed to save queue", "err", err)
		}
	}
	if st != nil {
		if err := s.settings.SaveSettings(*st); err != nil {
			s.logger.Warn("Failed to save settings", "err", err)
		}
	}
}

func (s *saver) close() {
	close(s.stop)
	<-s.done
}
