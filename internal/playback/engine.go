package playback

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/jonboulle/clockwork"

	"github.com/dgnsrekt/fellowship/internal/content"
	"github.com/dgnsrekt/fellowship/internal/queue"
	"github.com/dgnsrekt/fellowship/internal/tts"
)

var (
	// ErrClosed is returned by every method after Close.
	ErrClosed = errors.New("playback engine is closed")

	// ErrNoPlaylists is returned when no playlist store is configured.
	ErrNoPlaylists = errors.New("playlists are not available")

	// ErrEmptyQueue is returned when saving an empty queue.
	ErrEmptyQueue = errors.New("queue is empty")

	// ErrNoBackend is returned when switching to a backend that is not set up.
	ErrNoBackend = errors.New("speech backend is not configured")
)

// Playlists is the remote playlist service.
type Playlists interface {
	List(ctx context.Context) ([]queue.Playlist, error)
	Get(ctx context.Context, id string) (queue.Playlist, error)
	Create(ctx context.Context, name string, items []queue.Item) (queue.Playlist, error)
	Delete(ctx context.Context, id string) error
	Append(ctx context.Context, id string, item queue.Item) error
}

// Config wires an engine.
type Config struct {
	Content  content.Provider
	Backends []tts.Backend

	Playlists     Playlists     // optional
	QueueStore    QueueStore    // optional
	SettingsStore SettingsStore // optional

	Settings Settings
	Queue    []queue.Item
	Index    int

	Clock  clockwork.Clock
	Logger *log.Logger
}

// PlayOptions control PlayPlaylist.
type PlayOptions struct {
	Shuffle    bool
	StartIndex int
}

// Snapshot is the engine state as seen by the outside.
type Snapshot struct {
	State      State
	Queue      []queue.Item
	Index      int
	Item       queue.Item // chapter of the current or last run
	Standalone bool       // Item is not from the queue
	Verse      int        // verse number, 0 unless speaking or paused
	VersePos   int        // 1-based position of the verse in the chapter
	VerseCount int
	Status     string
	Settings   Settings
	Session    uint64
}

// Playing reports whether a chapter is loading, speaking or paused.
func (s Snapshot) Playing() bool {
	return s.State.Active()
}

// Paused reports whether playback is paused.
func (s Snapshot) Paused() bool {
	return s.State == StatePaused
}

// Engine plays a queue of chapters. All methods are safe for concurrent use.
type Engine struct {
	content  content.Provider
	backends map[tts.Kind]tts.Backend
	lists    Playlists
	clock    clockwork.Clock
	logger   *log.Logger
	saver    *saver

	ctx    context.Context
	cancel context.CancelFunc
	mb     *mailbox
	quit   chan struct{}
	exited chan struct{}
	once   sync.Once

	// owned by the loop goroutine
	queue      *queue.Queue
	settings   Settings
	state      State
	status     string
	item       queue.Item
	standalone bool
	verse      int
	seq        uint64
	cur        *session
	emptyRun   int
	subs       map[chan Snapshot]struct{}
}

// NewEngine creates an engine and starts its goroutine.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Content == nil {
		return nil, errors.New("playback needs a content provider")
	}
	if len(cfg.Backends) == 0 {
		return nil, errors.New("playback needs at least one speech backend")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	logger := cfg.Logger.WithPrefix("playback")

	backends := make(map[tts.Kind]tts.Backend, len(cfg.Backends))
	for _, b := range cfg.Backends {
		if b != nil {
			backends[b.Kind()] = b
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		content:  cfg.Content,
		backends: backends,
		lists:    cfg.Playlists,
		clock:    cfg.Clock,
		logger:   logger,
		saver:    newSaver(cfg.QueueStore, cfg.SettingsStore, logger),
		ctx:      ctx,
		cancel:   cancel,
		mb:       newMailbox(),
		quit:     make(chan struct{}),
		exited:   make(chan struct{}),
		queue:    queue.New(cfg.Queue, cfg.Index),
		settings: cfg.Settings.Normalize(),
		subs:     make(map[chan Snapshot]struct{}),
	}
	go e.loop()
	return e, nil
}

func (e *Engine) loop() {
	defer close(e.exited)
	for {
		select {
		case <-e.mb.signal:
			for _, fn := range e.mb.drain() {
				fn()
				e.publish()
			}
		case <-e.quit:
			return
		}
	}
}

// do runs fn on the engine goroutine and waits for it.
func (e *Engine) do(fn func()) error {
	done := make(chan struct{})
	if !e.mb.put(func() {
		defer close(done)
		fn()
	}) {
		return ErrClosed
	}
	select {
	case <-done:
		return nil
	case <-e.exited:
		return ErrClosed
	}
}

func (e *Engine) snapshot() Snapshot {
	snap := Snapshot{
		State:      e.state,
		Queue:      e.queue.Items(),
		Index:      e.queue.Index(),
		Item:       e.item,
		Standalone: e.standalone,
		Status:     e.status,
		Settings:   e.settings,
		Session:    e.seq,
	}
	if e.state == StateSpeaking || e.state == StatePaused {
		snap.Verse = e.verse
	}
	if s := e.cur; s != nil && len(s.verses) > 0 {
		snap.VerseCount = len(s.verses)
		snap.VersePos = min(s.pos+1, len(s.verses))
	}
	return snap
}

func (e *Engine) publish() {
	if len(e.subs) == 0 {
		return
	}
	snap := e.snapshot()
	for ch := range e.subs {
		// keep only the latest snapshot
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}

func (e *Engine) persistQueue() {
	e.saver.saveQueue(e.queue.Items(), e.queue.Index())
}

func (e *Engine) persistSettings() {
	e.saver.saveSettings(e.settings)
}

// Snapshot returns the current state.
func (e *Engine) Snapshot() Snapshot {
	var snap Snapshot
	if err := e.do(func() { snap = e.snapshot() }); err != nil {
		return Snapshot{State: StateStopped}
	}
	return snap
}

// Subscribe returns a channel that always holds the latest snapshot, and a
// function to stop the subscription. The channel is closed by Close.
func (e *Engine) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	err := e.do(func() {
		e.subs[ch] = struct{}{}
		ch <- e.snapshot()
	})
	if err != nil {
		close(ch)
		return ch, func() {}
	}
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			_ = e.do(func() {
				if _, ok := e.subs[ch]; ok {
					delete(e.subs, ch)
					close(ch)
				}
			})
		})
	}
}

// Close stops playback and the engine goroutine. Pending saves are written
// before it returns.
func (e *Engine) Close() error {
	e.once.Do(func() {
		_ = e.do(func() {
			e.halt()
			e.state = StateStopped
			e.verse = 0
			e.publish()
			for ch := range e.subs {
				close(ch)
			}
			e.subs = nil
		})
		e.mb.close()
		e.cancel()
		close(e.quit)
		<-e.exited
		e.saver.close()
	})
	return nil
}

// PlayFromIndex plays the queue from position i.
func (e *Engine) PlayFromIndex(i int) error {
	return e.do(func() {
		e.emptyRun = 0
		e.playIndex(i)
	})
}

func (e *Engine) playIndex(i int) {
	item, ok := e.queue.At(i)
	if !ok {
		e.setIdle("Queue is empty.")
		return
	}
	e.queue.SetIndex(i)
	e.persistQueue()
	e.begin(item, false, 0)
}

// PlayChapterNow plays one chapter outside the queue.
func (e *Engine) PlayChapterNow(item queue.Item) error {
	return e.do(func() {
		e.emptyRun = 0
		e.begin(item, true, 0)
	})
}

// PlayPlaylist replaces the queue with a playlist and plays it from
// opts.StartIndex.
func (e *Engine) PlayPlaylist(ctx context.Context, id string, opts PlayOptions) error {
	if e.lists == nil {
		return ErrNoPlaylists
	}
	p, err := e.lists.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("load playlist: %w", err)
	}
	items := p.Items
	if opts.Shuffle {
		items = queue.Shuffle(items, nil)
	}
	return e.do(func() {
		e.halt()
		e.queue.Replace(items, opts.StartIndex)
		e.persistQueue()
		e.emptyRun = 0
		e.playIndex(e.queue.Index())
		if e.cur != nil {
			e.status = "Loaded playlist: " + p.Name
		}
	})
}

// PlayNext skips to the next chapter in the queue. Nothing happens at the
// end of the queue.
func (e *Engine) PlayNext() error {
	return e.do(func() {
		if i := e.queue.Index() + 1; i < e.queue.Len() {
			e.emptyRun = 0
			e.playIndex(i)
		}
	})
}

// PlayPrevious goes back one chapter. Nothing happens at the start.
func (e *Engine) PlayPrevious() error {
	return e.do(func() {
		if i := e.queue.Index() - 1; i >= 0 && i < e.queue.Len() {
			e.emptyRun = 0
			e.playIndex(i)
		}
	})
}

// Pause pauses the current run.
func (e *Engine) Pause() error {
	return e.do(e.pause)
}

func (e *Engine) pause() {
	s := e.cur
	if s == nil || s.paused {
		return
	}
	s.paused = true
	s.hold()
	if s.handle != nil {
		s.handle.Pause()
	}
	e.state = StatePaused
}

// Resume continues a paused run.
func (e *Engine) Resume() error {
	return e.do(e.resume)
}

func (e *Engine) resume() {
	s := e.cur
	if s == nil || !s.paused {
		return
	}
	s.paused = false
	e.state = StateSpeaking
	if s.verses == nil {
		e.state = StateLoading
	}
	if s.handle != nil {
		s.handle.Resume()
	}
	if step := s.pendingStep; step != nil {
		delay := s.pendingDelay
		s.pendingStep, s.pendingDelay = nil, 0
		if delay <= 0 {
			step()
		} else {
			e.schedule(s, delay, step)
		}
	}
}

// TogglePause pauses or resumes. When nothing plays it starts the queue at
// the cursor.
func (e *Engine) TogglePause() error {
	return e.do(func() {
		switch {
		case e.cur == nil:
			e.emptyRun = 0
			e.playIndex(e.queue.Index())
		case e.cur.paused:
			e.resume()
		default:
			e.pause()
		}
	})
}

// Stop ends playback.
func (e *Engine) Stop() error {
	return e.do(func() { e.setIdle("") })
}

// SetRate changes the speech rate. A verse in progress is spoken again at
// the new rate.
func (e *Engine) SetRate(rate float64) error {
	return e.do(func() {
		rate = ClampRate(rate)
		if rate == e.settings.Rate {
			return
		}
		e.settings.Rate = rate
		e.persistSettings()
		if s := e.cur; s != nil && s.verses != nil {
			e.restart(s)
		}
	})
}

// SetCrossfade changes the pause between chapters, in milliseconds.
func (e *Engine) SetCrossfade(ms int) error {
	return e.do(func() {
		e.settings.CrossfadeMS = ClampCrossfade(ms)
		e.persistSettings()
	})
}

// SetRepeatMode changes what plays after a chapter ends.
func (e *Engine) SetRepeatMode(m RepeatMode) error {
	return e.do(func() {
		e.settings.Repeat = Settings{Repeat: m}.Normalize().Repeat
		e.persistSettings()
	})
}

// SetBackend switches the speech backend. Playback stops and does not
// resume by itself.
func (e *Engine) SetBackend(k tts.Kind) error {
	var err error
	doErr := e.do(func() {
		err = e.setBackend(k)
		if err == nil {
			e.persistSettings()
		}
	})
	if doErr != nil {
		return doErr
	}
	return err
}

func (e *Engine) setBackend(k tts.Kind) error {
	if k == e.settings.Backend {
		return nil
	}
	if e.backends[k] == nil {
		return fmt.Errorf("%w: %s", ErrNoBackend, k)
	}
	e.setIdle("")
	e.settings.Backend = k
	return nil
}

// SetLocalVoice picks the piper voice for the next verses.
func (e *Engine) SetLocalVoice(name string) error {
	return e.do(func() {
		e.settings.LocalVoice = strings.TrimSpace(name)
		e.persistSettings()
	})
}

// SetRemoteVoice picks the service voice profile for the next verses.
func (e *Engine) SetRemoteVoice(name string) error {
	return e.do(func() {
		e.settings.RemoteVoice = Settings{RemoteVoice: name}.Normalize().RemoteVoice
		e.persistSettings()
	})
}

// ApplySettings replaces the settings, e.g. after the settings file was
// edited. A rate change restarts the verse in progress and a backend change
// stops playback, as with SetRate and SetBackend. Nothing is saved.
func (e *Engine) ApplySettings(s Settings) error {
	return e.do(func() {
		s = s.Normalize()
		if err := e.setBackend(s.Backend); err != nil {
			e.logger.Warn("Ignoring backend from settings", "err", err)
			s.Backend = e.settings.Backend
		}
		rateChanged := s.Rate != e.settings.Rate
		e.settings = s
		if cur := e.cur; rateChanged && cur != nil && cur.verses != nil {
			e.restart(cur)
		}
	})
}

// Settings returns the current settings.
func (e *Engine) Settings() Settings {
	return e.Snapshot().Settings
}

// AddToQueue appends chapters to the queue.
func (e *Engine) AddToQueue(items ...queue.Item) error {
	return e.do(func() {
		if len(items) == 0 {
			return
		}
		e.queue.Add(items...)
		e.persistQueue()
		if len(items) == 1 {
			e.status = fmt.Sprintf("Added %s to queue.", items[0].Title)
		} else {
			e.status = fmt.Sprintf("Added %d chapters to queue.", len(items))
		}
	})
}

// RemoveFromQueue deletes a queue entry. Removing the chapter being played
// stops playback. A standalone chapter is not part of the queue and keeps
// playing whatever is removed.
func (e *Engine) RemoveFromQueue(id string) error {
	return e.do(func() {
		at, wasCurrent := e.queue.Remove(id)
		if at < 0 {
			return
		}
		e.persistQueue()
		switch {
		case e.cur != nil && e.cur.standalone:
		case e.queue.Len() == 0:
			e.setIdle("")
		case wasCurrent && e.cur != nil:
			e.setIdle("Current chapter removed from active playback.")
		}
	})
}

// MoveItem reorders the queue. The cursor stays on the same chapter.
func (e *Engine) MoveItem(from, to int) error {
	return e.do(func() {
		if e.queue.Move(from, to) {
			e.persistQueue()
		}
	})
}

// ClearQueue empties the queue and stops playback.
func (e *Engine) ClearQueue() error {
	return e.do(func() {
		e.queue.Clear()
		e.persistQueue()
		e.setIdle("")
	})
}

// LoadPlaylistIntoQueue replaces the queue with a playlist without playing.
func (e *Engine) LoadPlaylistIntoQueue(ctx context.Context, id string) error {
	if e.lists == nil {
		return ErrNoPlaylists
	}
	p, err := e.lists.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("load playlist: %w", err)
	}
	return e.do(func() {
		e.setIdle("Loaded playlist: " + p.Name)
		e.queue.Replace(p.Items, 0)
		e.persistQueue()
	})
}

// SaveQueueAsPlaylist stores the queue as a new playlist.
func (e *Engine) SaveQueueAsPlaylist(ctx context.Context, name string) (queue.Playlist, error) {
	if e.lists == nil {
		return queue.Playlist{}, ErrNoPlaylists
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return queue.Playlist{}, errors.New("playlist name is required")
	}

	var items []queue.Item
	if err := e.do(func() { items = e.queue.Items() }); err != nil {
		return queue.Playlist{}, err
	}
	if len(items) == 0 {
		return queue.Playlist{}, ErrEmptyQueue
	}

	p, err := e.lists.Create(ctx, name, items)
	if err != nil {
		return queue.Playlist{}, fmt.Errorf("save playlist: %w", err)
	}
	_ = e.do(func() { e.status = "Saved playlist: " + p.Name })
	return p, nil
}

// ListPlaylists returns the saved playlists.
func (e *Engine) ListPlaylists(ctx context.Context) ([]queue.Playlist, error) {
	if e.lists == nil {
		return nil, ErrNoPlaylists
	}
	return e.lists.List(ctx)
}

// DeletePlaylist removes a saved playlist. The queue is not affected.
func (e *Engine) DeletePlaylist(ctx context.Context, id string) error {
	if e.lists == nil {
		return ErrNoPlaylists
	}
	return e.lists.Delete(ctx, id)
}

// AppendToPlaylist adds one chapter to a saved playlist.
func (e *Engine) AppendToPlaylist(ctx context.Context, id string, item queue.Item) error {
	if e.lists == nil {
		return ErrNoPlaylists
	}
	return e.lists.Append(ctx, id, item)
}
