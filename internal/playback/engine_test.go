package playback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jonboulle/clockwork"

	"github.com/dgnsrekt/fellowship/internal/content"
	"github.com/dgnsrekt/fellowship/internal/queue"
	"github.com/dgnsrekt/fellowship/internal/scripture"
	"github.com/dgnsrekt/fellowship/internal/tts"
)

const waitTimeout = 2 * time.Second

// fakeContent serves chapters by book name.
type fakeContent struct {
	mu       sync.Mutex
	chapters map[string]scripture.Content
	errs     map[string]error
	gates    map[string]chan struct{}
	loads    map[string]int
}

func newFakeContent() *fakeContent {
	return &fakeContent{
		chapters: make(map[string]scripture.Content),
		errs:     make(map[string]error),
		gates:    make(map[string]chan struct{}),
		loads:    make(map[string]int),
	}
}

// plain builds a plain text chapter with one verse per text.
func plain(texts ...string) scripture.Content {
	var b strings.Builder
	for i, text := range texts {
		fmt.Fprintf(&b, "%d %s ", i+1, text)
	}
	return scripture.Content{Kind: scripture.KindPlain, Body: b.String()}
}

func (p *fakeContent) set(book string, c scripture.Content) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chapters[book] = c
}

func (p *fakeContent) fail(book string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errs[book] = err
}

// gate holds loads of book until the returned channel is closed.
func (p *fakeContent) gate(book string) chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	g := make(chan struct{})
	p.gates[book] = g
	return g
}

func (p *fakeContent) loadCount(book string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loads[book]
}

func (p *fakeContent) Chapter(ctx context.Context, ref scripture.ChapterRef) (scripture.Content, error) {
	p.mu.Lock()
	p.loads[ref.Book]++
	c, ok := p.chapters[ref.Book]
	err := p.errs[ref.Book]
	gate := p.gates[ref.Book]
	p.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return scripture.Content{}, ctx.Err()
		}
	}
	if err != nil {
		return scripture.Content{}, err
	}
	if !ok {
		return scripture.Content{}, &content.UnavailableError{Ref: ref}
	}
	return c, nil
}

type fakeHandle struct {
	u    tts.Utterance
	emit func(tts.Event)

	mu                     sync.Mutex
	pauses, resumes, stops int
}

func (h *fakeHandle) Pause() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pauses++
}

func (h *fakeHandle) Resume() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.resumes++
}

func (h *fakeHandle) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stops++
}

func (h *fakeHandle) counts() (pauses, resumes, stops int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pauses, h.resumes, h.stops
}

func (h *fakeHandle) start() { h.emit(tts.Event{Type: tts.EventStarted}) }

func (h *fakeHandle) finish() {
	h.start()
	h.emit(tts.Event{Type: tts.EventEnded})
}

// fakeBackend hands every utterance to the test through calls.
type fakeBackend struct {
	kind  tts.Kind
	calls chan *fakeHandle

	mu    sync.Mutex
	fails map[string]error
}

func newFakeBackend(kind tts.Kind) *fakeBackend {
	return &fakeBackend{
		kind:  kind,
		calls: make(chan *fakeHandle, 64),
		fails: make(map[string]error),
	}
}

func (b *fakeBackend) Kind() tts.Kind { return b.kind }

func (b *fakeBackend) failOn(text string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fails[text] = err
}

func (b *fakeBackend) Speak(_ context.Context, u tts.Utterance, emit func(tts.Event)) (tts.Handle, error) {
	b.mu.Lock()
	err := b.fails[u.Text]
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}
	h := &fakeHandle{u: u, emit: emit}
	b.calls <- h
	return h, nil
}

type fakeQueueStore struct {
	mu    sync.Mutex
	items []queue.Item
	index int
	saves int
}

func (s *fakeQueueStore) SaveQueue(items []queue.Item, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items, s.index = items, index
	s.saves++
	return nil
}

type fakeSettingsStore struct {
	mu    sync.Mutex
	saved *Settings
}

func (s *fakeSettingsStore) SaveSettings(st Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = &st
	return nil
}

type fakePlaylists struct {
	mu    sync.Mutex
	lists map[string]queue.Playlist
	next  int
}

func newFakePlaylists() *fakePlaylists {
	return &fakePlaylists{lists: make(map[string]queue.Playlist)}
}

func (f *fakePlaylists) List(context.Context) ([]queue.Playlist, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []queue.Playlist
	for _, p := range f.lists {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakePlaylists) Get(_ context.Context, id string) (queue.Playlist, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.lists[id]
	if !ok {
		return queue.Playlist{}, errors.New("not found")
	}
	return p, nil
}

func (f *fakePlaylists) Create(_ context.Context, name string, items []queue.Item) (queue.Playlist, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	p := queue.Playlist{ID: fmt.Sprintf("pl-%d", f.next), Name: name, Items: items}
	f.lists[p.ID] = p
	return p, nil
}

func (f *fakePlaylists) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.lists, id)
	return nil
}

func (f *fakePlaylists) Append(_ context.Context, id string, item queue.Item) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.lists[id]
	if !ok {
		return errors.New("not found")
	}
	p.Items = append(p.Items, item)
	f.lists[id] = p
	return nil
}

// fakeClock is the part of clockwork's fake clock the tests drive.
type fakeClock interface {
	clockwork.Clock
	Advance(d time.Duration)
	BlockUntil(n int)
}

type harness struct {
	t        *testing.T
	e        *Engine
	clock    fakeClock
	content  *fakeContent
	local    *fakeBackend
	remote   *fakeBackend
	queues   *fakeQueueStore
	settings *fakeSettingsStore
	lists    *fakePlaylists
}

func item(book string) queue.Item {
	return queue.NewItem(scripture.ChapterRef{Translation: "AMP", Book: book, Chapter: 1})
}

// newHarness starts an engine over items. Every book gets a single verse
// chapter unless the test replaces it.
func newHarness(t *testing.T, items []queue.Item, configure ...func(*Config)) *harness {
	t.Helper()
	h := &harness{
		t:        t,
		clock:    clockwork.NewFakeClock(),
		content:  newFakeContent(),
		local:    newFakeBackend(tts.KindLocal),
		remote:   newFakeBackend(tts.KindRemote),
		queues:   &fakeQueueStore{},
		settings: &fakeSettingsStore{},
		lists:    newFakePlaylists(),
	}
	for _, it := range items {
		h.content.set(it.Book, plain(it.Book+" speaks"))
	}

	cfg := Config{
		Content:       h.content,
		Backends:      []tts.Backend{h.local, h.remote},
		Playlists:     h.lists,
		QueueStore:    h.queues,
		SettingsStore: h.settings,
		Settings:      DefaultSettings(),
		Queue:         items,
		Clock:         h.clock,
		Logger:        log.New(io.Discard),
	}
	for _, fn := range configure {
		fn(&cfg)
	}

	e, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })
	h.e = e
	return h
}

func (h *harness) must(err error) {
	h.t.Helper()
	if err != nil {
		h.t.Fatalf("unexpected error: %v", err)
	}
}

// next waits for the next utterance on b.
func (h *harness) next(b *fakeBackend) *fakeHandle {
	h.t.Helper()
	select {
	case v := <-b.calls:
		return v
	case <-time.After(waitTimeout):
		h.t.Fatalf("no utterance on the %s backend", b.kind)
		return nil
	}
}

// expectText waits for the next utterance and checks its text.
func (h *harness) expectText(b *fakeBackend, text string) *fakeHandle {
	h.t.Helper()
	v := h.next(b)
	if v.u.Text != text {
		h.t.Fatalf("spoke %q, want %q", v.u.Text, text)
	}
	return v
}

// quiet checks that nothing is spoken for a moment.
func (h *harness) quiet(b *fakeBackend) {
	h.t.Helper()
	select {
	case v := <-b.calls:
		h.t.Fatalf("unexpected utterance %q on the %s backend", v.u.Text, b.kind)
	case <-time.After(50 * time.Millisecond):
	}
}

// settle returns once everything posted so far has been handled.
func (h *harness) settle() Snapshot {
	return h.e.Snapshot()
}

// waitTimer blocks until the engine has a timer pending.
func (h *harness) waitTimer() {
	h.t.Helper()
	done := make(chan struct{})
	go func() {
		h.clock.BlockUntil(1)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(waitTimeout):
		h.t.Fatal("engine never scheduled a timer")
	}
}

func (h *harness) advance(d time.Duration) {
	h.t.Helper()
	h.waitTimer()
	h.clock.Advance(d)
}

func (h *harness) gap() { h.advance(verseGap) }

func (h *harness) crossfade() {
	h.advance(h.settle().Settings.Crossfade())
}

func (h *harness) waitSnap(what string, cond func(Snapshot) bool) Snapshot {
	h.t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for {
		snap := h.e.Snapshot()
		if cond(snap) {
			return snap
		}
		if time.Now().After(deadline) {
			h.t.Fatalf("timed out waiting for %s; last snapshot %+v", what, snap)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (h *harness) waitIdle() Snapshot {
	h.t.Helper()
	return h.waitSnap("idle", func(s Snapshot) bool { return s.State == StateIdle })
}

func TestEnginePlaysQueueInOrder(t *testing.T) {
	gen, exo := item("Genesis"), item("Exodus")
	h := newHarness(t, []queue.Item{gen, exo})
	h.content.set("Genesis", plain("In the beginning", "And the earth"))

	h.must(h.e.PlayFromIndex(0))
	v1 := h.expectText(h.local, "In the beginning")
	if v1.u.Rate != 0.95 || v1.u.Translation != "AMP" {
		t.Errorf("utterance = %+v", v1.u)
	}

	v1.start()
	snap := h.settle()
	if snap.State != StateSpeaking || snap.Verse != 1 || snap.VersePos != 1 || snap.VerseCount != 2 {
		t.Errorf("snapshot while speaking = %+v", snap)
	}
	if snap.Item.ID != gen.ID || snap.Standalone {
		t.Errorf("snapshot item = %+v standalone=%v", snap.Item, snap.Standalone)
	}

	v1.emit(tts.Event{Type: tts.EventEnded})
	h.gap()
	v2 := h.expectText(h.local, "And the earth")
	if v2.u.Rate != 0.9 {
		t.Errorf("last verse rate = %v, want 0.9", v2.u.Rate)
	}

	v2.finish()
	h.settle()
	h.quiet(h.local)
	h.crossfade()
	h.expectText(h.local, "Exodus speaks").finish()

	snap = h.waitIdle()
	if snap.Index != 1 || snap.Status != "" || snap.Verse != 0 {
		t.Errorf("final snapshot = %+v", snap)
	}
	if h.content.loadCount("Genesis") != 1 {
		t.Errorf("Genesis loaded %d times", h.content.loadCount("Genesis"))
	}
}

func TestEngineOverlappingPlays(t *testing.T) {
	gen, exo := item("Genesis"), item("Exodus")
	h := newHarness(t, []queue.Item{gen, exo})
	gate := h.content.gate("Genesis")

	h.must(h.e.PlayFromIndex(0))
	h.must(h.e.PlayFromIndex(1))
	v := h.expectText(h.local, "Exodus speaks")

	// the superseded load finishes late and must be ignored
	close(gate)
	h.quiet(h.local)

	v.start()
	before := h.settle()
	h.must(h.e.PlayFromIndex(0))
	if _, _, stops := v.counts(); stops != 1 {
		t.Errorf("superseded handle stopped %d times, want 1", stops)
	}
	g := h.expectText(h.local, "Genesis speaks")

	// late events of the old run change nothing
	v.emit(tts.Event{Type: tts.EventEnded})
	h.quiet(h.local)
	snap := h.settle()
	if snap.Index != 0 || snap.Item.ID != gen.ID || snap.Session <= before.Session {
		t.Errorf("snapshot after overlap = %+v", snap)
	}

	g.start()
	if snap := h.settle(); snap.State != StateSpeaking || snap.Verse != 1 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestEngineRemoveCurrent(t *testing.T) {
	items := []queue.Item{item("Genesis"), item("Exodus"), item("Leviticus")}
	h := newHarness(t, items)

	h.must(h.e.PlayFromIndex(1))
	v := h.expectText(h.local, "Exodus speaks")
	v.start()

	h.must(h.e.RemoveFromQueue(items[1].ID))
	snap := h.settle()
	if snap.State != StateIdle {
		t.Errorf("state = %s, want idle", snap.State)
	}
	if snap.Status != "Current chapter removed from active playback." {
		t.Errorf("status = %q", snap.Status)
	}
	if snap.Index != 1 || len(snap.Queue) != 2 {
		t.Errorf("index %d of %d", snap.Index, len(snap.Queue))
	}
	if _, _, stops := v.counts(); stops != 1 {
		t.Errorf("handle stopped %d times", stops)
	}

	v.emit(tts.Event{Type: tts.EventEnded})
	h.quiet(h.local)
	if snap := h.settle(); snap.State != StateIdle {
		t.Errorf("late event revived playback: %+v", snap)
	}
}

func TestEngineRemoveBeforeCurrent(t *testing.T) {
	items := []queue.Item{item("Genesis"), item("Exodus"), item("Leviticus")}
	h := newHarness(t, items)

	h.must(h.e.PlayFromIndex(2))
	v := h.expectText(h.local, "Leviticus speaks")
	v.start()

	h.must(h.e.RemoveFromQueue(items[0].ID))
	snap := h.settle()
	if snap.Index != 1 || snap.State != StateSpeaking {
		t.Errorf("snapshot = %+v", snap)
	}
	if _, _, stops := v.counts(); stops != 0 {
		t.Errorf("playback was stopped")
	}

	h.must(h.e.RemoveFromQueue("missing"))
	if snap := h.settle(); len(snap.Queue) != 2 {
		t.Errorf("queue length = %d", len(snap.Queue))
	}
}

func TestEngineRemoveLastItem(t *testing.T) {
	only := item("Genesis")
	h := newHarness(t, []queue.Item{only})

	h.must(h.e.PlayFromIndex(0))
	v := h.next(h.local)
	h.must(h.e.RemoveFromQueue(only.ID))

	snap := h.settle()
	if snap.State != StateIdle || snap.Index != 0 || len(snap.Queue) != 0 {
		t.Errorf("snapshot = %+v", snap)
	}
	if _, _, stops := v.counts(); stops != 1 {
		t.Errorf("handle stopped %d times", stops)
	}
}

func TestEngineRemoveLastItemDuringStandalone(t *testing.T) {
	only := item("Genesis")
	h := newHarness(t, []queue.Item{only})
	ruth := item("Ruth")
	h.content.set("Ruth", plain("Whither thou goest", "Thy people"))

	h.must(h.e.PlayChapterNow(ruth))
	v := h.expectText(h.local, "Whither thou goest")
	v.start()

	h.must(h.e.RemoveFromQueue(only.ID))
	snap := h.settle()
	if snap.State != StateSpeaking || !snap.Standalone || snap.Item.ID != ruth.ID {
		t.Errorf("snapshot = %+v", snap)
	}
	if len(snap.Queue) != 0 {
		t.Errorf("queue length = %d", len(snap.Queue))
	}
	if _, _, stops := v.counts(); stops != 0 {
		t.Errorf("handle stopped %d times", stops)
	}

	v.emit(tts.Event{Type: tts.EventEnded})
	h.gap()
	h.expectText(h.local, "Thy people").finish()
	h.waitIdle()
}

func TestEngineMoveCurrent(t *testing.T) {
	items := []queue.Item{item("Genesis"), item("Exodus"), item("Leviticus")}
	h := newHarness(t, items)

	h.must(h.e.PlayFromIndex(0))
	v := h.expectText(h.local, "Genesis speaks")
	v.start()

	h.must(h.e.MoveItem(0, 2))
	snap := h.settle()
	if snap.Index != 2 || snap.Queue[2].ID != items[0].ID {
		t.Errorf("cursor did not follow the moved chapter: %+v", snap)
	}
	if snap.State != StateSpeaking {
		t.Errorf("state = %s", snap.State)
	}

	// the moved chapter is now last, so the run ends with it
	v.emit(tts.Event{Type: tts.EventEnded})
	h.waitIdle()
	h.quiet(h.local)
}

func TestEngineRepeatPlaylist(t *testing.T) {
	items := []queue.Item{item("Genesis"), item("Exodus")}
	h := newHarness(t, items)
	h.must(h.e.SetRepeatMode(RepeatPlaylist))

	h.must(h.e.PlayFromIndex(1))
	h.expectText(h.local, "Exodus speaks").finish()
	h.crossfade()
	h.expectText(h.local, "Genesis speaks")

	if snap := h.settle(); snap.Index != 0 {
		t.Errorf("index = %d, want 0", snap.Index)
	}
}

func TestEngineRepeatChapter(t *testing.T) {
	items := []queue.Item{item("Genesis"), item("Exodus")}
	h := newHarness(t, items)
	h.must(h.e.SetRepeatMode(RepeatChapter))

	h.must(h.e.PlayFromIndex(0))
	h.expectText(h.local, "Genesis speaks").finish()
	h.crossfade()
	h.expectText(h.local, "Genesis speaks")
	if snap := h.settle(); snap.Index != 0 {
		t.Errorf("index = %d, want 0", snap.Index)
	}

	t.Run("standalone", func(t *testing.T) {
		ruth := item("Ruth")
		h.content.set("Ruth", plain("Whither thou goest"))

		h.must(h.e.PlayChapterNow(ruth))
		h.expectText(h.local, "Whither thou goest").finish()
		h.crossfade()
		again := h.expectText(h.local, "Whither thou goest")

		snap := h.settle()
		if !snap.Standalone || snap.Item.ID != ruth.ID || snap.Index != 0 {
			t.Errorf("snapshot = %+v", snap)
		}

		h.must(h.e.SetRepeatMode(RepeatOff))
		again.finish()
		h.waitIdle()
		h.quiet(h.local)
	})
}

func TestEngineRateChangeRestartsVerse(t *testing.T) {
	gen := item("Genesis")
	h := newHarness(t, []queue.Item{gen})
	h.content.set("Genesis", plain("Verse one", "Verse two", "Verse three", "Verse four", "Verse five", "Verse six"))

	h.must(h.e.PlayFromIndex(0))
	for _, text := range []string{"Verse one", "Verse two", "Verse three", "Verse four"} {
		h.expectText(h.local, text).finish()
		h.gap()
	}
	v5 := h.expectText(h.local, "Verse five")
	v5.start()
	before := h.settle()

	h.must(h.e.SetRate(1.1))
	if _, _, stops := v5.counts(); stops != 1 {
		t.Errorf("verse five stopped %d times, want 1", stops)
	}
	r := h.expectText(h.local, "Verse five")
	if r.u.Rate != 1.1 {
		t.Errorf("restarted rate = %v, want 1.1", r.u.Rate)
	}

	snap := h.settle()
	if snap.Session <= before.Session || snap.Verse != 5 || snap.VersePos != 5 || snap.VerseCount != 6 {
		t.Errorf("snapshot after rate change = %+v", snap)
	}

	// the old verse finishing late does not advance anything
	v5.emit(tts.Event{Type: tts.EventEnded})
	h.quiet(h.local)

	// same rate again is a no-op
	h.must(h.e.SetRate(1.1))
	h.quiet(h.local)

	r.finish()
	h.gap()
	last := h.expectText(h.local, "Verse six")
	if last.u.Rate != 1.05 {
		t.Errorf("last verse rate = %v, want 1.05", last.u.Rate)
	}
	if n := h.content.loadCount("Genesis"); n != 1 {
		t.Errorf("chapter loaded %d times, want 1", n)
	}
	if got := h.e.Settings().Rate; got != 1.1 {
		t.Errorf("settings rate = %v", got)
	}
}

func TestEngineSetRateWhileIdle(t *testing.T) {
	h := newHarness(t, []queue.Item{item("Genesis")})
	h.must(h.e.SetRate(5))
	h.quiet(h.local)
	if got := h.e.Settings().Rate; got != MaxRate {
		t.Errorf("rate = %v, want %v", got, MaxRate)
	}
}

func TestEngineCrossfade(t *testing.T) {
	h := newHarness(t, []queue.Item{item("Genesis"), item("Exodus")})
	h.must(h.e.SetCrossfade(1000))

	h.must(h.e.PlayFromIndex(0))
	h.expectText(h.local, "Genesis speaks").finish()
	h.advance(999 * time.Millisecond)
	h.quiet(h.local)
	h.clock.Advance(time.Millisecond)
	h.expectText(h.local, "Exodus speaks")

	h.must(h.e.SetCrossfade(5000))
	if got := h.e.Settings().CrossfadeMS; got != MaxCrossfadeMS {
		t.Errorf("crossfade = %d, want %d", got, MaxCrossfadeMS)
	}
}

func TestEngineSkipsEmptyVerses(t *testing.T) {
	t.Run("middle", func(t *testing.T) {
		h := newHarness(t, []queue.Item{item("Genesis")})
		h.content.set("Genesis", scripture.Content{Kind: scripture.KindPlain, Body: "1 Hello there 2 [4] 3 Goodbye now"})

		h.must(h.e.PlayFromIndex(0))
		h.expectText(h.local, "Hello there").finish()
		h.gap()
		last := h.expectText(h.local, "Goodbye now")
		if last.u.Rate != 0.9 {
			t.Errorf("last verse rate = %v", last.u.Rate)
		}
	})

	t.Run("leading", func(t *testing.T) {
		h := newHarness(t, []queue.Item{item("Genesis")})
		h.content.set("Genesis", scripture.Content{Kind: scripture.KindPlain, Body: "1 [2] 2 Hello there"})

		h.must(h.e.PlayFromIndex(0))
		h.expectText(h.local, "Hello there")
		if snap := h.settle(); snap.VersePos != 2 {
			t.Errorf("verse position = %d, want 2", snap.VersePos)
		}
	})
}

func TestEngineEmptyChapter(t *testing.T) {
	t.Run("moves on", func(t *testing.T) {
		h := newHarness(t, []queue.Item{item("Genesis"), item("Exodus"), item("Leviticus")})
		h.content.set("Exodus", scripture.Content{Kind: scripture.KindPlain})

		h.must(h.e.PlayFromIndex(0))
		h.expectText(h.local, "Genesis speaks").finish()
		h.crossfade()
		h.crossfade()
		h.expectText(h.local, "Leviticus speaks")
		if snap := h.settle(); snap.Index != 2 {
			t.Errorf("index = %d, want 2", snap.Index)
		}
	})

	t.Run("end of queue", func(t *testing.T) {
		h := newHarness(t, []queue.Item{item("Genesis")})
		h.content.set("Genesis", scripture.Content{Kind: scripture.KindPlain})

		h.must(h.e.PlayFromIndex(0))
		snap := h.waitIdle()
		if snap.Status != "No verses found in Genesis 1 (AMP)." {
			t.Errorf("status = %q", snap.Status)
		}
	})

	t.Run("whole playlist empty", func(t *testing.T) {
		h := newHarness(t, []queue.Item{item("Genesis"), item("Exodus")})
		h.content.set("Genesis", scripture.Content{Kind: scripture.KindPlain})
		h.content.set("Exodus", scripture.Content{Kind: scripture.KindMarkup, Body: "<p class=\"s1\">Heading</p>"})
		h.must(h.e.SetRepeatMode(RepeatPlaylist))

		h.must(h.e.PlayFromIndex(0))
		h.crossfade()
		snap := h.waitIdle()
		if snap.Status != "No verses found in Exodus 1 (AMP)." {
			t.Errorf("status = %q", snap.Status)
		}
		h.quiet(h.local)
	})

	t.Run("repeat chapter", func(t *testing.T) {
		h := newHarness(t, []queue.Item{item("Genesis"), item("Exodus")})
		h.content.set("Genesis", scripture.Content{Kind: scripture.KindPlain})
		h.must(h.e.SetRepeatMode(RepeatChapter))

		h.must(h.e.PlayFromIndex(0))
		snap := h.waitIdle()
		if snap.Status == "" || snap.Index != 0 {
			t.Errorf("snapshot = %+v", snap)
		}
		if n := h.content.loadCount("Genesis"); n != 1 {
			t.Errorf("chapter loaded %d times", n)
		}
	})
}

func TestEngineContentFailure(t *testing.T) {
	gen := item("Genesis")

	t.Run("unavailable", func(t *testing.T) {
		h := newHarness(t, []queue.Item{gen, item("Exodus")})
		h.content.fail("Genesis", &content.UnavailableError{Ref: gen.Ref(), Message: "Chapter is not available in AMP."})

		h.must(h.e.PlayFromIndex(0))
		snap := h.waitIdle()
		if snap.Status != "Genesis 1: Chapter is not available in AMP." {
			t.Errorf("status = %q", snap.Status)
		}
		if snap.Index != 0 {
			t.Errorf("index advanced to %d", snap.Index)
		}
		h.quiet(h.local)
	})

	t.Run("transport", func(t *testing.T) {
		h := newHarness(t, []queue.Item{gen})
		h.content.fail("Genesis", errors.New("connection refused"))

		h.must(h.e.PlayFromIndex(0))
		if snap := h.waitIdle(); snap.Status != "Unable to load chapter." {
			t.Errorf("status = %q", snap.Status)
		}
	})
}

func TestEngineSynthesisFailureSkipsVerse(t *testing.T) {
	h := newHarness(t, []queue.Item{item("Genesis")})
	h.content.set("Genesis", plain("First words", "Second words", "Third words"))
	h.local.failOn("Second words", tts.NewError(tts.ErrorCodeSynthesis, "piper exited", nil))

	h.must(h.e.PlayFromIndex(0))
	v1 := h.expectText(h.local, "First words")
	v1.emit(tts.Event{Type: tts.EventErrored, Err: tts.NewError(tts.ErrorCodePlayback, "device busy", nil)})
	h.gap()

	// verse two fails to start and is skipped without another gap
	v3 := h.expectText(h.local, "Third words")
	v3.finish()

	snap := h.waitIdle()
	if snap.Status != "" {
		t.Errorf("status = %q, want none for a partly spoken chapter", snap.Status)
	}
}

func TestEngineSynthesisFailureEveryVerse(t *testing.T) {
	h := newHarness(t, []queue.Item{item("Genesis"), item("Exodus")})
	h.local.failOn("Genesis speaks", tts.NewError(tts.ErrorCodeNetwork, "offline", nil))

	h.must(h.e.PlayFromIndex(0))
	snap := h.waitIdle()
	if snap.Status != "Unable to speak Genesis 1 (AMP)." {
		t.Errorf("status = %q", snap.Status)
	}
	h.quiet(h.local)
}

func TestEnginePauseInGap(t *testing.T) {
	h := newHarness(t, []queue.Item{item("Genesis")})
	h.content.set("Genesis", plain("First words", "Second words"))

	h.must(h.e.PlayFromIndex(0))
	h.expectText(h.local, "First words").finish()
	h.waitTimer()

	h.must(h.e.Pause())
	if snap := h.settle(); snap.State != StatePaused || !snap.Paused() {
		t.Errorf("state = %s, want paused", snap.State)
	}
	h.clock.Advance(time.Second)
	h.quiet(h.local)

	h.must(h.e.Resume())
	if snap := h.settle(); snap.State != StateSpeaking {
		t.Errorf("state = %s after resume", snap.State)
	}
	h.gap()
	h.expectText(h.local, "Second words")
}

func TestEnginePauseWhileSpeaking(t *testing.T) {
	h := newHarness(t, []queue.Item{item("Genesis")})

	h.must(h.e.PlayFromIndex(0))
	v := h.next(h.local)
	v.start()

	h.must(h.e.Pause())
	h.must(h.e.Pause())
	if p, _, _ := v.counts(); p != 1 {
		t.Errorf("handle paused %d times, want 1", p)
	}
	v.emit(tts.Event{Type: tts.EventPaused})
	if snap := h.settle(); snap.State != StatePaused || snap.Verse != 1 {
		t.Errorf("snapshot = %+v", snap)
	}

	h.must(h.e.TogglePause())
	if _, r, _ := v.counts(); r != 1 {
		t.Errorf("handle resumed %d times, want 1", r)
	}
	v.emit(tts.Event{Type: tts.EventResumed})
	if snap := h.settle(); snap.State != StateSpeaking {
		t.Errorf("state = %s", snap.State)
	}
}

func TestEnginePauseWhileLoading(t *testing.T) {
	h := newHarness(t, []queue.Item{item("Genesis")})
	gate := h.content.gate("Genesis")

	h.must(h.e.PlayFromIndex(0))
	h.must(h.e.Pause())
	close(gate)
	h.quiet(h.local)

	h.must(h.e.Resume())
	h.expectText(h.local, "Genesis speaks")
}

func TestEngineTogglePauseFromIdle(t *testing.T) {
	items := []queue.Item{item("Genesis"), item("Exodus")}
	h := newHarness(t, items, func(c *Config) { c.Index = 1 })

	h.must(h.e.TogglePause())
	h.expectText(h.local, "Exodus speaks")
}

func TestEngineBackendSwitch(t *testing.T) {
	h := newHarness(t, []queue.Item{item("Genesis")})

	h.must(h.e.PlayFromIndex(0))
	v := h.next(h.local)
	v.start()

	h.must(h.e.SetBackend(tts.KindRemote))
	snap := h.settle()
	if snap.State != StateIdle || snap.Settings.Backend != tts.KindRemote {
		t.Errorf("snapshot after switch = %+v", snap)
	}
	if _, _, stops := v.counts(); stops != 1 {
		t.Errorf("local handle stopped %d times, want 1", stops)
	}
	h.quiet(h.local)
	h.quiet(h.remote)

	h.must(h.e.SetRemoteVoice("marin"))
	h.must(h.e.PlayFromIndex(0))
	r := h.expectText(h.remote, "Genesis speaks")
	if r.u.Voice != "marin" {
		t.Errorf("remote voice = %q", r.u.Voice)
	}
}

func TestEngineBackendNotConfigured(t *testing.T) {
	local := newFakeBackend(tts.KindLocal)
	h := newHarness(t, []queue.Item{item("Genesis")}, func(c *Config) {
		c.Backends = []tts.Backend{local}
	})

	if err := h.e.SetBackend(tts.KindRemote); !errors.Is(err, ErrNoBackend) {
		t.Errorf("SetBackend = %v, want ErrNoBackend", err)
	}
	if got := h.e.Settings().Backend; got != tts.KindLocal {
		t.Errorf("backend = %s", got)
	}

	h2 := newHarness(t, []queue.Item{item("Genesis")}, func(c *Config) {
		c.Backends = []tts.Backend{local}
		c.Settings.Backend = tts.KindRemote
	})
	h2.must(h2.e.PlayFromIndex(0))
	if snap := h2.settle(); snap.State != StateIdle || snap.Status != "The remote voice is not configured." {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestEngineApplySettings(t *testing.T) {
	h := newHarness(t, []queue.Item{item("Genesis")})
	h.content.set("Genesis", plain("First words", "Second words"))

	h.must(h.e.PlayFromIndex(0))
	v := h.expectText(h.local, "First words")
	v.start()

	s := DefaultSettings()
	s.Rate = 1.0
	s.Repeat = RepeatPlaylist
	h.must(h.e.ApplySettings(s))

	r := h.expectText(h.local, "First words")
	if r.u.Rate != 1 {
		t.Errorf("rate = %v", r.u.Rate)
	}
	if got := h.e.Settings(); got.Repeat != RepeatPlaylist {
		t.Errorf("repeat = %s", got.Repeat)
	}

	// applied settings came from the store and are not written back
	h.must(h.e.Close())
	h.settings.mu.Lock()
	defer h.settings.mu.Unlock()
	if h.settings.saved != nil {
		t.Errorf("applied settings were saved: %+v", *h.settings.saved)
	}
}

func TestEngineQueueOps(t *testing.T) {
	h := newHarness(t, nil)

	h.must(h.e.PlayFromIndex(0))
	if snap := h.settle(); snap.Status != "Queue is empty." || snap.State != StateIdle {
		t.Errorf("snapshot = %+v", snap)
	}

	gen, exo := item("Genesis"), item("Exodus")
	h.content.set("Genesis", plain("Genesis speaks"))
	h.content.set("Exodus", plain("Exodus speaks"))

	h.must(h.e.AddToQueue(gen))
	if snap := h.settle(); snap.Status != "Added Genesis 1 (AMP) to queue." {
		t.Errorf("status = %q", snap.Status)
	}
	h.must(h.e.AddToQueue(exo, item("Leviticus")))
	if snap := h.settle(); snap.Status != "Added 2 chapters to queue." || len(snap.Queue) != 3 {
		t.Errorf("snapshot = %+v", snap)
	}

	// out of range skips are ignored
	h.must(h.e.PlayPrevious())
	h.quiet(h.local)

	h.must(h.e.PlayNext())
	h.expectText(h.local, "Exodus speaks")
	h.must(h.e.PlayPrevious())
	h.expectText(h.local, "Genesis speaks")

	h.must(h.e.ClearQueue())
	snap := h.settle()
	if snap.State != StateIdle || snap.Index != 0 || len(snap.Queue) != 0 {
		t.Errorf("snapshot after clear = %+v", snap)
	}

	h.must(h.e.PlayNext())
	h.quiet(h.local)
}

func TestEngineStop(t *testing.T) {
	h := newHarness(t, []queue.Item{item("Genesis")})

	h.must(h.e.PlayFromIndex(0))
	v := h.next(h.local)
	h.must(h.e.Stop())
	if _, _, stops := v.counts(); stops != 1 {
		t.Errorf("handle stopped %d times", stops)
	}
	if snap := h.settle(); snap.State != StateIdle || snap.Playing() {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestEnginePersistence(t *testing.T) {
	items := []queue.Item{item("Genesis"), item("Exodus")}
	h := newHarness(t, items)

	h.must(h.e.MoveItem(1, 0))
	h.must(h.e.SetRate(1.05))
	h.must(h.e.SetRepeatMode(RepeatChapter))
	h.must(h.e.SetLocalVoice(" en_US-amy-low "))
	h.must(h.e.Close())

	h.queues.mu.Lock()
	if len(h.queues.items) != 2 || h.queues.items[0].ID != items[1].ID {
		t.Errorf("saved queue = %+v", h.queues.items)
	}
	h.queues.mu.Unlock()

	h.settings.mu.Lock()
	defer h.settings.mu.Unlock()
	if h.settings.saved == nil {
		t.Fatal("settings were not saved")
	}
	got := *h.settings.saved
	if got.Rate != 1.05 || got.Repeat != RepeatChapter || got.LocalVoice != "en_US-amy-low" {
		t.Errorf("saved settings = %+v", got)
	}
}

func TestEnginePlaylists(t *testing.T) {
	items := []queue.Item{item("Genesis"), item("Exodus")}
	h := newHarness(t, items)
	ctx := context.Background()

	if _, err := h.e.SaveQueueAsPlaylist(ctx, "   "); err == nil {
		t.Error("expected an error for a blank name")
	}

	p, err := h.e.SaveQueueAsPlaylist(ctx, "  Morning ")
	h.must(err)
	if p.Name != "Morning" || len(p.Items) != 2 {
		t.Errorf("playlist = %+v", p)
	}
	if snap := h.settle(); snap.Status != "Saved playlist: Morning" {
		t.Errorf("status = %q", snap.Status)
	}

	h.must(h.e.AppendToPlaylist(ctx, p.ID, item("Leviticus")))
	h.content.set("Leviticus", plain("Leviticus speaks"))

	h.must(h.e.ClearQueue())
	if _, err := h.e.SaveQueueAsPlaylist(ctx, "Empty"); !errors.Is(err, ErrEmptyQueue) {
		t.Errorf("saving an empty queue = %v", err)
	}

	h.must(h.e.LoadPlaylistIntoQueue(ctx, p.ID))
	snap := h.settle()
	if len(snap.Queue) != 3 || snap.Index != 0 || snap.State != StateIdle {
		t.Errorf("snapshot after load = %+v", snap)
	}
	if snap.Status != "Loaded playlist: Morning" {
		t.Errorf("status = %q", snap.Status)
	}
	h.quiet(h.local)

	h.must(h.e.PlayPlaylist(ctx, p.ID, PlayOptions{StartIndex: 2}))
	h.expectText(h.local, "Leviticus speaks")
	if snap := h.settle(); snap.Index != 2 || snap.Status != "Loaded playlist: Morning" {
		t.Errorf("snapshot = %+v", snap)
	}

	lists, err := h.e.ListPlaylists(ctx)
	h.must(err)
	if len(lists) != 1 {
		t.Errorf("listed %d playlists", len(lists))
	}
	h.must(h.e.DeletePlaylist(ctx, p.ID))
	if err := h.e.PlayPlaylist(ctx, p.ID, PlayOptions{}); err == nil {
		t.Error("expected an error for a deleted playlist")
	}
}

func TestEngineWithoutPlaylists(t *testing.T) {
	h := newHarness(t, nil, func(c *Config) { c.Playlists = nil })
	ctx := context.Background()

	if _, err := h.e.ListPlaylists(ctx); !errors.Is(err, ErrNoPlaylists) {
		t.Errorf("ListPlaylists = %v", err)
	}
	if err := h.e.LoadPlaylistIntoQueue(ctx, "x"); !errors.Is(err, ErrNoPlaylists) {
		t.Errorf("LoadPlaylistIntoQueue = %v", err)
	}
}

func receive(t *testing.T, ch <-chan Snapshot, what string, cond func(Snapshot) bool) {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case snap, ok := <-ch:
			if !ok {
				t.Fatalf("subscription closed while waiting for %s", what)
			}
			if cond(snap) {
				return
			}
		case <-deadline:
			t.Fatalf("no snapshot with %s", what)
		}
	}
}

func TestEngineSubscribe(t *testing.T) {
	h := newHarness(t, nil)

	ch, cancel := h.e.Subscribe()
	defer cancel()

	select {
	case snap := <-ch:
		if snap.State != StateIdle {
			t.Errorf("first snapshot = %+v", snap)
		}
	case <-time.After(waitTimeout):
		t.Fatal("no initial snapshot")
	}

	h.must(h.e.AddToQueue(item("Genesis")))
	receive(t, ch, "the added chapter", func(s Snapshot) bool { return len(s.Queue) == 1 })

	h.must(h.e.Close())
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-time.After(waitTimeout):
			t.Fatal("subscription was not closed")
		}
	}
}

func TestEngineClosed(t *testing.T) {
	h := newHarness(t, nil)
	h.must(h.e.Close())
	h.must(h.e.Close())

	if err := h.e.PlayFromIndex(0); !errors.Is(err, ErrClosed) {
		t.Errorf("PlayFromIndex after close = %v", err)
	}
	if snap := h.e.Snapshot(); snap.State != StateStopped {
		t.Errorf("state = %s", snap.State)
	}
	ch, cancel := h.e.Subscribe()
	cancel()
	if _, ok := <-ch; ok {
		t.Error("subscription after close should be closed")
	}
}

func TestNewEngineValidates(t *testing.T) {
	if _, err := NewEngine(Config{Backends: []tts.Backend{newFakeBackend(tts.KindLocal)}}); err == nil {
		t.Error("expected an error without content")
	}
	if _, err := NewEngine(Config{Content: newFakeContent()}); err == nil {
		t.Error("expected an error without backends")
	}
}
