package playback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/dgnsrekt/fellowship/internal/content"
	"github.com/dgnsrekt/fellowship/internal/queue"
	"github.com/dgnsrekt/fellowship/internal/scripture"
	"github.com/dgnsrekt/fellowship/internal/tts"
)

// verseGap separates verses so the audio pipeline can settle.
const verseGap = 100 * time.Millisecond

// session is one playback run of one chapter. Everything it holds is owned
// by the engine goroutine.
type session struct {
	id     uint64
	ctx    context.Context
	cancel context.CancelFunc

	item       queue.Item
	standalone bool
	startVerse int // resume at the first verse numbered at least this

	verses []scripture.VerseUnit
	texts  []string // cleaned, "" for verses with nothing to say
	pos    int      // verse being spoken, or the next one during a gap
	utt    uint64   // bumped for every utterance

	handle tts.Handle

	timer        clockwork.Timer
	timerDelay   time.Duration
	timerStep    func()
	paused       bool
	pendingDelay time.Duration
	pendingStep  func()

	spoken int
	failed int
}

// post runs fn on the engine goroutine if s is still the current session.
func (e *Engine) post(s *session, fn func()) {
	e.mb.put(func() {
		if e.cur != s {
			return
		}
		fn()
	})
}

// begin mints a session for item and starts loading it.
func (e *Engine) begin(item queue.Item, standalone bool, startVerse int) *session {
	s := e.mint(item, standalone)
	if s == nil {
		return nil
	}
	s.startVerse = startVerse
	go e.load(s)
	return s
}

// mint stops whatever played and makes a new current session.
func (e *Engine) mint(item queue.Item, standalone bool) *session {
	e.halt()

	if e.backends[e.settings.Backend] == nil {
		e.setIdle(fmt.Sprintf("The %s voice is not configured.", e.settings.Backend))
		return nil
	}

	e.seq++
	ctx, cancel := context.WithCancel(e.ctx)
	s := &session{
		id:         e.seq,
		ctx:        ctx,
		cancel:     cancel,
		item:       item,
		standalone: standalone,
	}
	e.cur = s
	e.item = item
	e.standalone = standalone
	e.state = StateLoading
	e.verse = 0
	e.status = ""
	e.logger.Debug("Session started", "session", s.id, "chapter", item.Title, "standalone", standalone)
	return s
}

// restart continues s in a new session from its current verse with the
// verses already loaded.
func (e *Engine) restart(s *session) {
	next := e.mint(s.item, s.standalone)
	if next == nil {
		return
	}
	next.verses, next.texts = s.verses, s.texts
	next.pos = s.pos
	next.spoken, next.failed = s.spoken, s.failed
	e.verse = 0
	if s.pos < len(s.verses) {
		e.verse = s.verses[s.pos].Number
	}
	e.state = StateSpeaking
	if s.paused {
		next.paused = true
		e.state = StatePaused
	}
	e.speakNext(next)
}

// load fetches and segments the chapter off the engine goroutine.
func (e *Engine) load(s *session) {
	c, err := e.content.Chapter(s.ctx, s.item.Ref())
	var verses []scripture.VerseUnit
	var texts []string
	if err == nil {
		verses = scripture.Segment(c)
		texts = make([]string, len(verses))
		for i, v := range verses {
			texts[i] = scripture.Clean(v.Text, v.Number)
		}
	}
	e.post(s, func() { e.loaded(s, verses, texts, err) })
}

func (e *Engine) loaded(s *session, verses []scripture.VerseUnit, texts []string, err error) {
	if err != nil {
		if tts.IsCanceled(err) {
			return
		}
		e.logger.Warn("Chapter load failed", "chapter", s.item.Title, "err", err)
		e.setIdle(loadFailure(err))
		return
	}

	s.verses, s.texts = verses, texts
	s.pos = 0
	if s.startVerse > 0 {
		for i, v := range verses {
			if v.Number >= s.startVerse {
				s.pos = i
				break
			}
		}
	}
	e.speakNext(s)
}

func loadFailure(err error) string {
	var unavailable *content.UnavailableError
	if errors.As(err, &unavailable) {
		return unavailable.Error()
	}
	return "Unable to load chapter."
}

// nextSpeakable returns the first verse at or after i with something to say.
func (s *session) nextSpeakable(i int) int {
	for i < len(s.texts) && s.texts[i] == "" {
		i++
	}
	return i
}

func (s *session) lastSpeakable() int {
	for i := len(s.texts) - 1; i >= 0; i-- {
		if s.texts[i] != "" {
			return i
		}
	}
	return -1
}

// speakNext speaks the verse at s.pos, skipping empty ones without delay.
func (e *Engine) speakNext(s *session) {
	if s.paused {
		s.pendingDelay, s.pendingStep = 0, func() { e.speakNext(s) }
		return
	}

	for {
		s.pos = s.nextSpeakable(s.pos)
		if s.pos >= len(s.verses) {
			e.chapterExhausted(s)
			return
		}

		v := s.verses[s.pos]
		u := tts.Utterance{
			Text:        s.texts[s.pos],
			Rate:        e.settings.verseRate(s.pos == s.lastSpeakable()),
			Voice:       e.settings.Voice(),
			Translation: s.item.Translation,
		}

		s.utt++
		n := s.utt
		h, err := e.backends[e.settings.Backend].Speak(s.ctx, u, func(ev tts.Event) {
			e.post(s, func() {
				if s.utt != n {
					return
				}
				e.onEvent(s, v.Number, ev)
			})
		})
		if err != nil {
			e.verseFailed(s, v.Number, err)
			s.pos++
			continue
		}
		s.handle = h
		return
	}
}

func (e *Engine) onEvent(s *session, verse int, ev tts.Event) {
	switch ev.Type {
	case tts.EventStarted:
		e.verse = verse
		if s.paused {
			e.state = StatePaused
		} else {
			e.state = StateSpeaking
		}
	case tts.EventPaused:
		e.state = StatePaused
	case tts.EventResumed:
		e.state = StateSpeaking
	case tts.EventEnded:
		s.handle = nil
		s.spoken++
		e.verseDone(s)
	case tts.EventErrored:
		s.handle = nil
		if tts.IsCanceled(ev.Err) {
			return
		}
		e.verseFailed(s, verse, ev.Err)
		e.verseDone(s)
	}
}

// verseFailed records a verse that could not be spoken. One lost verse is
// skipped, not reported.
func (e *Engine) verseFailed(s *session, verse int, err error) {
	s.failed++
	e.logger.Warn("Verse synthesis failed",
		"verse", s.item.Ref().Reference(verse),
		"backend", e.settings.Backend,
		"retryable", tts.IsRetryable(err),
		"err", err)
}

func (e *Engine) verseDone(s *session) {
	s.pos = s.nextSpeakable(s.pos + 1)
	if s.pos >= len(s.verses) {
		e.chapterExhausted(s)
		return
	}
	e.schedule(s, verseGap, func() { e.speakNext(s) })
}

// chapterExhausted runs once the last verse finished.
func (e *Engine) chapterExhausted(s *session) {
	switch {
	case s.spoken == 0 && s.failed > 0:
		e.setIdle(fmt.Sprintf("Unable to speak %s.", s.item.Title))
		return
	case s.spoken == 0:
		e.emptyChapter(s)
		return
	}

	e.emptyRun = 0
	if s.standalone {
		if e.settings.Repeat != RepeatChapter {
			e.setIdle("")
			return
		}
		e.schedule(s, e.settings.Crossfade(), func() { e.begin(s.item, true, 0) })
		return
	}

	if _, ok := nextTarget(e.queue.Index(), e.queue.Len(), e.settings.Repeat); !ok {
		e.setIdle("")
		return
	}
	e.schedule(s, e.settings.Crossfade(), e.advance)
}

// advance plays the chapter after the cursor. The target is picked when the
// crossfade ends so queue edits made during it count.
func (e *Engine) advance() {
	target, ok := nextTarget(e.queue.Index(), e.queue.Len(), e.settings.Repeat)
	if !ok {
		e.setIdle("")
		return
	}
	e.playIndex(target)
}

// emptyChapter handles a chapter without a single speakable verse: move on
// when there is somewhere to go, stop when that would loop forever.
func (e *Engine) emptyChapter(s *session) {
	e.emptyRun++
	msg := fmt.Sprintf("No verses found in %s.", s.item.Title)
	e.logger.Warn("Chapter has no verses", "chapter", s.item.Title)

	if s.standalone || e.settings.Repeat == RepeatChapter {
		e.setIdle(msg)
		return
	}
	if _, ok := nextTarget(e.queue.Index(), e.queue.Len(), e.settings.Repeat); !ok || e.emptyRun >= e.queue.Len() {
		e.setIdle(msg)
		return
	}
	e.schedule(s, e.settings.Crossfade(), e.advance)
}

// schedule runs step after d unless s is superseded first. A pause during
// the wait holds the step until resume.
func (e *Engine) schedule(s *session, d time.Duration, step func()) {
	if s.timer != nil {
		s.timer.Stop()
	}
	var t clockwork.Timer
	t = e.clock.AfterFunc(d, func() {
		e.post(s, func() {
			if s.timer != t {
				return
			}
			s.timer, s.timerStep = nil, nil
			step()
		})
	})
	s.timer, s.timerDelay, s.timerStep = t, d, step
}

// hold parks a scheduled step while paused.
func (s *session) hold() {
	if s.timer == nil {
		return
	}
	s.timer.Stop()
	s.pendingDelay, s.pendingStep = s.timerDelay, s.timerStep
	s.timer, s.timerStep = nil, nil
}

// halt stops the current session: its context, its timer and its audio.
func (e *Engine) halt() {
	s := e.cur
	if s == nil {
		return
	}
	e.cur = nil
	s.cancel()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.handle != nil {
		s.handle.Stop()
		s.handle = nil
	}
	e.logger.Debug("Session ended", "session", s.id)
}

// setIdle ends playback with status as the listener-facing explanation.
func (e *Engine) setIdle(status string) {
	e.halt()
	e.state = StateIdle
	e.verse = 0
	e.status = status
}
