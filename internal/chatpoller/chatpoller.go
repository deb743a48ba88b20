// Package chatpoller implements the Chat TUI Poller's non-UI half: a fixed
// interval scan of a thread's message files and stream buffers, emitting a
// typed event stream the UI layer mounts or updates panels from.
package chatpoller

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/kdorchestrator/kd/internal/invoker"
	"github.com/kdorchestrator/kd/internal/kdpath"
	"github.com/kdorchestrator/kd/internal/thread"
)

// DefaultInterval is the poller's fixed tick rate.
const DefaultInterval = 100 * time.Millisecond

// EventKind distinguishes the lightweight records dispatched to the UI.
type EventKind int

const (
	EventNewMessage EventKind = iota
	EventStreamDelta
	EventThinkingDelta
)

// Event is one dispatched poll record.
type Event struct {
	Kind    EventKind
	Message thread.Message // set for EventNewMessage
	Member  string         // set for EventStreamDelta / EventThinkingDelta
	Text    string         // delta text for stream/thinking events
}

// streamState tracks one member's stream-file read offset across ticks.
type streamState struct {
	offset int64
}

// Poller scans a single thread on each Poll call and returns new events
// since the last call.
type Poller struct {
	Layout     kdpath.Layout
	Threads    *thread.Store
	Backends   map[string]invoker.Backend
	BranchSlug string
	ThreadSlug string
	Members    []string

	lastSeq int
	streams map[string]*streamState
	watcher *fsnotify.Watcher
	wake    chan struct{}
}

// New creates a poller starting from the thread's current tail.
func New(layout kdpath.Layout, threads *thread.Store, backends map[string]invoker.Backend, branchSlug, threadSlug string, members []string) (*Poller, error) {
	p := &Poller{
		Layout:     layout,
		Threads:    threads,
		Backends:   backends,
		BranchSlug: branchSlug,
		ThreadSlug: threadSlug,
		Members:    members,
		streams:    make(map[string]*streamState),
	}
	existing, err := threads.ListMessages(branchSlug, threadSlug)
	if err != nil {
		return nil, err
	}
	for _, m := range existing {
		if m.Seq > p.lastSeq {
			p.lastSeq = m.Seq
		}
	}
	for _, name := range members {
		p.streams[name] = &streamState{}
	}
	p.startWatch()
	return p, nil
}

// startWatch arms an optional fsnotify watch on the thread directory so
// Wake can fire before the next fixed-interval tick. Unsupported
// platforms or an unreadable directory leave the poller running on the
// fixed interval alone — the watch is a latency improvement, never a
// correctness requirement.
func (p *Poller) startWatch() {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return
	}
	dir := p.Layout.Thread(p.BranchSlug, p.ThreadSlug)
	if err := w.Add(dir); err != nil {
		w.Close()
		return
	}
	p.watcher = w
	p.wake = make(chan struct{}, 1)
	go func() {
		for range w.Events {
			select {
			case p.wake <- struct{}{}:
			default:
			}
		}
	}()
}

// Wake returns a channel that receives a value shortly after the thread
// directory changes on disk, for callers that want to poll sooner than
// DefaultInterval. Nil if no watcher could be armed.
func (p *Poller) Wake() <-chan struct{} { return p.wake }

// Close releases the optional fsnotify watcher. Safe to call even when no
// watcher was armed.
func (p *Poller) Close() error {
	if p.watcher == nil {
		return nil
	}
	return p.watcher.Close()
}

// Poll performs one tick: new-message scan (step 1) followed by a stream-file
// delta scan for every configured member (step 2).
func (p *Poller) Poll() ([]Event, error) {
	var events []Event

	newMsgs, err := p.Threads.ListMessagesAfter(p.BranchSlug, p.ThreadSlug, p.lastSeq)
	if err != nil {
		return nil, fmt.Errorf("chatpoller: scan messages: %w", err)
	}
	for _, m := range newMsgs {
		events = append(events, Event{Kind: EventNewMessage, Message: m})
		if m.Seq > p.lastSeq {
			p.lastSeq = m.Seq
		}
	}

	for _, name := range p.Members {
		st, ok := p.streams[name]
		if !ok {
			st = &streamState{}
			p.streams[name] = st
		}
		deltas, err := p.pollStream(name, st)
		if err != nil {
			continue // a missing or transiently unreadable stream file is not fatal
		}
		events = append(events, deltas...)
	}

	return events, nil
}

// pollStream implements step 2: read bytes past the tracked offset, parse
// complete NDJSON lines, retain any partial trailing line for the next
// tick, and reset to 0 if the file shrank (retry/restart scenario).
func (p *Poller) pollStream(member string, st *streamState) ([]Event, error) {
	path := p.Layout.StreamFile(p.BranchSlug, p.ThreadSlug, member)
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := info.Size()
	if size < st.offset {
		st.offset = 0
	}
	if size == st.offset {
		return nil, nil
	}

	buf := make([]byte, size-st.offset)
	if _, err := f.ReadAt(buf, st.offset); err != nil {
		return nil, err
	}

	// A writer can be mid-write on the final line; only consume up to the
	// last newline so a partial trailing line is retried (from the same
	// offset) once it's complete.
	lastNewline := bytes.LastIndexByte(buf, '\n')
	if lastNewline < 0 {
		return nil, nil
	}
	complete := buf[:lastNewline+1]
	st.offset += int64(len(complete))

	backend, ok := p.Backends[member]
	if !ok {
		return nil, nil
	}
	deltas, err := invoker.ParseDeltas(backend.Schema, complete)
	if err != nil {
		return nil, err
	}
	events := make([]Event, 0, len(deltas))
	for _, d := range deltas {
		kind := EventStreamDelta
		if d.Thinking {
			kind = EventThinkingDelta
		}
		events = append(events, Event{Kind: kind, Member: member, Text: d.Text})
	}
	return events, nil
}
