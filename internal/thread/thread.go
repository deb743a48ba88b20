// Package thread implements the append-only, sequentially numbered
// conversation log shared by council reviews, peasant worklogs, and
// interactive chat. Sequencing is coordinated by exclusive file creation,
// never by OS locks, so the store is safe across independent processes.
package thread

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kdorchestrator/kd/internal/frontmatter"
	"github.com/kdorchestrator/kd/internal/jsonfile"
	"github.com/kdorchestrator/kd/internal/kdpath"
	"github.com/kdorchestrator/kd/internal/slug"
)

// ErrContended is returned when AppendMessage exhausts its retry budget
// racing other writers for the next sequence number.
var ErrContended = errors.New("thread: exclusive-create retries exhausted")

// maxCreateRetries bounds the exclusive-create race; the window between
// scan and create is small, so a handful of attempts is sufficient.
const maxCreateRetries = 8

var messageFileName = regexp.MustCompile(`^(\d{4})-(.+)\.md$`)

// Pattern classifies a thread's intended usage.
type Pattern string

const (
	PatternCouncil Pattern = "council"
	PatternWork    Pattern = "work"
	PatternDirect  Pattern = "direct"
)

// Meta is a thread's metadata blob, stored as thread.json.
type Meta struct {
	Members   []string  `json:"members"`
	Pattern   Pattern   `json:"pattern"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is one immutable entry in a thread.
type Message struct {
	Seq       int
	From      string
	To        string
	Timestamp time.Time
	Refs      []string
	Body      string
	Path      string
}

type messageFrontmatter struct {
	From      string   `yaml:"from"`
	To        string   `yaml:"to,omitempty"`
	Timestamp string   `yaml:"timestamp"`
	Refs      []string `yaml:"refs,omitempty"`
}

// Store is the Thread Store's filesystem implementation.
type Store struct {
	Layout kdpath.Layout
}

func New(layout kdpath.Layout) *Store { return &Store{Layout: layout} }

// CreateThread writes a new thread's metadata blob. It refuses to overwrite
// an existing thread.
func (s *Store) CreateThread(branchSlug, id string, members []string, pattern Pattern) error {
	dir := s.Layout.Thread(branchSlug, id)
	metaPath := s.Layout.ThreadMeta(branchSlug, id)
	if _, err := os.Stat(metaPath); err == nil {
		return fmt.Errorf("thread: %s already exists", id)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("thread: create dir: %w", err)
	}
	meta := Meta{Members: members, Pattern: pattern, CreatedAt: time.Now().UTC()}
	return jsonfile.Write(metaPath, meta)
}

// ReadThreadMeta loads a thread's metadata blob.
func (s *Store) ReadThreadMeta(branchSlug, id string) (Meta, error) {
	var meta Meta
	err := jsonfile.Read(s.Layout.ThreadMeta(branchSlug, id), &meta)
	return meta, err
}

// ThreadInfo is one entry returned by ListThreads.
type ThreadInfo struct {
	Slug string
	Meta Meta
}

// ListThreads enumerates thread directories under a branch.
func (s *Store) ListThreads(branchSlug string) ([]ThreadInfo, error) {
	dir := s.Layout.Threads(branchSlug)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("thread: list threads: %w", err)
	}
	var out []ThreadInfo
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		meta, err := s.ReadThreadMeta(branchSlug, e.Name())
		if err != nil {
			continue
		}
		out = append(out, ThreadInfo{Slug: e.Name(), Meta: meta})
	}
	return out, nil
}

// AppendMessage atomically appends the next message to a thread, stripping
// per-line trailing whitespace from body. Returns the assigned sequence
// number and the written file's path.
func (s *Store) AppendMessage(branchSlug, threadSlug, from, to, body string, refs []string) (int, string, error) {
	dir := s.Layout.Thread(branchSlug, threadSlug)
	senderSlug := slug.Normalize(from)
	if senderSlug == "" {
		senderSlug = "unknown"
	}

	fm := messageFrontmatter{
		From:      from,
		To:        to,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Refs:      refs,
	}
	rendered, err := frontmatter.Render(fm, body)
	if err != nil {
		return 0, "", fmt.Errorf("thread: render message: %w", err)
	}

	for attempt := 0; attempt < maxCreateRetries; attempt++ {
		next, err := s.nextSeq(dir)
		if err != nil {
			return 0, "", err
		}
		name := fmt.Sprintf("%04d-%s.md", next, senderSlug)
		path := filepath.Join(dir, name)

		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err != nil {
			if os.IsExist(err) {
				continue // lost the race for this N, retry with a fresh scan
			}
			return 0, "", fmt.Errorf("thread: open message file: %w", err)
		}
		_, writeErr := f.Write(rendered)
		closeErr := f.Close()
		if writeErr != nil {
			return 0, "", fmt.Errorf("thread: write message: %w", writeErr)
		}
		if closeErr != nil {
			return 0, "", fmt.Errorf("thread: close message file: %w", closeErr)
		}
		return next, path, nil
	}
	return 0, "", ErrContended
}

func (s *Store) nextSeq(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 1, nil
		}
		return 0, fmt.Errorf("thread: scan dir: %w", err)
	}
	max := 0
	for _, e := range entries {
		m := messageFileName.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}
	return max + 1, nil
}

// ReadMessage parses one message file.
func ReadMessage(path string) (Message, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Message{}, fmt.Errorf("thread: read message: %w", err)
	}
	doc, err := frontmatter.Parse(data)
	if err != nil {
		return Message{}, fmt.Errorf("thread: parse message %s: %w", path, err)
	}

	base := filepath.Base(path)
	m := messageFileName.FindStringSubmatch(base)
	if m == nil {
		return Message{}, fmt.Errorf("thread: %s does not match message filename pattern", base)
	}
	seq, _ := strconv.Atoi(m[1])

	msg := Message{Seq: seq, Path: path, Body: doc.Body}
	if v, ok := doc.Raw["from"].(string); ok {
		msg.From = v
	}
	if v, ok := doc.Raw["to"].(string); ok {
		msg.To = v
	}
	if v, ok := doc.Raw["timestamp"].(string); ok {
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			msg.Timestamp = ts
		}
	}
	if rawRefs, ok := doc.Raw["refs"].([]any); ok {
		for _, r := range rawRefs {
			if rs, ok := r.(string); ok {
				msg.Refs = append(msg.Refs, rs)
			}
		}
	}
	return msg, nil
}

// ListMessages returns every message in a thread, sorted by numeric
// sequence prefix. Files whose name doesn't match the NNNN-<sender>.md
// pattern (including stream buffers and thread.json) are skipped.
func (s *Store) ListMessages(branchSlug, threadSlug string) ([]Message, error) {
	dir := s.Layout.Thread(branchSlug, threadSlug)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("thread: list messages: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if messageFileName.MatchString(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	msgs := make([]Message, 0, len(names))
	for _, name := range names {
		msg, err := ReadMessage(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// ListMessagesAfter returns messages with sequence number strictly greater
// than afterSeq, used by the harness to find new king-directives and by the
// TUI poller to find new messages since its last tick.
func (s *Store) ListMessagesAfter(branchSlug, threadSlug string, afterSeq int) ([]Message, error) {
	all, err := s.ListMessages(branchSlug, threadSlug)
	if err != nil {
		return nil, err
	}
	var out []Message
	for _, m := range all {
		if m.Seq > afterSeq {
			out = append(out, m)
		}
	}
	return out, nil
}

// FormatSenderPrefix returns "sender:" (no trailing space) used when avoiding double-prefixing
// during history injection.
func FormatSenderPrefix(sender string) string {
	return sender + ":"
}

// StripSenderPrefix removes a leading "<sender>:" prefix from body if
// present, to avoid double-prefixing during recursive injection.
func StripSenderPrefix(sender, body string) string {
	prefix := FormatSenderPrefix(sender)
	trimmed := strings.TrimPrefix(strings.TrimSpace(body), prefix)
	if trimmed != strings.TrimSpace(body) {
		return strings.TrimSpace(trimmed)
	}
	return body
}
