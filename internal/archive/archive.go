// Package archive persists completed recording sessions to durable storage.
//
// Each entry is a pair of files keyed by a timestamp-derived identifier: one
// audio file and one optional transcript file. There is no separate metadata
// index — size and creation time are derived from the filesystem on every
// read, so the directory itself is the source of truth. Readers must tolerate
// an entry appearing mid-write: "audio exists, transcript missing" is a valid
// transient state, not corruption.
package archive

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrNotFound is returned by [Store.Read] when no audio file exists for the
// requested entry id.
var ErrNotFound = errors.New("archive entry not found")

// transcriptExt is the file extension used for transcript files.
const transcriptExt = ".txt"

// idFormat is the timestamp layout entry ids are derived from.
const idFormat = "20060102-150405"

// Entry describes one archived recording as derived from the filesystem.
type Entry struct {
	// ID is the timestamp-derived identifier shared by the entry's files.
	ID string

	// AudioPath is the absolute path of the audio file. Empty when the entry
	// only has a transcript (a degraded but valid state).
	AudioPath string

	// Transcript is the transcript text, or nil when no transcript file has
	// been committed yet.
	Transcript *string

	// CreatedAt is the audio file's modification time (or the transcript's,
	// when no audio exists).
	CreatedAt time.Time

	// SizeBytes is the audio file size. Zero when no audio exists.
	SizeBytes int64
}

// Handle identifies an allocated archive slot between Begin and the commit
// calls.
type Handle struct {
	id  string
	dir string
}

// ID returns the entry identifier this handle was allocated for.
func (h Handle) ID() string { return h.id }

// Store is the filesystem-backed recording archive.
type Store struct {
	dir string
}

// NewStore creates a Store rooted at dir, creating the directory if absent.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("archive: create dir %q: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the archive directory.
func (s *Store) Dir() string { return s.dir }

// Begin allocates an archive slot for a session that started at the given
// time. The id is the normalized start timestamp; if a slot with that id
// already exists a numeric suffix disambiguates, so two sessions within one
// second never collide.
func (s *Store) Begin(sessionStartedAt time.Time) (Handle, error) {
	base := sessionStartedAt.UTC().Format(idFormat)
	id := base
	for n := 2; s.idExists(id); n++ {
		id = fmt.Sprintf("%s-%d", base, n)
	}
	return Handle{id: id, dir: s.dir}, nil
}

// CommitAudio copies the finalized audio at sourcePath into the entry's audio
// slot, preserving the source extension. Re-invocation overwrites, and any
// previously committed audio with a different extension is removed so an
// entry never carries two audio files.
func (s *Store) CommitAudio(h Handle, sourcePath string) error {
	ext := filepath.Ext(sourcePath)
	if ext == "" || ext == ".tmp" {
		ext = ".wav"
	}
	dst := filepath.Join(h.dir, h.id+ext)

	if prev := s.audioPathFor(h.id); prev != "" && prev != dst {
		if err := os.Remove(prev); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("archive: could not remove superseded audio", "path", prev, "err", err)
		}
	}

	if err := copyFile(sourcePath, dst); err != nil {
		return fmt.Errorf("archive: commit audio for %s: %w", h.id, err)
	}
	return nil
}

// CommitTranscript writes the transcript file for the entry. Committing a
// transcript before (or without) audio is permitted.
func (s *Store) CommitTranscript(h Handle, text string) error {
	dst := filepath.Join(h.dir, h.id+transcriptExt)
	if err := os.WriteFile(dst, []byte(text), 0o644); err != nil {
		return fmt.Errorf("archive: commit transcript for %s: %w", h.id, err)
	}
	return nil
}

// List returns all archive entries, most recent first. Entries without a
// transcript carry a nil Transcript; a transcript-only entry (audio never
// committed) is still listed.
func (s *Store) List() ([]Entry, error) {
	files, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("archive: read dir: %w", err)
	}

	byID := make(map[string]*Entry)
	for _, f := range files {
		if f.IsDir() || strings.HasSuffix(f.Name(), ".tmp") {
			continue
		}
		name := f.Name()
		ext := filepath.Ext(name)
		id := strings.TrimSuffix(name, ext)
		if id == "" {
			continue
		}

		e := byID[id]
		if e == nil {
			e = &Entry{ID: id}
			byID[id] = e
		}

		info, err := f.Info()
		if err != nil {
			continue
		}

		if ext == transcriptExt {
			data, err := os.ReadFile(filepath.Join(s.dir, name))
			if err != nil {
				slog.Warn("archive: unreadable transcript", "id", id, "err", err)
				continue
			}
			text := string(data)
			e.Transcript = &text
			if e.AudioPath == "" {
				e.CreatedAt = info.ModTime()
			}
		} else {
			e.AudioPath = filepath.Join(s.dir, name)
			e.SizeBytes = info.Size()
			e.CreatedAt = info.ModTime()
		}
	}

	out := make([]Entry, 0, len(byID))
	for _, e := range byID {
		out = append(out, *e)
	}
	// Timestamp-derived ids sort chronologically as strings.
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// Read returns the audio bytes for the entry. Returns [ErrNotFound] when the
// entry has no audio file.
func (s *Store) Read(entryID string) ([]byte, error) {
	p := s.audioPathFor(entryID)
	if p == "" {
		return nil, fmt.Errorf("archive: read %q: %w", entryID, ErrNotFound)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("archive: read %q: %w", entryID, err)
	}
	return data, nil
}

// Delete removes the entry's audio and transcript files. It reports true if
// at least the audio file existed; transcript absence is not an error. When
// one of the two removals fails the other is still attempted and the failure
// is reported rather than swallowed.
func (s *Store) Delete(entryID string) (bool, error) {
	var errs []error

	existed := false
	if p := s.audioPathFor(entryID); p != "" {
		if err := os.Remove(p); err != nil {
			errs = append(errs, fmt.Errorf("remove audio: %w", err))
		} else {
			existed = true
		}
	}

	tp := filepath.Join(s.dir, entryID+transcriptExt)
	if err := os.Remove(tp); err != nil && !errors.Is(err, os.ErrNotExist) {
		errs = append(errs, fmt.Errorf("remove transcript: %w", err))
	}

	if len(errs) > 0 {
		return existed, fmt.Errorf("archive: delete %q: %w", entryID, errors.Join(errs...))
	}
	return existed, nil
}

// ClearAll removes every file in the archive directory, including orphaned
// temporary files left behind by interrupted sessions.
func (s *Store) ClearAll() error {
	files, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("archive: read dir: %w", err)
	}

	var errs []error
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, f.Name())); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("archive: clear: %w", errors.Join(errs...))
	}
	return nil
}

// idExists reports whether any non-temporary file with the given id stem is
// present.
func (s *Store) idExists(id string) bool {
	matches, _ := filepath.Glob(filepath.Join(s.dir, id+".*"))
	for _, m := range matches {
		if !strings.HasSuffix(m, ".tmp") {
			return true
		}
	}
	return false
}

// audioPathFor returns the path of the entry's audio file, or "" when none
// exists. Any non-transcript, non-temporary file with the id stem qualifies.
func (s *Store) audioPathFor(id string) string {
	matches, _ := filepath.Glob(filepath.Join(s.dir, id+".*"))
	for _, m := range matches {
		ext := filepath.Ext(m)
		if ext == transcriptExt || ext == ".tmp" {
			continue
		}
		if strings.TrimSuffix(filepath.Base(m), ext) == id {
			return m
		}
	}
	return ""
}

// copyFile copies src to dst byte-for-byte, truncating dst if it exists.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
