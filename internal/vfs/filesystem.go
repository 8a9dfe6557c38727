// Package vfs holds the in-memory model of an editing session's file set:
// named files in display order, a single active-file pointer, and the
// notification emitted when the active file changes.
//
// A FileSystem is not safe for concurrent use; callers that share one across
// goroutines must serialize access themselves.
package vfs

import (
	"fmt"

	"github.com/chis/embedlab/internal/events"
)

// FileRecord is a single named file.
type FileRecord struct {
	Filename   string `json:"filename" yaml:"filename"`
	Readonly   bool   `json:"readonly" yaml:"readonly"`
	Hidden     bool   `json:"hidden" yaml:"hidden"`
	Autoreload bool   `json:"autoreload" yaml:"autoreload"`
	Content    string `json:"content" yaml:"content"`
}

// FileSystem is an ordered set of files plus the active-file pointer.
type FileSystem struct {
	order     []string
	files     map[string]*FileRecord
	active    string
	activeSet bool
	notifier  *events.Notifier
}

// Option configures a FileSystem at construction.
type Option func(*options)

type options struct {
	active    string
	activeSet bool
	notifier  *events.Notifier
}

// WithActiveFile sets the initial active file. It must name one of the
// initial files.
func WithActiveFile(filename string) Option {
	return func(o *options) {
		o.active = filename
		o.activeSet = true
	}
}

// WithNotifier injects the notifier used for active-file events. By default
// each FileSystem creates its own.
func WithNotifier(n *events.Notifier) Option {
	return func(o *options) {
		o.notifier = n
	}
}

// New creates a file system from the initial files, in order. It fails with
// ErrInvariant if filenames repeat or the initial active file is not among
// the files.
func New(files []FileRecord, opts ...Option) (*FileSystem, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	fs := &FileSystem{
		order:    make([]string, 0, len(files)),
		files:    make(map[string]*FileRecord, len(files)),
		notifier: o.notifier,
	}
	if fs.notifier == nil {
		fs.notifier = events.NewNotifier()
	}

	for _, f := range files {
		if _, exists := fs.files[f.Filename]; exists {
			return nil, newError(OpCreate, f.Filename, fmt.Errorf("%w: duplicate filename", ErrInvariant))
		}
		rec := f
		fs.files[f.Filename] = &rec
		fs.order = append(fs.order, f.Filename)
	}

	if o.activeSet {
		if _, ok := fs.files[o.active]; !ok {
			return nil, newError(OpCreate, o.active, fmt.Errorf("%w: active file is not in the file set", ErrInvariant))
		}
		fs.active = o.active
		fs.activeSet = true
	}

	return fs, nil
}

// GetFile returns a copy of the named file.
func (fs *FileSystem) GetFile(filename string) (FileRecord, error) {
	rec, ok := fs.files[filename]
	if !ok {
		return FileRecord{}, newError(OpGet, filename, ErrNotFound)
	}
	return *rec, nil
}

// ListFiles returns copies of all files in insertion order.
func (fs *FileSystem) ListFiles() []FileRecord {
	out := make([]FileRecord, 0, len(fs.order))
	for _, name := range fs.order {
		out = append(out, *fs.files[name])
	}
	return out
}

// Filenames returns the filenames in insertion order.
func (fs *FileSystem) Filenames() []string {
	out := make([]string, len(fs.order))
	copy(out, fs.order)
	return out
}

// Len returns the number of files.
func (fs *FileSystem) Len() int {
	return len(fs.order)
}

// Has reports whether filename is in the set.
func (fs *FileSystem) Has(filename string) bool {
	_, ok := fs.files[filename]
	return ok
}

// ActiveFile returns the active filename and whether one is set.
func (fs *FileSystem) ActiveFile() (string, bool) {
	return fs.active, fs.activeSet
}

// UpdateFileContent replaces the content of a file. Edits to a readonly file
// are silently ignored. Content edits do not notify.
func (fs *FileSystem) UpdateFileContent(filename, content string) error {
	rec, ok := fs.files[filename]
	if !ok {
		return newError(OpUpdate, filename, ErrNotFound)
	}
	if rec.Readonly {
		return nil
	}
	rec.Content = content
	return nil
}

// SetActiveFile makes filename the active file. When the value changes, every
// subscriber is invoked before SetActiveFile returns; they may read the new
// active file through this FileSystem.
func (fs *FileSystem) SetActiveFile(filename string) error {
	if _, ok := fs.files[filename]; !ok {
		return newError(OpSetActive, filename, ErrNotFound)
	}
	if fs.activeSet && fs.active == filename {
		return nil
	}
	fs.active = filename
	fs.activeSet = true

	fs.notifier.Publish(events.Event{
		Type:     events.EventActiveFileChanged,
		Filename: filename,
	})
	return nil
}

// AddFile appends a file after the existing ones.
func (fs *FileSystem) AddFile(record FileRecord) error {
	if _, exists := fs.files[record.Filename]; exists {
		return newError(OpAdd, record.Filename, ErrDuplicateFilename)
	}
	rec := record
	fs.files[record.Filename] = &rec
	fs.order = append(fs.order, record.Filename)
	return nil
}

// RemoveFile deletes a file. The last remaining file cannot be removed.
// If the removed file was active the active pointer is cleared and no event
// is published; choosing the next active file is up to the caller.
func (fs *FileSystem) RemoveFile(filename string) error {
	if _, ok := fs.files[filename]; !ok {
		return newError(OpRemove, filename, ErrNotFound)
	}
	if len(fs.order) == 1 {
		return newError(OpRemove, filename, ErrLastFile)
	}

	delete(fs.files, filename)
	for i, name := range fs.order {
		if name == filename {
			fs.order = append(fs.order[:i:i], fs.order[i+1:]...)
			break
		}
	}

	if fs.activeSet && fs.active == filename {
		fs.active = ""
		fs.activeSet = false
	}
	return nil
}

// Subscribe registers an active-file change handler and returns its
// unsubscribe function.
func (fs *FileSystem) Subscribe(h events.Handler) func() {
	return fs.notifier.Subscribe(h)
}

// Notifier returns the notifier this file system publishes to.
func (fs *FileSystem) Notifier() *events.Notifier {
	return fs.notifier
}
