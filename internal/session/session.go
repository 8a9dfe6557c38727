// Package session keeps the live editing sessions behind the HTTP API. A
// Session wraps one vfs.FileSystem together with the assignment metadata and
// display options it was opened with.
package session

import (
	"sync"
	"time"

	"github.com/chis/embedlab/internal/codec"
	"github.com/chis/embedlab/internal/events"
	"github.com/chis/embedlab/internal/options"
	"github.com/chis/embedlab/internal/vfs"
)

// OpSetMain names SetMainFile in vfs.Error values.
const OpSetMain = "set_main"

// Session is one editing session. All methods are safe for concurrent use.
//
// Active-file handlers run while the session lock is held and must not call
// back into the Session.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu         sync.Mutex
	meta       codec.Assignment // Files is always nil; the file system owns them
	opts       options.DisplayOptions
	fs         *vfs.FileSystem
	parseError string

	closeOnce sync.Once
	done      chan struct{}
}

// FileView is a file as presented to the editor.
type FileView struct {
	vfs.FileRecord
	Language string `json:"language"`
}

// View is the JSON form of a session.
type View struct {
	ID          string                 `json:"id"`
	Title       string                 `json:"title"`
	Assignment  string                 `json:"assignment"`
	MaxScore    int                    `json:"maxScore"`
	MainFile    string                 `json:"mainFile"`
	PreviewType string                 `json:"previewType"`
	ActiveFile  string                 `json:"activeFile,omitempty"`
	Files       []FileView             `json:"files"`
	Options     options.DisplayOptions `json:"options"`
	ParseError  string                 `json:"parseError,omitempty"`
	CreatedAt   time.Time              `json:"createdAt"`
}

func newSession(id string, a codec.Assignment, opts options.DisplayOptions) (*Session, error) {
	var vfsOpts []vfs.Option
	if active, ok := initialActiveFile(a); ok {
		vfsOpts = append(vfsOpts, vfs.WithActiveFile(active))
	}

	fs, err := vfs.New(a.Files, vfsOpts...)
	if err != nil {
		return nil, err
	}

	meta := a.Clone()
	meta.Files = nil

	return &Session{
		ID:        id,
		CreatedAt: time.Now(),
		meta:      meta,
		opts:      opts,
		fs:        fs,
		done:      make(chan struct{}),
	}, nil
}

// initialActiveFile picks mainFile when it names one of the files, otherwise
// the first file.
func initialActiveFile(a codec.Assignment) (string, bool) {
	if a.HasFile(a.MainFile) {
		return a.MainFile, true
	}
	if len(a.Files) > 0 {
		return a.Files[0].Filename, true
	}
	return "", false
}

// Options returns the display options the session was opened with.
func (s *Session) Options() options.DisplayOptions {
	return s.opts
}

// ParseError is the token decode failure the session fell back from, if any.
func (s *Session) ParseError() string {
	return s.parseError
}

// View returns a snapshot of the session for rendering.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := s.fs.ListFiles()
	files := make([]FileView, 0, len(records))
	for _, rec := range records {
		files = append(files, FileView{FileRecord: rec, Language: vfs.LanguageFor(rec.Filename)})
	}
	active, _ := s.fs.ActiveFile()

	return View{
		ID:          s.ID,
		Title:       s.meta.Title,
		Assignment:  s.meta.Assignment,
		MaxScore:    s.meta.MaxScore,
		MainFile:    s.meta.MainFile,
		PreviewType: s.meta.PreviewType,
		ActiveFile:  active,
		Files:       files,
		Options:     s.opts,
		ParseError:  s.parseError,
		CreatedAt:   s.CreatedAt,
	}
}

// ActiveFile returns the active filename and whether one is set.
func (s *Session) ActiveFile() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fs.ActiveFile()
}

// GetFile returns a copy of the named file.
func (s *Session) GetFile(filename string) (vfs.FileRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fs.GetFile(filename)
}

// UpdateFile replaces a file's content. Readonly files are left unchanged.
func (s *Session) UpdateFile(filename, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fs.UpdateFileContent(filename, content)
}

// SetActiveFile switches the active file, notifying subscribers on change.
func (s *Session) SetActiveFile(filename string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fs.SetActiveFile(filename)
}

// AddFile appends a file.
func (s *Session) AddFile(record vfs.FileRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fs.AddFile(record)
}

// RemoveFile deletes a file. When the removed file was active, the first
// remaining file becomes active; when it was the main file, the first
// remaining file becomes the main file.
func (s *Session) RemoveFile(filename string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	active, hasActive := s.fs.ActiveFile()
	if err := s.fs.RemoveFile(filename); err != nil {
		return err
	}

	first := s.fs.Filenames()[0]
	if s.meta.MainFile == filename {
		s.meta.MainFile = first
	}
	if hasActive && active == filename {
		return s.fs.SetActiveFile(first)
	}
	return nil
}

// SetMainFile changes the entry file. It must name an existing file.
func (s *Session) SetMainFile(filename string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.fs.Has(filename) {
		return &vfs.Error{Op: OpSetMain, Filename: filename, Err: vfs.ErrNotFound}
	}
	s.meta.MainFile = filename
	return nil
}

// Snapshot returns the current assignment: metadata plus files in order.
func (s *Session) Snapshot() codec.Assignment {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := s.meta.Clone()
	a.Files = s.fs.ListFiles()
	return a
}

// Token encodes the current assignment.
func (s *Session) Token() (string, error) {
	return codec.Encode(s.Snapshot())
}

// Subscribe registers an active-file change handler.
func (s *Session) Subscribe(h events.Handler) func() {
	return s.fs.Subscribe(h)
}

// SubscribeChan delivers active-file changes on a buffered channel.
func (s *Session) SubscribeChan(buffer int) (<-chan events.Event, func()) {
	return s.fs.Notifier().SubscribeChan(buffer)
}

// Done is closed once the session has been closed or evicted.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) close() {
	s.closeOnce.Do(func() { close(s.done) })
}
