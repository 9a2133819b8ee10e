// Package testsupport holds fakes shared by package tests.
package testsupport

import (
	"bytes"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chmdznr/ftpsync/internal/remote"
)

type memFile struct {
	data  []byte
	mtime time.Time
}

// MemoryClient is an in-memory remote.Client. It behaves like a strict FTP
// server: storing into a missing directory fails, as does creating a
// directory twice.
type MemoryClient struct {
	mu        sync.Mutex
	files     map[string]*memFile
	dirs      map[string]bool
	failures  map[string]error
	noSetTime bool
	calls     []string
}

var _ remote.Client = (*MemoryClient)(nil)

// NewMemoryClient returns an empty server containing only "/".
func NewMemoryClient() *MemoryClient {
	return &MemoryClient{
		files:    make(map[string]*memFile),
		dirs:     map[string]bool{"/": true},
		failures: make(map[string]error),
	}
}

// PutFile creates p (and its parents) with the given content and mtime.
func (m *MemoryClient) PutFile(p string, data []byte, mtime time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p = path.Clean(p)
	for d := path.Dir(p); ; d = path.Dir(d) {
		m.dirs[d] = true
		if d == "/" {
			break
		}
	}
	m.files[p] = &memFile{data: append([]byte(nil), data...), mtime: mtime.UTC().Truncate(time.Second)}
}

// File returns the content and mtime stored at p.
func (m *MemoryClient) File(p string) ([]byte, time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.files[path.Clean(p)]
	if !ok {
		return nil, time.Time{}, false
	}
	return append([]byte(nil), f.data...), f.mtime, true
}

// HasDir reports whether dir exists.
func (m *MemoryClient) HasDir(dir string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dirs[path.Clean(dir)]
}

// FailOn makes op on p return err until cleared. op is one of list, nlst,
// size, mdtm, mfmt, retr, stor, dele, mkd, cwd.
func (m *MemoryClient) FailOn(op, p string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op+" "+path.Clean(p)] = err
}

// ClearFailures removes every injected failure.
func (m *MemoryClient) ClearFailures() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = make(map[string]error)
}

// DisableSetTime makes SetModTime fail like a server without MFMT/MDTM.
func (m *MemoryClient) DisableSetTime() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.noSetTime = true
}

// Calls returns the operations performed so far, as "op path".
func (m *MemoryClient) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// CountCalls returns how many calls used op.
func (m *MemoryClient) CountCalls(op string) int {
	n := 0
	for _, c := range m.Calls() {
		if strings.HasPrefix(c, op+" ") {
			n++
		}
	}
	return n
}

func (m *MemoryClient) record(op, p string) error {
	p = path.Clean(p)
	m.calls = append(m.calls, op+" "+p)
	return m.failures[op+" "+p]
}

func (m *MemoryClient) ChangeDir(dir string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("cwd", dir); err != nil {
		return err
	}
	if !m.dirs[path.Clean(dir)] {
		return fmt.Errorf("550 %s: no such directory", dir)
	}
	return nil
}

func (m *MemoryClient) children(dir string) []remote.Entry {
	dir = path.Clean(dir)
	var entries []remote.Entry
	for d := range m.dirs {
		if d != "/" && path.Dir(d) == dir {
			entries = append(entries, remote.Entry{Name: path.Base(d), IsDir: true})
		}
	}
	for p, f := range m.files {
		if path.Dir(p) == dir {
			entries = append(entries, remote.Entry{Name: path.Base(p), Size: int64(len(f.data))})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries
}

func (m *MemoryClient) NameList(dir string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("nlst", dir); err != nil {
		return nil, err
	}
	if !m.dirs[path.Clean(dir)] {
		return nil, fmt.Errorf("550 %s: no such directory", dir)
	}
	var names []string
	for _, e := range m.children(dir) {
		names = append(names, e.Name)
	}
	return names, nil
}

func (m *MemoryClient) List(dir string) ([]remote.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("list", dir); err != nil {
		return nil, err
	}
	if !m.dirs[path.Clean(dir)] {
		return nil, fmt.Errorf("550 %s: no such directory", dir)
	}
	return m.children(dir), nil
}

func (m *MemoryClient) lookup(p string) (*memFile, error) {
	f, ok := m.files[path.Clean(p)]
	if !ok {
		return nil, fmt.Errorf("550 %s: no such file", p)
	}
	return f, nil
}

func (m *MemoryClient) FileSize(p string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("size", p); err != nil {
		return 0, err
	}
	f, err := m.lookup(p)
	if err != nil {
		return 0, err
	}
	return int64(len(f.data)), nil
}

func (m *MemoryClient) ModTime(p string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("mdtm", p); err != nil {
		return time.Time{}, err
	}
	f, err := m.lookup(p)
	if err != nil {
		return time.Time{}, err
	}
	return f.mtime, nil
}

func (m *MemoryClient) SetModTime(p string, t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("mfmt", p); err != nil {
		return err
	}
	if m.noSetTime {
		return fmt.Errorf("502 command not implemented")
	}
	f, err := m.lookup(p)
	if err != nil {
		return err
	}
	f.mtime = t.UTC().Truncate(time.Second)
	return nil
}

func (m *MemoryClient) Retrieve(p string, w io.Writer, progress remote.Progress) (int64, error) {
	m.mu.Lock()
	if err := m.record("retr", p); err != nil {
		m.mu.Unlock()
		return 0, err
	}
	f, err := m.lookup(p)
	if err != nil {
		m.mu.Unlock()
		return 0, err
	}
	data := append([]byte(nil), f.data...)
	m.mu.Unlock()

	n, err := io.Copy(w, bytes.NewReader(data))
	if progress != nil {
		progress(n, int64(len(data)))
	}
	return n, err
}

func (m *MemoryClient) Store(p string, r io.Reader, size int64, progress remote.Progress) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("stor", p); err != nil {
		return err
	}
	p = path.Clean(p)
	if !m.dirs[path.Dir(p)] {
		return fmt.Errorf("553 %s: parent directory missing", p)
	}
	m.files[p] = &memFile{data: data, mtime: time.Now().UTC().Truncate(time.Second)}
	if progress != nil {
		progress(int64(len(data)), size)
	}
	return nil
}

func (m *MemoryClient) Delete(p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("dele", p); err != nil {
		return err
	}
	if _, err := m.lookup(p); err != nil {
		return err
	}
	delete(m.files, path.Clean(p))
	return nil
}

func (m *MemoryClient) MakeDir(dir string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("mkd", dir); err != nil {
		return err
	}
	dir = path.Clean(dir)
	if m.dirs[dir] {
		return fmt.Errorf("550 %s: directory exists", dir)
	}
	if !m.dirs[path.Dir(dir)] {
		return fmt.Errorf("550 %s: parent directory missing", dir)
	}
	m.dirs[dir] = true
	return nil
}

func (m *MemoryClient) Close() error {
	return nil
}
