// Package remote defines the transport operations the sync engine needs
// from the server side, with FTP and S3-compatible implementations.
package remote

import (
	"io"
	"path"
	"strings"
	"time"
)

// Entry is one item of a long-format directory listing.
type Entry struct {
	Name  string
	IsDir bool
	Size  int64
}

// Progress reports transferred bytes. total is -1 when unknown.
type Progress func(done, total int64)

// Client is a single remote session. Implementations are not safe for
// concurrent use; the sync worker owns the session exclusively.
// Every path argument is an absolute, slash separated remote path.
type Client interface {
	ChangeDir(dir string) error
	// NameList returns the plain names of every entry in dir.
	NameList(dir string) ([]string, error)
	// List returns the long-format entries of dir.
	List(dir string) ([]Entry, error)
	FileSize(p string) (int64, error)
	ModTime(p string) (time.Time, error)
	SetModTime(p string, t time.Time) error
	Retrieve(p string, w io.Writer, progress Progress) (int64, error)
	Store(p string, r io.Reader, size int64, progress Progress) error
	Delete(p string) error
	MakeDir(dir string) error
	Close() error
}

// Join resolves the logical path p against the remote root.
func Join(root, p string) string {
	if root == "" {
		root = "/"
	}
	return path.Join(root, p)
}

// Rel maps an absolute remote path back to a logical path under root.
func Rel(root, p string) string {
	root = path.Clean("/" + root)
	p = path.Clean("/" + p)
	if root == "/" {
		return p
	}
	if p == root {
		return "/"
	}
	return "/" + strings.TrimPrefix(strings.TrimPrefix(p, root), "/")
}

type progressReader struct {
	r        io.Reader
	done     int64
	total    int64
	progress Progress
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.done += int64(n)
		if p.progress != nil {
			p.progress(p.done, p.total)
		}
	}
	return n, err
}

type progressWriter struct {
	w        io.Writer
	done     int64
	total    int64
	progress Progress
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	if n > 0 {
		p.done += int64(n)
		if p.progress != nil {
			p.progress(p.done, p.total)
		}
	}
	return n, err
}
