package remote

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"path"
	"sync"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rs/zerolog"

	apperrors "github.com/chmdznr/ftpsync/internal/errors"
)

// FTPConfig holds the FTP session settings.
type FTPConfig struct {
	Addr     string
	TLS      bool
	User     string
	Password string
	Timeout  time.Duration
}

// FTPClient is a Client backed by one FTP control connection.
type FTPClient struct {
	mu   sync.Mutex
	conn *ftp.ServerConn
	log  zerolog.Logger
}

// DialFTP connects and logs in.
func DialFTP(ctx context.Context, cfg FTPConfig, log zerolog.Logger) (*FTPClient, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	opts := []ftp.DialOption{
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(timeout),
		// Servers without MFMT fall back to the two-argument MDTM form.
		ftp.DialWithWritingMDTM(true),
	}
	if cfg.TLS {
		host, _, err := net.SplitHostPort(cfg.Addr)
		if err != nil {
			return nil, apperrors.Connectivity("Invalid server address.", err)
		}
		opts = append(opts, ftp.DialWithExplicitTLS(&tls.Config{ServerName: host}))
	}

	conn, err := ftp.Dial(cfg.Addr, opts...)
	if err != nil {
		return nil, apperrors.Connectivity(fmt.Sprintf("Could not connect to %s.", cfg.Addr), err)
	}
	if err := conn.Login(cfg.User, cfg.Password); err != nil {
		conn.Quit()
		return nil, apperrors.Connectivity("Login failed.", err)
	}

	log.Info().Str("addr", cfg.Addr).Bool("tls", cfg.TLS).Msg("logged in")
	return &FTPClient{conn: conn, log: log}, nil
}

func (c *FTPClient) ChangeDir(dir string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.ChangeDir(dir)
}

func (c *FTPClient) NameList(dir string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	names, err := c.conn.NameList(dir)
	if err != nil {
		return nil, err
	}
	// Some servers answer NLST with full paths.
	out := make([]string, 0, len(names))
	for _, n := range names {
		base := path.Base(n)
		if base == "." || base == ".." || base == "/" {
			continue
		}
		out = append(out, base)
	}
	return out, nil
}

func (c *FTPClient) List(dir string) ([]Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := c.conn.List(dir)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		out = append(out, Entry{
			Name:  e.Name,
			IsDir: e.Type == ftp.EntryTypeFolder,
			Size:  int64(e.Size),
		})
	}
	return out, nil
}

func (c *FTPClient) FileSize(p string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.FileSize(p)
}

func (c *FTPClient) ModTime(p string) (time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, err := c.conn.GetTime(p)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC().Truncate(time.Second), nil
}

func (c *FTPClient) SetModTime(p string, t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.SetTime(p, t.UTC())
}

func (c *FTPClient) Retrieve(p string, w io.Writer, progress Progress) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	total, err := c.conn.FileSize(p)
	if err != nil {
		total = -1
	}

	resp, err := c.conn.Retr(p)
	if err != nil {
		return 0, err
	}
	pw := &progressWriter{w: w, total: total, progress: progress}
	n, copyErr := io.Copy(pw, resp)
	// Close reads the transfer-complete reply and must always run.
	if err := resp.Close(); err != nil && copyErr == nil {
		copyErr = err
	}
	return n, copyErr
}

func (c *FTPClient) Store(p string, r io.Reader, size int64, progress Progress) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Stor(p, &progressReader{r: r, total: size, progress: progress})
}

func (c *FTPClient) Delete(p string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Delete(p)
}

func (c *FTPClient) MakeDir(dir string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.MakeDir(dir)
}

func (c *FTPClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.Quit(); err != nil {
		c.log.Debug().Err(err).Msg("quit failed")
		return err
	}
	return nil
}
