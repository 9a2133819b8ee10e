package remote

import (
	"bytes"
	"context"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/chmdznr/ftpsync/internal/config"
	apperrors "github.com/chmdznr/ftpsync/internal/errors"
	"github.com/chmdznr/ftpsync/internal/notify"
)

const (
	probeName     = "ftpsync.test"
	probeStamp    = 100000000
	probeSlackSec = 2
)

// Connect opens a session for the configured backend and runs the
// self-test. Every failure is a connectivity error.
func Connect(ctx context.Context, cfg *config.Config, log zerolog.Logger, bus *notify.Bus) (Client, error) {
	var (
		client Client
		err    error
	)
	switch cfg.Remote.Backend {
	case config.BackendS3:
		client, err = DialS3(ctx, S3Config{
			Endpoint:  cfg.Remote.Addr(),
			Secure:    cfg.Remote.TLS,
			Bucket:    cfg.S3.Bucket,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Region:    cfg.S3.Region,
			Timeout:   cfg.Remote.Timeout,
		}, log)
	default:
		client, err = DialFTP(ctx, FTPConfig{
			Addr:     cfg.Remote.Addr(),
			TLS:      cfg.Remote.TLS,
			User:     cfg.Remote.User,
			Password: cfg.Remote.Password,
			Timeout:  cfg.Remote.Timeout,
		}, log)
	}
	if err != nil {
		bus.Login(err.Error(), err)
		return nil, err
	}

	if err := SelfTest(client, cfg.Remote.Root); err != nil {
		client.Close()
		bus.Login(err.Error(), err)
		return nil, err
	}

	bus.Login("Login successful.", nil)
	return client, nil
}

// SelfTest checks the session can write to root and can set file
// modification times.
func SelfTest(client Client, root string) error {
	if err := client.ChangeDir(Join(root, "/")); err != nil {
		return apperrors.Connectivity("Remote directory is not accessible.", err)
	}

	p := Join(root, probeName)
	payload := []byte("ftpsync write test " + strconv.Itoa(probeStamp))
	if err := client.Store(p, bytes.NewReader(payload), int64(len(payload)), nil); err != nil {
		return apperrors.Connectivity("Missing write permission.", err)
	}
	if err := checkModTime(client, p); err != nil {
		client.Delete(p)
		return err
	}

	if err := client.Delete(p); err != nil {
		return apperrors.Connectivity("Missing delete permission.", err)
	}
	return nil
}

func checkModTime(client Client, p string) error {
	want := time.Unix(probeStamp, 0).UTC()
	if err := client.SetModTime(p, want); err != nil {
		return apperrors.Connectivity("Server does not support setting modification times.", err)
	}
	got, err := client.ModTime(p)
	if err != nil {
		return apperrors.Connectivity("Server does not report modification times.", err)
	}
	if d := got.Sub(want); d > probeSlackSec*time.Second || d < -probeSlackSec*time.Second {
		return apperrors.Connectivity("Server ignored the modification time change.", nil).
			WithContext("expected", want).
			WithContext("actual", got)
	}
	return nil
}
