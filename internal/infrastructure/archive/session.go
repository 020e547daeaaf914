package archive

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"cruisesync-service/internal/domain/entity"
	"cruisesync-service/internal/domain/repository"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// Config holds the connection settings for the remote file archive
type Config struct {
	Host            string
	Port            int
	User            string
	Pass            string
	DialTimeout     time.Duration
	ListTimeout     time.Duration
	DownloadTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Port <= 0 {
		c.Port = 22
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 20 * time.Second
	}
	if c.ListTimeout <= 0 {
		c.ListTimeout = 15 * time.Second
	}
	if c.DownloadTimeout <= 0 {
		c.DownloadTimeout = 60 * time.Second
	}
	return c
}

// Session is one live SFTP session against the archive
type Session struct {
	cfg       Config
	sshClient *ssh.Client
	client    *sftp.Client
}

// dialSession opens a new session, honoring ctx for cancellation of the dial
func dialSession(ctx context.Context, cfg Config) (*Session, error) {
	cfg = cfg.withDefaults()
	if cfg.Host == "" || cfg.User == "" || cfg.Pass == "" {
		return nil, fmt.Errorf("archive: missing env ARCHIVE_HOST / ARCHIVE_USER / ARCHIVE_PASS")
	}

	sshCfg := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            []ssh.AuthMethod{ssh.Password(cfg.Pass)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         cfg.DialTimeout,
	}
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	type dialRes struct {
		client *ssh.Client
		err    error
	}
	ch := make(chan dialRes, 1)
	go func() {
		c, err := ssh.Dial("tcp", addr, sshCfg)
		ch <- dialRes{client: c, err: err}
	}()

	var sshClient *ssh.Client
	select {
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.client != nil {
				r.client.Close()
			}
		}()
		return nil, fmt.Errorf("archive: dial canceled: %w", ctx.Err())
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("archive: dial error: %w", r.err)
		}
		sshClient = r.client
	}

	client, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, fmt.Errorf("archive: new client: %w", err)
	}

	return &Session{cfg: cfg, sshClient: sshClient, client: client}, nil
}

// List returns the entries of a remote directory
func (s *Session) List(ctx context.Context, dir string) ([]entity.ArchiveEntry, error) {
	var entries []entity.ArchiveEntry
	err := s.withTimeout(ctx, s.cfg.ListTimeout, func() error {
		infos, err := s.client.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("list %s: %w", dir, repository.ErrNotFound)
			}
			return fmt.Errorf("list %s: %w", dir, err)
		}
		entries = make([]entity.ArchiveEntry, 0, len(infos))
		for _, fi := range infos {
			entries = append(entries, entity.ArchiveEntry{
				Name: fi.Name(),
				Dir:  fi.IsDir(),
				Size: fi.Size(),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Download reads one remote file fully into memory
func (s *Session) Download(ctx context.Context, path string) ([]byte, error) {
	var raw []byte
	err := s.withTimeout(ctx, s.cfg.DownloadTimeout, func() error {
		f, err := s.client.Open(path)
		if err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("download %s: %w", path, repository.ErrNotFound)
			}
			return fmt.Errorf("download %s: %w", path, err)
		}
		defer f.Close()

		raw, err = io.ReadAll(f)
		if err != nil {
			return fmt.Errorf("download %s: %w", path, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// Close tears the session down
func (s *Session) Close() {
	if s.client != nil {
		s.client.Close()
	}
	if s.sshClient != nil {
		s.sshClient.Close()
	}
}

// withTimeout runs an sftp call under a hard deadline. The sftp library has
// no ctx support, so the call runs in a goroutine; when the deadline fires
// the session is reported errored and the caller discards it, abandoning the
// orphaned call with it.
func (s *Session) withTimeout(ctx context.Context, d time.Duration, op func() error) error {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- op() }()

	select {
	case <-ctx.Done():
		return fmt.Errorf("archive: %w", ctx.Err())
	case err := <-done:
		return err
	}
}
