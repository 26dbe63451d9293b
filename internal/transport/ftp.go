package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/textproto"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/jlaffaye/ftp"

	"histosync/internal/fileutil"
	"histosync/internal/logging"
	"histosync/internal/services"
)

// FTP reply codes the transport reacts to.
const (
	replyServiceUnavailable = 421
	replyCannotOpenData     = 425
	replyTransferAborted    = 426
	replyNotLoggedIn        = 530
	replyActionNotTaken     = 450
	replyLocalError         = 451
	replyFileUnavailable    = 550
	replyDirExists          = 521
)

const defaultRetryBackoff = 2 * time.Second

// FTPOptions configures the FTP transport.
type FTPOptions struct {
	Address          string
	User             string
	Password         string
	TLS              bool
	Timeout          time.Duration
	TransientRetries int
	Resume           bool
	RetryBackoff     time.Duration
	Logger           *slog.Logger
}

// ftpConn is the subset of *ftp.ServerConn the transport drives.
type ftpConn interface {
	Login(user, password string) error
	NameList(path string) ([]string, error)
	Retr(path string) (io.ReadCloser, error)
	RetrFrom(path string, offset uint64) (io.ReadCloser, error)
	Stor(path string, r io.Reader) error
	Rename(from, to string) error
	Delete(path string) error
	MakeDir(path string) error
	NoOp() error
	Quit() error
}

type dialFunc func(ctx context.Context, opts FTPOptions) (ftpConn, error)

// FTP is a Transport over a single FTP control connection that reconnects
// whenever a probe or operation finds it dead.
type FTP struct {
	opts   FTPOptions
	dial   dialFunc
	logger *slog.Logger
	sleep  func(context.Context, time.Duration) error

	mu   sync.Mutex
	conn ftpConn
}

// DialFTP connects and logs in. Login failures are configuration errors.
func DialFTP(ctx context.Context, opts FTPOptions) (*FTP, error) {
	t := newFTP(opts, dialServer)
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := t.connectLocked(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

func newFTP(opts FTPOptions, dial dialFunc) *FTP {
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = defaultRetryBackoff
	}
	if opts.TransientRetries < 0 {
		opts.TransientRetries = 0
	}
	return &FTP{
		opts:   opts,
		dial:   dial,
		logger: logging.NewComponentLogger(opts.Logger, "ftp"),
		sleep:  sleepContext,
	}
}

// List implements Transport.
func (t *FTP) List(ctx context.Context, dir string) ([]string, error) {
	var names []string
	err := t.do(ctx, "list", dir, func(conn ftpConn) error {
		raw, err := conn.NameList(dir)
		if err != nil {
			return err
		}
		names = filterNames(raw)
		return nil
	})
	return names, err
}

// Fetch implements Transport. With resume enabled an existing local partial
// file is continued from its current size.
func (t *FTP) Fetch(ctx context.Context, remotePath, localPath string) error {
	return t.do(ctx, "fetch", remotePath, func(conn ftpConn) error {
		offset := int64(0)
		if t.opts.Resume {
			offset = fileutil.PartialSize(localPath)
		}
		if offset > 0 {
			err := t.retrieve(conn, remotePath, localPath, offset)
			if err == nil || isTransient(err) {
				return err
			}
			t.logger.Info("resume rejected; restarting transfer",
				logging.String("remote", remotePath),
				logging.Int64("offset", offset),
				logging.Error(err),
			)
			if rmErr := fileutil.RemoveIfExists(fileutil.PartPath(localPath)); rmErr != nil {
				return rmErr
			}
		}
		return t.retrieve(conn, remotePath, localPath, 0)
	})
}

func (t *FTP) retrieve(conn ftpConn, remotePath, localPath string, offset int64) error {
	var (
		resp io.ReadCloser
		err  error
	)
	if offset > 0 {
		resp, err = conn.RetrFrom(remotePath, uint64(offset))
	} else {
		resp, err = conn.Retr(remotePath)
	}
	if err != nil {
		return err
	}
	_, copyErr := fileutil.WritePartial(localPath, resp, offset > 0)
	// Close reads the final transfer reply; a short transfer surfaces here.
	closeErr := resp.Close()
	if copyErr != nil {
		return copyErr
	}
	if closeErr != nil {
		return closeErr
	}
	return fileutil.Commit(fileutil.PartPath(localPath), localPath)
}

// Put implements Transport.
func (t *FTP) Put(ctx context.Context, localPath, remotePath string) error {
	part := fileutil.PartPath(remotePath)
	return t.do(ctx, "put", remotePath, func(conn ftpConn) error {
		file, err := os.Open(localPath)
		if err != nil {
			return services.Wrap(services.ErrValidation, "ftp", "put", "open local file", err)
		}
		defer file.Close()
		if err := conn.Stor(part, file); err != nil {
			return err
		}
		if err := conn.Rename(part, remotePath); err != nil {
			if replyCode(err) != replyFileUnavailable {
				return err
			}
			// Some servers refuse to rename over an existing file.
			if delErr := conn.Delete(remotePath); delErr != nil {
				return err
			}
			return conn.Rename(part, remotePath)
		}
		return nil
	})
}

// MakeDir implements Transport.
func (t *FTP) MakeDir(ctx context.Context, dir string) error {
	return t.do(ctx, "mkdir", dir, func(conn ftpConn) error {
		err := conn.MakeDir(dir)
		if err == nil {
			t.logger.Info("created remote directory", logging.String("dir", dir))
			return nil
		}
		code := replyCode(err)
		if code != replyFileUnavailable && code != replyDirExists {
			return err
		}
		if _, listErr := conn.NameList(dir); listErr != nil {
			return err
		}
		t.logger.Info("remote directory already exists", logging.String("dir", dir))
		return nil
	})
}

// Close ends the session.
func (t *FTP) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	err := t.conn.Quit()
	t.conn = nil
	return err
}

// do runs fn on a live connection. Transient failures drop the connection and
// are retried up to TransientRetries times; everything else is classified and
// returned immediately.
func (t *FTP) do(ctx context.Context, op, target string, fn func(ftpConn) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	attempts := t.opts.TransientRetries + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn, err := t.liveConnLocked(ctx)
		if err == nil {
			err = fn(conn)
			if err == nil {
				return nil
			}
			err = classify(op, target, err)
		}
		if !errors.Is(err, services.ErrTransient) {
			return err
		}
		lastErr = err
		t.dropLocked()
		if attempt == attempts {
			break
		}
		logging.WarnWithContext(t.logger, "transient ftp failure; reconnecting", "ftp_retry",
			logging.String("operation", op),
			logging.String("target", target),
			logging.Int("attempt", attempt),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check network connectivity to the archive"),
			logging.String(logging.FieldImpact, "operation will be retried"),
		)
		if err := t.sleep(ctx, t.opts.RetryBackoff*time.Duration(attempt)); err != nil {
			return err
		}
	}
	return lastErr
}

// liveConnLocked probes the current connection with NOOP and reconnects when
// the probe fails.
func (t *FTP) liveConnLocked(ctx context.Context) (ftpConn, error) {
	if t.conn != nil {
		if err := t.conn.NoOp(); err == nil {
			return t.conn, nil
		}
		t.logger.Info("ftp connection lost; reconnecting", logging.String("address", t.opts.Address))
		t.dropLocked()
	}
	return t.connectLocked(ctx)
}

func (t *FTP) connectLocked(ctx context.Context) (ftpConn, error) {
	conn, err := t.dial(ctx, t.opts)
	if err != nil {
		return nil, classify("connect", t.opts.Address, err)
	}
	if err := conn.Login(t.opts.User, t.opts.Password); err != nil {
		_ = conn.Quit()
		if replyCode(err) == replyNotLoggedIn {
			return nil, services.Wrap(services.ErrConfiguration, "ftp", "login",
				fmt.Sprintf("credentials rejected by %s", t.opts.Address), err)
		}
		return nil, classify("login", t.opts.Address, err)
	}
	t.conn = conn
	return conn, nil
}

func (t *FTP) dropLocked() {
	if t.conn != nil {
		_ = t.conn.Quit()
		t.conn = nil
	}
}

func classify(op, target string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	for _, marker := range []error{services.ErrTransient, services.ErrRemoteState, services.ErrNotFound,
		services.ErrConfiguration, services.ErrValidation} {
		if errors.Is(err, marker) {
			return err
		}
	}
	switch code := replyCode(err); {
	case code >= 500 && op == "mkdir":
		return services.Wrap(services.ErrConfiguration, "ftp", op, "cannot create remote directory "+target, err)
	case code == replyFileUnavailable && op == "list":
		return services.Wrap(services.ErrNotFound, "ftp", op, target, err)
	case code == replyFileUnavailable:
		return services.Wrap(services.ErrRemoteState, "ftp", op, target+" is not a regular file", err)
	case code == replyServiceUnavailable, code == replyCannotOpenData, code == replyTransferAborted,
		code == replyActionNotTaken, code == replyLocalError:
		return services.Wrap(services.ErrTransient, "ftp", op, target, err)
	case code != 0:
		return services.Wrap(services.ErrRemoteState, "ftp", op, target, err)
	}
	// Checked before isTransient: the wrapped syscall.Errno satisfies net.Error.
	var pathErr *os.PathError
	var linkErr *os.LinkError
	if errors.As(err, &pathErr) || errors.As(err, &linkErr) {
		return services.Wrap(services.ErrValidation, "ftp", op, "local file", err)
	}
	if isTransient(err) {
		return services.Wrap(services.ErrTransient, "ftp", op, target, err)
	}
	return services.Wrap(services.ErrTransient, "ftp", op, target, err)
}

func isTransient(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, services.ErrTransient) {
		return true
	}
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, net.ErrClosed)
}

func replyCode(err error) int {
	var protoErr *textproto.Error
	if errors.As(err, &protoErr) {
		return protoErr.Code
	}
	return 0
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// serverConn adapts *ftp.ServerConn to ftpConn.
type serverConn struct {
	*ftp.ServerConn
}

func (c serverConn) Retr(p string) (io.ReadCloser, error) {
	return c.ServerConn.Retr(p)
}

func (c serverConn) RetrFrom(p string, offset uint64) (io.ReadCloser, error) {
	return c.ServerConn.RetrFrom(p, offset)
}

func dialServer(ctx context.Context, opts FTPOptions) (ftpConn, error) {
	dialOpts := []ftp.DialOption{ftp.DialWithContext(ctx)}
	if opts.Timeout > 0 {
		dialOpts = append(dialOpts, ftp.DialWithTimeout(opts.Timeout))
	}
	if opts.TLS {
		host := opts.Address
		if h, _, err := net.SplitHostPort(opts.Address); err == nil {
			host = h
		}
		dialOpts = append(dialOpts, ftp.DialWithExplicitTLS(&tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}))
	}
	conn, err := ftp.Dial(opts.Address, dialOpts...)
	if err != nil {
		return nil, err
	}
	return serverConn{ServerConn: conn}, nil
}
