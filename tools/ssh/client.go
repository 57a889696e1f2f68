// Package ssh runs shell commands on a remote host and exposes that as the
// execute_command tool.
package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	gossh "golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// ErrTimeout is returned when a command outlives its timeout.
var ErrTimeout = errors.New("command timed out")

// Config describes how to reach a host.
type Config struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	User     string `mapstructure:"user" yaml:"user"`
	Password string `mapstructure:"password" yaml:"password"`
	// KeyPath is a PEM private key; it is preferred over Password.
	KeyPath string `mapstructure:"key_path" yaml:"key_path"`
	// KnownHostsPath verifies the host key. Without it the connection is
	// refused unless InsecureIgnoreHostKey is set.
	KnownHostsPath        string        `mapstructure:"known_hosts_path" yaml:"known_hosts_path"`
	InsecureIgnoreHostKey bool          `mapstructure:"insecure_ignore_host_key" yaml:"insecure_ignore_host_key"`
	DialTimeout           time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
	// MaxOutputBytes caps captured stdout and stderr each.
	MaxOutputBytes int `mapstructure:"max_output_bytes" yaml:"max_output_bytes"`
}

// Result is the outcome of one command.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Runner executes a command on the configured host.
type Runner interface {
	Run(ctx context.Context, command string, timeout time.Duration) (Result, error)
	Host() string
}

// Client is a Runner over SSH. Every Run opens its own connection, so a
// Client is safe for concurrent use.
type Client struct {
	cfg    Config
	client *gossh.ClientConfig
}

var _ Runner = (*Client)(nil)

// NewClient validates cfg and prepares authentication.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Host == "" {
		return nil, errors.New("ssh: host is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = 64 << 10
	}

	var auth []gossh.AuthMethod
	if cfg.KeyPath != "" {
		pem, err := os.ReadFile(cfg.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("ssh: read key: %w", err)
		}
		signer, err := gossh.ParsePrivateKey(pem)
		if err != nil {
			return nil, fmt.Errorf("ssh: parse key: %w", err)
		}
		auth = append(auth, gossh.PublicKeys(signer))
	}
	if cfg.Password != "" {
		auth = append(auth, gossh.Password(cfg.Password))
	}
	if len(auth) == 0 {
		return nil, errors.New("ssh: neither key nor password configured")
	}

	var hostKey gossh.HostKeyCallback
	switch {
	case cfg.KnownHostsPath != "":
		cb, err := knownhosts.New(cfg.KnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("ssh: known hosts: %w", err)
		}
		hostKey = cb
	case cfg.InsecureIgnoreHostKey:
		hostKey = gossh.InsecureIgnoreHostKey() //nolint:gosec // opt-in via config
	default:
		return nil, errors.New("ssh: known_hosts_path required (or insecure_ignore_host_key)")
	}

	return &Client{
		cfg: cfg,
		client: &gossh.ClientConfig{
			User:            cfg.User,
			Auth:            auth,
			HostKeyCallback: hostKey,
			Timeout:         cfg.DialTimeout,
		},
	}, nil
}

// Host returns the configured host name.
func (c *Client) Host() string { return c.cfg.Host }

func (c *Client) addr() string {
	return net.JoinHostPort(c.cfg.Host, strconv.Itoa(c.cfg.Port))
}

// Run executes command and waits for it, the timeout or ctx. On timeout
// or cancellation the remote process is sent SIGKILL and the partial
// output is returned together with the error.
func (c *Client) Run(ctx context.Context, command string, timeout time.Duration) (Result, error) {
	d := net.Dialer{Timeout: c.cfg.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", c.addr())
	if err != nil {
		return Result{}, fmt.Errorf("connect %s: %w", c.addr(), err)
	}
	sc, chans, reqs, err := gossh.NewClientConn(conn, c.addr(), c.client)
	if err != nil {
		_ = conn.Close()
		return Result{}, fmt.Errorf("handshake %s: %w", c.addr(), err)
	}
	client := gossh.NewClient(sc, chans, reqs)
	defer client.Close()

	sess, err := client.NewSession()
	if err != nil {
		return Result{}, fmt.Errorf("open session: %w", err)
	}
	defer sess.Close()

	stdout := &cappedBuffer{max: c.cfg.MaxOutputBytes}
	stderr := &cappedBuffer{max: c.cfg.MaxOutputBytes}
	sess.Stdout = stdout
	sess.Stderr = stderr

	if err := sess.Start(command); err != nil {
		return Result{}, fmt.Errorf("start command: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- sess.Wait() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var stopErr error
	select {
	case err = <-done:
	case <-ctx.Done():
		stopErr = ctx.Err()
	case <-timer.C:
		stopErr = fmt.Errorf("%w after %s", ErrTimeout, timeout)
	}
	if stopErr != nil {
		_ = sess.Signal(gossh.SIGKILL)
		_ = sess.Close()
		_ = client.Close()
		<-done
		return Result{ExitCode: -1, Stdout: stdout.String(), Stderr: stderr.String()}, stopErr
	}

	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	var exitErr *gossh.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitStatus()
	default:
		res.ExitCode = -1
		return res, fmt.Errorf("wait command: %w", err)
	}
	return res, nil
}

// cappedBuffer keeps the first max bytes and silently drops the rest.
type cappedBuffer struct {
	buf       bytes.Buffer
	max       int
	truncated bool
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if room := b.max - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
			b.truncated = true
		} else {
			b.buf.Write(p)
		}
	} else if len(p) > 0 {
		b.truncated = true
	}
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	if b.truncated {
		return b.buf.String() + "\n[output truncated]"
	}
	return b.buf.String()
}
