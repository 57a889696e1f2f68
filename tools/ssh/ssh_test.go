package ssh

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gossh "golang.org/x/crypto/ssh"
)

// startServer runs a minimal exec-only SSH server on loopback. It knows
// three commands: "uptime", "false" and "hang" (blocks until the client
// goes away).
func startServer(t *testing.T) (host string, port int) {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := gossh.NewSignerFromKey(priv)
	require.NoError(t, err)

	cfg := &gossh.ServerConfig{
		PasswordCallback: func(c gossh.ConnMetadata, pass []byte) (*gossh.Permissions, error) {
			if c.User() == "ops" && string(pass) == "secret" {
				return nil, nil
			}
			return nil, errors.New("denied")
		},
	}
	cfg.AddHostKey(signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			nc, err := ln.Accept()
			if err != nil {
				return
			}
			go serveConn(nc, cfg)
		}
	}()

	h, p, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err = strconv.Atoi(p)
	require.NoError(t, err)
	return h, port
}

func serveConn(nc net.Conn, cfg *gossh.ServerConfig) {
	sc, chans, reqs, err := gossh.NewServerConn(nc, cfg)
	if err != nil {
		_ = nc.Close()
		return
	}
	defer sc.Close()
	go gossh.DiscardRequests(reqs)

	for nch := range chans {
		if nch.ChannelType() != "session" {
			_ = nch.Reject(gossh.UnknownChannelType, "session only")
			continue
		}
		ch, chReqs, err := nch.Accept()
		if err != nil {
			continue
		}
		go serveSession(ch, chReqs)
	}
}

func serveSession(ch gossh.Channel, reqs <-chan *gossh.Request) {
	defer ch.Close()
	for req := range reqs {
		if req.Type != "exec" {
			_ = req.Reply(false, nil)
			continue
		}
		var payload struct{ Command string }
		_ = gossh.Unmarshal(req.Payload, &payload)
		_ = req.Reply(true, nil)

		status := 0
		switch payload.Command {
		case "uptime":
			fmt.Fprint(ch, "up 3 days\n")
		case "false":
			fmt.Fprint(ch.Stderr(), "permission denied\n")
			status = 1
		case "hang":
			_, _ = io.Copy(io.Discard, ch)
			return
		default:
			fmt.Fprintf(ch.Stderr(), "%s: command not found\n", payload.Command)
			status = 127
		}
		_, _ = ch.SendRequest("exit-status", false, gossh.Marshal(&struct{ Status uint32 }{uint32(status)}))
		return
	}
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	host, port := startServer(t)
	c, err := NewClient(Config{
		Host:                  host,
		Port:                  port,
		User:                  "ops",
		Password:              "secret",
		InsecureIgnoreHostKey: true,
		DialTimeout:           time.Second,
	})
	require.NoError(t, err)
	return c
}

func TestClientRun(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	res, err := c.Run(ctx, "uptime", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "up 3 days\n", res.Stdout)

	res, err = c.Run(ctx, "false", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExitCode)
	assert.Equal(t, "permission denied\n", res.Stderr)

	res, err = c.Run(ctx, "rm -rf /", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 127, res.ExitCode)
}

func TestClientTimeoutAndCancel(t *testing.T) {
	c := newTestClient(t)

	_, err := c.Run(context.Background(), "hang", 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.Run(ctx, "hang", time.Minute)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClientAuthFailure(t *testing.T) {
	host, port := startServer(t)
	c, err := NewClient(Config{Host: host, Port: port, User: "ops", Password: "wrong", InsecureIgnoreHostKey: true})
	require.NoError(t, err)

	_, err = c.Run(context.Background(), "uptime", time.Second)
	assert.Error(t, err)
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{})
	assert.Error(t, err)

	_, err = NewClient(Config{Host: "web-1"})
	assert.ErrorContains(t, err, "neither key nor password")

	_, err = NewClient(Config{Host: "web-1", Password: "x"})
	assert.ErrorContains(t, err, "known_hosts_path")

	c, err := NewClient(Config{Host: "web-1", Password: "x", InsecureIgnoreHostKey: true})
	require.NoError(t, err)
	assert.Equal(t, "web-1:22", c.addr())
}

func TestClampTimeout(t *testing.T) {
	tests := []struct {
		in   int
		want time.Duration
	}{
		{0, 60 * time.Second},
		{-5, 60 * time.Second},
		{10, 30 * time.Second},
		{120, 120 * time.Second},
		{9000, 600 * time.Second},
	}
	for _, tt := range tests {
		t.Run(strconv.Itoa(tt.in), func(t *testing.T) {
			assert.Equal(t, tt.want, ClampTimeout(tt.in))
		})
	}
}

type fakeRunner struct {
	res     Result
	err     error
	command string
	timeout time.Duration
}

func (f *fakeRunner) Host() string { return "web-1" }

func (f *fakeRunner) Run(_ context.Context, command string, timeout time.Duration) (Result, error) {
	f.command, f.timeout = command, timeout
	return f.res, f.err
}

func TestToolFormatsOutcome(t *testing.T) {
	ctx := context.Background()

	ok := &fakeRunner{res: Result{Stdout: "active (running)\n"}}
	out, err := NewTool(ok).Call(ctx, map[string]any{"command": "systemctl is-active nginx", "timeout": float64(5)})
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, ok.timeout)
	assert.Equal(t, "systemctl is-active nginx", ok.command)
	text := out.(string)
	assert.Contains(t, text, "exit code: 0")
	assert.Contains(t, text, "active (running)")

	failed := &fakeRunner{res: Result{ExitCode: 3, Stderr: "unit not found"}}
	out, err = NewTool(failed).Call(ctx, map[string]any{"command": "systemctl status foo"})
	require.NoError(t, err)
	assert.Equal(t, 60*time.Second, failed.timeout)
	assert.Contains(t, out, "exit code: 3")
	assert.Contains(t, out, "stderr:\n```\nunit not found\n```")

	broken := &fakeRunner{err: fmt.Errorf("connect web-1:22: %w", errors.New("connection refused"))}
	out, err = NewTool(broken).Call(ctx, map[string]any{"command": "uptime"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out.(string), "SSH operation failed on web-1"))

	_, err = NewTool(ok).Call(ctx, map[string]any{"command": "   "})
	assert.Error(t, err)
}

func TestToolAgainstServer(t *testing.T) {
	c := newTestClient(t)
	out, err := NewTool(c).Call(context.Background(), map[string]any{"command": "uptime"})
	require.NoError(t, err)
	assert.Contains(t, out, "up 3 days")
	assert.Contains(t, out, "Command succeeded")
}

func TestCappedBuffer(t *testing.T) {
	b := &cappedBuffer{max: 4}
	n, err := b.Write([]byte("abcdef"))
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.Equal(t, "abcd\n[output truncated]", b.String())
}

func TestToolWithoutHost(t *testing.T) {
	out, err := NewTool(nil).Call(context.Background(), map[string]any{"command": "uptime"})
	require.NoError(t, err)
	assert.Equal(t, NotConfiguredText, out)
}
