// Copyright (c) 2024-present OpenAssist Contributors. All Rights Reserved.
// See LICENSE.txt for license information.

package mcp

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Channel is the byte-stream used to exchange protocol envelopes with a tool
// server: one line-delimited JSON message per Send/Receive.
type Channel interface {
	// Send writes one message. It returns when the message is written, the
	// context expires, or the channel is closed.
	Send(ctx context.Context, msg []byte) error
	// Receive returns the next message. It returns when a message arrives,
	// the context expires, or the channel is closed.
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// relocatableCommands are interpreter launchers that hosting platforms
// commonly install outside PATH. Anything else is handed to exec verbatim.
var relocatableCommands = map[string]bool{
	"node":    true,
	"npm":     true,
	"npx":     true,
	"uv":      true,
	"uvx":     true,
	"python":  true,
	"python3": true,
	"bun":     true,
	"deno":    true,
}

// openTransport establishes the channel for a server config. For the
// local-process transport it returns the channel plus the executable path it
// actually spawned; remote-http always fails with TransportUnavailableError.
func openTransport(profile HostProfile, cfg ServerConfig, log logrus.FieldLogger) (Channel, string, error) {
	switch cfg.Transport {
	case TransportStdio:
		return openStdio(profile, cfg, log)
	case TransportHTTP:
		return nil, "", &TransportUnavailableError{Kind: TransportHTTP, Reason: "remote-http transport is not implemented"}
	default:
		return nil, "", &TransportUnavailableError{Kind: cfg.Transport, Reason: "unknown transport kind"}
	}
}

func openStdio(profile HostProfile, cfg ServerConfig, log logrus.FieldLogger) (Channel, string, error) {
	if cfg.Command == "" {
		return nil, "", &ConfigurationError{ServerID: cfg.ID, Reason: "command is required for the local-process transport"}
	}

	// Reject bad overrides before any process side effect. An empty value is
	// almost always a template the caller forgot to fill in.
	for _, key := range sortedKeys(cfg.Env) {
		if strings.TrimSpace(cfg.Env[key]) == "" {
			return nil, "", &ConfigurationError{ServerID: cfg.ID, Reason: fmt.Sprintf("environment variable %s has an empty value", key)}
		}
	}

	command := resolveExecutable(cfg.Command, profile, log)
	args := slices.Clone(cfg.Args)
	overrides := map[string]string{}

	if profile.Restricted {
		// Point package-manager caches at the scratch dir and silence
		// non-essential network chatter. Best effort; harmless elsewhere.
		overrides["NPM_CONFIG_CACHE"] = filepath.Join(profile.ScratchDir, ".npm")
		overrides["NPM_CONFIG_PREFIX"] = filepath.Join(profile.ScratchDir, ".npm-global")
		overrides["XDG_CACHE_HOME"] = filepath.Join(profile.ScratchDir, ".cache")
		overrides["NO_UPDATE_NOTIFIER"] = "1"
		overrides["NPM_CONFIG_UPDATE_NOTIFIER"] = "false"
		overrides["NPM_CONFIG_AUDIT"] = "false"
		overrides["NPM_CONFIG_FUND"] = "false"
		overrides["DO_NOT_TRACK"] = "1"
		if os.Getenv("HOME") == "" {
			overrides["HOME"] = profile.ScratchDir
		}
		if filepath.Base(cfg.Command) == "npx" {
			args = append([]string{"-y", "--no-update-notifier", "--no-audit", "--no-fund"}, args...)
		}
	}

	// Caller-supplied overrides win over the restricted-host additions.
	for key, value := range cfg.Env {
		overrides[key] = value
	}

	cmd := exec.Command(command, args...)
	cmd.Env = mergeEnv(os.Environ(), overrides)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, "", &ConnectionFault{ServerID: cfg.ID, Err: errors.Wrap(err, "failed to create stdin pipe")}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, "", &ConnectionFault{ServerID: cfg.ID, Err: errors.Wrap(err, "failed to create stdout pipe")}
	}
	stderr := &boundedBuffer{limit: 8 * 1024}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		log.WithFields(logrus.Fields{"serverID": cfg.ID, "command": command, "error": err}).Error("failed to spawn tool server process")
		return nil, "", &ConnectionFault{ServerID: cfg.ID, Err: errors.Wrap(err, "failed to spawn process")}
	}

	log.WithFields(logrus.Fields{
		"serverID": cfg.ID,
		"command":  command,
		"args":     args,
		"env":      sortedKeys(cfg.Env),
	}).Debug("spawned tool server process")

	ch := newStdioChannel(cmd, stdin, stdout, stderr)
	return ch, command, nil
}

// resolveExecutable tries an ordered list of strategies for commands that
// platforms like to relocate: the host's own lookup first, then well-known
// install locations, falling back to the configured name. Every attempt is
// logged so a misresolved path is diagnosable.
func resolveExecutable(command string, profile HostProfile, log logrus.FieldLogger) string {
	if strings.ContainsRune(command, os.PathSeparator) || !relocatableCommands[filepath.Base(command)] {
		return command
	}

	if path, err := exec.LookPath(command); err == nil {
		log.WithFields(logrus.Fields{"command": command, "path": path}).Debug("resolved executable via PATH")
		return path
	}
	log.WithField("command", command).Debug("executable not on PATH, probing fallback locations")

	for _, dir := range profile.ExecutableFallbackPaths {
		candidate := filepath.Join(dir, command)
		info, err := os.Stat(candidate)
		if err != nil || info.IsDir() || info.Mode().Perm()&0111 == 0 {
			log.WithField("path", candidate).Debug("executable probe missed")
			continue
		}
		log.WithField("path", candidate).Debug("resolved executable via fallback location")
		return candidate
	}

	log.WithField("command", command).Warn("could not resolve executable, spawning with the configured name")
	return command
}

// mergeEnv overlays overrides onto a base environment in KEY=VALUE form.
func mergeEnv(base []string, overrides map[string]string) []string {
	merged := make(map[string]string, len(base)+len(overrides))
	for _, kv := range base {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			merged[kv[:i]] = kv[i+1:]
		}
	}
	for key, value := range overrides {
		merged[key] = value
	}
	env := make([]string, 0, len(merged))
	for key, value := range merged {
		env = append(env, key+"="+value)
	}
	sort.Strings(env)
	return env
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// stdioChannel wires a child process's stdin/stdout as a Channel. A single
// pump goroutine owns stdout so an abandoned Receive never races a later one.
type stdioChannel struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *boundedBuffer

	lines   chan []byte
	readErr error
	readMu  sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}
}

const maxMessageSize = 10 * 1024 * 1024

func newStdioChannel(cmd *exec.Cmd, stdin io.WriteCloser, stdout io.ReadCloser, stderr *boundedBuffer) *stdioChannel {
	ch := &stdioChannel{
		cmd:    cmd,
		stdin:  stdin,
		stderr: stderr,
		lines:  make(chan []byte, 16),
		closed: make(chan struct{}),
	}
	go ch.pump(stdout)
	return ch
}

func (ch *stdioChannel) pump(stdout io.ReadCloser) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), maxMessageSize)
	for scanner.Scan() {
		line := append([]byte(nil), scanner.Bytes()...)
		select {
		case ch.lines <- line:
		case <-ch.closed:
			return
		}
	}

	err := scanner.Err()
	if err == nil {
		err = io.EOF
	}
	ch.readMu.Lock()
	ch.readErr = err
	ch.readMu.Unlock()
	close(ch.lines)
}

func (ch *stdioChannel) Send(ctx context.Context, msg []byte) error {
	errChan := make(chan error, 1)
	go func() {
		framed := append(append([]byte(nil), msg...), '\n')
		_, err := ch.stdin.Write(framed)
		errChan <- err
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch.closed:
		return io.ErrClosedPipe
	case err := <-errChan:
		return err
	}
}

func (ch *stdioChannel) Receive(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-ch.closed:
		return nil, io.ErrClosedPipe
	case line, ok := <-ch.lines:
		if !ok {
			ch.readMu.Lock()
			err := ch.readErr
			ch.readMu.Unlock()
			if stderr := ch.stderr.String(); stderr != "" {
				return nil, fmt.Errorf("%w (stderr: %s)", err, stderr)
			}
			return nil, err
		}
		return line, nil
	}
}

func (ch *stdioChannel) Close() error {
	var err error
	ch.closeOnce.Do(func() {
		close(ch.closed)
		err = ch.stdin.Close()
		if ch.cmd.Process != nil {
			_ = ch.cmd.Process.Kill()
		}
		// Reap without blocking the caller's teardown.
		go func() { _ = ch.cmd.Wait() }()
	})
	return err
}

// boundedBuffer keeps the first few KB of subprocess stderr for diagnostics
// without letting a chatty process grow memory unbounded.
type boundedBuffer struct {
	mu    sync.Mutex
	buf   []byte
	limit int
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if remaining := b.limit - len(b.buf); remaining > 0 {
		if len(p) > remaining {
			b.buf = append(b.buf, p[:remaining]...)
		} else {
			b.buf = append(b.buf, p...)
		}
	}
	return len(p), nil
}

func (b *boundedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.TrimSpace(string(b.buf))
}
