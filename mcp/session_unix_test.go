//go:build unix

package mcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"testing"
	"time"

	"github.com/richinex/ghscout/credentials"
)

// readPID waits for a helper process to record its pid.
func readPID(t *testing.T, path string) int {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for {
		data, err := os.ReadFile(path)
		if err == nil {
			pid, err := strconv.Atoi(string(data))
			if err != nil {
				t.Fatalf("bad pid file %s: %q", path, data)
			}
			return pid
		}
		if time.Now().After(deadline) {
			t.Fatalf("no pid written to %s", path)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// reaped reports whether pid is gone entirely.
func reaped(pid int) bool {
	return errors.Is(syscall.Kill(pid, 0), syscall.ESRCH)
}

// exited reports whether pid has stopped running. A process orphaned to
// an init that never reaps stays a zombie, which counts as exited.
func exited(pid int) bool {
	if reaped(pid) {
		return true
	}
	stat, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return false
	}
	i := bytes.LastIndexByte(stat, ')')
	return i >= 0 && i+2 < len(stat) && stat[i+2] == 'Z'
}

func waitFor(t *testing.T, pid int, gone func(int) bool, what string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !gone(pid) {
		if time.Now().After(deadline) {
			t.Fatalf("process %d still %s", pid, what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSessionCloseStopsServer(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "server.pid")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s, err := NewGateway(fakeServerWithPIDFile("", pidFile)).Open(ctx, credentials.Credentials{HostToken: "x"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	pid := readPID(t, pidFile)
	if reaped(pid) {
		t.Fatalf("server %d not running while the session is open", pid)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if state := s.(*Session).client.cmd.ProcessState; state == nil {
		t.Error("Close returned before the server was waited for")
	}
	waitFor(t, pid, reaped, "present after Close")
}

func TestFailedOpenStopsServer(t *testing.T) {
	tests := []struct {
		name string
		mode string
	}{
		{"tools/list fails", "list-error"},
		{"server exits during handshake", "crash"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pidFile := filepath.Join(t.TempDir(), "server.pid")
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if _, err := NewGateway(fakeServerWithPIDFile(tt.mode, pidFile)).Open(ctx, credentials.Credentials{HostToken: "x"}); err == nil {
				t.Fatal("Open succeeded")
			}
			waitFor(t, readPID(t, pidFile), reaped, "present after a failed Open")
		})
	}
}

func TestCloseStopsServerChildren(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "server.pid")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	session, err := NewGateway(fakeServerWithPIDFile("orphan", pidFile)).Open(ctx, credentials.Credentials{HostToken: "x"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	server := readPID(t, pidFile)
	child := readPID(t, pidFile+".child")
	if exited(child) {
		t.Fatalf("helper %d not running while the session is open", child)
	}

	if err := session.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	waitFor(t, server, reaped, "present after Close")
	waitFor(t, child, exited, "running after Close")
}
