// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package shell implements the Persistent Shell Session (§4.1): a
// long-lived interactive child process (e.g. the Bright Cluster Manager
// `cmsh`) driven by writing commands to its stdin and reading framed
// output from its stdout until a configured stop sequence appears.
package shell

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/ClusterCockpit/cc-backend/pkg/log"
)

// Session owns a child process and a background reader goroutine that
// copies its stdout lines onto an internal channel.
type Session struct {
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	lines     chan string
	sep       string
	columnNum int
	stopSeq   string
	timeout   time.Duration
}

// Config describes how to start and drive a Session.
type Config struct {
	// ShellCmd is the executable (and args) to spawn, e.g. "/cm/local/apps/cmd/bin/cmsh".
	ShellCmd string
	// Sep is the field separator used to count columns in output lines.
	Sep string
	// ColumnNum is the expected field count of a data line; lines with a
	// different count are discarded as banners/prompts.
	ColumnNum int
	// StopSequence is the substring that marks the end of a command's output.
	StopSequence string
	// Timeout bounds each read from the reader channel.
	Timeout time.Duration
}

// Open spawns the child process described by cfg, starts its background
// reader, and runs the fixed startup sequence: drain the initial banner,
// issue `device`, issue `events off`, drain residual lines.
func Open(cfg Config) (*Session, error) {
	parts := strings.Fields(cfg.ShellCmd)
	if len(parts) == 0 {
		return nil, fmt.Errorf("shell: empty shell command")
	}

	cmd := exec.Command(parts[0], parts[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("shell: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("shell: stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("shell: start child: %w", err)
	}

	s := &Session{
		cmd:       cmd,
		stdin:     stdin,
		lines:     make(chan string, 4096),
		sep:       cfg.Sep,
		columnNum: cfg.ColumnNum,
		stopSeq:   cfg.StopSequence,
		timeout:   cfg.Timeout,
	}

	go s.readLoop(stdout)

	time.Sleep(2 * time.Second)

	log.Debug("shell: trying to get the prompt")
	if err := s.write("\n\n\n"); err != nil {
		return nil, err
	}
	s.drain(3 * cfg.Timeout)

	log.Debug("shell: setting 'device'")
	if err := s.write("device\n\n"); err != nil {
		return nil, err
	}
	time.Sleep(time.Second)

	log.Debug("shell: setting 'events off'")
	if err := s.write("events off\n\n"); err != nil {
		return nil, err
	}
	time.Sleep(time.Second)

	s.drainNonBlocking()

	return s, nil
}

func (s *Session) readLoop(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		s.lines <- scanner.Text()
	}
	close(s.lines)
}

func (s *Session) write(text string) error {
	if _, err := io.WriteString(s.stdin, text); err != nil {
		log.Abortf("shell: failed to write to child stdin: %v", err)
		return err
	}
	return nil
}

// drain reads and discards lines until the channel blocks for timeout.
func (s *Session) drain(timeout time.Duration) {
	for {
		select {
		case line, ok := <-s.lines:
			if !ok {
				return
			}
			log.Debugf("shell: drained %q", line)
		case <-time.After(timeout):
			return
		}
	}
}

func (s *Session) drainNonBlocking() {
	for {
		select {
		case <-s.lines:
		default:
			return
		}
	}
}

// Run writes cmd followed by a double line-terminator (forcing the
// interactive prompt to re-echo), then accumulates lines whose field
// count matches the configured column count until the stop sequence is
// observed. A read timeout is treated as a fatal session failure: the
// process exits so its supervisor can restart with a clean child (§4.1).
func (s *Session) Run(cmd string) (string, error) {
	if err := s.write(cmd + "\n\n"); err != nil {
		return "", err
	}

	if _, err := s.next(s.timeout); err != nil { // prompt echo
		return "", err
	}
	if _, err := s.next(s.timeout); err != nil { // first value row
		return "", err
	}

	var out strings.Builder
	for {
		line, err := s.next(s.timeout)
		if err != nil {
			return "", err
		}
		if strings.Contains(line, s.stopSeq) {
			break
		}
		if len(strings.Split(line, s.sep)) == s.columnNum {
			out.WriteString(line)
			out.WriteString("\n")
		}
	}
	return out.String(), nil
}

func (s *Session) next(timeout time.Duration) (string, error) {
	select {
	case line, ok := <-s.lines:
		if !ok {
			log.Abort("shell: reader channel closed unexpectedly")
			return "", fmt.Errorf("shell: reader closed")
		}
		return line, nil
	case <-time.After(timeout):
		log.Abort("shell: timed out waiting for child output")
		return "", fmt.Errorf("shell: read timeout")
	}
}

// Close sends "exit" twice and terminates the child process.
func (s *Session) Close() {
	_ = s.write("exit\n\n")
	_ = s.write("exit\n\n")
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	_ = s.cmd.Wait()
}
