// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package sshexec implements the Ssh Executor (§4.2): a simple remote
// command runner that connects, runs one command, and disconnects again
// for every call. Localhost targets are detected and run via a local
// shell instead of an SSH round trip.
package sshexec

import (
	"bytes"
	"fmt"
	"net"
	"os"
	"os/exec"
	"os/user"
	"time"

	"github.com/ClusterCockpit/cc-backend/pkg/log"
	"golang.org/x/crypto/ssh"
)

const (
	maxConnectAttempts = 6
	backoffSleep       = 60 * time.Second
)

// Config describes how to reach the target host.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string // used if KeyFile is empty
	KeyFile  string // path to a private key file
	Timeout  time.Duration
}

// Executor runs commands either over SSH or, for local-mode targets,
// directly via a forked shell.
type Executor struct {
	cfg     Config
	local   bool
	attempt int
}

// New builds an Executor for cfg. Host values equal to "localhost",
// "127.0.0.1", or the machine's own hostname are treated as local mode.
func New(cfg Config) *Executor {
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	local := cfg.Host == "localhost" || cfg.Host == "127.0.0.1"
	if !local {
		if hostname, err := os.Hostname(); err == nil && hostname == cfg.Host {
			local = true
		}
	}

	return &Executor{cfg: cfg, local: local}
}

// Exec runs cmd and returns whether it succeeded along with its stdout
// and stderr. In SSH mode, connect failures are retried up to
// maxConnectAttempts times; on exhaustion the executor sleeps for
// backoffSleep and resets its attempt counter rather than giving up, since
// collectors must be eventually-available (§4.2).
func (e *Executor) Exec(cmd string) (ok bool, stdout, stderr string, err error) {
	if e.local {
		return e.execLocal(cmd)
	}
	return e.execRemote(cmd)
}

func (e *Executor) execLocal(cmdStr string) (bool, string, string, error) {
	c := exec.Command("sh", "-c", cmdStr)
	var outBuf, errBuf bytes.Buffer
	c.Stdout = &outBuf
	c.Stderr = &errBuf

	if err := c.Run(); err != nil {
		log.Errorf("sshexec: local command failed: %v", err)
		return false, outBuf.String(), errBuf.String(), err
	}
	return true, outBuf.String(), errBuf.String(), nil
}

func (e *Executor) execRemote(cmdStr string) (bool, string, string, error) {
	client, err := e.dial()
	if err != nil {
		return false, "", "", err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		log.Errorf("sshexec: failed to open session on %s: %v", e.cfg.Host, err)
		return false, "", "", err
	}
	defer session.Close()

	var outBuf, errBuf bytes.Buffer
	session.Stdout = &outBuf
	session.Stderr = &errBuf

	if err := session.Run(cmdStr); err != nil {
		log.Errorf("sshexec: command %q on %s failed: %v", cmdStr, e.cfg.Host, err)
		return false, outBuf.String(), errBuf.String(), err
	}
	return true, outBuf.String(), errBuf.String(), nil
}

func (e *Executor) dial() (*ssh.Client, error) {
	auth, err := e.authMethod()
	if err != nil {
		return nil, err
	}

	username := e.cfg.Username
	if username == "" {
		if u, err := user.Current(); err == nil {
			username = u.Username
		}
	}

	clientCfg := &ssh.ClientConfig{
		User:            username,
		Auth:            []ssh.AuthMethod{auth},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         e.cfg.Timeout,
	}

	addr := net.JoinHostPort(e.cfg.Host, fmt.Sprintf("%d", e.cfg.Port))

	for {
		e.attempt++
		client, err := ssh.Dial("tcp", addr, clientCfg)
		if err == nil {
			e.attempt = 0
			return client, nil
		}

		log.Warnf("sshexec: connect attempt %d/%d to %s failed: %v", e.attempt, maxConnectAttempts, addr, err)

		if e.attempt >= maxConnectAttempts {
			log.Warnf("sshexec: exhausted connect attempts to %s, backing off %s", addr, backoffSleep)
			time.Sleep(backoffSleep)
			e.attempt = 0
			continue
		}
	}
}

func (e *Executor) authMethod() (ssh.AuthMethod, error) {
	if e.cfg.KeyFile != "" {
		key, err := os.ReadFile(e.cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("sshexec: reading key file: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("sshexec: parsing key file: %w", err)
		}
		return ssh.PublicKeys(signer), nil
	}
	return ssh.Password(e.cfg.Password), nil
}
