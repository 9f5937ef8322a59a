// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package rbdcli is a mirror.RemovalDriver that shells out to the rbd
// command line tool, in the same style service/snap and service/upstart
// wrap their own external binaries: os/exec plus juju/errors, no cgo
// binding to librbd.
package rbdcli

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/juju/errors"

	"github.com/pangfd/ceph/core/mirror"
)

// Command is the rbd binary name, resolved through $PATH, matching
// how service/snap names its own Command constant.
const Command = "rbd"

// DefaultTimeout bounds a single "rbd trash remove" invocation.
const DefaultTimeout = 5 * time.Minute

// Logger is the subset of loggo.Logger the driver uses.
type Logger interface {
	Debugf(format string, args ...interface{})
	Warningf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{})   {}
func (nopLogger) Warningf(string, ...interface{}) {}

// PoolContext is the mirror.IOContext this driver understands: the
// name of the pool the image lives in. The real librbd IoCtx carries
// far more, but a pool name is everything the rbd CLI needs to address
// an image.
type PoolContext string

// Driver drives image removal through the rbd CLI. The zero value
// runs "rbd" from $PATH with DefaultTimeout and a no-op logger.
type Driver struct {
	// Executor dispatches each Remove call's CLI invocation off the
	// caller's goroutine. Defaults to mirror.GoExecutor{} if nil.
	Executor mirror.Executor

	// Logger receives command tracing. Defaults to a no-op if nil.
	Logger Logger

	// Timeout bounds one invocation. Defaults to DefaultTimeout if
	// zero.
	Timeout time.Duration

	// Run executes name with args and returns combined stdout+stderr.
	// Defaults to exec.CommandContext if nil; tests substitute a fake.
	Run func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// Remove is part of mirror.RemovalDriver.
func (d Driver) Remove(req mirror.RemovalRequest, done func(code int32, result mirror.ErrorResult)) {
	executor := d.Executor
	if executor == nil {
		executor = mirror.GoExecutor{}
	}
	executor.Go(func() {
		code, result := d.remove(req)
		done(code, result)
	})
}

func (d Driver) remove(req mirror.RemovalRequest) (int32, mirror.ErrorResult) {
	pool, ok := req.IOContext.(PoolContext)
	if !ok {
		return -int32(syscall.EINVAL), mirror.ErrorResultComplete
	}

	logger := d.Logger
	if logger == nil {
		logger = nopLogger{}
	}
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	args := []string{"trash", "remove", fmt.Sprintf("%s/%s", pool, req.GlobalImageID), "--no-progress"}
	if req.IgnoreOrphaned {
		args = append(args, "--force")
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	logger.Debugf("running %s %s", Command, strings.Join(args, " "))
	out, runErr := d.runner()(ctx, Command, args...)
	if runErr == nil {
		return mirror.CodeSuccess, mirror.ErrorResultComplete
	}
	err := errors.Annotatef(runErr, "rbd trash remove %s/%s", pool, req.GlobalImageID)

	output := string(bytes.TrimSpace(out))
	switch {
	case ctx.Err() == context.DeadlineExceeded:
		logger.Warningf("%s timed out: %s", err, output)
		return -int32(syscall.ETIMEDOUT), mirror.ErrorResultRetryAfterDelay

	case strings.Contains(output, "busy"):
		logger.Warningf("%s: image busy, will retry", err)
		return -int32(syscall.EBUSY), mirror.ErrorResultRetryImmediately

	case strings.Contains(output, "No such file or directory"):
		// Already gone: nothing left to do.
		return mirror.CodeSuccess, mirror.ErrorResultComplete

	default:
		logger.Warningf("%s: %s", errors.Trace(err), output)
		return -int32(syscall.EIO), mirror.ErrorResultRetryAfterDelay
	}
}

func (d Driver) runner() func(context.Context, string, ...string) ([]byte, error) {
	if d.Run != nil {
		return d.Run
	}
	return func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return exec.CommandContext(ctx, name, args...).CombinedOutput()
	}
}
