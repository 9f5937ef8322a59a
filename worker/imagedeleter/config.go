// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package imagedeleter

import (
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pangfd/ceph/core/mirror"
)

// DefaultRetryInterval is used when ManagerConfig.RetryInterval is
// zero, matching the original's "rbd_mirror_delete_retry_interval"
// default.
const DefaultRetryInterval = 30 * time.Second

// Logger is the subset of loggo.Logger the coordinator uses. Declaring
// it as an interface, rather than taking loggo.Logger by value, keeps
// ManagerConfig testable without pulling a real logger into every test.
type Logger interface {
	Tracef(format string, args ...interface{})
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warningf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// ManagerConfig collects everything a Manager needs to run. The caller
// retains ownership of, and responsibility for, everything referenced
// here.
type ManagerConfig struct {
	// EntityUUID, if supplied, seeds the log context prefix the same
	// way a lease Manager does: the first six characters identify
	// which mirror agent instance a log line came from.
	EntityUUID string

	// Driver is the removal driver the worker invokes for each active
	// deletion.
	Driver mirror.RemovalDriver

	// Clock is used for the retry timer's delay and for any
	// wall-clock bookkeeping. Defaults to clock.WallClock if nil.
	Clock clock.Clock

	// RetryTimer arms the single outstanding failed-queue retry event.
	// Defaults to a mirror.NewClockRetryTimer wrapping Clock if nil.
	RetryTimer mirror.RetryTimer

	// RetryInterval is the delay before a failed deletion is retried.
	// Defaults to DefaultRetryInterval if zero.
	RetryInterval time.Duration

	// Executor dispatches waiter hooks off the coordinator's lock.
	// Defaults to mirror.GoExecutor{} if nil.
	Executor mirror.Executor

	// Logger receives trace/debug/warning output. Defaults to a logger
	// named "worker.imagedeleter" if nil.
	Logger Logger

	// PrometheusRegisterer, if non-nil, receives the coordinator's
	// queue-depth and outcome metrics.
	PrometheusRegisterer prometheus.Registerer
}

// Validate returns an error if the config cannot be used to construct a
// Manager.
func (config ManagerConfig) Validate() error {
	if config.Driver == nil {
		return errors.NotValidf("nil Driver")
	}
	return nil
}

func (config ManagerConfig) withDefaults() ManagerConfig {
	if config.Clock == nil {
		config.Clock = clock.WallClock
	}
	if config.RetryTimer == nil {
		config.RetryTimer = mirror.NewClockRetryTimer(config.Clock)
	}
	if config.RetryInterval <= 0 {
		config.RetryInterval = DefaultRetryInterval
	}
	if config.Executor == nil {
		config.Executor = mirror.GoExecutor{}
	}
	if config.Logger == nil {
		config.Logger = loggo.GetLogger("worker.imagedeleter")
	}
	return config
}
