// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package mirror_test

import (
	"time"

	"github.com/juju/clock/testclock"
	gc "gopkg.in/check.v1"

	"github.com/pangfd/ceph/core/mirror"
)

type RetryTimerSuite struct{}

var _ = gc.Suite(&RetryTimerSuite{})

func (s *RetryTimerSuite) TestFiresAfterDelay(c *gc.C) {
	clk := testclock.NewClock(time.Now())
	timer := mirror.NewClockRetryTimer(clk)

	fired := make(chan struct{})
	timer.AddEventAfter(time.Minute, func() { close(fired) })

	select {
	case <-fired:
		c.Fatalf("fired before the clock advanced")
	default:
	}

	clk.Advance(time.Minute)
	select {
	case <-fired:
	case <-time.After(time.Second):
		c.Fatalf("did not fire after advancing past the delay")
	}
}

func (s *RetryTimerSuite) TestCancelPreventsFiring(c *gc.C) {
	clk := testclock.NewClock(time.Now())
	timer := mirror.NewClockRetryTimer(clk)

	fired := make(chan struct{})
	cancel := timer.AddEventAfter(time.Minute, func() { close(fired) })
	cancel()
	clk.Advance(time.Minute)

	select {
	case <-fired:
		c.Fatalf("fired despite being cancelled")
	case <-time.After(10 * time.Millisecond):
	}
}

func (s *RetryTimerSuite) TestCancelAfterFireIsSafe(c *gc.C) {
	clk := testclock.NewClock(time.Now())
	timer := mirror.NewClockRetryTimer(clk)

	fired := make(chan struct{})
	cancel := timer.AddEventAfter(time.Millisecond, func() { close(fired) })
	clk.Advance(time.Millisecond)

	select {
	case <-fired:
	case <-time.After(time.Second):
		c.Fatalf("did not fire")
	}
	cancel() // must not panic or block
}
