// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package imagedeleter_test

import (
	"sync"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/pangfd/ceph/core/mirror"
	"github.com/pangfd/ceph/worker/imagedeleter"
)

// ManagerSuite implements the spec's Testable Scenarios S1-S6 against
// Manager's exported API only, matching the teacher's worker/lease
// convention of testing the worker through its public surface plus a
// scripted fixture for its external collaborator (there, the lease
// store; here, the removal driver).
type ManagerSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&ManagerSuite{})

// scriptedOutcome is one canned response a fakeDriver gives for one
// invocation against a given image id.
type scriptedOutcome struct {
	code   int32
	result mirror.ErrorResult
}

// fakeDriver is the scripted mirror.RemovalDriver every scenario drives.
// Each call to Remove for a given image id consumes the next queued
// outcome for that id, defaulting to an immediate success once the
// queue for that id is exhausted.
type fakeDriver struct {
	mu        sync.Mutex
	responses map[string][]scriptedOutcome
	calls     []string
	requests  []mirror.RemovalRequest
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{responses: make(map[string][]scriptedOutcome)}
}

func (d *fakeDriver) script(id string, outcomes ...scriptedOutcome) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.responses[id] = append(d.responses[id], outcomes...)
}

func (d *fakeDriver) callCount(id string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.calls {
		if c == id {
			n++
		}
	}
	return n
}

// lastRequest returns the RemovalRequest the driver saw on its most
// recent call for id, so a test can assert on fields beyond the code
// and result a scripted outcome controls, such as IgnoreOrphaned.
func (d *fakeDriver) lastRequest(id string) (mirror.RemovalRequest, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := len(d.requests) - 1; i >= 0; i-- {
		if d.requests[i].GlobalImageID == id {
			return d.requests[i], true
		}
	}
	return mirror.RemovalRequest{}, false
}

func (d *fakeDriver) Remove(req mirror.RemovalRequest, done func(code int32, result mirror.ErrorResult)) {
	d.mu.Lock()
	d.calls = append(d.calls, req.GlobalImageID)
	d.requests = append(d.requests, req)
	next := scriptedOutcome{code: mirror.CodeSuccess, result: mirror.ErrorResultComplete}
	if queued := d.responses[req.GlobalImageID]; len(queued) > 0 {
		next = queued[0]
		d.responses[req.GlobalImageID] = queued[1:]
	}
	d.mu.Unlock()
	done(next.code, next.result)
}

// syncExecutor runs every hook inline, so a scenario can assert on a
// waiter's outcome without a sleep: the hook has already run by the
// time Notify's caller returns.
type syncExecutor struct{}

func (syncExecutor) Go(fn func()) { fn() }

// waiter collects every code its hook is called with, safe for
// concurrent use since Notify can legitimately fire from the worker
// goroutine while the test goroutine reads back.
type waiter struct {
	mu    sync.Mutex
	codes []int32
}

func (w *waiter) hook(code int32) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.codes = append(w.codes, code)
}

func (w *waiter) all() []int32 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]int32(nil), w.codes...)
}

func (s *ManagerSuite) newManager(c *gc.C, driver mirror.RemovalDriver, clk *testclock.Clock, retryInterval time.Duration) *imagedeleter.Manager {
	manager, err := imagedeleter.NewManager(imagedeleter.ManagerConfig{
		EntityUUID:    "test-entity",
		Driver:        driver,
		Clock:         clk,
		RetryInterval: retryInterval,
		Executor:      syncExecutor{},
	})
	c.Assert(err, jc.ErrorIsNil)
	s.AddCleanup(func(c *gc.C) {
		manager.Kill()
		c.Check(manager.Wait(), jc.ErrorIsNil)
	})
	return manager
}

// waitFor polls cond, failing the test if it is never satisfied within
// a second — plenty of time for a synchronous-executor, testclock-driven
// scenario with no real sleeps anywhere in its path.
func waitFor(c *gc.C, cond func() bool) {
	deadline := time.After(time.Second)
	for {
		if cond() {
			return
		}
		select {
		case <-deadline:
			c.Fatalf("condition never became true")
		case <-time.After(time.Millisecond):
		}
	}
}

// S1 - happy path.
func (s *ManagerSuite) TestHappyPath(c *gc.C) {
	driver := newFakeDriver()
	clk := testclock.NewClock(time.Now())
	manager := s.newManager(c, driver, clk, time.Minute)

	manager.ScheduleDelete(nil, 1, "A", false)

	w := &waiter{}
	manager.WaitForScheduledDeletion(1, "A", w.hook, false)

	waitFor(c, func() bool { return len(w.all()) == 1 })
	c.Check(w.all(), gc.DeepEquals, []int32{mirror.CodeSuccess})
	c.Check(manager.DeleteQueueItems(), gc.HasLen, 0)
	c.Check(manager.FailedQueueItems(), gc.HasLen, 0)
	c.Check(manager.Report()["retry-armed"], gc.Equals, false)
}

// S2 - transient failure, then a timed retry succeeds.
func (s *ManagerSuite) TestTransientThenSuccessOnRetry(c *gc.C) {
	driver := newFakeDriver()
	driver.script("B", scriptedOutcome{code: -11 /* EAGAIN */, result: mirror.ErrorResultRetryAfterDelay})
	clk := testclock.NewClock(time.Now())
	manager := s.newManager(c, driver, clk, 30*time.Second)

	manager.ScheduleDelete(nil, 1, "B", false)

	w := &waiter{}
	manager.WaitForScheduledDeletion(1, "B", w.hook, false)

	waitFor(c, func() bool { return len(manager.FailedQueueItems()) == 1 })
	c.Check(manager.Report()["retry-armed"], gc.Equals, true)
	c.Check(w.all(), gc.HasLen, 0) // notify_on_failed_retry == false: no fire yet

	clk.Advance(30 * time.Second)

	waitFor(c, func() bool { return len(w.all()) == 1 })
	c.Check(w.all(), gc.DeepEquals, []int32{mirror.CodeSuccess})
	c.Check(driver.callCount("B"), gc.Equals, 2)
	c.Check(manager.FailedQueueItems(), gc.HasLen, 0)
}

// S3 - immediate retry: the transient failure only reaches the waiter if
// notify_on_failed_retry, and the driver is re-invoked synchronously with
// no timer involved; without the flag the waiter fires once, with the
// success of the second attempt.
func (s *ManagerSuite) TestImmediateRetryNotifiesOnlyWhenAsked(c *gc.C) {
	driver := newFakeDriver()
	driver.script("C", scriptedOutcome{code: -16 /* EBUSY */, result: mirror.ErrorResultRetryImmediately})
	clk := testclock.NewClock(time.Now())
	manager := s.newManager(c, driver, clk, time.Minute)

	manager.ScheduleDelete(nil, 1, "C", false)

	w := &waiter{}
	manager.WaitForScheduledDeletion(1, "C", w.hook, false)

	waitFor(c, func() bool { return driver.callCount("C") == 2 })
	waitFor(c, func() bool { return len(w.all()) == 1 })
	c.Check(w.all(), gc.DeepEquals, []int32{mirror.CodeSuccess})
	c.Check(manager.Report()["retry-armed"], gc.Equals, false)
}

func (s *ManagerSuite) TestImmediateRetryNotifiesWhenRequested(c *gc.C) {
	driver := newFakeDriver()
	driver.script("C2", scriptedOutcome{code: -16, result: mirror.ErrorResultRetryImmediately})
	clk := testclock.NewClock(time.Now())
	manager := s.newManager(c, driver, clk, time.Minute)

	manager.ScheduleDelete(nil, 1, "C2", false)

	w := &waiter{}
	manager.WaitForScheduledDeletion(1, "C2", w.hook, true)

	waitFor(c, func() bool { return len(w.all()) >= 1 })
	c.Check(w.all()[0], gc.Equals, int32(-16))
}

// S4 - blacklist is terminal even though the driver asked for a delayed
// retry.
func (s *ManagerSuite) TestBlacklistIsTerminal(c *gc.C) {
	driver := newFakeDriver()
	driver.script("D", scriptedOutcome{code: mirror.CodeBlacklisted, result: mirror.ErrorResultRetryAfterDelay})
	clk := testclock.NewClock(time.Now())
	manager := s.newManager(c, driver, clk, time.Minute)

	manager.ScheduleDelete(nil, 1, "D", false)

	w := &waiter{}
	manager.WaitForScheduledDeletion(1, "D", w.hook, false)

	waitFor(c, func() bool { return len(w.all()) == 1 })
	c.Check(w.all(), gc.DeepEquals, []int32{mirror.CodeBlacklisted})
	c.Check(manager.FailedQueueItems(), gc.HasLen, 0)
	c.Check(manager.Report()["retry-armed"], gc.Equals, false)
}

// S5 - duplicate schedule upgrades the orphan flag instead of creating
// a second entry.
func (s *ManagerSuite) TestDuplicateScheduleUpgradesOrphanFlag(c *gc.C) {
	driver := newFakeDriver()
	// First attempt parks "E" in the failed queue; second attempt (after
	// the retry timer fires) succeeds, so the driver sees two calls and
	// the test can compare the IgnoreOrphaned each one carried.
	driver.script("E",
		scriptedOutcome{code: -11, result: mirror.ErrorResultRetryAfterDelay},
		scriptedOutcome{code: mirror.CodeSuccess, result: mirror.ErrorResultComplete},
	)
	clk := testclock.NewClock(time.Now())
	manager := s.newManager(c, driver, clk, time.Minute)

	manager.ScheduleDelete(nil, 1, "E", false)
	waitFor(c, func() bool { return driver.callCount("E") == 1 })

	first, ok := driver.lastRequest("E")
	c.Assert(ok, jc.IsTrue)
	c.Check(first.IgnoreOrphaned, jc.IsFalse)

	failed := manager.FailedQueueItems()
	c.Assert(failed, gc.HasLen, 1)
	c.Check(failed[0].GlobalImageID, gc.Equals, "E")

	// Duplicate schedule while "E" sits in the failed queue: a single
	// entry afterwards, not two, confirms it upgraded rather than
	// duplicated.
	manager.ScheduleDelete(nil, 1, "E", true)
	c.Check(manager.FailedQueueItems(), gc.HasLen, 1)

	clk.Advance(time.Minute)
	waitFor(c, func() bool { return driver.callCount("E") == 2 })

	second, ok := driver.lastRequest("E")
	c.Assert(ok, jc.IsTrue)
	c.Check(second.IgnoreOrphaned, jc.IsTrue)

	waitFor(c, func() bool { return len(manager.FailedQueueItems()) == 0 })
}

// S6 - waiter displacement: an older waiter fires stale when a newer one
// registers for the same identity; cancel_waiter is a no-op afterwards.
func (s *ManagerSuite) TestWaiterDisplacement(c *gc.C) {
	driver := newFakeDriver()
	driver.script("F", scriptedOutcome{code: -11, result: mirror.ErrorResultRetryAfterDelay})
	clk := testclock.NewClock(time.Now())
	manager := s.newManager(c, driver, clk, 30*time.Second)

	manager.ScheduleDelete(nil, 1, "F", false)
	waitFor(c, func() bool { return len(manager.FailedQueueItems()) == 1 })

	w1 := &waiter{}
	manager.WaitForScheduledDeletion(1, "F", w1.hook, false)

	w2 := &waiter{}
	manager.WaitForScheduledDeletion(1, "F", w2.hook, false)
	waitFor(c, func() bool { return len(w1.all()) == 1 })
	c.Check(w1.all(), gc.DeepEquals, []int32{mirror.CodeStale})

	clk.Advance(30 * time.Second)
	waitFor(c, func() bool { return len(w2.all()) == 1 })
	c.Check(w2.all(), gc.DeepEquals, []int32{mirror.CodeSuccess})

	manager.CancelWaiter(1, "F") // no matching entry left: no-op, no panic
}

// TestWaitForUnknownDeletionFiresImmediately covers the "nothing to
// wait for" branch of WaitForScheduledDeletion.
func (s *ManagerSuite) TestWaitForUnknownDeletionFiresImmediately(c *gc.C) {
	driver := newFakeDriver()
	clk := testclock.NewClock(time.Now())
	manager := s.newManager(c, driver, clk, time.Minute)

	w := &waiter{}
	manager.WaitForScheduledDeletion(9, "ghost", w.hook, false)
	c.Check(w.all(), gc.DeepEquals, []int32{mirror.CodeSuccess})
}

// TestKillCancelsOutstandingWaiters is this module's resolution of OQ1:
// shutdown fires every still-registered waiter with CodeCancelled
// rather than leaving it unfired.
func (s *ManagerSuite) TestKillCancelsOutstandingWaiters(c *gc.C) {
	driver := newFakeDriver()
	driver.script("G", scriptedOutcome{code: -11, result: mirror.ErrorResultRetryAfterDelay})
	clk := testclock.NewClock(time.Now())
	manager := s.newManager(c, driver, clk, time.Hour)

	manager.ScheduleDelete(nil, 1, "G", false)
	waitFor(c, func() bool { return len(manager.FailedQueueItems()) == 1 })

	w := &waiter{}
	manager.WaitForScheduledDeletion(1, "G", w.hook, false)

	manager.Kill()
	c.Check(manager.Wait(), jc.ErrorIsNil)
	c.Check(w.all(), gc.DeepEquals, []int32{mirror.CodeCancelled})
}

// TestRunsWithDefaultedConfig exercises ManagerConfig's default
// filling, independent of any scenario: every optional field, including
// RetryInterval, is left unset and the Manager still processes a
// deletion.
func (s *ManagerSuite) TestRunsWithDefaultedConfig(c *gc.C) {
	driver := newFakeDriver()
	manager, err := imagedeleter.NewManager(imagedeleter.ManagerConfig{Driver: driver})
	c.Assert(err, jc.ErrorIsNil)
	defer func() {
		manager.Kill()
		c.Check(manager.Wait(), jc.ErrorIsNil)
	}()

	manager.ScheduleDelete(nil, 1, "H", false)
	waitFor(c, func() bool { return len(manager.DeleteQueueItems()) == 0 })
}

func (s *ManagerSuite) TestValidateRejectsNilDriver(c *gc.C) {
	_, err := imagedeleter.NewManager(imagedeleter.ManagerConfig{})
	c.Check(err, gc.ErrorMatches, "nil Driver not valid")
}
