// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package mirror_test

import (
	"syscall"

	gc "gopkg.in/check.v1"

	"github.com/pangfd/ceph/core/mirror"
)

type ErrorsSuite struct{}

var _ = gc.Suite(&ErrorsSuite{})

func (s *ErrorsSuite) TestSentinelCodesHaveFixedNames(c *gc.C) {
	c.Check(mirror.ErrorString(mirror.CodeSuccess), gc.Equals, "success")
	c.Check(mirror.ErrorString(mirror.CodeStale), gc.Equals, "stale waiter")
	c.Check(mirror.ErrorString(mirror.CodeCancelled), gc.Equals, "cancelled")
	c.Check(mirror.ErrorString(mirror.CodeBlacklisted), gc.Equals, "blacklisted")
}

func (s *ErrorsSuite) TestFallsBackToErrno(c *gc.C) {
	c.Check(mirror.ErrorString(-int32(syscall.EBUSY)), gc.Equals, syscall.EBUSY.Error())
	c.Check(mirror.ErrorString(int32(syscall.EBUSY)), gc.Equals, syscall.EBUSY.Error())
}
