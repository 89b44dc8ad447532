package cgroup

import "errors"

// ErrCgroupUnavailable is the sentinel behind every "path cannot be
// resolved or read" failure. Callers skip the current metric and retry on
// the next cycle.
var ErrCgroupUnavailable = errors.New("cgroup: unavailable")

// ErrParse is the sentinel for a malformed pseudo-file: the datum is
// skipped, state is not updated.
var ErrParse = errors.New("cgroup: parse error")
