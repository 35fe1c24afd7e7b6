// Package slurm shells out to the scheduler's control command. Node
// down-marking, job comments, job notification and job metadata all go
// through scontrol; this package owns the exact command syntax.
package slurm

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Scontrol is the scheduler command surface the resume pipeline uses.
type Scontrol interface {
	// DownNodes marks a host range down with a reason, in a single call.
	DownNodes(ctx context.Context, hostRange, reason string) error

	// UpdateJobComment sets a job's admin comment.
	UpdateJobComment(ctx context.Context, jobID int64, comment string) error

	// NotifyJob sends a message to a running job.
	NotifyJob(ctx context.Context, jobID int64, message string) error

	// HoldJob holds a job and records the reason in its comment.
	HoldJob(ctx context.Context, jobID int64, reason string) error

	// JobDuration returns the job's wall-clock limit. ok is false when the
	// job has no limit or cannot be found.
	JobDuration(ctx context.Context, jobID int64) (d time.Duration, ok bool, err error)
}

// CLI implements Scontrol by invoking the scontrol executable.
type CLI struct {
	path string

	// run is swappable for tests.
	run func(ctx context.Context, path string, args ...string) (string, error)
}

var _ Scontrol = (*CLI)(nil)

// NewCLI creates a CLI using the given scontrol executable path.
func NewCLI(path string) *CLI {
	return &CLI{path: path, run: runCommand}
}

func runCommand(ctx context.Context, path string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, path, args...).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("%s %s: %w: %s", path, strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}

// DownNodes marks the host range down with the given reason.
func (c *CLI) DownNodes(ctx context.Context, hostRange, reason string) error {
	_, err := c.run(ctx, c.path, "update", "nodename="+hostRange, "state=down", "reason="+reason)
	return err
}

// UpdateJobComment sets the job's admin comment.
func (c *CLI) UpdateJobComment(ctx context.Context, jobID int64, comment string) error {
	_, err := c.run(ctx, c.path, "update", fmt.Sprintf("jobid=%d", jobID), "admincomment="+comment)
	return err
}

// NotifyJob sends a message to the job.
func (c *CLI) NotifyJob(ctx context.Context, jobID int64, message string) error {
	_, err := c.run(ctx, c.path, "notify", strconv.FormatInt(jobID, 10), message)
	return err
}

// HoldJob holds the job and records the reason in its comment.
func (c *CLI) HoldJob(ctx context.Context, jobID int64, reason string) error {
	if _, err := c.run(ctx, c.path, "hold", fmt.Sprintf("jobid=%d", jobID)); err != nil {
		return err
	}
	_, err := c.run(ctx, c.path, "update", fmt.Sprintf("jobid=%d", jobID), "comment="+reason)
	return err
}

// JobDuration reads the job's TimeLimit from scontrol show job.
func (c *CLI) JobDuration(ctx context.Context, jobID int64) (time.Duration, bool, error) {
	out, err := c.run(ctx, c.path, "show", "job", strconv.FormatInt(jobID, 10))
	if err != nil {
		return 0, false, err
	}
	for _, field := range strings.Fields(out) {
		value, found := strings.CutPrefix(field, "TimeLimit=")
		if !found {
			continue
		}
		return ParseDuration(value)
	}
	return 0, false, nil
}

// ParseDuration parses a scheduler time limit of the form [days-]HH:MM:SS,
// MM:SS or minutes. UNLIMITED and N/A report ok=false without error.
func ParseDuration(s string) (time.Duration, bool, error) {
	if s == "" || s == "UNLIMITED" || s == "N/A" {
		return 0, false, nil
	}

	var days int64
	rest := s
	if dayStr, hms, found := strings.Cut(s, "-"); found {
		d, err := strconv.ParseInt(dayStr, 10, 64)
		if err != nil {
			return 0, false, fmt.Errorf("bad time limit %q", s)
		}
		days = d
		rest = hms
	}

	parts := strings.Split(rest, ":")
	nums := make([]int64, len(parts))
	for i, p := range parts {
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return 0, false, fmt.Errorf("bad time limit %q", s)
		}
		nums[i] = n
	}

	var d time.Duration
	switch len(nums) {
	case 3:
		d = time.Duration(nums[0])*time.Hour + time.Duration(nums[1])*time.Minute + time.Duration(nums[2])*time.Second
	case 2:
		d = time.Duration(nums[0])*time.Minute + time.Duration(nums[1])*time.Second
	case 1:
		d = time.Duration(nums[0]) * time.Minute
	default:
		return 0, false, fmt.Errorf("bad time limit %q", s)
	}
	return time.Duration(days)*24*time.Hour + d, true, nil
}
