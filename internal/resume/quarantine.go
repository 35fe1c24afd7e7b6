package resume

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/hpcops/resumectl/internal/hostlist"
	"github.com/hpcops/resumectl/internal/platform/slurm"
)

// Quarantiner marks nodes down and propagates the reason to affected jobs.
type Quarantiner interface {
	DownNodesNotifyJobs(ctx context.Context, nodes []string, reason string, alloc *Allocation)
}

// Notifier implements Quarantiner over the scheduler control command.
type Notifier struct {
	scontrol slurm.Scontrol
	log      logrus.FieldLogger
}

var _ Quarantiner = (*Notifier)(nil)

// NewNotifier creates a Notifier.
func NewNotifier(scontrol slurm.Scontrol, log logrus.FieldLogger) *Notifier {
	return &Notifier{scontrol: scontrol, log: log}
}

// DownNodesNotifyJobs marks the nodes down with the given reason in a
// single host-range call, then annotates and notifies every job whose
// allocation intersects them. Without allocation data the down-marking
// still happens; job notification is skipped with a warning.
func (n *Notifier) DownNodesNotifyJobs(ctx context.Context, nodes []string, reason string, alloc *Allocation) {
	if len(nodes) == 0 {
		return
	}

	hostRange := hostlist.Compress(nodes)
	n.log.Errorf("marking nodes %s as DOWN, reason: %s", hostRange, reason)
	if err := n.scontrol.DownNodes(ctx, hostRange, reason); err != nil {
		n.log.WithError(err).Errorf("failed to mark nodes %s down", hostRange)
	}

	if alloc == nil {
		n.log.Warn("cannot update and notify jobs with API failures as no valid allocation data is present")
		return
	}

	for _, job := range alloc.JobsForNodes(nodes) {
		if err := n.scontrol.UpdateJobComment(ctx, job.ID, reason); err != nil {
			n.log.WithError(err).Errorf("failed to update comment of job %d", job.ID)
		}
		if err := n.scontrol.NotifyJob(ctx, job.ID, reason); err != nil {
			n.log.WithError(err).Errorf("failed to notify job %d", job.ID)
		}
	}
}

// HoldJob holds a job and records the reason, for callers that decide a job
// cannot make progress.
func (n *Notifier) HoldJob(ctx context.Context, jobID int64, reason string) {
	if err := n.scontrol.HoldJob(ctx, jobID, reason); err != nil {
		n.log.WithError(err).Errorf("failed to hold job %d", jobID)
	}
}
