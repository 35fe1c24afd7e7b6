// Package resume implements the node-provisioning control loop: it turns a
// flat list of powered-down nodes, optionally annotated with per-job
// allocation data, into batched bulk-creation requests, executes them
// concurrently and reconciles the per-instance outcomes back into scheduler
// state.
package resume

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/hpcops/resumectl/internal/hostlist"
)

// ResumeFileEnv names the environment variable pointing at the scheduler's
// allocation side-channel file.
const ResumeFileEnv = "SLURM_RESUME_FILE"

// Job is one job's allocation record: which nodes it owns in this resume
// cycle. Immutable after parsing.
type Job struct {
	ID        int64
	Partition string
	Nodes     []string
}

// Allocation is the full per-job allocation record set for one invocation.
// A nil *Allocation means no job data is available; all nodes are then
// treated as jobless.
type Allocation struct {
	Jobs []Job
}

// JobsForNodes returns the jobs whose allocation intersects the node set.
func (a *Allocation) JobsForNodes(nodes []string) []Job {
	if a == nil {
		return nil
	}
	set := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		set[n] = struct{}{}
	}
	var jobs []Job
	for _, job := range a.Jobs {
		for _, n := range job.Nodes {
			if _, ok := set[n]; ok {
				jobs = append(jobs, job)
				break
			}
		}
	}
	return jobs
}

type allocationFile struct {
	Jobs []struct {
		JobID      int64  `json:"job_id"`
		Partition  string `json:"partition"`
		NodesAlloc string `json:"nodes_alloc"`
	} `json:"jobs"`
}

// ParseAllocation decodes an allocation file and expands its host ranges.
func ParseAllocation(data []byte) (*Allocation, error) {
	var raw allocationFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode allocation data: %w", err)
	}

	alloc := &Allocation{}
	for _, j := range raw.Jobs {
		nodes, err := hostlist.Expand(j.NodesAlloc)
		if err != nil {
			return nil, fmt.Errorf("job %d: bad node range %q: %w", j.JobID, j.NodesAlloc, err)
		}
		alloc.Jobs = append(alloc.Jobs, Job{
			ID:        j.JobID,
			Partition: j.Partition,
			Nodes:     nodes,
		})
	}
	return alloc, nil
}

// ReadAllocation loads the allocation record set named by SLURM_RESUME_FILE.
// Any problem degrades to nil: missing job data is logged but never fatal.
func ReadAllocation(log logrus.FieldLogger) *Allocation {
	path := os.Getenv(ResumeFileEnv)
	if path == "" {
		log.Errorf("%s was not in environment, cannot get detailed job, node, partition allocation data", ResumeFileEnv)
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.WithError(err).Errorf("cannot read allocation file %s", path)
		return nil
	}
	log.Debugf("allocation data: %s", data)
	alloc, err := ParseAllocation(data)
	if err != nil {
		log.WithError(err).Errorf("cannot parse allocation file %s", path)
		return nil
	}
	return alloc
}
