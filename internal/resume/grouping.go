package resume

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/hpcops/resumectl/internal/config"
)

// BulkInsertLimit is the most instances one bulk-creation call may request.
// When a placement group is attached the effective limit is
// PlacementMaxCount, since a group cannot span bulk calls.
const BulkInsertLimit = 5000

// Chunk is one size-bounded unit of work: a node list plus the axes it was
// partitioned along. It is consumed exactly once by the executor.
type Chunk struct {
	Nodes          []string
	Prefix         string
	ChunkIndex     int
	JobID          *int64
	Partition      string
	PlacementGroup string
}

// GroupName returns the chunk's unique, deterministic identifier. Inputs
// are already partitioned along these same axes, so collisions cannot
// occur.
func (c Chunk) GroupName() string {
	parts := []string{c.Prefix}
	if c.JobID != nil {
		parts = append(parts, fmt.Sprintf("job%d", *c.JobID))
	}
	if c.PlacementGroup != "" {
		parts = append(parts, c.PlacementGroup)
	}
	parts = append(parts, fmt.Sprintf("%d", c.ChunkIndex))
	return strings.Join(parts, ":")
}

// PlacementAssigner maps an ordered node list to placement-group buckets,
// creating the underlying policies as needed.
type PlacementAssigner interface {
	Assign(ctx context.Context, nodes []string, jobID int64) map[string][]string
}

// Grouper partitions a node set by job ownership, locality group, node-type
// prefix and provider batch-size limit into disjoint chunks.
type Grouper struct {
	lkp       *config.Lookup
	placement PlacementAssigner
	log       logrus.FieldLogger
}

// NewGrouper creates a Grouper.
func NewGrouper(lkp *config.Lookup, placement PlacementAssigner, log logrus.FieldLogger) *Grouper {
	return &Grouper{lkp: lkp, placement: placement, log: log}
}

// jobBucket is one job's share of the resume set, split into placement
// buckets. A nil jobID marks the jobless buckets.
type jobBucket struct {
	jobID     *int64
	partition string
	placement map[string][]string
}

// Group partitions nodes into chunks keyed by group name. A nil allocation
// degrades all nodes to jobless. Group never fails; placement problems are
// absorbed by the assigner.
func (g *Grouper) Group(ctx context.Context, nodes []string, alloc *Allocation) map[string]Chunk {
	inResume := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		inResume[n] = struct{}{}
	}

	var jobs []Job
	if alloc != nil {
		jobs = alloc.Jobs
	}

	var buckets []jobBucket
	claimed := map[string]struct{}{}

	for _, job := range jobs {
		job := job
		resumeNodes := intersectSorted(job.Nodes, inResume)
		for _, n := range job.Nodes {
			claimed[n] = struct{}{}
		}

		var pgs map[string][]string
		if g.lkp.PartitionIsAccelerator(job.Partition) {
			// Accelerator pods never join locality policies.
			pgs = map[string][]string{"": resumeNodes}
		} else {
			// Assignment runs over the job's full allocation so group
			// membership is stable across repeated resume calls, then is
			// restricted to the nodes actually resuming now.
			pgs = g.placement.Assign(ctx, job.Nodes, job.ID)
			for name, pgNodes := range pgs {
				pgs[name] = intersectSorted(pgNodes, inResume)
			}
		}

		buckets = append(buckets, jobBucket{jobID: &job.ID, partition: job.Partition, placement: pgs})
	}

	var jobless []string
	for _, n := range nodes {
		if _, ok := claimed[n]; !ok {
			jobless = append(jobless, n)
		}
	}
	joblessAccel, joblessConventional := Separate(jobless, g.lkp.NodeIsAccelerator)
	sort.Strings(joblessAccel)
	sort.Strings(joblessConventional)

	buckets = append(buckets,
		jobBucket{placement: g.placement.Assign(ctx, joblessConventional, 0)},
		jobBucket{placement: map[string][]string{"": joblessAccel}},
	)

	chunks := map[string]Chunk{}
	for _, bucket := range buckets {
		for _, pg := range sortedKeys(bucket.placement) {
			for _, prefixGroup := range groupByPrefix(bucket.placement[pg], g.lkp.NodePrefix) {
				for i, slice := range chunked(prefixGroup.nodes, g.chunkSize(prefixGroup.nodes)) {
					chunk := Chunk{
						Nodes:          slice,
						Prefix:         prefixGroup.prefix,
						ChunkIndex:     i,
						JobID:          bucket.jobID,
						Partition:      bucket.partition,
						PlacementGroup: pg,
					}
					chunks[chunk.GroupName()] = chunk
				}
			}
		}
	}
	return chunks
}

// chunkSize is the bulk-insert limit, or the pod VM count for accelerator
// nodes.
func (g *Grouper) chunkSize(nodes []string) int {
	if len(nodes) == 0 {
		return BulkInsertLimit
	}
	if ns, ok := g.lkp.AcceleratorNodeset(nodes[0]); ok {
		return ns.VMCount
	}
	return BulkInsertLimit
}

type prefixGroup struct {
	prefix string
	nodes  []string
}

// groupByPrefix groups nodes by type prefix, preserving first-seen order.
func groupByPrefix(nodes []string, prefixOf func(string) string) []prefixGroup {
	var groups []prefixGroup
	index := map[string]int{}
	for _, n := range nodes {
		p := prefixOf(n)
		i, ok := index[p]
		if !ok {
			i = len(groups)
			index[p] = i
			groups = append(groups, prefixGroup{prefix: p})
		}
		groups[i].nodes = append(groups[i].nodes, n)
	}
	return groups
}

// chunked slices nodes into pieces of at most size elements.
func chunked(nodes []string, size int) [][]string {
	if size < 1 {
		size = 1
	}
	var out [][]string
	for start := 0; start < len(nodes); start += size {
		end := start + size
		if end > len(nodes) {
			end = len(nodes)
		}
		out = append(out, nodes[start:end])
	}
	return out
}

// intersectSorted returns the members of nodes present in set, sorted.
func intersectSorted(nodes []string, set map[string]struct{}) []string {
	var out []string
	for _, n := range nodes {
		if _, ok := set[n]; ok {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedStrings(s []string) []string {
	out := append([]string(nil), s...)
	sort.Strings(out)
	return out
}
