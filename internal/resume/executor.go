package resume

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
	compute "google.golang.org/api/compute/v0.beta"
	"gopkg.in/yaml.v3"

	"github.com/hpcops/resumectl/internal/config"
	"github.com/hpcops/resumectl/internal/hostlist"
	"github.com/hpcops/resumectl/internal/platform/gcp"
	"github.com/hpcops/resumectl/internal/util/async"
)

// acceleratorProvisioner runs the accelerator-pod code path.
type acceleratorProvisioner interface {
	Provision(ctx context.Context, chunks []Chunk)
}

// Executor dispatches all chunk requests concurrently, awaits the
// resulting long-running operations and reconciles per-instance outcomes.
// No failure of one group ever aborts processing of another, and nothing
// here terminates the process: quarantine plus logging is the uniform
// recovery action.
type Executor struct {
	lkp        *config.Lookup
	client     gcp.Client
	builder    *RequestBuilder
	grouper    *Grouper
	quarantine Quarantiner
	accel      acceleratorProvisioner
	log        logrus.FieldLogger
}

// NewExecutor creates an Executor.
func NewExecutor(
	lkp *config.Lookup,
	client gcp.Client,
	builder *RequestBuilder,
	grouper *Grouper,
	quarantine Quarantiner,
	accel acceleratorProvisioner,
	log logrus.FieldLogger,
) *Executor {
	return &Executor{
		lkp:        lkp,
		client:     client,
		builder:    builder,
		grouper:    grouper,
		quarantine: quarantine,
		accel:      accel,
		log:        log,
	}
}

// Resume provisions all nodes in the list, using the allocation data to
// group them by owning job.
func (e *Executor) Resume(ctx context.Context, nodes []string, alloc *Allocation) {
	if len(nodes) == 0 {
		e.log.Info("no nodes to resume")
		return
	}

	nodes = append([]string(nil), nodes...)
	sort.SliceStable(nodes, func(i, j int) bool {
		pi, pj := e.lkp.NodePrefix(nodes[i]), e.lkp.NodePrefix(nodes[j])
		if pi != pj {
			return pi < pj
		}
		return nodes[i] < nodes[j]
	})

	grouped := e.grouper.Group(ctx, nodes, alloc)
	if logrus.IsLevelEnabled(logrus.DebugLevel) {
		e.log.Debugf("node bulk groups:\n%s", dumpGroups(grouped))
	}

	var accelChunks []Chunk
	conventional := map[string]Chunk{}
	for name, chunk := range grouped {
		if len(chunk.Nodes) == 0 {
			continue
		}
		if e.lkp.NodeIsAccelerator(chunk.Nodes[0]) {
			accelChunks = append(accelChunks, chunk)
		} else {
			conventional[name] = chunk
		}
	}
	sort.Slice(accelChunks, func(i, j int) bool {
		return accelChunks[i].GroupName() < accelChunks[j].GroupName()
	})

	// Phase 1: dispatch every conventional bulk request concurrently.
	groupNames := make([]string, 0, len(conventional))
	for name := range conventional {
		groupNames = append(groupNames, name)
	}
	dispatched := async.Map(ctx, groupNames, func(ctx context.Context, name string) (*compute.Operation, error) {
		return e.dispatch(ctx, conventional[name])
	})

	var started []string
	var failedToStart []string
	for name, res := range dispatched {
		if res.Err == nil {
			started = append(started, name)
			e.log.Debugf("new bulkInsert operation started: group=%s name=%s operationGroupId=%s",
				name, res.Value.Name, res.Value.OperationGroupId)
			continue
		}
		failedToStart = append(failedToStart, fmt.Sprintf("%s: %v", name, res.Err))
	}
	if len(failedToStart) > 0 {
		e.log.Errorf("bulkInsert API failures: %s", strings.Join(sortedStrings(failedToStart), "; "))
	}
	for name, res := range dispatched {
		if res.Err != nil {
			e.quarantine.DownNodesNotifyJobs(ctx, conventional[name].Nodes, "GCP Error: "+res.Err.Error(), alloc)
		}
	}

	// Phase 2: await every started operation concurrently.
	completed := async.Map(ctx, started, func(ctx context.Context, name string) (*compute.Operation, error) {
		return e.client.WaitOperation(ctx, dispatched[name].Value)
	})

	// Phase 3: the accelerator path runs strictly after all conventional
	// operations finished, so it never delays conventional availability.
	e.accel.Provision(ctx, accelChunks)

	// Phase 4: reconcile per-instance outcomes.
	for _, name := range sortedStrings(started) {
		res := completed[name]
		if res.Err != nil {
			e.log.WithError(res.Err).Errorf("failed waiting on bulkInsert operation for group %s", name)
			e.quarantine.DownNodesNotifyJobs(ctx, conventional[name].Nodes, "GCP Error: "+res.Err.Error(), alloc)
			continue
		}
		e.reconcileGroup(ctx, name, conventional[name], res.Value, alloc)
	}
}

func (e *Executor) dispatch(ctx context.Context, chunk Chunk) (*compute.Operation, error) {
	req, err := e.builder.Build(ctx, chunk)
	if err != nil {
		return nil, err
	}
	if req.Zone != "" {
		return e.client.BulkInsertZonal(ctx, req.Zone, req.Body)
	}
	return e.client.BulkInsertRegional(ctx, req.Region, req.Body)
}

// reconcileGroup fetches the per-instance insert operations of one
// completed bulk operation, quarantines failed nodes by error code and
// logs successes in aggregate.
func (e *Executor) reconcileGroup(ctx context.Context, group string, chunk Chunk, bulkOp *compute.Operation, alloc *Allocation) {
	groupID := bulkOp.OperationGroupId

	if bulkOp.Error != nil {
		e.log.Warnf("bulkInsert operation errors: %s name=%s operationGroupId=%s nodes=%s",
			gcp.OperationErrorCode(bulkOp), bulkOp.Name, groupID, hostlist.Compress(chunk.Nodes))
	}

	insertOps, err := e.client.ListInsertOperations(ctx, groupID)
	if err != nil {
		e.log.WithError(err).Errorf("cannot list insert operations for group %s (operationGroupId=%s)", group, groupID)
		return
	}

	var successful []*compute.Operation
	byCode := map[string][]*compute.Operation{}
	for _, op := range insertOps {
		if op.Error == nil {
			successful = append(successful, op)
			continue
		}
		code := gcp.OperationErrorCode(op)
		byCode[code] = append(byCode[code], op)
	}

	for _, code := range sortedKeys(byCode) {
		failedOps := byCode[code]
		failedNodes := make(map[string]*compute.Operation, len(failedOps))
		for _, op := range failedOps {
			failedNodes[gcp.TrimSelfLink(op.TargetLink)] = op
		}
		names := sortedKeys(failedNodes)
		e.log.Errorf("%d instances failed to start: %s (%s) operationGroupId=%s",
			len(failedNodes), code, hostlist.Compress(names), groupID)

		representative := names[0]
		msg := gcp.OperationErrorMessage(failedNodes[representative])
		if code != "RESOURCE_ALREADY_EXISTS" {
			e.quarantine.DownNodesNotifyJobs(ctx, names, "GCP Error: "+msg, alloc)
		}
		e.log.Errorf("errors from insert for node '%s' (%s): %s",
			representative, failedNodes[representative].Name, msg)
	}

	if len(successful) > 0 {
		ready := make([]string, 0, len(successful))
		for _, op := range successful {
			ready = append(ready, gcp.TrimSelfLink(op.TargetLink))
		}
		e.log.Infof("created %d instances: nodes=%s", len(ready), hostlist.Compress(ready))
	}
}

func dumpGroups(grouped map[string]Chunk) string {
	lists := make(map[string]string, len(grouped))
	for name, chunk := range grouped {
		lists[name] = hostlist.Compress(chunk.Nodes)
	}
	out, err := yaml.Marshal(lists)
	if err != nil {
		return fmt.Sprintf("%v", lists)
	}
	return strings.TrimRight(string(out), "\n")
}
