package resume

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	compute "google.golang.org/api/compute/v0.beta"
	"google.golang.org/api/googleapi"

	"github.com/hpcops/resumectl/internal/config"
)

func testLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// fakeCompute implements gcp.Client in memory. Behavior is adjustable per
// test through the function fields; the zero behavior is "everything
// succeeds".
type fakeCompute struct {
	mu sync.Mutex

	// placement policy state
	existingPolicies map[string]struct{}
	policyErr        map[string]error
	policyInserts    []string

	// bulk insert state
	bulkFn     func(scope string, body *compute.BulkInsertInstanceResource) (*compute.Operation, error)
	dispatches []dispatchRecord

	// operation state
	waitFn    func(op *compute.Operation) (*compute.Operation, error)
	waits     []string
	insertOps map[string][]*compute.Operation
	listErr   error
}

type dispatchRecord struct {
	Scope string
	Body  *compute.BulkInsertInstanceResource
}

func newFakeCompute() *fakeCompute {
	return &fakeCompute{
		existingPolicies: map[string]struct{}{},
		policyErr:        map[string]error{},
		insertOps:        map[string][]*compute.Operation{},
	}
}

func alreadyExistsErr() error {
	return &googleapi.Error{
		Code:   409,
		Errors: []googleapi.ErrorItem{{Reason: "alreadyExists", Message: "resource already exists"}},
	}
}

func (f *fakeCompute) InsertResourcePolicy(_ context.Context, _ string, policy *compute.ResourcePolicy) (*compute.Operation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.policyInserts = append(f.policyInserts, policy.Name)
	if err, ok := f.policyErr[policy.Name]; ok {
		return nil, err
	}
	if _, exists := f.existingPolicies[policy.Name]; exists {
		return nil, alreadyExistsErr()
	}
	f.existingPolicies[policy.Name] = struct{}{}
	return &compute.Operation{Name: "op-" + policy.Name, Status: "RUNNING"}, nil
}

func (f *fakeCompute) bulkInsert(scope string, body *compute.BulkInsertInstanceResource) (*compute.Operation, error) {
	f.mu.Lock()
	f.dispatches = append(f.dispatches, dispatchRecord{Scope: scope, Body: body})
	n := len(f.dispatches)
	f.mu.Unlock()
	if f.bulkFn != nil {
		return f.bulkFn(scope, body)
	}
	return &compute.Operation{
		Name:             fmt.Sprintf("bulk-op-%d", n),
		OperationGroupId: fmt.Sprintf("group-%d", n),
		Status:           "RUNNING",
	}, nil
}

func (f *fakeCompute) BulkInsertZonal(_ context.Context, zone string, body *compute.BulkInsertInstanceResource) (*compute.Operation, error) {
	return f.bulkInsert("zones/"+zone, body)
}

func (f *fakeCompute) BulkInsertRegional(_ context.Context, region string, body *compute.BulkInsertInstanceResource) (*compute.Operation, error) {
	return f.bulkInsert("regions/"+region, body)
}

func (f *fakeCompute) WaitOperation(_ context.Context, op *compute.Operation) (*compute.Operation, error) {
	f.mu.Lock()
	f.waits = append(f.waits, op.Name)
	f.mu.Unlock()
	if f.waitFn != nil {
		return f.waitFn(op)
	}
	done := *op
	done.Status = "DONE"
	return &done, nil
}

func (f *fakeCompute) ListInsertOperations(_ context.Context, operationGroupID string) ([]*compute.Operation, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.insertOps[operationGroupID], nil
}

// fakeAssigner implements PlacementAssigner.
type fakeAssigner struct {
	mu    sync.Mutex
	calls []assignCall
	fn    func(nodes []string, jobID int64) map[string][]string
}

type assignCall struct {
	Nodes []string
	JobID int64
}

func (f *fakeAssigner) Assign(_ context.Context, nodes []string, jobID int64) map[string][]string {
	f.mu.Lock()
	f.calls = append(f.calls, assignCall{Nodes: append([]string(nil), nodes...), JobID: jobID})
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(nodes, jobID)
	}
	return map[string][]string{"": nodes}
}

// fakeQuarantiner records quarantine requests.
type fakeQuarantiner struct {
	mu    sync.Mutex
	calls []quarantineCall
}

type quarantineCall struct {
	Nodes  []string
	Reason string
}

func (f *fakeQuarantiner) DownNodesNotifyJobs(_ context.Context, nodes []string, reason string, _ *Allocation) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, quarantineCall{Nodes: sortedStrings(nodes), Reason: reason})
}

// fakeAccel records the chunks handed to the accelerator path.
type fakeAccel struct {
	mu     sync.Mutex
	chunks []Chunk
	onRun  func()
}

func (f *fakeAccel) Provision(_ context.Context, chunks []Chunk) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chunks = append(f.chunks, chunks...)
	if f.onRun != nil {
		f.onRun()
	}
}

// fakeDurations implements DurationSource.
type fakeDurations struct {
	durations map[int64]time.Duration
}

func (f *fakeDurations) JobDuration(_ context.Context, jobID int64) (time.Duration, bool, error) {
	d, ok := f.durations[jobID]
	return d, ok, nil
}

// clusterConfig builds a config with one conventional nodeset "compute", a
// second conventional nodeset "highmem" and one accelerator nodeset "pod".
func clusterConfig() *config.Config {
	return &config.Config{
		ClusterName:    "hpc",
		Project:        "demo-project",
		UniverseDomain: "googleapis.com",
		ScontrolPath:   "scontrol",
		Nodesets: map[string]config.Nodeset{
			"compute": {
				Name:             "compute",
				InstanceTemplate: "projects/demo-project/global/instanceTemplates/tpl-compute",
				Region:           "us-central1",
				ZonePolicyAllow:  []string{"us-central1-a"},
				EnablePlacement:  true,
				ZoneTargetShape:  "ANY_SINGLE_ZONE",
				Template: config.TemplateInfo{
					MachineType: "c2-standard-60",
					Labels:      map[string]string{"env": "prod"},
				},
			},
			"highmem": {
				Name:             "highmem",
				InstanceTemplate: "projects/demo-project/global/instanceTemplates/tpl-highmem",
				Region:           "us-central1",
				ZonePolicyAllow:  []string{"us-central1-a", "us-central1-b"},
				ZonePolicyDeny:   []string{"us-central1-f"},
				ZoneTargetShape:  "BALANCED",
				Template: config.TemplateInfo{
					MachineType: "n2-highmem-64",
				},
			},
		},
		AcceleratorNodesets: map[string]config.AcceleratorNodeset{
			"pod": {
				Name:            "pod",
				Zone:            "us-central2-b",
				AcceleratorType: "v4-16",
				RuntimeVersion:  "tpu-vm-tf-2.14.0",
				VMCount:         2,
			},
		},
		Partitions: map[string]config.Partition{
			"batch":     {Nodesets: []string{"compute"}},
			"exclusive": {Nodesets: []string{"compute"}, EnableJobExclusive: true},
			"accel":     {Nodesets: []string{"pod"}},
		},
	}
}

func testLookup() *config.Lookup {
	return config.NewLookup(clusterConfig())
}

// nodeNames generates hpc-<set>-<i> for i in [0, n).
func nodeNames(set string, n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("hpc-%s-%d", set, i)
	}
	return names
}
