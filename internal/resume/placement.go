package resume

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	compute "google.golang.org/api/compute/v0.beta"

	"github.com/hpcops/resumectl/internal/config"
	"github.com/hpcops/resumectl/internal/hostlist"
	"github.com/hpcops/resumectl/internal/platform/gcp"
	"github.com/hpcops/resumectl/internal/util/async"
	"github.com/hpcops/resumectl/internal/util/naming"
)

// PlacementMaxCount is the largest node count one locality policy may hold.
const PlacementMaxCount = 150

// Machine families that cannot join a collocated placement policy.
var invalidPlacementFamilies = map[string]struct{}{
	"e2": {}, "t2d": {}, "n1": {}, "t2a": {}, "m1": {}, "m2": {}, "m3": {},
}

// placementClient is the provider surface the manager needs.
type placementClient interface {
	gcp.ResourcePolicyCreator
	gcp.OperationWaiter
}

// PlacementGroupManager creates and deduplicates locality policies for node
// lists. Creation is best effort: a policy that already exists counts as
// success, and a policy that fails to create is logged while its nodes keep
// the assigned group name.
type PlacementGroupManager struct {
	lkp    *config.Lookup
	client placementClient
	log    logrus.FieldLogger
}

// NewPlacementGroupManager creates a manager over the given lookup and
// provider client.
func NewPlacementGroupManager(lkp *config.Lookup, client placementClient, log logrus.FieldLogger) *PlacementGroupManager {
	return &PlacementGroupManager{lkp: lkp, client: client, log: log}
}

// Assign maps placement-group names to the nodes assigned to them and
// ensures the named policies exist. The empty-string key collects nodes
// that get no locality policy. Never returns an error: failures are logged
// and the run continues.
func (m *PlacementGroupManager) Assign(ctx context.Context, nodes []string, jobID int64) map[string][]string {
	groups := map[string][]string{}
	for _, nsNodes := range m.lkp.NodesetMap(nodes) {
		for name, assigned := range m.assignNodeset(ctx, nsNodes, jobID) {
			groups[name] = append(groups[name], assigned...)
		}
	}
	if len(groups) == 0 {
		groups[""] = nil
	}
	return groups
}

func (m *PlacementGroupManager) assignNodeset(ctx context.Context, nodes []string, jobID int64) map[string][]string {
	noPolicy := map[string][]string{"": nodes}

	// A single node gains nothing from collocation.
	if len(nodes) < 2 {
		return noPolicy
	}

	model := nodes[0]
	nodeset, ok := m.lkp.Nodeset(model)
	if !ok {
		return noPolicy
	}
	if !nodeset.EnablePlacement || !m.validPlacementMachineType(nodeset) {
		return noPolicy
	}

	region := nodeset.Region
	groups := map[string][]string{}
	for i, chunk := range chunked(nodes, PlacementMaxCount) {
		name := naming.PlacementGroup(m.lkp.Config().ClusterName, nodeset.Name, jobID, i)
		groups[name] = chunk
	}

	for name, g := range groups {
		m.log.Debugf("creating placement group %s (%s)", name, hostlist.Compress(g))
	}

	m.createGroups(ctx, region, groups)
	return groups
}

// createGroups issues one creation request per group concurrently, then
// waits for all submitted operations. Redundant groups (policy already
// exists) are success; failed groups are logged and left assigned.
func (m *PlacementGroupManager) createGroups(ctx context.Context, region string, groups map[string][]string) {
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}

	results := async.Map(ctx, names, func(ctx context.Context, name string) (*compute.Operation, error) {
		return m.client.InsertResourcePolicy(ctx, region, &compute.ResourcePolicy{
			Name:   name,
			Region: region,
			GroupPlacementPolicy: &compute.ResourcePolicyGroupPlacementPolicy{
				Collocation: "COLLOCATED",
			},
		})
	})

	var submitted []string
	var redundant, failed []string
	for name, res := range results {
		switch {
		case res.Err == nil:
			submitted = append(submitted, name)
		case gcp.IsAlreadyExists(res.Err):
			redundant = append(redundant, name)
		default:
			failed = append(failed, fmt.Sprintf("%s: %v", name, res.Err))
		}
	}
	if len(redundant) > 0 {
		m.log.Warnf("placement policies already exist: %s", strings.Join(redundant, ","))
	}
	if len(failed) > 0 {
		// Kept non-fatal: the nodes stay assigned to the group name and
		// instance creation proceeds best effort.
		m.log.Errorf("failed to create placement policies: %s", strings.Join(failed, "; "))
	}

	waited := async.Map(ctx, submitted, func(ctx context.Context, name string) (*compute.Operation, error) {
		return m.client.WaitOperation(ctx, results[name].Value)
	})
	for name, res := range waited {
		if res.Err != nil {
			m.log.Errorf("error while waiting on placement group '%s': %v", name, res.Err)
			continue
		}
		if res.Value.Error != nil {
			m.log.Errorf("placement group failed to create: '%s' (%s): %s",
				name, res.Value.Name, gcp.OperationErrorMessage(res.Value))
		}
	}

	if len(submitted) > 0 {
		m.log.Infof("created %d placement groups (%s)", len(submitted), strings.Join(sortedStrings(submitted), ","))
	}
}

func (m *PlacementGroupManager) validPlacementMachineType(nodeset config.Nodeset) bool {
	mt := nodeset.Template.MachineType
	family, _, _ := strings.Cut(mt, "-")
	if _, invalid := invalidPlacementFamilies[family]; invalid {
		m.log.Warnf("unsupported machine type for placement policy: %s", mt)
		return false
	}
	return true
}
