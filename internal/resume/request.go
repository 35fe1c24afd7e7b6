package resume

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	compute "google.golang.org/api/compute/v0.beta"

	"github.com/hpcops/resumectl/internal/config"
	"github.com/hpcops/resumectl/internal/hostlist"
	"github.com/hpcops/resumectl/internal/util/labels"
)

// Bounds on a job-derived flexible-capacity run duration.
const (
	minFlexDuration = 30 * time.Second
	maxFlexDuration = 14 * 24 * time.Hour
)

// DurationSource answers a job's wall-clock limit. Satisfied by the slurm
// scontrol client.
type DurationSource interface {
	JobDuration(ctx context.Context, jobID int64) (time.Duration, bool, error)
}

// InstanceRequest is one rendered bulk-creation request with the endpoint
// it must be submitted to. Exactly one of Zone or Region is set.
type InstanceRequest struct {
	Body   *compute.BulkInsertInstanceResource
	Zone   string
	Region string
}

// RequestBuilder renders chunks into bulk-creation request bodies, merging
// nodeset configuration, job exclusivity, reservation affinity and
// flexible-duration scheduling with fixed precedence.
type RequestBuilder struct {
	lkp       *config.Lookup
	durations DurationSource
	log       logrus.FieldLogger
}

// NewRequestBuilder creates a RequestBuilder.
func NewRequestBuilder(lkp *config.Lookup, durations DurationSource, log logrus.FieldLogger) *RequestBuilder {
	return &RequestBuilder{lkp: lkp, durations: durations, log: log}
}

// Build renders one chunk. The first node models the rest: all nodes of a
// chunk share a nodeset by construction.
func (b *RequestBuilder) Build(ctx context.Context, chunk Chunk) (*InstanceRequest, error) {
	if len(chunk.Nodes) == 0 || len(chunk.Nodes) > BulkInsertLimit {
		return nil, fmt.Errorf("chunk %s: node count %d out of range", chunk.GroupName(), len(chunk.Nodes))
	}
	if chunk.PlacementGroup != "" && len(chunk.Nodes) > PlacementMaxCount {
		return nil, fmt.Errorf("chunk %s: %d nodes exceed placement group limit", chunk.GroupName(), len(chunk.Nodes))
	}

	model := chunk.Nodes[0]
	nodeset, ok := b.lkp.Nodeset(model)
	if !ok {
		return nil, fmt.Errorf("chunk %s: node %s has no nodeset", chunk.GroupName(), model)
	}
	b.log.Debugf("building request for %s placement: %s", model, chunk.PlacementGroup)

	body := &compute.BulkInsertInstanceResource{
		Count:                  int64(len(chunk.Nodes)),
		SourceInstanceTemplate: nodeset.InstanceTemplate,
	}

	if chunk.PlacementGroup == "" {
		// Best-effort partial fulfillment. With a placement group MinCount
		// stays unset to force all-or-nothing creation.
		body.MinCount = 1
	}

	var jobLabels map[string]string
	if chunk.JobID != nil {
		if partition, ok := b.lkp.Partition(chunk.Partition); ok && partition.EnableJobExclusive {
			jobLabels = labels.ForJob(*chunk.JobID)
		}
	}

	body.InstanceProperties = b.instanceProperties(ctx, nodeset, chunk.PlacementGroup, jobLabels, chunk.JobID)

	// Keyed by instance name; no per-instance overrides beyond the name
	// are supported yet.
	body.PerInstanceProperties = make(map[string]compute.BulkInsertInstanceResourcePerInstanceProperties, len(chunk.Nodes))
	for _, node := range chunk.Nodes {
		body.PerInstanceProperties[node] = compute.BulkInsertInstanceResourcePerInstanceProperties{}
	}

	req := &InstanceRequest{Body: body}
	if len(nodeset.ZonePolicyAllow) == 1 {
		// Single-zone fast path: the zonal endpoint is less error prone.
		req.Zone = nodeset.ZonePolicyAllow[0]
	} else {
		req.Region = nodeset.Region
		locations := map[string]compute.LocationPolicyLocation{}
		for _, z := range nodeset.ZonePolicyAllow {
			locations["zones/"+z] = compute.LocationPolicyLocation{Preference: "ALLOW"}
		}
		for _, z := range nodeset.ZonePolicyDeny {
			locations["zones/"+z] = compute.LocationPolicyLocation{Preference: "DENY"}
		}
		body.LocationPolicy = &compute.LocationPolicy{
			Locations:   locations,
			TargetShape: nodeset.ZoneTargetShape,
		}
	}

	b.log.Debugf("new request: endpoint=%s nodes=%s", endpointOf(req), hostlist.Compress(chunk.Nodes))
	return req, nil
}

func endpointOf(req *InstanceRequest) string {
	if req.Zone != "" {
		return "zones/" + req.Zone
	}
	return "regions/" + req.Region
}

// instanceProperties computes the properties shared by all instances of the
// chunk. Later steps may overwrite earlier ones; explicit nodeset overrides
// win over everything.
func (b *RequestBuilder) instanceProperties(ctx context.Context, nodeset config.Nodeset, placementGroup string, jobLabels map[string]string, jobID *int64) *compute.InstanceProperties {
	props := &compute.InstanceProperties{}

	if jobLabels != nil {
		props.Labels = labels.Merge(nodeset.Template.Labels, jobLabels)

		var disks []*compute.AttachedDisk
		for _, disk := range nodeset.Template.Disks {
			attached := &compute.AttachedDisk{
				DeviceName: disk.DeviceName,
				InitializeParams: &compute.AttachedDiskInitializeParams{
					DiskType: disk.DiskType,
					Labels:   disk.Labels,
				},
			}
			if !disk.IsLocalSSD() {
				attached.InitializeParams.Labels = labels.Merge(disk.Labels, jobLabels)
			}
			disks = append(disks, attached)
		}
		props.Disks = disks
	}

	if placementGroup != "" {
		scheduling(props).OnHostMaintenance = "TERMINATE"
		props.ResourcePolicies = []string{placementGroup}
	}

	if reservation := nodeset.Reservation; reservation != nil {
		props.ReservationAffinity = &compute.ReservationAffinity{
			ConsumeReservationType: "SPECIFIC_RESERVATION",
			Key:                    fmt.Sprintf("compute.%s/reservation-name", b.lkp.Config().UniverseDomain),
			Values:                 []string{reservation.BulkInsertName},
		}

		if reservation.DeploymentType == "DENSE" {
			scheduling(props).ProvisioningModel = "RESERVATION_BOUND"
		}

		if len(reservation.Policies) > 0 {
			scheduling(props).OnHostMaintenance = "TERMINATE"
			props.ResourcePolicies = reservation.Policies
			b.log.Infof("reservation %s is being used with policies %v", reservation.BulkInsertName, reservation.Policies)
		} else {
			props.ResourcePolicies = nil
			b.log.Infof("reservation %s is being used without any policies", reservation.BulkInsertName)
		}
	}

	if nodeset.MaintenanceInterval != "" {
		scheduling(props).MaintenanceInterval = nodeset.MaintenanceInterval
	}

	if nodeset.DWSFlex.Enabled {
		b.applyFlexCapacity(ctx, props, nodeset.DWSFlex, jobID)
	}

	applyOverrides(props, nodeset.InstanceProperties)

	return props
}

// applyFlexCapacity forces the scheduling shape flexible capacity requires
// and bounds the run duration.
func (b *RequestBuilder) applyFlexCapacity(ctx context.Context, props *compute.InstanceProperties, flex config.DWSFlex, jobID *int64) {
	scheduling(props).OnHostMaintenance = "TERMINATE"
	scheduling(props).InstanceTerminationAction = "DELETE"
	if props.ReservationAffinity == nil {
		props.ReservationAffinity = &compute.ReservationAffinity{}
	}
	props.ReservationAffinity.ConsumeReservationType = "NO_RESERVATION"
	scheduling(props).MaxRunDuration = &compute.Duration{Seconds: b.flexDuration(ctx, flex, jobID)}
}

func (b *RequestBuilder) flexDuration(ctx context.Context, flex config.DWSFlex, jobID *int64) int64 {
	maxDuration := flex.MaxRunDurationSeconds
	if !flex.UseJobDuration || jobID == nil {
		return maxDuration
	}
	duration, ok, err := b.durations.JobDuration(ctx, *jobID)
	if err != nil {
		b.log.WithError(err).Warnf("cannot read time limit of job %d", *jobID)
		return maxDuration
	}
	if !ok {
		return maxDuration
	}
	if duration < minFlexDuration || duration > maxFlexDuration {
		b.log.Info("job TimeLimit cannot be less than 30 seconds or exceed 2 weeks")
		return maxDuration
	}
	return int64(duration.Seconds())
}

// scheduling returns the properties' scheduling block, allocating it on
// first use.
func scheduling(props *compute.InstanceProperties) *compute.Scheduling {
	if props.Scheduling == nil {
		props.Scheduling = &compute.Scheduling{}
	}
	return props.Scheduling
}

// applyOverrides merges explicitly configured instance properties on top of
// every computed field.
func applyOverrides(props *compute.InstanceProperties, o *config.InstanceOverrides) {
	if o == nil {
		return
	}
	if o.MachineType != "" {
		props.MachineType = o.MachineType
	}
	if o.MinCPUPlatform != "" {
		props.MinCpuPlatform = o.MinCPUPlatform
	}
	if len(o.Labels) > 0 {
		props.Labels = labels.Merge(props.Labels, o.Labels)
	}
	if o.ResourcePolicies != nil {
		props.ResourcePolicies = o.ResourcePolicies
	}
	if s := o.Scheduling; s != nil {
		if s.OnHostMaintenance != "" {
			scheduling(props).OnHostMaintenance = s.OnHostMaintenance
		}
		if s.ProvisioningModel != "" {
			scheduling(props).ProvisioningModel = s.ProvisioningModel
		}
		if s.MaintenanceInterval != "" {
			scheduling(props).MaintenanceInterval = s.MaintenanceInterval
		}
		if s.InstanceTerminationAction != "" {
			scheduling(props).InstanceTerminationAction = s.InstanceTerminationAction
		}
		if s.MaxRunDurationSeconds > 0 {
			scheduling(props).MaxRunDuration = &compute.Duration{Seconds: s.MaxRunDurationSeconds}
		}
	}
}
