package resume

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpcops/resumectl/internal/config"
)

func newBuilder(t *testing.T, cfg *config.Config, durations map[int64]time.Duration) *RequestBuilder {
	t.Helper()
	if cfg == nil {
		cfg = clusterConfig()
	}
	return NewRequestBuilder(config.NewLookup(cfg), &fakeDurations{durations: durations}, testLogger())
}

func TestBuildZonalWithoutPlacement(t *testing.T) {
	b := newBuilder(t, nil, nil)
	nodes := nodeNames("compute", 3)

	req, err := b.Build(context.Background(), Chunk{Nodes: nodes, Prefix: "hpc-compute"})
	require.NoError(t, err)

	assert.Equal(t, "us-central1-a", req.Zone)
	assert.Empty(t, req.Region)
	assert.Equal(t, int64(3), req.Body.Count)
	assert.Equal(t, int64(1), req.Body.MinCount, "partial fulfillment allowed without placement")
	assert.Equal(t, "projects/demo-project/global/instanceTemplates/tpl-compute", req.Body.SourceInstanceTemplate)
	assert.Nil(t, req.Body.LocationPolicy)

	require.Len(t, req.Body.PerInstanceProperties, 3)
	for _, n := range nodes {
		assert.Contains(t, req.Body.PerInstanceProperties, n)
	}
}

func TestBuildRegionalWithLocationPolicy(t *testing.T) {
	b := newBuilder(t, nil, nil)
	nodes := nodeNames("highmem", 2)

	req, err := b.Build(context.Background(), Chunk{Nodes: nodes, Prefix: "hpc-highmem"})
	require.NoError(t, err)

	assert.Empty(t, req.Zone)
	assert.Equal(t, "us-central1", req.Region)

	lp := req.Body.LocationPolicy
	require.NotNil(t, lp)
	assert.Equal(t, "BALANCED", lp.TargetShape)
	assert.Equal(t, "ALLOW", lp.Locations["zones/us-central1-a"].Preference)
	assert.Equal(t, "ALLOW", lp.Locations["zones/us-central1-b"].Preference)
	assert.Equal(t, "DENY", lp.Locations["zones/us-central1-f"].Preference)
}

func TestBuildPlacementGroupForcesAllOrNothing(t *testing.T) {
	b := newBuilder(t, nil, nil)
	nodes := nodeNames("compute", 10)

	req, err := b.Build(context.Background(), Chunk{
		Nodes:          nodes,
		Prefix:         "hpc-compute",
		PlacementGroup: "hpc-slurmgcp-managed-compute-7-0",
	})
	require.NoError(t, err)

	assert.Zero(t, req.Body.MinCount, "placement groups require all-or-nothing creation")
	props := req.Body.InstanceProperties
	require.NotNil(t, props)
	assert.Equal(t, []string{"hpc-slurmgcp-managed-compute-7-0"}, props.ResourcePolicies)
	require.NotNil(t, props.Scheduling)
	assert.Equal(t, "TERMINATE", props.Scheduling.OnHostMaintenance)
}

func TestBuildJobExclusiveLabels(t *testing.T) {
	b := newBuilder(t, nil, nil)
	jobID := int64(77)

	req, err := b.Build(context.Background(), Chunk{
		Nodes:     nodeNames("compute", 2),
		Prefix:    "hpc-compute",
		JobID:     &jobID,
		Partition: "exclusive",
	})
	require.NoError(t, err)

	labels := req.Body.InstanceProperties.Labels
	assert.Equal(t, "77", labels["slurm_job_id"])
	assert.Equal(t, "prod", labels["env"], "template labels survive the merge")
}

func TestBuildNoLabelsWithoutExclusivePartition(t *testing.T) {
	b := newBuilder(t, nil, nil)
	jobID := int64(77)

	req, err := b.Build(context.Background(), Chunk{
		Nodes:     nodeNames("compute", 2),
		Prefix:    "hpc-compute",
		JobID:     &jobID,
		Partition: "batch",
	})
	require.NoError(t, err)
	assert.Empty(t, req.Body.InstanceProperties.Labels)
}

func TestBuildReservation(t *testing.T) {
	cfg := clusterConfig()
	ns := cfg.Nodesets["compute"]
	ns.EnablePlacement = false
	ns.Reservation = &config.Reservation{
		BulkInsertName: "projects/demo-project/reservations/res-1",
		DeploymentType: "DENSE",
		Policies:       []string{"policy-a"},
	}
	cfg.Nodesets["compute"] = ns
	b := newBuilder(t, cfg, nil)

	req, err := b.Build(context.Background(), Chunk{Nodes: nodeNames("compute", 2), Prefix: "hpc-compute"})
	require.NoError(t, err)

	props := req.Body.InstanceProperties
	require.NotNil(t, props.ReservationAffinity)
	assert.Equal(t, "SPECIFIC_RESERVATION", props.ReservationAffinity.ConsumeReservationType)
	assert.Equal(t, "compute.googleapis.com/reservation-name", props.ReservationAffinity.Key)
	assert.Equal(t, []string{"projects/demo-project/reservations/res-1"}, props.ReservationAffinity.Values)
	assert.Equal(t, "RESERVATION_BOUND", props.Scheduling.ProvisioningModel)
	assert.Equal(t, "TERMINATE", props.Scheduling.OnHostMaintenance)
	assert.Equal(t, []string{"policy-a"}, props.ResourcePolicies)
}

func TestBuildReservationWithoutPoliciesClearsResourcePolicies(t *testing.T) {
	cfg := clusterConfig()
	ns := cfg.Nodesets["compute"]
	ns.Reservation = &config.Reservation{BulkInsertName: "res-2"}
	cfg.Nodesets["compute"] = ns
	b := newBuilder(t, cfg, nil)

	req, err := b.Build(context.Background(), Chunk{
		Nodes:          nodeNames("compute", 2),
		Prefix:         "hpc-compute",
		PlacementGroup: "pg-0",
	})
	require.NoError(t, err)

	// The reservation decision runs after placement and wins.
	assert.Nil(t, req.Body.InstanceProperties.ResourcePolicies)
}

func TestBuildFlexCapacity(t *testing.T) {
	flexConfig := func(useJobDuration bool) *config.Config {
		cfg := clusterConfig()
		ns := cfg.Nodesets["compute"]
		ns.EnablePlacement = false
		ns.DWSFlex = config.DWSFlex{
			Enabled:               true,
			MaxRunDurationSeconds: 86400,
			UseJobDuration:        useJobDuration,
		}
		cfg.Nodesets["compute"] = ns
		return cfg
	}
	jobID := int64(5)
	durations := map[int64]time.Duration{5: time.Hour}

	tests := []struct {
		name        string
		cfg         *config.Config
		jobID       *int64
		durations   map[int64]time.Duration
		wantSeconds int64
	}{
		{
			name:        "job duration within bounds",
			cfg:         flexConfig(true),
			jobID:       &jobID,
			durations:   durations,
			wantSeconds: 3600,
		},
		{
			name:        "job duration disabled",
			cfg:         flexConfig(false),
			jobID:       &jobID,
			durations:   durations,
			wantSeconds: 86400,
		},
		{
			name:        "no job",
			cfg:         flexConfig(true),
			wantSeconds: 86400,
		},
		{
			name:        "job duration below minimum",
			cfg:         flexConfig(true),
			jobID:       &jobID,
			durations:   map[int64]time.Duration{5: 10 * time.Second},
			wantSeconds: 86400,
		},
		{
			name:        "job duration above maximum",
			cfg:         flexConfig(true),
			jobID:       &jobID,
			durations:   map[int64]time.Duration{5: 15 * 24 * time.Hour},
			wantSeconds: 86400,
		},
		{
			name:        "job without limit",
			cfg:         flexConfig(true),
			jobID:       &jobID,
			durations:   map[int64]time.Duration{},
			wantSeconds: 86400,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBuilder(t, tt.cfg, tt.durations)
			req, err := b.Build(context.Background(), Chunk{
				Nodes:     nodeNames("compute", 2),
				Prefix:    "hpc-compute",
				JobID:     tt.jobID,
				Partition: "batch",
			})
			require.NoError(t, err)

			sched := req.Body.InstanceProperties.Scheduling
			require.NotNil(t, sched)
			assert.Equal(t, "TERMINATE", sched.OnHostMaintenance)
			assert.Equal(t, "DELETE", sched.InstanceTerminationAction)
			require.NotNil(t, sched.MaxRunDuration)
			assert.Equal(t, tt.wantSeconds, sched.MaxRunDuration.Seconds)
			assert.Equal(t, "NO_RESERVATION", req.Body.InstanceProperties.ReservationAffinity.ConsumeReservationType)
		})
	}
}

func TestBuildExplicitOverridesWin(t *testing.T) {
	cfg := clusterConfig()
	ns := cfg.Nodesets["compute"]
	ns.InstanceProperties = &config.InstanceOverrides{
		MachineType:    "c3-standard-88",
		MinCPUPlatform: "Intel Sapphire Rapids",
		Labels:         map[string]string{"team": "hpc"},
		Scheduling: &config.SchedulingOverrides{
			OnHostMaintenance: "MIGRATE",
		},
	}
	cfg.Nodesets["compute"] = ns
	b := newBuilder(t, cfg, nil)

	req, err := b.Build(context.Background(), Chunk{
		Nodes:          nodeNames("compute", 2),
		Prefix:         "hpc-compute",
		PlacementGroup: "pg-0",
	})
	require.NoError(t, err)

	props := req.Body.InstanceProperties
	assert.Equal(t, "c3-standard-88", props.MachineType)
	assert.Equal(t, "Intel Sapphire Rapids", props.MinCpuPlatform)
	assert.Equal(t, "hpc", props.Labels["team"])
	assert.Equal(t, "MIGRATE", props.Scheduling.OnHostMaintenance, "explicit override beats the placement default")
}

func TestBuildRejectsOutOfRangeChunks(t *testing.T) {
	b := newBuilder(t, nil, nil)

	_, err := b.Build(context.Background(), Chunk{Prefix: "hpc-compute"})
	assert.Error(t, err)

	_, err = b.Build(context.Background(), Chunk{
		Nodes:          nodeNames("compute", PlacementMaxCount+1),
		Prefix:         "hpc-compute",
		PlacementGroup: "pg-0",
	})
	assert.Error(t, err)

	_, err = b.Build(context.Background(), Chunk{Nodes: []string{"other-cluster-node-1"}, Prefix: "other-cluster-node"})
	assert.Error(t, err, "nodes outside the cluster have no nodeset")
}
