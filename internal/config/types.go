// Package config defines the cluster configuration consumed by the resume
// pipeline: partitions, nodesets, pre-resolved machine template metadata and
// accelerator pod topology. A Lookup wraps a loaded Config and answers
// node-name questions (which nodeset, which region, accelerator or not).
package config

import (
	"fmt"
)

// Config is the static cluster configuration. It is loaded once at startup
// and read-only for the rest of the run.
type Config struct {
	ClusterName string `yaml:"cluster_name" mapstructure:"cluster_name"`
	Project     string `yaml:"project" mapstructure:"project"`

	// UniverseDomain qualifies the reservation-affinity key. Defaults to
	// googleapis.com.
	UniverseDomain string `yaml:"universe_domain" mapstructure:"universe_domain"`

	// ScontrolPath is the scheduler control executable. Defaults to scontrol.
	ScontrolPath string `yaml:"scontrol_path" mapstructure:"scontrol_path"`

	Partitions          map[string]Partition          `yaml:"partitions" mapstructure:"partitions"`
	Nodesets            map[string]Nodeset            `yaml:"nodesets" mapstructure:"nodesets"`
	AcceleratorNodesets map[string]AcceleratorNodeset `yaml:"accelerator_nodesets" mapstructure:"accelerator_nodesets"`
}

// Partition is a scheduler partition and the nodesets it draws from.
type Partition struct {
	Nodesets []string `yaml:"nodesets" mapstructure:"nodesets"`

	// EnableJobExclusive labels instances with the owning job id so nodes
	// are not shared across jobs.
	EnableJobExclusive bool `yaml:"enable_job_exclusive" mapstructure:"enable_job_exclusive"`
}

// Nodeset describes one family of conventional compute nodes.
type Nodeset struct {
	Name string `yaml:"name" mapstructure:"name"`

	// InstanceTemplate is the self link of the source instance template.
	InstanceTemplate string `yaml:"instance_template" mapstructure:"instance_template"`

	Region          string   `yaml:"region" mapstructure:"region"`
	ZonePolicyAllow []string `yaml:"zone_policy_allow" mapstructure:"zone_policy_allow"`
	ZonePolicyDeny  []string `yaml:"zone_policy_deny" mapstructure:"zone_policy_deny"`
	ZoneTargetShape string   `yaml:"zone_target_shape" mapstructure:"zone_target_shape"`

	EnablePlacement bool `yaml:"enable_placement" mapstructure:"enable_placement"`

	Reservation *Reservation `yaml:"reservation" mapstructure:"reservation"`

	// MaintenanceInterval, when set, is passed through to instance
	// scheduling (e.g. PERIODIC).
	MaintenanceInterval string `yaml:"maintenance_interval" mapstructure:"maintenance_interval"`

	DWSFlex DWSFlex `yaml:"dws_flex" mapstructure:"dws_flex"`

	// Template holds pre-resolved metadata of the instance template.
	// Template rendering happens out of band; the resume pipeline only
	// reads it.
	Template TemplateInfo `yaml:"template" mapstructure:"template"`

	// InstanceProperties are explicit per-nodeset overrides merged on top
	// of every computed request field.
	InstanceProperties *InstanceOverrides `yaml:"instance_properties" mapstructure:"instance_properties"`
}

// Reservation references a capacity reservation consumed by a nodeset.
type Reservation struct {
	BulkInsertName string   `yaml:"bulk_insert_name" mapstructure:"bulk_insert_name"`
	DeploymentType string   `yaml:"deployment_type" mapstructure:"deployment_type"`
	Policies       []string `yaml:"policies" mapstructure:"policies"`
}

// DWSFlex configures flexible/opportunistic capacity with a bounded maximum
// run duration.
type DWSFlex struct {
	Enabled               bool  `yaml:"enabled" mapstructure:"enabled"`
	MaxRunDurationSeconds int64 `yaml:"max_run_duration_seconds" mapstructure:"max_run_duration_seconds"`

	// UseJobDuration derives the run duration from the requesting job's
	// remaining wall-clock limit when it lies within [30s, 2 weeks].
	UseJobDuration bool `yaml:"use_job_duration" mapstructure:"use_job_duration"`
}

// TemplateInfo is the subset of instance-template metadata the request
// builder needs: machine type for placement validation, labels and disks
// for label merging.
type TemplateInfo struct {
	MachineType string            `yaml:"machine_type" mapstructure:"machine_type"`
	Labels      map[string]string `yaml:"labels" mapstructure:"labels"`
	Disks       []TemplateDisk    `yaml:"disks" mapstructure:"disks"`
}

// TemplateDisk is a template disk definition. Local SSDs never receive
// merged labels.
type TemplateDisk struct {
	DeviceName string            `yaml:"device_name" mapstructure:"device_name"`
	DiskType   string            `yaml:"disk_type" mapstructure:"disk_type"`
	Labels     map[string]string `yaml:"labels" mapstructure:"labels"`
}

// IsLocalSSD reports whether the disk is backed by local SSD. An empty disk
// type means local SSD, matching template defaulting.
func (d TemplateDisk) IsLocalSSD() bool {
	return d.DiskType == "" || d.DiskType == "local-ssd"
}

// InstanceOverrides are explicitly configured instance properties. Set
// fields take precedence over every computed field of the request body.
type InstanceOverrides struct {
	MachineType      string               `yaml:"machine_type" mapstructure:"machine_type"`
	MinCPUPlatform   string               `yaml:"min_cpu_platform" mapstructure:"min_cpu_platform"`
	Labels           map[string]string    `yaml:"labels" mapstructure:"labels"`
	ResourcePolicies []string             `yaml:"resource_policies" mapstructure:"resource_policies"`
	Scheduling       *SchedulingOverrides `yaml:"scheduling" mapstructure:"scheduling"`
}

// SchedulingOverrides are explicitly configured scheduling fields.
type SchedulingOverrides struct {
	OnHostMaintenance         string `yaml:"on_host_maintenance" mapstructure:"on_host_maintenance"`
	ProvisioningModel         string `yaml:"provisioning_model" mapstructure:"provisioning_model"`
	MaintenanceInterval       string `yaml:"maintenance_interval" mapstructure:"maintenance_interval"`
	InstanceTerminationAction string `yaml:"instance_termination_action" mapstructure:"instance_termination_action"`
	MaxRunDurationSeconds     int64  `yaml:"max_run_duration_seconds" mapstructure:"max_run_duration_seconds"`
}

// AcceleratorNodeset describes a family of accelerator (TPU-class) pod
// nodes provisioned through the accelerator API instead of bulk insert.
type AcceleratorNodeset struct {
	Name            string `yaml:"name" mapstructure:"name"`
	Zone            string `yaml:"zone" mapstructure:"zone"`
	AcceleratorType string `yaml:"accelerator_type" mapstructure:"accelerator_type"`
	RuntimeVersion  string `yaml:"runtime_version" mapstructure:"runtime_version"`

	// VMCount is the number of VMs in one pod slice; it is also the chunk
	// size for accelerator nodes.
	VMCount int `yaml:"vm_count" mapstructure:"vm_count"`

	// PreservePods keeps pods across scale-down: an existing stopped pod
	// is started instead of recreated.
	PreservePods bool `yaml:"preserve_pods" mapstructure:"preserve_pods"`
}

// Validate checks the configuration for structural problems.
func (c *Config) Validate() error {
	if c.ClusterName == "" {
		return fmt.Errorf("cluster_name is required")
	}
	if c.Project == "" {
		return fmt.Errorf("project is required")
	}
	for name, ns := range c.Nodesets {
		if ns.InstanceTemplate == "" {
			return fmt.Errorf("nodeset %s: instance_template is required", name)
		}
		if ns.Region == "" {
			return fmt.Errorf("nodeset %s: region is required", name)
		}
	}
	for name, ns := range c.AcceleratorNodesets {
		if ns.Zone == "" {
			return fmt.Errorf("accelerator nodeset %s: zone is required", name)
		}
		if ns.VMCount < 1 {
			return fmt.Errorf("accelerator nodeset %s: vm_count must be at least 1", name)
		}
	}
	for pname, p := range c.Partitions {
		for _, ns := range p.Nodesets {
			if _, conventional := c.Nodesets[ns]; conventional {
				continue
			}
			if _, accel := c.AcceleratorNodesets[ns]; accel {
				continue
			}
			return fmt.Errorf("partition %s references unknown nodeset %s", pname, ns)
		}
	}
	return nil
}
