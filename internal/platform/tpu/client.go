// Package tpu wraps the Cloud TPU v2 API for accelerator pod provisioning.
// Pods are addressed by node name within a fixed project/zone; the caller
// decides whether an existing pod is started or left alone.
package tpu

import (
	"context"
)

// Pod is the subset of accelerator node state the resume pipeline reads.
type Pod struct {
	Name  string
	State string
}

// Client provisions accelerator pods for one nodeset.
type Client interface {
	// GetPod returns the pod with the given node name, or nil if absent.
	GetPod(ctx context.Context, name string) (*Pod, error)

	// CreatePod creates a pod. For multi-VM topologies name is the first
	// node of the group; the remaining workers are implied by the
	// accelerator type.
	CreatePod(ctx context.Context, name string) error

	// StartPod starts an existing stopped pod.
	StartPod(ctx context.Context, name string) error
}
