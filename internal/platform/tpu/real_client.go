package tpu

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/api/googleapi"
	tpu "google.golang.org/api/tpu/v2"

	"github.com/hpcops/resumectl/internal/util/retry"
)

// NodesetSpec carries the accelerator nodeset parameters a RealClient needs.
type NodesetSpec struct {
	Project         string
	Zone            string
	AcceleratorType string
	RuntimeVersion  string
}

// RealClient implements Client against the Cloud TPU v2 API for one
// accelerator nodeset.
type RealClient struct {
	spec         NodesetSpec
	service      *tpu.Service
	pollInterval time.Duration
}

var _ Client = (*RealClient)(nil)

// NewRealClient creates a TPU client for one accelerator nodeset using
// application default credentials.
func NewRealClient(ctx context.Context, spec NodesetSpec) (*RealClient, error) {
	service, err := tpu.NewService(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create tpu service: %w", err)
	}
	return &RealClient{
		spec:         spec,
		service:      service,
		pollInterval: 10 * time.Second,
	}, nil
}

func (c *RealClient) parent() string {
	return fmt.Sprintf("projects/%s/locations/%s", c.spec.Project, c.spec.Zone)
}

func (c *RealClient) nodeName(name string) string {
	return c.parent() + "/nodes/" + name
}

// GetPod returns the pod with the given node name, or nil if absent.
func (c *RealClient) GetPod(ctx context.Context, name string) (*Pod, error) {
	node, err := c.service.Projects.Locations.Nodes.Get(c.nodeName(name)).Context(ctx).Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get pod %s: %w", name, err)
	}
	return &Pod{Name: name, State: node.State}, nil
}

// CreatePod creates a pod and waits for the create operation to finish.
func (c *RealClient) CreatePod(ctx context.Context, name string) error {
	node := &tpu.Node{
		AcceleratorType: c.spec.AcceleratorType,
		RuntimeVersion:  c.spec.RuntimeVersion,
	}
	op, err := c.service.Projects.Locations.Nodes.Create(c.parent(), node).NodeId(name).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to create pod %s: %w", name, err)
	}
	return c.waitOperation(ctx, op.Name)
}

// StartPod starts an existing stopped pod and waits for completion.
func (c *RealClient) StartPod(ctx context.Context, name string) error {
	op, err := c.service.Projects.Locations.Nodes.Start(c.nodeName(name), &tpu.StartNodeRequest{}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to start pod %s: %w", name, err)
	}
	return c.waitOperation(ctx, op.Name)
}

func (c *RealClient) waitOperation(ctx context.Context, opName string) error {
	return retry.Poll(ctx, c.pollInterval, func() (bool, error) {
		op, err := c.service.Projects.Locations.Operations.Get(opName).Context(ctx).Do()
		if err != nil {
			return false, fmt.Errorf("failed to poll operation %s: %w", opName, err)
		}
		if !op.Done {
			return false, nil
		}
		if op.Error != nil {
			return false, fmt.Errorf("operation %s failed: %s", opName, op.Error.Message)
		}
		return true, nil
	})
}
