package gcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	compute "google.golang.org/api/compute/v0.beta"

	"github.com/hpcops/resumectl/internal/util/retry"
)

// RealClient implements Client against the Compute Engine v1 API.
type RealClient struct {
	project      string
	service      *compute.Service
	pollInterval time.Duration
}

// NewRealClient creates a client for the given project using application
// default credentials.
func NewRealClient(ctx context.Context, project string) (*RealClient, error) {
	service, err := compute.NewService(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create compute service: %w", err)
	}
	return &RealClient{
		project:      project,
		service:      service,
		pollInterval: 5 * time.Second,
	}, nil
}

// submit runs one mutating API call, retrying transient failures with
// backoff. Client errors (4xx) are final and returned immediately.
func (c *RealClient) submit(ctx context.Context, do func() (*compute.Operation, error)) (*compute.Operation, error) {
	var op *compute.Operation
	err := retry.WithExponentialBackoff(ctx, func() error {
		var err error
		op, err = do()
		if err != nil && !IsTransient(err) {
			return retry.Fatal(err)
		}
		return err
	}, retry.WithMaxRetries(3))
	if err != nil {
		return nil, err
	}
	return op, nil
}

// BulkInsertZonal submits a bulk insert against the zonal endpoint.
func (c *RealClient) BulkInsertZonal(ctx context.Context, zone string, body *compute.BulkInsertInstanceResource) (*compute.Operation, error) {
	op, err := c.submit(ctx, func() (*compute.Operation, error) {
		return c.service.Instances.BulkInsert(c.project, zone, body).Context(ctx).Do()
	})
	if err != nil {
		return nil, fmt.Errorf("zonal bulk insert in %s: %w", zone, err)
	}
	return op, nil
}

// BulkInsertRegional submits a bulk insert against the regional endpoint.
func (c *RealClient) BulkInsertRegional(ctx context.Context, region string, body *compute.BulkInsertInstanceResource) (*compute.Operation, error) {
	op, err := c.submit(ctx, func() (*compute.Operation, error) {
		return c.service.RegionInstances.BulkInsert(c.project, region, body).Context(ctx).Do()
	})
	if err != nil {
		return nil, fmt.Errorf("regional bulk insert in %s: %w", region, err)
	}
	return op, nil
}

// InsertResourcePolicy creates a placement policy in the given region.
func (c *RealClient) InsertResourcePolicy(ctx context.Context, region string, policy *compute.ResourcePolicy) (*compute.Operation, error) {
	op, err := c.submit(ctx, func() (*compute.Operation, error) {
		return c.service.ResourcePolicies.Insert(c.project, region, policy).Context(ctx).Do()
	})
	if err != nil {
		return nil, fmt.Errorf("resource policy insert %s: %w", policy.Name, err)
	}
	return op, nil
}

// WaitOperation polls the operation until it reaches DONE. There is no
// client-side deadline: a caller that needs one must bound the context.
func (c *RealClient) WaitOperation(ctx context.Context, op *compute.Operation) (*compute.Operation, error) {
	latest := op
	err := retry.Poll(ctx, c.pollInterval, func() (bool, error) {
		var err error
		switch {
		case op.Zone != "":
			latest, err = c.service.ZoneOperations.Get(c.project, lastSegment(op.Zone), op.Name).Context(ctx).Do()
		case op.Region != "":
			latest, err = c.service.RegionOperations.Get(c.project, lastSegment(op.Region), op.Name).Context(ctx).Do()
		default:
			latest, err = c.service.GlobalOperations.Get(c.project, op.Name).Context(ctx).Do()
		}
		if err != nil {
			return false, fmt.Errorf("failed to poll operation %s: %w", op.Name, err)
		}
		return latest.Status == "DONE", nil
	})
	if err != nil {
		return nil, err
	}
	return latest, nil
}

// ListInsertOperations lists every per-instance insert operation belonging
// to a bulk insert's operation group, across all scopes.
func (c *RealClient) ListInsertOperations(ctx context.Context, operationGroupID string) ([]*compute.Operation, error) {
	var ops []*compute.Operation
	call := c.service.GlobalOperations.AggregatedList(c.project).
		Filter(fmt.Sprintf("operationGroupId=%q", operationGroupID)).
		Context(ctx)
	err := call.Pages(ctx, func(page *compute.OperationAggregatedList) error {
		for _, scoped := range page.Items {
			for _, op := range scoped.Operations {
				if op.OperationType == "insert" {
					ops = append(ops, op)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list insert operations for group %s: %w", operationGroupID, err)
	}
	return ops, nil
}

// lastSegment returns the final path segment of a resource self link, e.g.
// ".../zones/us-central1-a" -> "us-central1-a".
func lastSegment(link string) string {
	if i := strings.LastIndexByte(link, '/'); i >= 0 {
		return link[i+1:]
	}
	return link
}
