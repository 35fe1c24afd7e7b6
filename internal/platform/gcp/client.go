// Package gcp provides a thin wrapper around the Google Compute Engine API
// for bulk instance creation, placement policy creation and long-running
// operation handling. Auth, transport retry and endpoint selection live in
// the underlying client library; this package only shapes requests and
// classifies errors.
package gcp

import (
	"context"

	compute "google.golang.org/api/compute/v0.beta"
)

// BulkInserter submits bulk instance-creation requests. The zonal endpoint
// is used when a nodeset allows exactly one zone, the regional endpoint
// otherwise.
type BulkInserter interface {
	BulkInsertZonal(ctx context.Context, zone string, body *compute.BulkInsertInstanceResource) (*compute.Operation, error)
	BulkInsertRegional(ctx context.Context, region string, body *compute.BulkInsertInstanceResource) (*compute.Operation, error)
}

// ResourcePolicyCreator creates locality (placement) policies.
type ResourcePolicyCreator interface {
	InsertResourcePolicy(ctx context.Context, region string, policy *compute.ResourcePolicy) (*compute.Operation, error)
}

// OperationWaiter polls long-running operations to completion and lists the
// per-instance insert operations spawned by a bulk insert.
type OperationWaiter interface {
	// WaitOperation blocks until the operation reaches DONE and returns its
	// final state. An operation that completed with a provider-reported
	// error is returned with Error populated, not as an err.
	WaitOperation(ctx context.Context, op *compute.Operation) (*compute.Operation, error)

	// ListInsertOperations returns all per-instance insert operations that
	// share the given operation group id.
	ListInsertOperations(ctx context.Context, operationGroupID string) ([]*compute.Operation, error)
}

// Client combines every Compute Engine concern the resume pipeline needs.
type Client interface {
	BulkInserter
	ResourcePolicyCreator
	OperationWaiter
}
