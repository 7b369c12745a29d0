package interfaces

import "context"

// Compute abstracts the elastic-compute API used by the autoscaler and
// by workers terminating themselves. The local implementation is a no-op
// for development; cloud drivers satisfy the same contract.
type Compute interface {
	// InstanceID returns the identity of the current instance, or
	// "local" outside the cloud.
	InstanceID(ctx context.Context) (string, error)

	// ActiveNodeCount counts worker instances in running or pending
	// states.
	ActiveNodeCount(ctx context.Context) (int, error)

	// Launch starts count new worker instances.
	Launch(ctx context.Context, count int) error

	// Terminate shuts down the given instance.
	Terminate(ctx context.Context, id string) error
}
