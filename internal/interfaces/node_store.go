package interfaces

import (
	"context"
	"errors"

	"github.com/ternarybob/chomp/internal/models"
)

// ErrNodeNotFound is returned when a node id has no record in the store.
var ErrNodeNotFound = errors.New("node not found")

// NodeStore holds worker heartbeat records keyed by instance id.
type NodeStore interface {
	Put(ctx context.Context, node *models.Node) error
	Get(ctx context.Context, id string) (*models.Node, error)
	List(ctx context.Context) ([]*models.Node, error)
}
