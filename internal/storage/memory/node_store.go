package memory

import (
	"context"
	"sync"

	"github.com/ternarybob/chomp/internal/interfaces"
	"github.com/ternarybob/chomp/internal/models"
)

// NodeStore is a mutex-guarded in-memory node store.
type NodeStore struct {
	mu    sync.RWMutex
	nodes map[string]models.Node
}

func NewNodeStore() *NodeStore {
	return &NodeStore{
		nodes: make(map[string]models.Node),
	}
}

func (s *NodeStore) Put(ctx context.Context, node *models.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[node.ID] = *node
	return nil
}

func (s *NodeStore) Get(ctx context.Context, id string) (*models.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	node, ok := s.nodes[id]
	if !ok {
		return nil, interfaces.ErrNodeNotFound
	}
	return &node, nil
}

func (s *NodeStore) List(ctx context.Context) ([]*models.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	nodes := make([]*models.Node, 0, len(s.nodes))
	for _, node := range s.nodes {
		n := node
		nodes = append(nodes, &n)
	}
	return nodes, nil
}
