package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/chomp/internal/interfaces"
	"github.com/ternarybob/chomp/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// nodeRecord mirrors the node attribute schema; timestamps use the same
// string format as job records.
type nodeRecord struct {
	ID              string `badgerhold:"key"`
	ActiveJobs      int
	State           string
	LastReportDtime string
}

// NodeStore is the badgerhold-backed worker heartbeat store.
type NodeStore struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewNodeStore creates a node store on the given connection
func NewNodeStore(db *BadgerDB, logger arbor.ILogger) *NodeStore {
	return &NodeStore{
		db:     db,
		logger: logger,
	}
}

// Put writes the heartbeat record for node.ID
func (s *NodeStore) Put(ctx context.Context, node *models.Node) error {
	if node.ID == "" {
		return fmt.Errorf("cannot store node without id")
	}

	record := &nodeRecord{
		ID:              node.ID,
		ActiveJobs:      node.ActiveJobs,
		State:           string(node.State),
		LastReportDtime: node.LastReportAt.Format(models.TimestampLayout),
	}
	if err := s.db.Store().Upsert(record.ID, record); err != nil {
		return fmt.Errorf("failed to store node %s: %w", node.ID, err)
	}

	return nil
}

// Get returns the record for the id, or interfaces.ErrNodeNotFound
func (s *NodeStore) Get(ctx context.Context, id string) (*models.Node, error) {
	var record nodeRecord
	if err := s.db.Store().Get(id, &record); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, interfaces.ErrNodeNotFound
		}
		return nil, fmt.Errorf("failed to get node %s: %w", id, err)
	}
	return record.toNode()
}

// List returns every node record, skipping malformed rows
func (s *NodeStore) List(ctx context.Context) ([]*models.Node, error) {
	var records []nodeRecord
	if err := s.db.Store().Find(&records, nil); err != nil {
		return nil, fmt.Errorf("failed to scan node records: %w", err)
	}

	nodes := make([]*models.Node, 0, len(records))
	for i := range records {
		node, err := records[i].toNode()
		if err != nil {
			s.logger.Warn().
				Str("node_id", records[i].ID).
				Err(err).
				Msg("Skipping malformed node record")
			continue
		}
		nodes = append(nodes, node)
	}

	return nodes, nil
}

func (r *nodeRecord) toNode() (*models.Node, error) {
	reportedAt, err := time.Parse(models.TimestampLayout, r.LastReportDtime)
	if err != nil {
		return nil, fmt.Errorf("node %s has malformed report time %q: %w", r.ID, r.LastReportDtime, err)
	}
	return &models.Node{
		ID:           r.ID,
		ActiveJobs:   r.ActiveJobs,
		State:        models.NodeState(r.State),
		LastReportAt: reportedAt,
	}, nil
}
