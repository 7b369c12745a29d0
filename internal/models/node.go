package models

import "time"

// ---- Node States ----

type NodeState string

const (
	NodeStateActive     NodeState = "ACTIVE"
	NodeStateTerminated NodeState = "TERMINATED"
)

// Node is a worker's heartbeat record. Each node is the single writer of
// its own row.
type Node struct {
	ID           string
	ActiveJobs   int
	State        NodeState
	LastReportAt time.Time
}
