package types

import (
	"sort"
	"strings"
	"time"
)

// Ticket is a revocable cluster-wide permission
type Ticket struct {
	ID          string
	Granted     bool
	Standby     bool
	LastGranted int64
	State       map[string]string
}

// FailureRecord is a failed operation surfaced for display
type FailureRecord struct {
	ResourceID string
	Node       string
	Key        string
	Task       string
	Interval   time.Duration
	RC         int
	Status     OpStatus
	CallID     int
}

// FenceRequest asks the fencing collaborator to isolate a node
type FenceRequest struct {
	NodeID   string
	NodeName string
	Reason   string
	Action   string
	// CanFence is set when a fencing device and quorum allowed the request
	// to be carried out at the time it was made
	CanFence bool
}

// Action is a hint for the scheduler synthesized while unpacking
type Action struct {
	Key        string
	ResourceID string
	Task       string
	Interval   time.Duration
	NodeID     string
	Optional   bool
	Reason     string
}

// LocationConstraint records a placement score applied during unpacking.
// An empty NodeID applies the score to every node.
type LocationConstraint struct {
	ID         string
	ResourceID string
	NodeID     string
	Score      int
}

// WorkingSet is the snapshot built by one reconciliation run. It owns every
// node and resource; cross references between them are ids resolved here.
type WorkingSet struct {
	Nodes     []*Node
	Resources []*Resource

	Tickets       map[string]*Ticket
	Failed        []FailureRecord
	FenceRequests []FenceRequest
	Actions       []Action
	Constraints   []LocationConstraint

	Templates map[string]bool
	Tags      map[string][]string

	ConfigErrors []string
	Warnings     []string

	Config     *ClusterOptions
	DCUUID     string
	DCNode     string
	HaveQuorum bool
	Now        time.Time

	HasFencingResource bool
	Unfencing          bool

	index      map[string]*Resource
	failedSeen map[string]bool
	actionSeen map[string]bool
	fenceSeen  map[string]bool
}

// NewWorkingSet creates an empty working set evaluated at now
func NewWorkingSet(now time.Time) *WorkingSet {
	return &WorkingSet{
		Tickets:    make(map[string]*Ticket),
		Templates:  make(map[string]bool),
		Tags:       make(map[string][]string),
		Config:     &ClusterOptions{Raw: make(map[string]string)},
		Now:        now,
		index:      make(map[string]*Resource),
		failedSeen: make(map[string]bool),
		actionSeen: make(map[string]bool),
		fenceSeen:  make(map[string]bool),
	}
}

// AddNode inserts a node keeping Nodes in natural name order
func (ws *WorkingSet) AddNode(n *Node) {
	i := sort.Search(len(ws.Nodes), func(i int) bool {
		return NaturalLess(n.Name, ws.Nodes[i].Name)
	})
	ws.Nodes = append(ws.Nodes, nil)
	copy(ws.Nodes[i+1:], ws.Nodes[i:])
	ws.Nodes[i] = n
}

// FindNode returns the node with the given name, ignoring case
func (ws *WorkingSet) FindNode(name string) *Node {
	for _, n := range ws.Nodes {
		if strings.EqualFold(n.Name, name) {
			return n
		}
	}
	return nil
}

// FindNodeByID returns the node with the given id
func (ws *WorkingSet) FindNodeByID(id string) *Node {
	for _, n := range ws.Nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}

// FindNodeAny looks a node up by id first, then by name
func (ws *WorkingSet) FindNodeAny(id, name string) *Node {
	if id != "" {
		if n := ws.FindNodeByID(id); n != nil {
			return n
		}
	}
	if name != "" {
		return ws.FindNode(name)
	}
	return nil
}

// Register adds a resource and its subtree to the id index
func (ws *WorkingSet) Register(r *Resource) {
	r.Walk(func(rsc *Resource) {
		ws.index[rsc.ID] = rsc
	})
}

// FindResource finds a resource by id, or by the alias history used for it
func (ws *WorkingSet) FindResource(id string) *Resource {
	if r, ok := ws.index[id]; ok {
		return r
	}
	for _, top := range ws.Resources {
		if found := top.FindChild(id); found != nil {
			return found
		}
	}
	return nil
}

// AllResources returns every resource in the tree, parents before children
func (ws *WorkingSet) AllResources() []*Resource {
	var out []*Resource
	for _, top := range ws.Resources {
		top.Walk(func(r *Resource) {
			out = append(out, r)
		})
	}
	return out
}

// Parent resolves the owning parent of a resource
func (ws *WorkingSet) Parent(r *Resource) *Resource {
	if r == nil || r.ParentID == "" {
		return nil
	}
	return ws.index[r.ParentID]
}

// UberParent returns the topmost owner of a resource. The walk stops below
// a container so that the clone inside it acts as the root.
func (ws *WorkingSet) UberParent(r *Resource) *Resource {
	if r == nil {
		return nil
	}
	current := r
	for {
		parent := ws.Parent(current)
		if parent == nil || parent.Variant == VariantContainer {
			return current
		}
		current = parent
	}
}

// Container resolves the container a filler runs in
func (ws *WorkingSet) Container(r *Resource) *Resource {
	if r == nil || r.ContainerID == "" {
		return nil
	}
	return ws.index[r.ContainerID]
}

// RemoteResource resolves the connection resource of a remote node
func (ws *WorkingSet) RemoteResource(n *Node) *Resource {
	if n == nil || n.RemoteResourceID == "" {
		return nil
	}
	return ws.index[n.RemoteResourceID]
}

// AddFailure records a failed operation once per resource, node and key
func (ws *WorkingSet) AddFailure(rec FailureRecord) bool {
	dedup := rec.ResourceID + "\x00" + rec.Node + "\x00" + rec.Key
	if ws.failedSeen[dedup] {
		return false
	}
	ws.failedSeen[dedup] = true
	ws.Failed = append(ws.Failed, rec)
	return true
}

// AddAction records a scheduler hint once per key and node
func (ws *WorkingSet) AddAction(a Action) bool {
	dedup := a.Key + "\x00" + a.NodeID
	if ws.actionSeen[dedup] {
		return false
	}
	ws.actionSeen[dedup] = true
	ws.Actions = append(ws.Actions, a)
	return true
}

// FindAction returns the recorded action with the given key on a node
func (ws *WorkingSet) FindAction(key, nodeID string) *Action {
	for i := range ws.Actions {
		if ws.Actions[i].Key == key && ws.Actions[i].NodeID == nodeID {
			return &ws.Actions[i]
		}
	}
	return nil
}

// AddFenceRequest records at most one fence request per node
func (ws *WorkingSet) AddFenceRequest(req FenceRequest) bool {
	if ws.fenceSeen[req.NodeID] {
		return false
	}
	ws.fenceSeen[req.NodeID] = true
	ws.FenceRequests = append(ws.FenceRequests, req)
	return true
}

// AddConstraint records a placement score and applies it to the resource
func (ws *WorkingSet) AddConstraint(c LocationConstraint) {
	ws.Constraints = append(ws.Constraints, c)
	r := ws.FindResource(c.ResourceID)
	if r == nil {
		return
	}
	if c.NodeID != "" {
		r.AllowedNodes[c.NodeID] = MergeScores(r.AllowedNodes[c.NodeID], c.Score)
		return
	}
	for _, n := range ws.Nodes {
		r.AllowedNodes[n.ID] = MergeScores(r.AllowedNodes[n.ID], c.Score)
	}
}

// ConfigError records a configuration problem
func (ws *WorkingSet) ConfigError(msg string) {
	ws.ConfigErrors = append(ws.ConfigErrors, msg)
}

// Warn records a data-integrity warning
func (ws *WorkingSet) Warn(msg string) {
	ws.Warnings = append(ws.Warnings, msg)
}

// ClusterNodeCount counts full cluster members
func (ws *WorkingSet) ClusterNodeCount() int {
	count := 0
	for _, n := range ws.Nodes {
		if n.Kind == NodeMember {
			count++
		}
	}
	return count
}
