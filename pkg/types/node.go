package types

// Well-known node attribute names
const (
	AttrUname       = "#uname"
	AttrID          = "#id"
	AttrKind        = "#kind"
	AttrIsDC        = "#is_dc"
	AttrClusterName = "#cluster-name"
	AttrSiteName    = "#site-name"
)

// Node is one entry of the node registry
type Node struct {
	ID   string
	Name string
	Kind NodeKind

	// Weight is the node's base placement score. Fixed pins it so the
	// scheduler does not reconsider the node this run.
	Weight int
	Fixed  bool

	Online              bool
	Unclean             bool
	Unseen              bool
	Shutdown            bool
	Standby             bool
	StandbyOnFail       bool
	Pending             bool
	Maintenance         bool
	RemoteMaintenance   bool
	IsDC                bool
	ExpectedUp          bool
	RemoteRequiresReset bool
	RemoteWasFenced     bool
	RscDiscoveryEnabled bool

	// Unpacked is set once the node's operation history has been replayed
	Unpacked bool

	// FenceReason is the first reason the node was declared unclean
	FenceReason string

	Attrs       map[string]string
	Utilization map[string]string

	// RemoteResourceID names the connection resource of a remote or guest
	// node. The node does not own it.
	RemoteResourceID string

	// RunningResources lists ids of resources believed active here
	RunningResources []string

	// KnownResources caches ids of resources whose state was queried here
	KnownResources map[string]bool

	// DigestCache memoizes parameter digest comparisons by operation key
	DigestCache map[string]*DigestResult
}

// NewNode creates a node with empty attribute tables
func NewNode(id, name string, kind NodeKind) *Node {
	return &Node{
		ID:                  id,
		Name:                name,
		Kind:                kind,
		RscDiscoveryEnabled: true,
		Attrs:               make(map[string]string),
		Utilization:         make(map[string]string),
		KnownResources:      make(map[string]bool),
		DigestCache:         make(map[string]*DigestResult),
	}
}

// IsRemote reports whether the node is a baremetal remote or guest node
func (n *Node) IsRemote() bool {
	return n.Kind == NodeRemote || n.Kind == NodeGuest
}

// IsGuest reports whether the node runs inside a container resource
func (n *Node) IsGuest() bool {
	return n.Kind == NodeGuest
}

// IsBaremetalRemote reports whether the node is a remote node without a container
func (n *Node) IsBaremetalRemote() bool {
	return n.Kind == NodeRemote
}

// SetAttr records an attribute. Without overwrite an existing value wins.
func (n *Node) SetAttr(key, value string, overwrite bool) {
	if _, exists := n.Attrs[key]; exists && !overwrite {
		return
	}
	n.Attrs[key] = value
}

// Attr returns an attribute value and whether it is set
func (n *Node) Attr(key string) (string, bool) {
	v, ok := n.Attrs[key]
	return v, ok
}

// Ban removes the node from contention for this run
func (n *Node) Ban() {
	n.Fixed = true
	n.Weight = MinusInfinity
}

// AddRunning records that a resource is active on this node
func (n *Node) AddRunning(rscID string) {
	for _, id := range n.RunningResources {
		if id == rscID {
			return
		}
	}
	n.RunningResources = append(n.RunningResources, rscID)
}

// Snapshot copies the identity and score of the node
func (n *Node) Snapshot() NodeSnapshot {
	return NodeSnapshot{ID: n.ID, Name: n.Name, Weight: n.Weight}
}

// NodeSnapshot is a point-in-time copy of a node used by known-on tables
type NodeSnapshot struct {
	ID     string
	Name   string
	Weight int
}

// DigestMatch describes how a recorded parameter digest compares to the
// current configuration
type DigestMatch int

const (
	DigestUnknown DigestMatch = iota
	DigestMatches
	DigestRestart
	DigestAll
)

// DigestResult is a memoized digest comparison
type DigestResult struct {
	Match            DigestMatch
	CalculatedAll    string
	CalculatedReload string
}
