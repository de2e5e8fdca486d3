package types

import "time"

// Flags is the flag set carried by a resource
type Flags uint32

const (
	FlagManaged Flags = 1 << iota
	FlagOrphan
	FlagFailed
	FlagFailureIgnored
	FlagUnique
	FlagPromotable
	FlagBlock
	FlagIsContainer
	FlagOrphanContainerFiller
	FlagAllowMigrate
	FlagStartPending
	FlagRemoteConnection
	FlagFencingDevice
)

var flagNames = []struct {
	flag Flags
	name string
}{
	{FlagManaged, "managed"},
	{FlagOrphan, "orphan"},
	{FlagFailed, "failed"},
	{FlagFailureIgnored, "failure-ignored"},
	{FlagUnique, "unique"},
	{FlagPromotable, "promotable"},
	{FlagBlock, "block"},
	{FlagIsContainer, "container"},
	{FlagOrphanContainerFiller, "orphan-container-filler"},
	{FlagAllowMigrate, "allow-migrate"},
	{FlagStartPending, "start-pending"},
	{FlagRemoteConnection, "remote-connection"},
	{FlagFencingDevice, "fencing-device"},
}

// Names lists the set flags in a fixed order
func (f Flags) Names() []string {
	var names []string
	for _, fn := range flagNames {
		if f&fn.flag != 0 {
			names = append(names, fn.name)
		}
	}
	return names
}

// OpConfig is an operation declared in a resource definition
type OpConfig struct {
	Name     string
	Interval time.Duration
	Timeout  time.Duration
	Role     string
	OnFail   string
}

// Resource is one node of the resource ownership tree
type Resource struct {
	ID      string
	Variant Variant

	Class    string
	Provider string
	Type     string

	Flags    Flags
	Role     Role
	NextRole Role
	Priority int

	// ParentID is a lookup reference to the owning group, clone or container
	ParentID string
	// Children are owned by this resource
	Children []*Resource

	// ContainerID is a lookup reference from a filler to its container
	ContainerID string
	// Fillers are the resources running inside this container
	Fillers []*Resource

	// RunningOn holds ids of nodes where the resource is believed active
	RunningOn []string
	// KnownOn holds every node where the resource state was queried
	KnownOn map[string]NodeSnapshot
	// AllowedNodes maps node id to placement score
	AllowedNodes map[string]int

	Meta        map[string]string
	Params      map[string]string
	Utilization map[string]string
	Ops         []OpConfig

	FailureTimeout  time.Duration
	RemoteReconnect time.Duration
	MultipleActive  MultipleActive

	// CloneMax and CloneNodeMax only apply to clones
	CloneMax     int
	CloneNodeMax int

	// CloneName is the alias under which history identified this instance
	CloneName   string
	PendingTask string

	DanglingMigrations     []string
	PartialMigrationSource string
	PartialMigrationTarget string
}

// NewResource creates a resource with empty tables
func NewResource(id string, variant Variant) *Resource {
	return &Resource{
		ID:           id,
		Variant:      variant,
		Role:         RoleStopped,
		NextRole:     RoleUnknown,
		KnownOn:      make(map[string]NodeSnapshot),
		AllowedNodes: make(map[string]int),
		Meta:         make(map[string]string),
		Params:       make(map[string]string),
		Utilization:  make(map[string]string),
	}
}

// Is reports whether every flag in f is set
func (r *Resource) Is(f Flags) bool { return r.Flags&f == f }

// Set sets flags
func (r *Resource) Set(f Flags) { r.Flags |= f }

// Clear clears flags
func (r *Resource) Clear(f Flags) { r.Flags &^= f }

// IsClone reports whether the resource is a clone
func (r *Resource) IsClone() bool { return r.Variant == VariantClone }

// IsAnonymousClone reports whether the resource is a clone whose instances
// have no fixed identity
func (r *Resource) IsAnonymousClone() bool {
	return r.Variant == VariantClone && !r.Is(FlagUnique)
}

// IsActive reports whether the resource is believed to run somewhere
func (r *Resource) IsActive() bool {
	return r.Role > RoleStopped
}

// AddRunningOn records a node in RunningOn, keeping it duplicate free
func (r *Resource) AddRunningOn(nodeID string) bool {
	for _, id := range r.RunningOn {
		if id == nodeID {
			return false
		}
	}
	r.RunningOn = append(r.RunningOn, nodeID)
	return true
}

// RunsOn reports whether the resource is believed active on a node
func (r *Resource) RunsOn(nodeID string) bool {
	for _, id := range r.RunningOn {
		if id == nodeID {
			return true
		}
	}
	return false
}

// Locations returns every node where the resource or one of its
// descendants is active, without duplicates
func (r *Resource) Locations() []string {
	var out []string
	seen := make(map[string]bool)
	var walk func(*Resource)
	walk = func(rsc *Resource) {
		if rsc.Variant == VariantPrimitive {
			for _, id := range rsc.RunningOn {
				if !seen[id] {
					seen[id] = true
					out = append(out, id)
				}
			}
			return
		}
		for _, child := range rsc.Children {
			walk(child)
		}
	}
	walk(r)
	return out
}

// FindChild searches the subtree for a resource by id or alias
func (r *Resource) FindChild(id string) *Resource {
	if r.ID == id || (r.CloneName != "" && r.CloneName == id) {
		return r
	}
	for _, child := range r.Children {
		if found := child.FindChild(id); found != nil {
			return found
		}
	}
	return nil
}

// FindByBaseName searches the subtree for a primitive whose id without the
// clone instance suffix equals base
func (r *Resource) FindByBaseName(base string) *Resource {
	if r.Variant == VariantPrimitive {
		if CloneStrip(r.ID) == base {
			return r
		}
		return nil
	}
	for _, child := range r.Children {
		if found := child.FindByBaseName(base); found != nil {
			return found
		}
	}
	return nil
}

// OpFor returns the declared operation matching a task and interval
func (r *Resource) OpFor(task string, interval time.Duration) (OpConfig, bool) {
	for _, op := range r.Ops {
		if op.Name == task && op.Interval == interval {
			return op, true
		}
	}
	return OpConfig{}, false
}

// Walk visits the resource and all descendants depth first
func (r *Resource) Walk(fn func(*Resource)) {
	fn(r)
	for _, child := range r.Children {
		child.Walk(fn)
	}
}
