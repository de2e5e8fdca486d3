package document

// Document is one reconciliation input: what is declared and what was observed
type Document struct {
	Config Configuration `yaml:"config" toml:"config"`
	Status Status        `yaml:"status" toml:"status"`
}

// Configuration is the declared side of the input
type Configuration struct {
	Options          map[string]string `yaml:"options,omitempty" toml:"options,omitempty"`
	ResourceDefaults map[string]string `yaml:"rsc_defaults,omitempty" toml:"rsc_defaults,omitempty"`
	Nodes            []NodeDef         `yaml:"nodes,omitempty" toml:"nodes,omitempty"`
	Resources        []ResourceDef     `yaml:"resources,omitempty" toml:"resources,omitempty"`
	Templates        []TemplateDef     `yaml:"templates,omitempty" toml:"templates,omitempty"`
	Tags             []TagDef          `yaml:"tags,omitempty" toml:"tags,omitempty"`
}

// NodeDef declares a node
type NodeDef struct {
	ID          string            `yaml:"id" toml:"id"`
	Name        string            `yaml:"uname" toml:"uname"`
	Type        string            `yaml:"type,omitempty" toml:"type,omitempty"`
	Score       string            `yaml:"score,omitempty" toml:"score,omitempty"`
	Attributes  map[string]string `yaml:"attributes,omitempty" toml:"attributes,omitempty"`
	Utilization map[string]string `yaml:"utilization,omitempty" toml:"utilization,omitempty"`
}

// Resource kinds accepted in ResourceDef.Kind
const (
	KindPrimitive = "primitive"
	KindGroup     = "group"
	KindClone     = "clone"
	KindMaster    = "master"
	KindContainer = "bundle"
)

// ResourceDef declares a resource. Groups list their members in Children,
// clones and containers wrap exactly one child.
type ResourceDef struct {
	ID          string            `yaml:"id" toml:"id"`
	Kind        string            `yaml:"kind" toml:"kind"`
	Class       string            `yaml:"class,omitempty" toml:"class,omitempty"`
	Provider    string            `yaml:"provider,omitempty" toml:"provider,omitempty"`
	Type        string            `yaml:"type,omitempty" toml:"type,omitempty"`
	Template    string            `yaml:"template,omitempty" toml:"template,omitempty"`
	Meta        map[string]string `yaml:"meta,omitempty" toml:"meta,omitempty"`
	Params      map[string]string `yaml:"params,omitempty" toml:"params,omitempty"`
	Utilization map[string]string `yaml:"utilization,omitempty" toml:"utilization,omitempty"`
	Ops         []OpDef           `yaml:"ops,omitempty" toml:"ops,omitempty"`
	Children    []ResourceDef     `yaml:"children,omitempty" toml:"children,omitempty"`
}

// OpDef declares an operation of a primitive
type OpDef struct {
	Name     string `yaml:"name" toml:"name"`
	Interval string `yaml:"interval,omitempty" toml:"interval,omitempty"`
	Timeout  string `yaml:"timeout,omitempty" toml:"timeout,omitempty"`
	Role     string `yaml:"role,omitempty" toml:"role,omitempty"`
	OnFail   string `yaml:"on_fail,omitempty" toml:"on_fail,omitempty"`
}

// TemplateDef declares a resource template. Primitives referring to it
// inherit any class, provider or type they leave empty.
type TemplateDef struct {
	ID       string `yaml:"id" toml:"id"`
	Class    string `yaml:"class,omitempty" toml:"class,omitempty"`
	Provider string `yaml:"provider,omitempty" toml:"provider,omitempty"`
	Type     string `yaml:"type,omitempty" toml:"type,omitempty"`
}

// TagDef groups references under one name
type TagDef struct {
	ID   string   `yaml:"id" toml:"id"`
	Refs []string `yaml:"refs" toml:"refs"`
}

// Status is the observed side of the input
type Status struct {
	HaveQuorum  bool          `yaml:"have_quorum" toml:"have_quorum"`
	QuorumPanic bool          `yaml:"quorum_panic,omitempty" toml:"quorum_panic,omitempty"`
	DCUUID      string        `yaml:"dc_uuid,omitempty" toml:"dc_uuid,omitempty"`
	Nodes       []NodeState   `yaml:"nodes,omitempty" toml:"nodes,omitempty"`
	Tickets     []TicketState `yaml:"tickets,omitempty" toml:"tickets,omitempty"`
}

// NodeState is the status entry of one node. A nil InCluster means the
// membership layer never reported on the node.
type NodeState struct {
	ID                string            `yaml:"id" toml:"id"`
	Uname             string            `yaml:"uname,omitempty" toml:"uname,omitempty"`
	InCluster         *bool             `yaml:"in_ccm,omitempty" toml:"in_ccm,omitempty"`
	Crmd              string            `yaml:"crmd,omitempty" toml:"crmd,omitempty"`
	Join              string            `yaml:"join,omitempty" toml:"join,omitempty"`
	Expected          string            `yaml:"expected,omitempty" toml:"expected,omitempty"`
	NodeFenced        bool              `yaml:"node_fenced,omitempty" toml:"node_fenced,omitempty"`
	NodeInMaintenance bool              `yaml:"node_in_maintenance,omitempty" toml:"node_in_maintenance,omitempty"`
	Attributes        map[string]string `yaml:"attributes,omitempty" toml:"attributes,omitempty"`
	Resources         []ResourceHistory `yaml:"resources,omitempty" toml:"resources,omitempty"`
}

// ResourceHistory is the operation log of one resource on one node
type ResourceHistory struct {
	ID        string     `yaml:"id" toml:"id"`
	Class     string     `yaml:"class,omitempty" toml:"class,omitempty"`
	Provider  string     `yaml:"provider,omitempty" toml:"provider,omitempty"`
	Type      string     `yaml:"type,omitempty" toml:"type,omitempty"`
	Container string     `yaml:"container,omitempty" toml:"container,omitempty"`
	Ops       []OpRecord `yaml:"ops,omitempty" toml:"ops,omitempty"`
}

// OpRecord is one recorded operation. Interval is in milliseconds.
type OpRecord struct {
	ID              string `yaml:"id" toml:"id"`
	Operation       string `yaml:"operation" toml:"operation"`
	OperationKey    string `yaml:"operation_key,omitempty" toml:"operation_key,omitempty"`
	CallID          int    `yaml:"call_id" toml:"call_id"`
	Interval        int64  `yaml:"interval,omitempty" toml:"interval,omitempty"`
	RCCode          int    `yaml:"rc_code" toml:"rc_code"`
	OpStatus        int    `yaml:"op_status" toml:"op_status"`
	TransitionKey   string `yaml:"transition_key,omitempty" toml:"transition_key,omitempty"`
	TransitionMagic string `yaml:"transition_magic,omitempty" toml:"transition_magic,omitempty"`
	MigrateSource   string `yaml:"migrate_source,omitempty" toml:"migrate_source,omitempty"`
	MigrateTarget   string `yaml:"migrate_target,omitempty" toml:"migrate_target,omitempty"`
	LastRCChange    int64  `yaml:"last_rc_change,omitempty" toml:"last_rc_change,omitempty"`
	LastRun         int64  `yaml:"last_run,omitempty" toml:"last_run,omitempty"`
	OpDigest        string `yaml:"op_digest,omitempty" toml:"op_digest,omitempty"`
	RestartDigest   string `yaml:"op_restart_digest,omitempty" toml:"op_restart_digest,omitempty"`
}

// TicketState is the observed state of one ticket
type TicketState struct {
	ID          string            `yaml:"id" toml:"id"`
	Granted     bool              `yaml:"granted,omitempty" toml:"granted,omitempty"`
	Standby     bool              `yaml:"standby,omitempty" toml:"standby,omitempty"`
	LastGranted int64             `yaml:"last_granted,omitempty" toml:"last_granted,omitempty"`
	Attributes  map[string]string `yaml:"attributes,omitempty" toml:"attributes,omitempty"`
}
