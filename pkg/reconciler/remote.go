package reconciler

import (
	"github.com/cuemby/crmcore/pkg/config"
	"github.com/cuemby/crmcore/pkg/document"
	"github.com/cuemby/crmcore/pkg/types"
)

// Meta attributes that turn a primitive into the host of a guest node
const (
	metaRemoteNode     = "remote-node"
	metaRemoteAddr     = "remote-addr"
	metaRemotePort     = "remote-port"
	metaConnectTimeout = "remote-connect-timeout"
	metaRemoteMigrate  = "remote-allow-migrate"
	metaManaged        = "is-managed"
	metaContainer      = "container"
)

const defaultConnectTimeout = "60s"

// isRemoteConnection reports whether a definition is a baremetal remote
// node connection
func isRemoteConnection(def document.ResourceDef) bool {
	if def.Kind != "" && def.Kind != document.KindPrimitive {
		return false
	}
	return def.Class == "ocf" && def.Provider == "pacemaker" && def.Type == "remote"
}

// unpackRemoteNodes creates the nodes implied by resource definitions. It
// runs before resources are unpacked so that placement scores can refer to
// these nodes.
func (r *Reconciler) unpackRemoteNodes() {
	declared := len(r.resourceDefs)
	for i := 0; i < declared; i++ {
		def := r.resourceDefs[i]

		if isRemoteConnection(def) {
			if def.ID != "" && r.ws.FindNode(def.ID) == nil {
				r.logger.Trace().Str("node", def.ID).Msg("Found baremetal remote node")
				r.createNode(def.ID, def.ID, "remote", "")
			}
			continue
		}

		switch def.Kind {
		case "", document.KindPrimitive:
			r.addGuestNode(def, "")
		case document.KindGroup:
			for _, child := range def.Children {
				r.addGuestNode(child, def.ID)
			}
		}
	}
}

func (r *Reconciler) addGuestNode(def document.ResourceDef, group string) {
	name := r.expandRemoteMeta(def)
	if name == "" || r.ws.FindNode(name) != nil {
		return
	}
	r.logger.Trace().
		Str("node", name).
		Str("container", def.ID).
		Str("group", group).
		Msg("Found guest remote node")
	r.createNode(name, name, "remote", "")
}

// expandRemoteMeta synthesizes the connection resource of a guest node
// declared through meta attributes and returns the guest node name
func (r *Reconciler) expandRemoteMeta(def document.ResourceDef) string {
	name := def.Meta[metaRemoteNode]
	if name == "" {
		return ""
	}
	if r.declaredResource(name) {
		r.configError("Guest node name %s of resource %s conflicts with an existing resource id", name, def.ID)
		return ""
	}

	timeout := defaultConnectTimeout
	if v, ok := def.Meta[metaConnectTimeout]; ok {
		if _, err := config.ParseInterval(v); err != nil {
			r.configWarn("Invalid %s %q for %s, using %s", metaConnectTimeout, v, def.ID, defaultConnectTimeout)
		} else {
			timeout = v
		}
	}

	conn := document.ResourceDef{
		ID:       name,
		Kind:     document.KindPrimitive,
		Class:    "ocf",
		Provider: "pacemaker",
		Type:     "remote",
		Meta:     map[string]string{metaContainer: def.ID},
		Params:   map[string]string{},
		Ops: []document.OpDef{
			{Name: types.TaskMonitor, Interval: "30s", Timeout: "30s"},
			{Name: types.TaskStart, Timeout: timeout},
		},
	}
	if v, ok := def.Meta[metaRemoteMigrate]; ok {
		conn.Meta["allow-migrate"] = v
	}
	if v, ok := def.Meta[metaManaged]; ok {
		conn.Meta[metaManaged] = v
	}
	if v, ok := def.Meta[metaRemoteAddr]; ok {
		conn.Params["addr"] = v
	}
	if v, ok := def.Meta[metaRemotePort]; ok {
		conn.Params["port"] = v
	}

	r.resourceDefs = append(r.resourceDefs, conn)
	return name
}

// declaredResource reports whether any resource definition uses id
func (r *Reconciler) declaredResource(id string) bool {
	var walk func(defs []document.ResourceDef) bool
	walk = func(defs []document.ResourceDef) bool {
		for _, d := range defs {
			if d.ID == id || walk(d.Children) {
				return true
			}
		}
		return false
	}
	return walk(r.resourceDefs)
}

// linkRemoteNode points a remote node at its connection resource. A guest
// connection turns the node into a guest node.
func (r *Reconciler) linkRemoteNode(rsc *types.Resource) {
	if !rsc.Is(types.FlagRemoteConnection) {
		return
	}
	n := r.ws.FindNode(rsc.ID)
	if n == nil {
		r.logger.Error().Str("resource", rsc.ID).Msg("No node for remote connection resource")
		return
	}

	n.RemoteResourceID = rsc.ID
	if rsc.ContainerID == "" {
		r.handleStartupFencing(n)
		return
	}
	n.Kind = types.NodeGuest
	n.Attrs[types.AttrKind] = "container"
}
