package reconciler

import (
	"sort"

	"github.com/cuemby/crmcore/pkg/config"
	"github.com/cuemby/crmcore/pkg/types"
)

// createNode adds a node to the registry. Duplicate names are allowed but
// warned about.
func (r *Reconciler) createNode(id, name, nodeType, score string) *types.Node {
	if r.ws.FindNode(name) != nil {
		r.configWarn("Detected multiple node entries with uname=%s - this is rarely intended", name)
	}

	kind := types.NodePing
	switch nodeType {
	case "remote":
		kind = types.NodeRemote
	case "", "member":
		kind = types.NodeMember
	}

	n := types.NewNode(id, name, kind)
	n.Weight = config.Score(score, r.ws.Config)
	if n.IsRemote() {
		n.Attrs[types.AttrKind] = "remote"
	} else {
		n.Attrs[types.AttrKind] = "cluster"
	}

	r.logger.Trace().Str("node", name).Str("id", id).Str("kind", string(kind)).Msg("Creating node")
	r.ws.AddNode(n)
	return n
}

// handleStartupFencing marks a node unclean until its status entry is seen,
// when startup fencing is enabled. Remote nodes without a connection are
// left alone; they are leftovers with nothing to fence through.
func (r *Reconciler) handleStartupFencing(n *types.Node) {
	if n.Kind == types.NodeRemote && n.RemoteResourceID == "" {
		return
	}
	n.Unclean = r.ws.Config.StartupFencing
	n.Unseen = true
}

func (r *Reconciler) unpackNodes() {
	for _, def := range r.doc.Config.Nodes {
		if def.ID == "" {
			r.configError("Must specify id tag in <node>")
			continue
		}
		name := def.Name
		if name == "" {
			name = def.ID
		}

		n := r.createNode(def.ID, name, def.Type, def.Score)
		r.handleStartupFencing(n)
		r.addNodeAttrs(n, def.Attributes, false)
		for k, v := range def.Utilization {
			n.Utilization[k] = v
		}
	}

	if local := r.opts.LocalNode; local != "" && r.ws.FindNode(local) == nil {
		r.logger.Info().Str("node", local).Msg("Creating a fake local node")
		r.createNode(local, local, "", "")
	}
}

// addNodeAttrs sets the built-in attributes and merges declared ones.
// Without overwrite, values already present win.
func (r *Reconciler) addNodeAttrs(n *types.Node, attrs map[string]string, overwrite bool) {
	n.Attrs[types.AttrUname] = n.Name
	n.Attrs[types.AttrID] = n.ID

	if r.ws.DCUUID != "" && n.ID == r.ws.DCUUID {
		r.ws.DCNode = n.Name
		n.IsDC = true
		n.Attrs[types.AttrIsDC] = "true"
	} else {
		n.Attrs[types.AttrIsDC] = "false"
	}

	clusterName := r.ws.Config.ClusterName
	if clusterName != "" {
		n.Attrs[types.AttrClusterName] = clusterName
	}

	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		n.SetAttr(k, attrs[k], overwrite)
	}

	if _, ok := n.Attr(types.AttrSiteName); !ok {
		if site, ok := n.Attr("site-name"); ok {
			n.Attrs[types.AttrSiteName] = site
		} else if clusterName != "" {
			n.Attrs[types.AttrSiteName] = clusterName
		}
	}
}
