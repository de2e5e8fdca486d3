package reconciler

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/cuemby/crmcore/pkg/config"
	"github.com/cuemby/crmcore/pkg/document"
	"github.com/cuemby/crmcore/pkg/types"
)

// Resource meta attributes read while building the tree
const (
	metaPriority        = "priority"
	metaMaintenance     = "maintenance"
	metaGloballyUnique  = "globally-unique"
	metaMultipleActive  = "multiple-active"
	metaAllowMigrate    = "allow-migrate"
	metaFailureTimeout  = "failure-timeout"
	metaTargetRole      = "target-role"
	metaRequires        = "requires"
	metaProvides        = "provides"
	metaCloneMax        = "clone-max"
	metaCloneNodeMax    = "clone-node-max"
	metaPromotable      = "promotable"
	metaReplicas        = "replicas"
	metaReplicasPerHost = "replicas-per-host"

	paramReconnectInterval = "reconnect_interval"
)

func (r *Reconciler) unpackResources() {
	for _, t := range r.doc.Config.Templates {
		if t.ID == "" {
			r.configError("Failed unpacking template: missing id")
			continue
		}
		r.templates[t.ID] = t
		r.ws.Templates[t.ID] = true
	}

	seen := make(map[string]bool)
	for _, def := range r.resourceDefs {
		ids, err := r.validateDef(def)
		if err == nil {
			local := make(map[string]bool, len(ids))
			for _, id := range ids {
				if seen[id] || local[id] {
					err = fmt.Errorf("duplicate resource id %s", id)
					break
				}
				local[id] = true
			}
		}
		if err != nil {
			r.configError("Failed unpacking %s %s: %v", kindName(def.Kind), def.ID, err)
			continue
		}
		for _, id := range ids {
			seen[id] = true
		}

		rsc := r.buildResource(def, nil)
		r.ws.Resources = append(r.ws.Resources, rsc)
	}

	for _, rsc := range r.ws.Resources {
		r.setupContainer(rsc)
		r.linkRemoteNode(rsc)
	}

	sort.SliceStable(r.ws.Resources, func(i, j int) bool {
		return r.ws.Resources[i].Priority > r.ws.Resources[j].Priority
	})

	if r.ws.Config.StonithEnabled && !r.ws.HasFencingResource {
		r.configError("Resource start-up disabled since no STONITH resources have been defined")
		r.configError("Either configure some or disable STONITH with the stonith-enabled option")
		r.configError("NOTE: Clusters with shared data need STONITH to ensure data integrity")
	}
}

func kindName(kind string) string {
	if kind == "" {
		return document.KindPrimitive
	}
	return kind
}

// validateDef checks a definition subtree before anything is built and
// returns every id it will register
func (r *Reconciler) validateDef(def document.ResourceDef) ([]string, error) {
	if def.ID == "" {
		return nil, fmt.Errorf("missing id")
	}

	ids := []string{def.ID}
	child := func(kinds ...string) error {
		for _, c := range def.Children {
			ok := false
			for _, k := range kinds {
				if kindName(c.Kind) == k {
					ok = true
				}
			}
			if !ok {
				return fmt.Errorf("%s %s cannot contain a %s", kindName(def.Kind), def.ID, kindName(c.Kind))
			}
			sub, err := r.validateDef(c)
			if err != nil {
				return err
			}
			ids = append(ids, sub...)
		}
		return nil
	}

	switch kindName(def.Kind) {
	case document.KindPrimitive:
		if len(def.Children) > 0 {
			return nil, fmt.Errorf("primitive %s cannot have children", def.ID)
		}
		if def.Template != "" {
			if _, ok := r.templates[def.Template]; !ok {
				return nil, fmt.Errorf("unknown template %s", def.Template)
			}
		}
	case document.KindGroup:
		if err := child(document.KindPrimitive); err != nil {
			return nil, err
		}
	case document.KindClone, document.KindMaster:
		if len(def.Children) != 1 {
			return nil, fmt.Errorf("clone %s must wrap exactly one resource", def.ID)
		}
		if err := child(document.KindPrimitive, document.KindGroup); err != nil {
			return nil, err
		}
	case document.KindContainer:
		if len(def.Children) > 1 {
			return nil, fmt.Errorf("container %s can wrap at most one resource", def.ID)
		}
		if err := child(document.KindPrimitive); err != nil {
			return nil, err
		}
		if len(def.Children) == 1 {
			ids = append(ids, def.ID+"-clone")
		}
	default:
		return nil, fmt.Errorf("unknown resource kind %q", def.Kind)
	}
	return ids, nil
}

// buildResource creates a validated definition subtree and registers it
func (r *Reconciler) buildResource(def document.ResourceDef, parent *types.Resource) *types.Resource {
	var variant types.Variant
	switch kindName(def.Kind) {
	case document.KindGroup:
		variant = types.VariantGroup
	case document.KindClone, document.KindMaster:
		variant = types.VariantClone
	case document.KindContainer:
		variant = types.VariantContainer
	default:
		variant = types.VariantPrimitive
	}

	rsc := types.NewResource(def.ID, variant)
	if parent != nil {
		rsc.ParentID = parent.ID
	}
	r.ws.Register(rsc)
	r.commonUnpack(rsc, def, parent)

	switch variant {
	case types.VariantGroup:
		for _, c := range def.Children {
			rsc.Children = append(rsc.Children, r.buildResource(c, rsc))
		}
	case types.VariantClone:
		if def.Kind == document.KindMaster || config.IsTrue(rsc.Meta[metaPromotable]) {
			rsc.Set(types.FlagPromotable)
		}
		rsc.CloneMax = r.metaInt(rsc, metaCloneMax, r.ws.ClusterNodeCount())
		rsc.CloneNodeMax = r.metaInt(rsc, metaCloneNodeMax, 1)
		r.expandClone(rsc, def.Children[0])
	case types.VariantContainer:
		if len(def.Children) == 1 {
			r.expandContainer(rsc, def.Children[0])
		}
	}
	return rsc
}

// expandClone creates the numbered instances of a clone. A clone with no
// instances still gets one orphan instance so history can be attached.
func (r *Reconciler) expandClone(clone *types.Resource, child document.ResourceDef) {
	r.cloneDefs[clone.ID] = child
	if clone.CloneMax <= 0 {
		inst := r.buildResource(instanceDef(child, 0), clone)
		inst.Walk(func(rsc *types.Resource) { rsc.Set(types.FlagOrphan) })
		clone.Children = append(clone.Children, inst)
		return
	}
	for i := 0; i < clone.CloneMax; i++ {
		clone.Children = append(clone.Children, r.buildResource(instanceDef(child, i), clone))
	}
}

// expandContainer wraps the child in an anonymous clone with one instance
// per replica
func (r *Reconciler) expandContainer(container *types.Resource, child document.ResourceDef) {
	inner := types.NewResource(container.ID+"-clone", types.VariantClone)
	inner.ParentID = container.ID
	r.ws.Register(inner)
	r.commonUnpack(inner, document.ResourceDef{ID: inner.ID, Kind: document.KindClone}, container)

	inner.CloneMax = r.metaInt(container, metaReplicas, 1)
	inner.CloneNodeMax = r.metaInt(container, metaReplicasPerHost, 1)
	container.Children = append(container.Children, inner)
	r.expandClone(inner, child)
}

// instanceDef renames a clone child subtree to instance n
func instanceDef(def document.ResourceDef, n int) document.ResourceDef {
	out := def
	out.ID = fmt.Sprintf("%s:%d", def.ID, n)
	out.Children = make([]document.ResourceDef, len(def.Children))
	for i, c := range def.Children {
		out.Children[i] = instanceDef(c, n)
	}
	return out
}

func (r *Reconciler) metaInt(rsc *types.Resource, key string, def int) int {
	v, ok := rsc.Meta[key]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.configWarn("Invalid %s %q for %s, using %d", key, v, rsc.ID, def)
		return def
	}
	return n
}

// commonUnpack fills the attributes shared by every variant
func (r *Reconciler) commonUnpack(rsc *types.Resource, def document.ResourceDef, parent *types.Resource) {
	opts := r.ws.Config

	for k, v := range def.Meta {
		rsc.Meta[k] = v
	}
	if parent != nil {
		for k, v := range parent.Meta {
			if _, ok := rsc.Meta[k]; !ok {
				rsc.Meta[k] = v
			}
		}
	}
	for k, v := range r.doc.Config.ResourceDefaults {
		if _, ok := rsc.Meta[k]; !ok {
			rsc.Meta[k] = v
		}
	}
	for k, v := range def.Params {
		rsc.Params[k] = v
	}
	for k, v := range def.Utilization {
		rsc.Utilization[k] = v
	}

	rsc.Class, rsc.Provider, rsc.Type = def.Class, def.Provider, def.Type
	if tmpl, ok := r.templates[def.Template]; ok && def.Template != "" {
		if rsc.Class == "" {
			rsc.Class = tmpl.Class
		}
		if rsc.Provider == "" {
			rsc.Provider = tmpl.Provider
		}
		if rsc.Type == "" {
			rsc.Type = tmpl.Type
		}
	}

	for _, op := range def.Ops {
		rsc.Ops = append(rsc.Ops, r.unpackOpConfig(rsc, op))
	}

	if v, ok := rsc.Meta[metaPriority]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			rsc.Priority = n
		}
	}

	rsc.Set(types.FlagManaged)
	if v, ok := rsc.Meta[metaManaged]; ok && v != "default" {
		if b, valid := config.ParseBool(v); valid && !b {
			rsc.Clear(types.FlagManaged)
		}
	}
	if config.IsTrue(rsc.Meta[metaMaintenance]) || opts.MaintenanceMode {
		rsc.Clear(types.FlagManaged)
	}

	uber := r.ws.UberParent(rsc)
	if !uber.IsClone() || config.IsTrue(rsc.Meta[metaGloballyUnique]) {
		rsc.Set(types.FlagUnique)
	}

	switch types.MultipleActive(rsc.Meta[metaMultipleActive]) {
	case types.MultipleActiveStopOnly:
		rsc.MultipleActive = types.MultipleActiveStopOnly
	case types.MultipleActiveBlock:
		rsc.MultipleActive = types.MultipleActiveBlock
	default:
		rsc.MultipleActive = types.MultipleActiveStopStart
	}

	remote := rsc.Variant == types.VariantPrimitive && isRemoteConnection(def)
	if remote {
		rsc.Set(types.FlagRemoteConnection)
	}
	if v, ok := rsc.Meta[metaAllowMigrate]; ok {
		if config.IsTrue(v) {
			rsc.Set(types.FlagAllowMigrate)
		}
	} else if remote {
		rsc.Set(types.FlagAllowMigrate)
	}

	if v, ok := rsc.Meta[metaFailureTimeout]; ok {
		if d, err := config.ParseInterval(v); err == nil {
			rsc.FailureTimeout = d
		} else {
			r.configWarn("Invalid %s %q for %s", metaFailureTimeout, v, rsc.ID)
		}
	}
	if v, ok := rsc.Params[paramReconnectInterval]; ok {
		if d, err := config.ParseInterval(v); err == nil {
			rsc.RemoteReconnect = d
		}
	}

	if opts.SymmetricCluster {
		r.ws.AddConstraint(types.LocationConstraint{ID: "symmetric_default", ResourceID: rsc.ID})
	} else if remote && rsc.Meta[metaContainer] != "" {
		r.ws.AddConstraint(types.LocationConstraint{ID: "remote_connection_default", ResourceID: rsc.ID})
	}

	if rsc.Class == "stonith" {
		rsc.Set(types.FlagFencingDevice)
		r.ws.HasFencingResource = true
	}
	if rsc.Meta[metaRequires] == "unfencing" || rsc.Meta[metaProvides] == "unfencing" ||
		rsc.Params[metaProvides] == "unfencing" {
		r.ws.Unfencing = true
	}

	r.logger.Trace().
		Str("resource", rsc.ID).
		Str("variant", string(rsc.Variant)).
		Strs("flags", rsc.Flags.Names()).
		Msg("Unpacked resource")
}

func (r *Reconciler) unpackOpConfig(rsc *types.Resource, def document.OpDef) types.OpConfig {
	op := types.OpConfig{Name: def.Name, Role: def.Role, OnFail: def.OnFail}
	if def.Interval != "" {
		d, err := config.ParseInterval(def.Interval)
		if err != nil {
			r.configWarn("Invalid interval %q for %s %s", def.Interval, rsc.ID, def.Name)
		}
		op.Interval = d
	}
	if def.Timeout != "" {
		if d, err := config.ParseInterval(def.Timeout); err == nil {
			op.Timeout = d
		}
	}
	return op
}

// setupContainer links fillers to the container named in their meta
func (r *Reconciler) setupContainer(rsc *types.Resource) {
	if len(rsc.Children) > 0 {
		for _, child := range rsc.Children {
			r.setupContainer(child)
		}
		return
	}

	name := rsc.Meta[metaContainer]
	if name == "" || name == rsc.ID {
		return
	}
	container := r.ws.FindResource(name)
	if container == nil {
		r.configError("Resource %s: Unknown resource container (%s)", rsc.ID, name)
		return
	}
	rsc.ContainerID = container.ID
	container.Set(types.FlagIsContainer)
	container.Fillers = append(container.Fillers, rsc)
	r.logger.Trace().Str("resource", rsc.ID).Str("container", container.ID).Msg("Resolved container")
}

func (r *Reconciler) unpackTags() {
	for _, tag := range r.doc.Config.Tags {
		if tag.ID == "" {
			r.configError("Failed unpacking tag: missing id")
			continue
		}
		for _, ref := range tag.Refs {
			if ref == "" {
				r.configError("Failed unpacking reference in tag %s: missing id", tag.ID)
				continue
			}
			r.ws.Tags[tag.ID] = append(r.ws.Tags[tag.ID], ref)
		}
	}
}
