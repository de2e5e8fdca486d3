package reconciler

import (
	"errors"
	"fmt"
	"time"

	"github.com/cuemby/crmcore/pkg/config"
	"github.com/cuemby/crmcore/pkg/document"
	"github.com/cuemby/crmcore/pkg/events"
	"github.com/cuemby/crmcore/pkg/log"
	"github.com/cuemby/crmcore/pkg/metrics"
	"github.com/cuemby/crmcore/pkg/types"
	"github.com/rs/zerolog"
)

// ErrInvariant is wrapped by errors that abort a run because the working
// set can no longer be trusted
var ErrInvariant = errors.New("working set invariant violated")

// Options tunes one reconciliation run
type Options struct {
	// Now is the evaluation time for failure expiry. Zero means time.Now().
	Now time.Time

	// Recorder receives fencing, failure and orphan events. Nil disables them.
	Recorder *events.Recorder

	// LocalNode, when set and not declared, is added as a cluster member
	LocalNode string
}

// Reconciler turns one Document into a WorkingSet
type Reconciler struct {
	doc      *document.Document
	opts     Options
	ws       *types.WorkingSet
	once     *config.Once
	recorder *events.Recorder
	logger   zerolog.Logger

	// resourceDefs is the declared tree plus synthesized guest connections
	resourceDefs []document.ResourceDef
	templates    map[string]document.TemplateDef
	// cloneDefs keeps the child definition of every clone so orphan
	// instances can be created while replaying history
	cloneDefs map[string]document.ResourceDef
	histories map[string][]*rscHistory
	errSeen   map[string]bool

	err error
}

// NewReconciler creates a reconciler for one input
func NewReconciler(doc *document.Document, opts Options) *Reconciler {
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	logger := log.WithComponent("reconciler")
	return &Reconciler{
		doc:      doc,
		opts:     opts,
		recorder: opts.Recorder,
		logger:   logger,
	}
}

// Reconcile is a shortcut for a run without events
func Reconcile(doc *document.Document, now time.Time) (*types.WorkingSet, error) {
	return NewReconciler(doc, Options{Now: now}).Reconcile()
}

// Reconcile runs every unpack pass and returns the resulting snapshot.
// Configuration problems are recorded in the snapshot; only invariant
// violations fail the run.
func (r *Reconciler) Reconcile() (*types.WorkingSet, error) {
	if r.doc == nil {
		return nil, fmt.Errorf("no document to reconcile")
	}

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.UnpackDuration)

	r.ws = types.NewWorkingSet(r.opts.Now)
	r.once = config.NewOnce(r.logger)
	r.templates = make(map[string]document.TemplateDef)
	r.cloneDefs = make(map[string]document.ResourceDef)
	r.histories = make(map[string][]*rscHistory)
	r.errSeen = make(map[string]bool)
	r.resourceDefs = append([]document.ResourceDef(nil), r.doc.Config.Resources...)
	r.err = nil

	r.unpackConfig()
	r.unpackNodes()
	r.unpackRemoteNodes()
	r.unpackResources()
	r.unpackTags()
	r.unpackStatus()

	if r.err != nil {
		metrics.UnpackRunsTotal.WithLabelValues(metrics.ResultError).Inc()
		r.logger.Error().Err(r.err).Msg("Unpack aborted")
		return nil, r.err
	}

	metrics.RecordWorkingSet(r.ws)
	r.logger.Info().
		Int("nodes", len(r.ws.Nodes)).
		Int("resources", len(r.ws.Resources)).
		Int("failed", len(r.ws.Failed)).
		Int("fence_requests", len(r.ws.FenceRequests)).
		Int("config_errors", len(r.ws.ConfigErrors)).
		Msg("Unpacked cluster state")
	return r.ws, nil
}

// WorkingSet returns the snapshot of the last run
func (r *Reconciler) WorkingSet() *types.WorkingSet {
	return r.ws
}

func (r *Reconciler) unpackConfig() {
	status := r.doc.Status
	r.ws.HaveQuorum = status.HaveQuorum
	r.ws.DCUUID = status.DCUUID

	opts, errs := config.Parse(r.doc.Config.Options, config.ClusterState{
		HaveQuorum:  status.HaveQuorum,
		QuorumPanic: status.QuorumPanic,
	}, r.once)
	r.ws.Config = opts
	for _, msg := range r.once.Messages {
		r.ws.Warn(msg)
	}
	for _, err := range errs {
		r.configError("%v", err)
	}

	if opts.HaveWatchdog {
		r.ws.HasFencingResource = true
	}
	if !status.HaveQuorum {
		r.logger.Warn().Msg("We do not have quorum - fencing and resource management disabled")
	}
}

// invariant records the first assertion-level failure of the run
func (r *Reconciler) invariant(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	r.logger.Error().Msg(msg)
	if r.err == nil {
		r.err = fmt.Errorf("%w: %s", ErrInvariant, msg)
	}
}

func (r *Reconciler) configError(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	r.logger.Error().Msg(msg)
	r.ws.ConfigError(msg)
	r.recorder.Record(events.EventConfigError, "", "", msg, nil)
}

// configErrorOnce records a configuration error the first time it is seen
func (r *Reconciler) configErrorOnce(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if r.errSeen[msg] {
		return
	}
	r.errSeen[msg] = true
	r.configError("%s", msg)
}

func (r *Reconciler) configWarn(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	r.logger.Warn().Msg(msg)
	r.ws.Warn(msg)
}

func (r *Reconciler) nodeLogger(n *types.Node) *zerolog.Logger {
	l := log.WithNode(r.logger, n.Name)
	return &l
}

func (r *Reconciler) rscLogger(rsc *types.Resource) *zerolog.Logger {
	l := log.WithResource(r.logger, rsc.ID)
	return &l
}
