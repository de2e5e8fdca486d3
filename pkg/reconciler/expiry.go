package reconciler

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/crmcore/pkg/config"
	"github.com/cuemby/crmcore/pkg/events"
	"github.com/cuemby/crmcore/pkg/types"
)

const (
	failCountPrefix   = "fail-count-"
	lastFailurePrefix = "last-failure-"
)

// failcount sums the fail counts of rsc on n and returns the most recent
// failure time. With op set only that operation's counter is considered.
func (r *Reconciler) failcount(n *types.Node, rsc *types.Resource, op *types.OpEntry) (count int, last int64) {
	name := rsc.ID
	if !rsc.Is(types.FlagUnique) {
		name = types.CloneStrip(rsc.ID)
	}

	suffix := ""
	if op != nil {
		suffix = fmt.Sprintf("#%s_%d", op.Task, op.Interval.Milliseconds())
	}
	matches := func(attr, prefix string) bool {
		base := prefix + name
		if op != nil {
			return attr == base+suffix
		}
		return attr == base || strings.HasPrefix(attr, base+"#")
	}

	for attr, value := range n.Attrs {
		switch {
		case matches(attr, failCountPrefix):
			score, err := config.ParseScore(value)
			if err != nil {
				r.nodeLogger(n).Warn().Str("attribute", attr).Err(err).Msg("Ignoring invalid fail count")
				continue
			}
			count = types.MergeScores(count, score)
		case matches(attr, lastFailurePrefix):
			ts, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
			if err == nil && ts > last {
				last = ts
			}
		}
	}
	return count, last
}

// effectiveFailcount is the fail count once failure-timeout has been
// applied
func (r *Reconciler) effectiveFailcount(n *types.Node, rsc *types.Resource, op *types.OpEntry) int {
	count, last := r.failcount(n, rsc, op)
	if count > 0 && rsc.FailureTimeout > 0 && last > 0 {
		expires := time.Unix(last, 0).Add(rsc.FailureTimeout)
		if r.ws.Now.After(expires) {
			return 0
		}
	}
	return count
}

// paramDigest is the md5 of the canonically ordered parameters
func paramDigest(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("<parameters")
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%q", k, params[k])
	}
	b.WriteString("/>")
	sum := md5.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// compareDigest compares the recorded digests of op with the current
// parameters of rsc. Calculated digests are cached on the node.
func (r *Reconciler) compareDigest(rsc *types.Resource, n *types.Node, op *types.OpEntry) *types.DigestResult {
	key := types.OpKey(rsc.ID, op.Task, op.Interval)
	data, ok := n.DigestCache[key]
	if !ok {
		digest := paramDigest(rsc.Params)
		data = &types.DigestResult{CalculatedAll: digest, CalculatedReload: digest}
		n.DigestCache[key] = data
	}

	switch {
	case op.RestartDigest != "" && op.RestartDigest != data.CalculatedReload:
		r.rscLogger(rsc).Info().Str("op", key).Str("node", n.Name).Msg("Parameters to operation changed")
		data.Match = types.DigestRestart
	case op.OpDigest == "":
		data.Match = types.DigestUnknown
	case op.OpDigest != data.CalculatedAll:
		data.Match = types.DigestAll
	default:
		data.Match = types.DigestMatches
	}
	return data
}

// containerFixRemoteAddr reports whether rsc is a guest connection whose
// address is filled in from the node it runs on. Its digest changes with
// placement and must not clear failures.
func containerFixRemoteAddr(rsc *types.Resource) bool {
	if !rsc.Is(types.FlagRemoteConnection) {
		return false
	}
	return rsc.Params["addr"] == types.AttrUname
}

// checkOperationExpiry reports whether a failed op is past its
// failure-timeout and schedules a fail count clear when it is, or when the
// parameters it ran with have since changed
func (r *Reconciler) checkOperationExpiry(rsc *types.Resource, n *types.Node, rc int, op *types.OpEntry) bool {
	logger := r.rscLogger(rsc).With().Str("node", n.Name).Str("op", op.OpKey()).Logger()
	timeout := rsc.FailureTimeout
	expired := false
	clearReason := ""

	if op.Task == types.TaskMonitor && op.Interval > 0 &&
		r.ws.Config.StonithEnabled && rsc.RemoteReconnect > 0 {
		if remote := r.ws.FindNode(rsc.ID); remote != nil && !remote.RemoteWasFenced {
			if op.IsLastFailure() {
				logger.Info().Msg("Waiting to clear monitor failure for remote node until fencing has occurred")
			}
			// The failure keeps the connection down until fencing completes
			timeout = 0
		}
	}

	if timeout > 0 && op.LastRCChange > 0 {
		if r.ws.Now.After(time.Unix(op.LastRCChange, 0).Add(timeout)) {
			expired = true
		}
	}

	if expired {
		if count, _ := r.failcount(n, rsc, nil); count > 0 {
			if r.effectiveFailcount(n, rsc, nil) == 0 {
				clearReason = "it expired"
			} else {
				expired = false
			}
		} else if rsc.RemoteReconnect > 0 && op.IsLastFailure() {
			clearReason = "reconnect interval is set"
		}
	} else if op.IsLastFailure() && (op.Task == types.TaskStart || op.Task == types.TaskMonitor) {
		digest := r.compareDigest(rsc, n, op)
		switch {
		case digest.Match == types.DigestUnknown:
			logger.Trace().Msg("Resource history entry has no parameter digest")
		case containerFixRemoteAddr(rsc) && digest.Match != types.DigestMatches:
			logger.Trace().Msg("Ignoring parameter change of guest connection address")
		case digest.Match != types.DigestMatches:
			clearReason = "resource parameters have changed"
		}
	}

	if clearReason != "" {
		r.customAction(rsc, types.TaskClearFailcount, 0, n, false, clearReason)
		logger.Info().Str("reason", clearReason).Msgf("Clearing failure of %s on %s because %s", rsc.ID, n.Name, clearReason)
		r.recorder.Record(events.EventFailcountCleared, n.Name, rsc.ID, clearReason, map[string]string{
			"op": op.OpKey(),
		})
	}

	if expired && op.IsProbe() {
		switch rc {
		case types.RCOK, types.RCNotRunning, types.RCRunningMaster, types.RCDegraded, types.RCDegradedMaster:
			// Probe results always count even past their timeout
			expired = false
		}
	}
	return expired
}
