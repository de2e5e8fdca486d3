package types

import (
	"strconv"
	"strings"
)

// Role is the activity level of a resource on a node
type Role int

// Roles are ordered: a larger role means "more active"
const (
	RoleUnknown Role = iota
	RoleStopped
	RoleStarted
	RoleSlave
	RoleMaster
)

func (r Role) String() string {
	switch r {
	case RoleStopped:
		return "Stopped"
	case RoleStarted:
		return "Started"
	case RoleSlave:
		return "Slave"
	case RoleMaster:
		return "Master"
	default:
		return "Unknown"
	}
}

// ParseRole parses a role name; ok is false for unrecognised names
func ParseRole(s string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "stopped":
		return RoleStopped, true
	case "started":
		return RoleStarted, true
	case "slave", "unpromoted":
		return RoleSlave, true
	case "master", "promoted":
		return RoleMaster, true
	case "unknown":
		return RoleUnknown, true
	default:
		return RoleUnknown, false
	}
}

// MaxRole returns the more active of two roles
func MaxRole(a, b Role) Role {
	if a > b {
		return a
	}
	return b
}

// Infinity is the saturation point of placement scores
const Infinity = 1000000

// MinusInfinity bans a resource from a node
const MinusInfinity = -Infinity

// MergeScores adds two scores. -INFINITY wins over everything, then
// +INFINITY; finite sums saturate at the infinities.
func MergeScores(a, b int) int {
	switch {
	case a <= MinusInfinity || b <= MinusInfinity:
		return MinusInfinity
	case a >= Infinity || b >= Infinity:
		return Infinity
	}
	sum := a + b
	if sum >= Infinity {
		return Infinity
	}
	if sum <= MinusInfinity {
		return MinusInfinity
	}
	return sum
}

// ScoreString formats a score the way it is written in configuration
func ScoreString(score int) string {
	switch {
	case score >= Infinity:
		return "INFINITY"
	case score <= MinusInfinity:
		return "-INFINITY"
	default:
		return strconv.Itoa(score)
	}
}

// NodeKind defines how a node takes part in the cluster
type NodeKind string

const (
	NodeMember NodeKind = "member" // cluster member running the full stack
	NodeRemote NodeKind = "remote" // baremetal remote node behind a connection resource
	NodeGuest  NodeKind = "guest"  // remote node running inside a container resource
	NodePing   NodeKind = "ping"   // quorum-only node, never runs resources
)

// Variant tags the shape of a resource in the ownership tree
type Variant string

const (
	VariantPrimitive Variant = "primitive"
	VariantGroup     Variant = "group"
	VariantClone     Variant = "clone"
	VariantContainer Variant = "container"
)

// OnFail is the configured response to a failed operation
type OnFail int

const (
	OnFailIgnore OnFail = iota
	OnFailRecover
	OnFailMigrate
	OnFailBlock
	OnFailStop
	OnFailStandby
	OnFailFence
	OnFailRestartContainer
	OnFailResetRemote
)

func (f OnFail) String() string {
	switch f {
	case OnFailIgnore:
		return "ignore"
	case OnFailRecover:
		return "restart"
	case OnFailMigrate:
		return "migrate"
	case OnFailBlock:
		return "block"
	case OnFailStop:
		return "stop"
	case OnFailStandby:
		return "standby"
	case OnFailFence:
		return "fence"
	case OnFailRestartContainer:
		return "restart-container"
	case OnFailResetRemote:
		return "reset-remote"
	default:
		return "unknown"
	}
}

// MultipleActive is the recovery applied when a primitive is found active
// on more than one node
type MultipleActive string

const (
	MultipleActiveStopStart MultipleActive = "stop_start"
	MultipleActiveStopOnly  MultipleActive = "stop_only"
	MultipleActiveBlock     MultipleActive = "block"
)

// NaturalLess orders names so that "node2" sorts before "node10"
func NaturalLess(a, b string) bool {
	for a != "" && b != "" {
		ca, cb := a[0], b[0]
		if isDigit(ca) && isDigit(cb) {
			na, restA := splitNumber(a)
			nb, restB := splitNumber(b)
			if na != nb {
				if len(na) != len(nb) {
					return len(na) < len(nb)
				}
				return na < nb
			}
			a, b = restA, restB
			continue
		}
		la, lb := toLower(ca), toLower(cb)
		if la != lb {
			return la < lb
		}
		a, b = a[1:], b[1:]
	}
	return len(a) < len(b)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func toLower(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}

// splitNumber returns the leading digits (without leading zeros) and the rest
func splitNumber(s string) (string, string) {
	i := 0
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	num := strings.TrimLeft(s[:i], "0")
	return num, s[i:]
}
