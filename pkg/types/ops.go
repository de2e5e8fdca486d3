package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Operation names
const (
	TaskStart          = "start"
	TaskStop           = "stop"
	TaskMonitor        = "monitor"
	TaskPromote        = "promote"
	TaskDemote         = "demote"
	TaskMigrateTo      = "migrate_to"
	TaskMigrateFrom    = "migrate_from"
	TaskNotify         = "notify"
	TaskMetadata       = "meta-data"
	TaskClearFailcount = "clear_failcount"
)

// Resource agent return codes
const (
	RCOK                 = 0
	RCUnknownError       = 1
	RCInvalidParam       = 2
	RCUnimplemented      = 3
	RCInsufficientPriv   = 4
	RCNotInstalled       = 5
	RCNotConfigured      = 6
	RCNotRunning         = 7
	RCRunningMaster      = 8
	RCFailedMaster       = 9
	RCDegraded           = 190
	RCDegradedMaster     = 191
)

// OpStatus is the executor's verdict on an operation
type OpStatus int

const (
	OpPending      OpStatus = -1
	OpDone         OpStatus = 0
	OpCancelled    OpStatus = 1
	OpTimeout      OpStatus = 2
	OpNotSupported OpStatus = 3
	OpError        OpStatus = 4
	OpErrorHard    OpStatus = 5
	OpErrorFatal   OpStatus = 6
	OpNotInstalled OpStatus = 7
)

func (s OpStatus) String() string {
	switch s {
	case OpPending:
		return "pending"
	case OpDone:
		return "complete"
	case OpCancelled:
		return "cancelled"
	case OpTimeout:
		return "timed out"
	case OpNotSupported:
		return "not supported"
	case OpError:
		return "error"
	case OpErrorHard:
		return "hard error"
	case OpErrorFatal:
		return "fatal error"
	case OpNotInstalled:
		return "not installed"
	default:
		return "unknown"
	}
}

// OpEntry is one immutable record of a resource's operation history on a node
type OpEntry struct {
	ID            string
	Task          string
	Key           string
	CallID        int
	Interval      time.Duration
	RC            int
	Status        OpStatus
	TransitionKey string
	Magic         string
	MigrateSource string
	MigrateTarget string
	LastRCChange  int64
	LastRun       int64
	OpDigest      string
	RestartDigest string
}

// OpKey returns the operation key, falling back to the entry id
func (o *OpEntry) OpKey() string {
	if o.Key != "" {
		return o.Key
	}
	return o.ID
}

// IsProbe reports whether the entry is a one-shot status check
func (o *OpEntry) IsProbe() bool {
	return o.Task == TaskMonitor && o.Interval == 0
}

// IsLastFailure reports whether the entry is the preserved copy of the
// most recent failure
func (o *OpEntry) IsLastFailure() bool {
	return strings.Contains(o.ID, "last_failure")
}

// TargetRC returns the return code the transition expected. An entry
// without a transition key has no expectation (-1); an undecodable key
// expects success.
func (o *OpEntry) TargetRC() int {
	if o.TransitionKey == "" {
		return -1
	}
	key, err := ParseTransitionKey(o.TransitionKey)
	if err != nil {
		return RCOK
	}
	return key.TargetRC
}

// TransitionKey identifies the transition an operation was scheduled by
type TransitionKey struct {
	Action     int
	Transition int
	TargetRC   int
	UUID       uuid.UUID
}

// ParseTransitionKey decodes "action:transition:target-rc:uuid". The older
// three-field form without a target return code decodes with TargetRC -1.
func ParseTransitionKey(s string) (TransitionKey, error) {
	parts := strings.Split(s, ":")
	var key TransitionKey
	var uuidPart string

	switch len(parts) {
	case 4:
		key.TargetRC = -1
		nums := make([]int, 3)
		for i := 0; i < 3; i++ {
			n, err := strconv.Atoi(parts[i])
			if err != nil {
				return TransitionKey{}, fmt.Errorf("invalid transition key %q: %w", s, err)
			}
			nums[i] = n
		}
		key.Action, key.Transition, key.TargetRC = nums[0], nums[1], nums[2]
		uuidPart = parts[3]
	case 3:
		key.TargetRC = -1
		a, err := strconv.Atoi(parts[0])
		if err != nil {
			return TransitionKey{}, fmt.Errorf("invalid transition key %q: %w", s, err)
		}
		t, err := strconv.Atoi(parts[1])
		if err != nil {
			return TransitionKey{}, fmt.Errorf("invalid transition key %q: %w", s, err)
		}
		key.Action, key.Transition = a, t
		uuidPart = parts[2]
	default:
		return TransitionKey{}, fmt.Errorf("invalid transition key %q: expected 4 fields", s)
	}

	id, err := uuid.Parse(uuidPart)
	if err != nil {
		return TransitionKey{}, fmt.Errorf("invalid transition key %q: %w", s, err)
	}
	key.UUID = id
	return key, nil
}

func (k TransitionKey) String() string {
	return fmt.Sprintf("%d:%d:%d:%s", k.Action, k.Transition, k.TargetRC, k.UUID)
}

// OpKey builds the canonical key of an operation
func OpKey(rscID, task string, interval time.Duration) string {
	return fmt.Sprintf("%s_%s_%d", rscID, task, interval.Milliseconds())
}

// CloneStrip returns a resource id without its ":<n>" instance suffix
func CloneStrip(id string) string {
	if id == "" {
		return id
	}
	end := len(id) - 1
	for s := end; s > 0; s-- {
		c := id[s]
		switch {
		case c >= '0' && c <= '9':
			continue
		case c == ':':
			if s == end {
				return id
			}
			return id[:s]
		default:
			return id
		}
	}
	return id
}

// CloneZero returns the id of the first instance of a cloned resource
func CloneZero(id string) string {
	return CloneStrip(id) + ":0"
}

// RCString describes a resource agent return code
func RCString(rc int) string {
	switch rc {
	case RCOK:
		return "ok"
	case RCUnknownError:
		return "error"
	case RCInvalidParam:
		return "invalid parameter"
	case RCUnimplemented:
		return "unimplemented feature"
	case RCInsufficientPriv:
		return "insufficient privileges"
	case RCNotInstalled:
		return "not installed"
	case RCNotConfigured:
		return "not configured"
	case RCNotRunning:
		return "not running"
	case RCRunningMaster:
		return "master"
	case RCFailedMaster:
		return "master (failed)"
	case RCDegraded:
		return "degraded"
	case RCDegradedMaster:
		return "master (degraded)"
	default:
		return "unknown"
	}
}
