package storage

import (
	"errors"
	"time"

	"github.com/cuemby/crmcore/pkg/types"
)

// ErrNotFound is returned when no archived input has the requested sequence
var ErrNotFound = errors.New("input not found")

// Class sorts archived inputs by the outcome of the run that consumed them
type Class string

const (
	ClassInput Class = "input" // clean run
	ClassWarn  Class = "warn"  // run with data-integrity warnings
	ClassError Class = "error" // run with configuration errors or aborted
)

// ParseClass validates a class name. An empty name is accepted and means
// every class.
func ParseClass(s string) (Class, bool) {
	switch Class(s) {
	case "", ClassInput, ClassWarn, ClassError:
		return Class(s), true
	}
	return "", false
}

// Record is one archived input document
type Record struct {
	Seq       uint64    `json:"seq"`
	Class     Class     `json:"class"`
	Timestamp time.Time `json:"timestamp"`
	Format    string    `json:"format"`
	Digest    string    `json:"digest"`
	Data      []byte    `json:"data"`
}

// Store defines the interface for the input archive
type Store interface {
	Save(class Class, format string, data []byte, ts time.Time) (*Record, error)
	Get(seq uint64) (*Record, error)
	List(class Class) ([]*Record, error)
	Latest(class Class) (*Record, error)
	Prune(class Class, keep int) (int, error)

	// Utility
	Close() error
}

// ClassFor picks the class of an input from the outcome of its run
func ClassFor(ws *types.WorkingSet, err error) Class {
	switch {
	case err != nil || ws == nil || len(ws.ConfigErrors) > 0:
		return ClassError
	case len(ws.Warnings) > 0:
		return ClassWarn
	default:
		return ClassInput
	}
}

// Retention returns how many inputs of class the cluster options keep.
// Negative means unlimited and zero means inputs are not stored.
func Retention(opts *types.ClusterOptions, class Class) int {
	if opts == nil {
		return -1
	}
	switch class {
	case ClassError:
		return opts.ErrorSeriesMax
	case ClassWarn:
		return opts.WarnSeriesMax
	default:
		return opts.InputSeriesMax
	}
}
