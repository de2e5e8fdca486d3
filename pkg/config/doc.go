// Package config turns declared cluster options into typed values.
//
// Parse validates every recognised option against its kind (boolean,
// duration, integer, score or enumeration), falls back to the default on
// invalid input and applies the cross-option rules: startup fencing is only
// honoured with fencing enabled, no-quorum-policy=suicide needs fencing and
// quorum, and the deprecated stonith-action "poweroff" becomes "off".
// Warnings that must appear once per run go through a Once.
package config
