// Package state provides the filesystem-backed records that outlive a
// process: the persisted client state and the delivery failure journal.
package state
