// Package lockmanager implements the hierarchical table/row lock protocol
// of spec.md §4.5: intention locks on tables, S/X locks on tables and rows,
// upgrade rules, isolation-level-gated 2PL, FIFO-with-upgrade-priority
// grant queues, and wait-for-graph deadlock detection.
//
// Grounded on original_source/src/concurrency/lock_manager.cpp for
// CanGrantLock/CanLockUpgrade/the isolation checks (LockTable itself), and
// built fresh — to spec.md §4.5's full description — for everything that
// source left stubbed: UnlockTable, LockRow, UnlockRow, and the deadlock
// detector (AddEdge/RemoveEdge/HasCycle/RunCycleDetection all return
// trivially or do nothing in the reference .cpp).
package lockmanager

// LockMode is one of the five lock modes spec.md §4.5 names.
type LockMode int

const (
	IntentionShared LockMode = iota
	IntentionExclusive
	Shared
	SharedIntentionExclusive
	Exclusive
)

func (m LockMode) String() string {
	switch m {
	case IntentionShared:
		return "IS"
	case IntentionExclusive:
		return "IX"
	case Shared:
		return "S"
	case SharedIntentionExclusive:
		return "SIX"
	case Exclusive:
		return "X"
	default:
		return "?"
	}
}

// compatible[granted][requested], spec.md §4.5's matrix.
var compatible = [5][5]bool{
	IntentionShared:          {IntentionShared: true, IntentionExclusive: true, Shared: true, SharedIntentionExclusive: true, Exclusive: false},
	IntentionExclusive:       {IntentionShared: true, IntentionExclusive: true, Shared: false, SharedIntentionExclusive: false, Exclusive: false},
	Shared:                   {IntentionShared: true, IntentionExclusive: false, Shared: true, SharedIntentionExclusive: false, Exclusive: false},
	SharedIntentionExclusive: {IntentionShared: true, IntentionExclusive: false, Shared: false, SharedIntentionExclusive: false, Exclusive: false},
	Exclusive:                {IntentionShared: false, IntentionExclusive: false, Shared: false, SharedIntentionExclusive: false, Exclusive: false},
}

// Compatible reports whether requested may be granted alongside an
// already-granted lock in mode granted.
func Compatible(granted, requested LockMode) bool {
	return compatible[granted][requested]
}

// upgradeTargets[from] lists the modes from may upgrade to, spec.md §4.5
// "Upgrade rules".
var upgradeTargets = map[LockMode][]LockMode{
	IntentionShared:    {Shared, Exclusive, IntentionExclusive, SharedIntentionExclusive},
	Shared:             {Exclusive, SharedIntentionExclusive},
	IntentionExclusive: {Exclusive, SharedIntentionExclusive},
	SharedIntentionExclusive: {Exclusive},
}

// CanUpgrade reports whether from -> to is a permitted upgrade.
func CanUpgrade(from, to LockMode) bool {
	for _, t := range upgradeTargets[from] {
		if t == to {
			return true
		}
	}
	return false
}
