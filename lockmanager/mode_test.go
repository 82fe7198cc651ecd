package lockmanager

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompatibilityMatrix(t *testing.T) {
	cases := []struct {
		granted, requested LockMode
		want                bool
	}{
		{IntentionShared, IntentionShared, true},
		{IntentionShared, IntentionExclusive, true},
		{IntentionShared, Shared, true},
		{IntentionShared, SharedIntentionExclusive, true},
		{IntentionShared, Exclusive, false},

		{IntentionExclusive, IntentionShared, true},
		{IntentionExclusive, IntentionExclusive, true},
		{IntentionExclusive, Shared, false},
		{IntentionExclusive, SharedIntentionExclusive, false},
		{IntentionExclusive, Exclusive, false},

		{Shared, IntentionShared, true},
		{Shared, Shared, true},
		{Shared, IntentionExclusive, false},
		{Shared, SharedIntentionExclusive, false},
		{Shared, Exclusive, false},

		{SharedIntentionExclusive, IntentionShared, true},
		{SharedIntentionExclusive, IntentionExclusive, false},
		{SharedIntentionExclusive, Shared, false},
		{SharedIntentionExclusive, SharedIntentionExclusive, false},
		{SharedIntentionExclusive, Exclusive, false},

		{Exclusive, IntentionShared, false},
		{Exclusive, IntentionExclusive, false},
		{Exclusive, Shared, false},
		{Exclusive, SharedIntentionExclusive, false},
		{Exclusive, Exclusive, false},
	}
	for _, c := range cases {
		got := Compatible(c.granted, c.requested)
		assert.Equalf(t, c.want, got, "Compatible(%s, %s)", c.granted, c.requested)
	}
}

func TestUpgradeRules(t *testing.T) {
	allowed := map[LockMode]map[LockMode]bool{
		IntentionShared:          {Shared: true, Exclusive: true, IntentionExclusive: true, SharedIntentionExclusive: true},
		Shared:                   {Exclusive: true, SharedIntentionExclusive: true},
		IntentionExclusive:       {Exclusive: true, SharedIntentionExclusive: true},
		SharedIntentionExclusive: {Exclusive: true},
	}
	all := []LockMode{IntentionShared, IntentionExclusive, Shared, SharedIntentionExclusive, Exclusive}
	for _, from := range all {
		for _, to := range all {
			want := allowed[from][to]
			assert.Equalf(t, want, CanUpgrade(from, to), "CanUpgrade(%s, %s)", from, to)
		}
	}
}

func TestLockModeString(t *testing.T) {
	assert.Equal(t, "IS", IntentionShared.String())
	assert.Equal(t, "IX", IntentionExclusive.String())
	assert.Equal(t, "S", Shared.String())
	assert.Equal(t, "SIX", SharedIntentionExclusive.String())
	assert.Equal(t, "X", Exclusive.String())
}
