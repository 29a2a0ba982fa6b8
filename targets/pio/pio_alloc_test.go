package pio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixelgopper/protocol"
)

func TestClaimStateMachine(t *testing.T) {
	pioAllocations = [2][4]bool{}

	pioNum, smNum, err := claimStateMachine(5)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), pioNum)
	assert.Equal(t, uint8(1), smNum)
	assert.True(t, GetPIOAllocationStatus()[1][1])

	_, _, err = claimStateMachine(5)
	assert.ErrorIs(t, err, ErrStateMachineInUse)
	_, _, err = claimStateMachine(StateMachines)
	assert.ErrorIs(t, err, ErrNoStateMachine)

	releaseStateMachine(pioNum, smNum)
	_, _, err = claimStateMachine(5)
	assert.NoError(t, err)
}

func TestPioWordCompensatesOverhead(t *testing.T) {
	w := pioWord(protocol.PulseItem{Duration0: 32, Level0: 1, Duration1: 18, Level1: 0})
	assert.Equal(t, protocol.PulseItem{Duration0: 29, Level0: 1, Duration1: 15, Level1: 0}, protocol.ItemFromWord(w))

	// halves at or under the overhead run for exactly the overhead
	w = pioWord(protocol.PulseItem{Duration0: 2, Level0: 1, Duration1: 3})
	assert.Equal(t, protocol.PulseItem{Level0: 1}, protocol.ItemFromWord(w))
}

func TestDrainTicks(t *testing.T) {
	items := make([]protocol.PulseItem, 10)
	for i := range items {
		items[i] = protocol.PulseItem{Duration0: uint16(i), Duration1: 1}
	}
	// last 8 items: durations 2..9 plus 1 each
	assert.Equal(t, uint32(44+8), drainTicks(items, 8))
	assert.Equal(t, uint32(1), drainTicks(items[:1], 8))
}
