package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFramePacerScenario(t *testing.T) {
	p := NewFramePacer(25000)

	assert.True(t, p.CanStart(0), "first frame is always allowed")
	p.RecordStart(0)
	assert.False(t, p.CanStart(10000))
	assert.False(t, p.CanStart(24999))
	assert.True(t, p.CanStart(25000))
	assert.True(t, p.CanStart(26000))
}

func TestFramePacerWraps(t *testing.T) {
	p := NewFramePacer(25000)
	p.RecordStart(0xFFFFF000)

	assert.False(t, p.CanStart(0x00000100), "0x1100us after start")
	assert.True(t, p.CanStart(25000-0x1000))
	assert.Equal(t, uint32(0x1100), p.Elapsed(0x00000100))
}

func TestFramePacerReconfigure(t *testing.T) {
	p := NewFramePacer(25000)
	p.RecordStart(1000)
	p.SetMinDuration(5000)
	assert.Equal(t, uint32(5000), p.MinDuration())
	assert.True(t, p.CanStart(6000))

	last, ok := p.LastStart()
	assert.True(t, ok)
	assert.Equal(t, uint32(1000), last)

	p.Reset()
	assert.True(t, p.CanStart(1001))
	assert.Equal(t, uint32(0), p.Elapsed(5000))
}

func TestFramePacerWaitsGapAfterEnd(t *testing.T) {
	p := NewFramePacer(1000)
	p.SetMinGap(300)

	p.RecordStart(0)
	p.RecordEnd(900)
	assert.False(t, p.CanStart(1000), "interval met but line not idle long enough")
	assert.False(t, p.CanStart(1199))
	assert.True(t, p.CanStart(1200))

	p.RecordStart(1200)
	assert.False(t, p.CanStart(2199))
	assert.True(t, p.CanStart(2200), "gap applies only after a recorded end")

	p.RecordEnd(0xFFFFFF00)
	assert.False(t, p.CanStart(0x10), "gap measured across the wrap")
	assert.True(t, p.CanStart(0x2C))

	p.Reset()
	assert.True(t, p.CanStart(0))
}
