package event

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewMaskMinimumSubset(t *testing.T) {
	m := NewMask()
	assert.True(t, m.IsEnabled(KindStop))
	assert.True(t, m.IsEnabled(KindEvaluate))
	assert.False(t, m.IsEnabled(KindFrame))
	assert.Equal(t, []Kind{KindStop, KindEvaluate}, m.Enabled())
}

func TestZeroMaskDisabled(t *testing.T) {
	var m Mask
	assert.False(t, m.IsEnabled(KindStop))
	assert.Empty(t, m.Enabled())
}

func TestMaskEnableDisableIdempotent(t *testing.T) {
	m := NewMask()

	m.Enable(KindFrame)
	m.Enable(KindFrame)
	assert.True(t, m.IsEnabled(KindFrame))

	m.Disable(KindFrame)
	m.Disable(KindFrame)
	assert.False(t, m.IsEnabled(KindFrame))
}

func TestMaskPinnedKinds(t *testing.T) {
	m := NewMask()
	m.Disable(KindStop)
	m.Disable(KindEvaluate)
	assert.True(t, m.IsEnabled(KindStop))
	assert.True(t, m.IsEnabled(KindEvaluate))
}

func TestMaskIgnoresOutOfRange(t *testing.T) {
	m := NewMask()
	m.Enable(KindNone)
	m.Enable(Kind(900))
	assert.False(t, m.IsEnabled(KindNone))
	assert.False(t, m.IsEnabled(Kind(900)))
	m.Disable(Kind(900))
	assert.Equal(t, []Kind{KindStop, KindEvaluate}, m.Enabled())
}

func TestMaskWordBoundaries(t *testing.T) {
	m := NewMask()
	for _, k := range []Kind{63, 64, 127, 128, 255} {
		m.Enable(k)
		assert.True(t, m.IsEnabled(k), "kind %d", k)
	}
	assert.False(t, m.IsEnabled(65))
	assert.Equal(t, []Kind{KindStop, KindEvaluate, 63, 64, 127, 128, 255}, m.Enabled())

	m.Disable(64)
	assert.False(t, m.IsEnabled(64))
	assert.True(t, m.IsEnabled(63))
}

func TestMaskReset(t *testing.T) {
	m := NewMask()
	m.Enable(KindFrame)
	m.Enable(200)
	m.Reset()
	assert.Equal(t, []Kind{KindStop, KindEvaluate}, m.Enabled())
}

func TestMaskConcurrentAccess(t *testing.T) {
	m := NewMask()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(k Kind) {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				m.Enable(k)
				_ = m.IsEnabled(k)
				m.Disable(k)
			}
			m.Enable(k)
		}(Kind(10 + i*30))
	}
	wg.Wait()

	for i := 0; i < 8; i++ {
		assert.True(t, m.IsEnabled(Kind(10+i*30)))
	}
}
