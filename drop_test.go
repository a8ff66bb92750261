package rics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDropInjectorZeroChanceNeverDrops(t *testing.T) {
	d := NewDropInjector(0)
	for i := 0; i < 100; i++ {
		assert.False(t, d.ShouldDrop(true))
	}
}

func TestDropInjectorFullChanceAlwaysDropsCAN(t *testing.T) {
	d := NewDropInjector(1.0)
	for i := 0; i < 100; i++ {
		assert.True(t, d.ShouldDrop(true))
	}
}

func TestDropInjectorNeverDropsNonCAN(t *testing.T) {
	d := NewDropInjector(1.0)
	for i := 0; i < 100; i++ {
		assert.False(t, d.ShouldDrop(false))
	}
}

func TestDropInjectorOutOfRangeIgnored(t *testing.T) {
	d := NewDropInjector(0)
	d.SetChance(1.5)
	assert.Equal(t, float32(0), d.Chance())

	d.SetChance(-0.1)
	assert.Equal(t, float32(0), d.Chance())

	d.SetChance(0.5)
	assert.Equal(t, float32(0.5), d.Chance())
}
