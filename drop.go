package rics

import (
	"log"
	"math/rand"
	"sync"
	"time"
)

// DropInjector probabilistically discards CAN frames before they reach the
// forwarder, simulating bus contention on a real CAN network. STREAM
// packets are never subject to drop: they carry arbitrary application data
// that the spec requires to arrive reliably.
type DropInjector struct {
	mu     sync.Mutex
	chance float32
	rnd    *rand.Rand
}

// NewDropInjector returns an injector with the given initial drop chance.
// A value outside [0, 1] is ignored in favor of 0.
func NewDropInjector(chance float32) *DropInjector {
	if !validChance(chance) {
		chance = 0
	}
	return &DropInjector{
		chance: chance,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetChance updates the drop probability. A value outside [0, 1] is ignored
// with a warning, leaving the previous chance in effect.
func (d *DropInjector) SetChance(chance float32) {
	if !validChance(chance) {
		log.Printf("rics: can_drop_chance %v outside [0,1], ignoring", chance)
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.chance = chance
}

// Chance returns the current drop probability.
func (d *DropInjector) Chance() float32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.chance
}

// ShouldDrop draws a single uniform sample and reports whether a CAN frame
// should be discarded. isCAN reports whether the packet is CAN-typed (callers
// pass pkt.Type == wire.DataTypeCAN), so this file need not import the wire
// package; a non-CAN packet is never dropped.
func (d *DropInjector) ShouldDrop(isCAN bool) bool {
	if !isCAN {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.chance <= 0 {
		return false
	}
	return d.rnd.Float32() < d.chance
}

func validChance(v float32) bool {
	return v >= 0 && v <= 1
}
