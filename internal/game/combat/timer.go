package combat

// Cooldowns tracks the tick at which each ability becomes ready again.
type Cooldowns struct {
	ready map[string]int
}

// NewCooldowns returns a set with every ability ready.
func NewCooldowns() Cooldowns {
	return Cooldowns{ready: make(map[string]int)}
}

// Ready reports whether ability id is off cooldown at tick.
func (c Cooldowns) Ready(id string, tick int) bool {
	return tick >= c.ready[id]
}

// Start puts ability id on cooldown for ticks from tick.
//
// Postcondition: Ready(id, t) is false for tick <= t < tick+ticks.
func (c Cooldowns) Start(id string, tick, ticks int) {
	c.ready[id] = tick + ticks
}

// ReadyAt returns the tick ability id becomes ready.
func (c Cooldowns) ReadyAt(id string) int { return c.ready[id] }

// Reset makes every ability ready.
func (c Cooldowns) Reset() { clear(c.ready) }
