package analogdevices

// RegisterPair is a double-buffered pair of chip registers.  The chip outputs
// from the active slot; a new value is written to the other slot and only
// then made live by flipping the selector, so the output never passes
// through a half-written register.
type RegisterPair struct {
	values [2]float64
	active int
}

// Active returns the index of the slot driving the output
func (p *RegisterPair) Active() int {
	return p.active
}

// Inactive returns the index of the shadow slot
func (p *RegisterPair) Inactive() int {
	return 1 - p.active
}

// Value returns the value held by the active slot
func (p *RegisterPair) Value() float64 {
	return p.values[p.active]
}

// WriteThenSwap calls write with the shadow slot and, if it succeeds, records
// v in that slot and makes it active.  write must load the slot and flip the
// hardware selector; on error the pair is left untouched.
func (p *RegisterPair) WriteThenSwap(v float64, write func(slot int) error) error {
	slot := p.Inactive()
	if err := write(slot); err != nil {
		return err
	}
	p.values[slot] = v
	p.active = slot
	return nil
}

// reset forgets both slots and loads v into slot 0
func (p *RegisterPair) reset(v float64) {
	p.values = [2]float64{v, 0}
	p.active = 0
}
