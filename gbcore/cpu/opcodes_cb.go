package cpu

// executeCB decodes and runs a CB-prefixed opcode, returning the FULL
// instruction cost in master cycles (the 0xCB prefix fetch plus the suffix
// byte's decode). The grid is simpler than the main table: x selects the
// family (rotate/shift, BIT, RES, SET), y selects the sub-operation or bit
// index, z selects the r[z] operand via the shared register-index helpers.
func (c *CPU) executeCB(opcode byte) int {
	x := opcode >> 6
	y := (opcode >> 3) & 7
	z := opcode & 7

	switch x {
	case 0: // rotate/shift/swap family
		v := c.shiftOp(y, c.readR8(z))
		c.writeR8(z, v)
		if isIndirectHL(z) {
			return 16
		}
		return 8
	case 1: // BIT y,r[z]
		v := c.readR8(z)
		c.flagZ = v&(1<<y) == 0
		c.flagN = false
		c.flagH = true
		if isIndirectHL(z) {
			return 12
		}
		return 8
	case 2: // RES y,r[z]
		c.writeR8(z, c.readR8(z)&^(1<<y))
		if isIndirectHL(z) {
			return 16
		}
		return 8
	default: // SET y,r[z]
		c.writeR8(z, c.readR8(z)|(1<<y))
		if isIndirectHL(z) {
			return 16
		}
		return 8
	}
}
