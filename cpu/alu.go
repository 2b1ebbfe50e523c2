package cpu

// Add returns a+b. Carry is set when the unsigned sum wraps, overflow when
// the signed sum leaves [-128, 127].
func Add(flags *Flags, a, b uint8) (result uint8) {
	sum := uint16(a) + uint16(b)
	result = uint8(sum)

	flags.Carry = sum > 0xff
	signed := int16(int8(a)) + int16(int8(b))
	flags.Overflow = signed < -128 || signed > 127
	return
}

// Sub returns a-b. Carry is set on unsigned borrow (a < b), overflow when
// the signed difference leaves [-128, 127].
func Sub(flags *Flags, a, b uint8) (result uint8) {
	result = a - b

	flags.Carry = a < b
	signed := int16(int8(a)) - int16(int8(b))
	flags.Overflow = signed < -128 || signed > 127
	return
}

// Mul returns the low 8 bits of a*b. Overflow is set when the signed
// product leaves [-128, 127]. Carry is untouched.
func Mul(flags *Flags, a, b uint8) (result uint8) {
	signed := int16(int8(a)) * int16(int8(b))
	result = uint8(signed)

	flags.Overflow = signed < -128 || signed > 127
	return
}

// Div returns the signed quotient a/b, truncated toward zero.
// Division by zero yields 0 with overflow set. -128/-1 yields 0x80 with
// overflow set. Carry is untouched.
func Div(flags *Flags, a, b uint8) (result uint8) {
	if b == 0 {
		flags.Overflow = true
		return
	}

	quotient := int16(int8(a)) / int16(int8(b))
	result = uint8(quotient)

	flags.Overflow = quotient < -128 || quotient > 127
	return
}

// Alu performs the ALU operation op. It returns false if op is not an ALU
// operation, in which case flags are untouched.
func Alu(op Opcode, flags *Flags, a, b uint8) (result uint8, ok bool) {
	ok = true
	switch op {
	case OP_ADD:
		result = Add(flags, a, b)
	case OP_SUB:
		result = Sub(flags, a, b)
	case OP_MUL:
		result = Mul(flags, a, b)
	case OP_DIV:
		result = Div(flags, a, b)
	default:
		ok = false
	}

	return
}
