package emulator

import (
	"errors"

	"github.com/sloppy-eniac/cpu/translate"
)

var f = translate.From

var (
	ErrRegisterInvalid = errors.New(f("register invalid"))
	ErrAddressRange    = errors.New(f("address out of range"))
	ErrOpcodeInvalid   = errors.New(f("opcode invalid"))
)

// ErrRuntime indicates the listing location of a failed operation.
type ErrRuntime struct {
	LineNo int
	Pc     uint32
	Err    error
}

func (err *ErrRuntime) Error() string {
	return f("line %d (pc %04x) %v", err.LineNo, err.Pc, err.Err)
}

func (err *ErrRuntime) Unwrap() error {
	return err.Err
}
