package memory

import (
	"errors"

	"github.com/sloppy-eniac/cpu/translate"
)

var f = translate.From

var (
	// Memory errors
	ErrProgramTooLarge = errors.New(f("program larger than memory"))
)
