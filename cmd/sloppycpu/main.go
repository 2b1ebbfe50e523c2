// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/pkg/errors"

	"github.com/sloppy-eniac/cpu/emulator"
)

func main() {
	var compile string
	var binary string
	var output string
	var steps int
	var verbose bool
	var strict bool
	var dump bool
	var dumpBytes int

	flag.StringVar(&compile, "c", "", ".asm file to compile")
	flag.StringVar(&binary, "b", "", "binary image to load")
	flag.StringVar(&output, "o", "", "save compiled binary, do not execute")
	flag.IntVar(&steps, "n", emulator.DEFAULT_MAX_STEPS, "maximum instructions to execute")
	flag.BoolVar(&verbose, "v", false, "Verbose mode")
	flag.BoolVar(&strict, "strict", false, "Stop on unknown opcodes")
	flag.BoolVar(&dump, "d", false, "Dump registers and cache after execution")
	flag.IntVar(&dumpBytes, "m", 64, "Bytes of memory to dump with -d")

	flag.Parse()

	if flag.NArg() != 0 {
		log.Fatalf("%v: Unknown arguments: %v", os.Args[0], flag.Args())
	}

	if (len(compile) == 0) == (len(binary) == 0) {
		log.Fatalf("%v: exactly one of -c or -b is required", os.Args[0])
	}

	emu := emulator.NewEmulator()
	emu.Verbose = verbose
	emu.Strict = strict

	// Compile a new instruction stream.
	if len(compile) != 0 {
		inf, err := os.Open(compile)
		if err != nil {
			log.Fatalf("%v: %v", compile, err)
		}
		defer inf.Close()

		prog, err := emu.Assemble(inf)
		if err != nil {
			log.Fatalf("%v: %v", compile, err)
		}

		if verbose {
			log.Printf("%v:\n%v", compile, prog)
		}

		if len(output) != 0 {
			err = os.WriteFile(output, prog.Binary(), 0o644)
			if err != nil {
				log.Fatalf("%v: %v", output, errors.Wrap(err, "save binary"))
			}
			return
		}
	}

	if len(binary) != 0 {
		inf, err := os.Open(binary)
		if err != nil {
			log.Fatalf("%v: %v", binary, err)
		}
		defer inf.Close()

		err = emu.LoadImage(inf)
		if err != nil {
			log.Fatalf("%v: %v", binary, err)
		}
	}

	executed, done, err := emu.Run(steps)
	if err != nil {
		log.Fatal(err)
	}
	if !done {
		log.Printf("stopped after %d instructions at pc %04x", executed, emu.Pc())
	}

	if dump {
		fmt.Print(emu.String())

		for n, line := range emu.CacheLines() {
			if !line.Valid {
				continue
			}
			dirty := ""
			if line.Dirty {
				dirty = " dirty"
			}
			fmt.Printf("line %02d: tag %03x % x%v\n", n, line.Tag, line.Block, dirty)
		}

		emu.Flush()
		data := emu.Memory(0, dumpBytes)
		for n := 0; n < len(data); n += 16 {
			end := min(n+16, len(data))
			fmt.Printf("%04x: % x\n", n, data[n:end])
		}
	}
}
