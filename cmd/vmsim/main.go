// Command vmsim boots a virtual-memory simulator and drives it through a
// tiny line-oriented script, printing the result of each command; the
// stats command prints the arena statistics.
package main

import (
	"bufio"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"vmsim/internal/config"
	"vmsim/internal/replace"
	"vmsim/internal/store"
	"vmsim/vmsim"
)

func main() {
	memOverride := flag.String("mem", "", "override VMSIM_REAL_MEM_SIZE (decimal bytes)")
	scriptPath := flag.String("script", "", "path to a command script (default: stdin)")
	flag.Parse()

	if err := run(*memOverride, *scriptPath, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "vmsim:", err)
		os.Exit(1)
	}
}

func run(memOverride, scriptPath string, out io.Writer) error {
	getenv := os.Getenv
	if memOverride != "" {
		getenv = func(k string) string {
			if k == config.EnvRealMemSize {
				return memOverride
			}
			return os.Getenv(k)
		}
	}

	cfg, err := config.Load(getenv)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	vm, err := vmsim.New(cfg, store.NewMemory(), replace.NewClock())
	if err != nil {
		return fmt.Errorf("constructing vm: %w", err)
	}
	if err := vm.Init(); err != nil {
		return fmt.Errorf("initializing vm: %w", err)
	}

	script := io.Reader(os.Stdin)
	if scriptPath != "" {
		f, err := os.Open(scriptPath)
		if err != nil {
			return fmt.Errorf("opening script: %w", err)
		}
		defer f.Close()
		script = f
	}

	return execScript(vm, script, out)
}

func execScript(vm *vmsim.VM, script io.Reader, out io.Writer) error {
	sc := bufio.NewScanner(script)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := execLine(vm, line, out); err != nil {
			return fmt.Errorf("line %d %q: %w", lineNo, line, err)
		}
	}
	return sc.Err()
}

func execLine(vm *vmsim.VM, line string, out io.Writer) error {
	fields := strings.Fields(line)
	switch fields[0] {
	case "read":
		return cmdRead(vm, fields, out)
	case "write":
		return cmdWrite(vm, fields, out)
	case "map":
		return cmdMap(vm, fields, out)
	case "stats":
		return cmdStats(vm, out)
	default:
		return fmt.Errorf("unknown command: %s", fields[0])
	}
}

func parseSA(s string) (uint32, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return uint32(v), nil
}

func cmdRead(vm *vmsim.VM, fields []string, out io.Writer) error {
	if len(fields) != 3 {
		return fmt.Errorf("usage: read SA N")
	}
	sa, err := parseSA(fields[1])
	if err != nil {
		return err
	}
	n, err := strconv.ParseUint(fields[2], 10, 32)
	if err != nil {
		return fmt.Errorf("invalid length %q: %w", fields[2], err)
	}
	buf := make([]byte, n)
	if err := vm.Read(buf, sa, uint32(n)); err != nil {
		return err
	}
	fmt.Fprintf(out, "%#08x: %s\n", sa, hex.EncodeToString(buf))
	return nil
}

func cmdWrite(vm *vmsim.VM, fields []string, out io.Writer) error {
	if len(fields) != 3 {
		return fmt.Errorf("usage: write SA HEXBYTES")
	}
	sa, err := parseSA(fields[1])
	if err != nil {
		return err
	}
	buf, err := hex.DecodeString(fields[2])
	if err != nil {
		return fmt.Errorf("invalid hex payload %q: %w", fields[2], err)
	}
	if err := vm.Write(buf, sa, uint32(len(buf))); err != nil {
		return err
	}
	fmt.Fprintf(out, "%#08x: wrote %d bytes\n", sa, len(buf))
	return nil
}

func cmdMap(vm *vmsim.VM, fields []string, out io.Writer) error {
	if len(fields) < 2 || len(fields) > 3 {
		return fmt.Errorf("usage: map SA [w]")
	}
	sa, err := parseSA(fields[1])
	if err != nil {
		return err
	}
	isWrite := len(fields) == 3 && fields[2] == "w"
	ra, err := vm.Map(sa, isWrite)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%#08x -> %#08x\n", sa, ra)
	return nil
}

func cmdStats(vm *vmsim.VM, out io.Writer) error {
	fmt.Fprintf(out, "arena: %d bytes (%d page-table bytes, %d data frames)\n",
		vm.ArenaSize(), vm.PTAreaSize(), vm.DataFrameCount())
	fmt.Fprintf(out, "next block: %d\n", vm.NextBlock())
	return nil
}
