package hal

import (
	"fmt"
	"io"
	"strings"

	"github.com/wippyai/hal-runtime/errors"
)

// Sections accepted by Dump.
var DumpSections = []string{"comp", "inst", "pin", "param", "sig", "funct", "thread", "ring", "mem"}

// Dump writes a human-readable listing of the requested section, or of
// every section for "all". prefix filters pin, parameter and signal names.
func (h *HAL) Dump(w io.Writer, section, prefix string) error {
	if section == "" || section == "all" {
		for _, s := range DumpSections {
			if err := h.Dump(w, s, prefix); err != nil {
				return err
			}
		}
		return nil
	}
	switch section {
	case "comp":
		return h.dumpComps(w)
	case "inst":
		return h.dumpInsts(w)
	case "pin":
		return h.dumpPins(w, prefix)
	case "param":
		return h.dumpParams(w, prefix)
	case "sig":
		return h.dumpSignals(w, prefix)
	case "funct":
		return h.dumpFuncts(w)
	case "thread":
		return h.dumpThreads(w)
	case "ring":
		return h.dumpRings(w)
	case "mem":
		return h.dumpMem(w)
	}
	return errors.InvalidInput(errors.PhaseRuntime, fmt.Sprintf("unknown section %q (want one of %s)", section, strings.Join(DumpSections, ", ")))
}

func yesNo(b bool) string {
	if b {
		return "YES"
	}
	return "NO"
}

func arrow(d Dir) string {
	switch d {
	case In:
		return "<=="
	case Out:
		return "==>"
	}
	return "<=>"
}

func (h *HAL) dumpComps(w io.Writer) error {
	comps, err := h.Components()
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "Loaded HAL Components:")
	fmt.Fprintf(w, "%5s  %-4s  %-12s  %5s  %s\n", "ID", "Type", "State", "Inst", "Name")
	for _, c := range comps {
		fmt.Fprintf(w, "%5d  %-4s  %-12s  %5d  %s\n", c.ID, c.Kind, c.State, c.Instances, c.Name)
	}
	fmt.Fprintln(w)
	return nil
}

func (h *HAL) dumpInsts(w io.Writer) error {
	insts, err := h.Instances()
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "Instances:")
	fmt.Fprintf(w, "%5s  %-16s  %-10s  %6s  %s\n", "ID", "Component", "State", "Size", "Name")
	for _, i := range insts {
		fmt.Fprintf(w, "%5d  %-16s  %-10s  %6d  %s\n", i.ID, i.Component, i.State, i.DataSize, i.Name)
	}
	fmt.Fprintln(w)
	return nil
}

func (h *HAL) dumpPins(w io.Writer, prefix string) error {
	pins, err := h.Pins(prefix)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "Component Pins:")
	fmt.Fprintf(w, "%5s  %-5s %-3s %15s  %s\n", "ID", "Type", "Dir", "Value", "Name")
	for _, p := range pins {
		link := ""
		if p.Signal != "" {
			link = " " + arrow(p.Dir) + " " + p.Signal
		}
		fmt.Fprintf(w, "%5d  %-5s %-3s %15s  %s%s\n", p.ID, p.Type, p.Dir, p.Value, p.Name, link)
	}
	fmt.Fprintln(w)
	return nil
}

func (h *HAL) dumpParams(w io.Writer, prefix string) error {
	params, err := h.Params(prefix)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "Parameters:")
	fmt.Fprintf(w, "%5s  %-5s %-3s %15s  %s\n", "ID", "Type", "Dir", "Value", "Name")
	for _, p := range params {
		fmt.Fprintf(w, "%5d  %-5s %-3s %15s  %s\n", p.ID, p.Type, p.Dir, p.Value, p.Name)
	}
	fmt.Fprintln(w)
	return nil
}

func (h *HAL) dumpSignals(w io.Writer, prefix string) error {
	sigs, err := h.Signals(prefix)
	if err != nil {
		return err
	}
	pins, err := h.Pins("")
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "Signals:")
	fmt.Fprintf(w, "%-5s %15s  %s\n", "Type", "Value", "Name")
	for _, s := range sigs {
		fmt.Fprintf(w, "%-5s %15s  %s\n", s.Type, s.Value, s.Name)
		for _, p := range pins {
			if p.Signal == s.Name {
				fmt.Fprintf(w, "%22s %s %s\n", "", arrow(p.Dir), p.Name)
			}
		}
	}
	fmt.Fprintln(w)
	return nil
}

func (h *HAL) dumpFuncts(w io.Writer) error {
	functs, err := h.Functs()
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "Exported Functions:")
	fmt.Fprintf(w, "%5s  %-16s  %-3s  %-5s  %5s  %s\n", "ID", "Owner", "FP", "Reent", "Users", "Name")
	for _, f := range functs {
		fmt.Fprintf(w, "%5d  %-16s  %-3s  %-5s  %5d  %s\n", f.ID, f.Owner, yesNo(f.UsesFP), yesNo(f.Reentrant), f.Users, f.Name)
	}
	fmt.Fprintln(w)
	return nil
}

func (h *HAL) dumpThreads(w io.Writer) error {
	threads, err := h.Threads()
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "Realtime Threads:")
	fmt.Fprintf(w, "%12s  %-3s  %s\n", "Period", "FP", "Name")
	for _, t := range threads {
		fmt.Fprintf(w, "%12s  %-3s  %s\n", t.Period, yesNo(t.UsesFP), t.Name)
		for i, f := range t.Functs {
			fmt.Fprintf(w, "%21d %s\n", i+1, f)
		}
	}
	fmt.Fprintln(w)
	return nil
}

func (h *HAL) dumpRings(w io.Writer) error {
	rings, err := h.Rings()
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "Rings:")
	fmt.Fprintf(w, "%5s  %10s  %10s  %s\n", "ID", "Capacity", "Used", "Name")
	for _, r := range rings {
		fmt.Fprintf(w, "%5d  %10d  %10d  %s\n", r.ID, r.Capacity, r.Used, r.Name)
	}
	fmt.Fprintln(w)
	return nil
}

func (h *HAL) dumpMem(w io.Writer) error {
	info, err := h.ArenaInfo()
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "Arena:")
	fmt.Fprintf(w, "  segment    %s\n", info.Segment)
	fmt.Fprintf(w, "  session    %s\n", info.Session)
	fmt.Fprintf(w, "  capacity   %d\n", info.Capacity)
	fmt.Fprintf(w, "  used       %d\n", info.Used)
	fmt.Fprintf(w, "  available  %d\n", info.Available)
	fmt.Fprintf(w, "  free       %d\n", info.FreeBytes)
	fmt.Fprintf(w, "  reused     %d\n", info.ReusedBytes)
	fmt.Fprintf(w, "  running    %s\n", yesNo(info.Running))
	fmt.Fprintf(w, "  lock       %s\n", info.Lock)
	fmt.Fprintln(w)
	return nil
}
