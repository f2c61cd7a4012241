// Package components collects the bundled HAL components so tools can
// load them by name.
package components

import (
	"sort"

	"github.com/wippyai/hal-runtime/components/encoder"
	"github.com/wippyai/hal-runtime/components/encoderratio"
	"github.com/wippyai/hal-runtime/components/lutn"
	"github.com/wippyai/hal-runtime/components/ringdemo"
	"github.com/wippyai/hal-runtime/components/wasmfn"
	"github.com/wippyai/hal-runtime/errors"
	"github.com/wippyai/hal-runtime/hal"
)

// Loader registers one or more components with a HAL handle.
type Loader func(h *hal.HAL) error

var builtin = map[string]Loader{
	encoder.Name:        encoder.Register,
	encoderratio.Name:   encoderratio.Register,
	lutn.Name:           lutn.Register,
	ringdemo.WriterName: ringdemo.Register,
	ringdemo.ReaderName: ringdemo.Register,
	wasmfn.Name:         wasmfn.Register,
}

// Names lists the loadable component names in order.
func Names() []string {
	names := make([]string, 0, len(builtin))
	for n := range builtin {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Load registers the named components. Components registered by the same
// loader are loaded once.
func Load(h *hal.HAL, names ...string) error {
	loaded, err := loadedNames(h)
	if err != nil {
		return err
	}
	for _, name := range names {
		if loaded[name] {
			continue
		}
		load, ok := builtin[name]
		if !ok {
			return errors.New(errors.PhaseRegister, errors.KindNotFound).
				Path(name).
				Detail("no bundled component %q", name).
				Build()
		}
		if err := load(h); err != nil {
			return err
		}
		if loaded, err = loadedNames(h); err != nil {
			return err
		}
	}
	return nil
}

func loadedNames(h *hal.HAL) (map[string]bool, error) {
	comps, err := h.Components()
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(comps))
	for _, c := range comps {
		out[c.Name] = true
	}
	return out, nil
}
