// Package wasmfn wraps a WebAssembly export as a function block. The
// export's float parameters become in-N pins and its single float result
// drives the out pin. Calls allocate inside the wasm runtime, so the
// component is registered as a user component; place its funct in a
// thread that tolerates that.
package wasmfn

import (
	"context"
	"fmt"
	"os"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/hal-runtime/components/internal/args"
	"github.com/wippyai/hal-runtime/errors"
	"github.com/wippyai/hal-runtime/hal"
)

// Name is the component name used for registration.
const Name = "wasmfn"

// MaxParams bounds the number of input pins.
const MaxParams = 16

type block struct {
	ctx     context.Context
	runtime wazero.Runtime
	fn      api.Function
	params  []api.ValueType
	result  api.ValueType
	stack   []uint64

	in   []hal.FloatPin
	out  hal.FloatPin
	errs hal.U32Pin
}

// Register loads the wasmfn component into h.
func Register(h *hal.HAL) error {
	_, err := h.Xinit(hal.CompUser, Name, newBlock, closeBlock)
	return err
}

func newBlock(x *hal.Exporter) (any, error) {
	a, err := args.Parse(x.Args(), "module", "func", "pages")
	if err != nil {
		return nil, err
	}
	path, err := a.String("module", true)
	if err != nil {
		return nil, err
	}
	export, err := a.String("func", true)
	if err != nil {
		return nil, err
	}
	pages, err := a.Int("pages", 16, 1, 65536)
	if err != nil {
		return nil, err
	}

	code, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseExport, errors.KindIO, err, "read module "+path)
	}

	b := &block{ctx: context.Background()}
	b.runtime = wazero.NewRuntimeWithConfig(b.ctx, wazero.NewRuntimeConfig().WithMemoryLimitPages(uint32(pages)))
	ok := false
	defer func() {
		if !ok {
			_ = b.runtime.Close(b.ctx)
		}
	}()

	compiled, err := b.runtime.CompileModule(b.ctx, code)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseExport, errors.KindInvalidInput, err, "compile "+path)
	}
	mod, err := b.runtime.InstantiateModule(b.ctx, compiled, wazero.NewModuleConfig().WithName(x.Name()))
	if err != nil {
		return nil, errors.Wrap(errors.PhaseExport, errors.KindInstantiation, err, "instantiate "+path)
	}
	b.fn = mod.ExportedFunction(export)
	if b.fn == nil {
		return nil, errors.NotFound(errors.PhaseExport, "export", export)
	}
	if err := b.checkSignature(export); err != nil {
		return nil, err
	}

	b.stack = make([]uint64, max(len(b.params), 1))
	b.in = make([]hal.FloatPin, len(b.params))
	for i := range b.in {
		if b.in[i], err = x.FloatPin(hal.In, fmt.Sprintf("in-%d", i), 0); err != nil {
			return nil, err
		}
	}
	if b.out, err = x.FloatPin(hal.Out, "out", 0); err != nil {
		return nil, err
	}
	if b.errs, err = x.U32Pin(hal.Out, "errors", 0); err != nil {
		return nil, err
	}
	if err := x.ExportFunct("call", call, b, hal.FunctOptions{UsesFP: true}); err != nil {
		return nil, err
	}

	x.Logger().Debug("wasm function bound",
		zap.String("instance", x.Name()),
		zap.String("module", path),
		zap.String("export", export),
		zap.Int("params", len(b.params)))
	ok = true
	return b, nil
}

func isFloat(t api.ValueType) bool {
	return t == api.ValueTypeF64 || t == api.ValueTypeF32
}

func (b *block) checkSignature(export string) error {
	def := b.fn.Definition()
	b.params = def.ParamTypes()
	results := def.ResultTypes()
	if len(b.params) > MaxParams {
		return errors.New(errors.PhaseExport, errors.KindInvalidInput).
			Path(export).
			Detail("%d parameters, at most %d supported", len(b.params), MaxParams).
			Build()
	}
	for i, p := range b.params {
		if !isFloat(p) {
			return errors.TypeMismatch(errors.PhaseExport, []string{export, fmt.Sprintf("param %d", i)}, "f64", api.ValueTypeName(p))
		}
	}
	if len(results) != 1 || !isFloat(results[0]) {
		return errors.New(errors.PhaseExport, errors.KindTypeMismatch).
			Path(export).
			Want("one float result").
			Got(fmt.Sprintf("%d results", len(results))).
			Build()
	}
	b.result = results[0]
	return nil
}

func encode(t api.ValueType, v float64) uint64 {
	if t == api.ValueTypeF32 {
		return api.EncodeF32(float32(v))
	}
	return api.EncodeF64(v)
}

func decode(t api.ValueType, v uint64) float64 {
	if t == api.ValueTypeF32 {
		return float64(api.DecodeF32(v))
	}
	return api.DecodeF64(v)
}

func call(arg any, _ int64) {
	b := arg.(*block)
	for i, p := range b.in {
		b.stack[i] = encode(b.params[i], p.Get())
	}
	if err := b.fn.CallWithStack(b.ctx, b.stack); err != nil {
		b.errs.Incr(1)
		return
	}
	b.out.Set(decode(b.result, b.stack[0]))
}

func closeBlock(_ string, state any) {
	if b, ok := state.(*block); ok {
		_ = b.runtime.Close(b.ctx)
	}
}
