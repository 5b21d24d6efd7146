package occa

import (
	"fmt"
	"github.com/notargets/devbuf/device"
	"github.com/notargets/gocca"
)

// Kernel is a compiled OCCA kernel. OCCA takes arguments at launch, so
// SetArg records them positionally and Run passes them to RunWithArgs.
type Kernel struct {
	name   string
	kernel *gocca.OCCAKernel
	args   []interface{}
}

// BuildKernel compiles kernelName from source on the device.
func (d *Device) BuildKernel(source, kernelName string) (*Kernel, error) {
	var kernel *gocca.OCCAKernel
	var err error

	if d.dev.Mode() == "OpenMP" {
		// Workaround for OCCA bug: OpenMP doesn't get default -O3 flag
		props := gocca.JsonParse(`{"compiler_flags": "-O3"}`)
		defer props.Free()
		kernel, err = d.dev.BuildKernelFromString(source, kernelName, props)
	} else {
		kernel, err = d.dev.BuildKernelFromString(source, kernelName, nil)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to build kernel %s: %w", kernelName, err)
	}
	if kernel == nil {
		return nil, fmt.Errorf("kernel build returned nil for %s", kernelName)
	}
	return &Kernel{name: kernelName, kernel: kernel}, nil
}

func (k *Kernel) Name() string { return k.name }

func (k *Kernel) SetArg(index int, value interface{}) error {
	op := fmt.Sprintf("%s: set arg %d", k.name, index)
	if index < 0 || index > len(k.args) {
		// slots are filled in order; a gap would leave an unset argument
		return device.CheckError(op, device.InvalidArgIndex)
	}

	var arg interface{}
	switch v := value.(type) {
	case *Memory:
		if v == nil || v.mem == nil {
			return device.CheckError(op, device.InvalidMemObject)
		}
		arg = v.mem
	case int32, int64, float32, float64:
		arg = v
	default:
		return device.CheckError(op, device.InvalidArgValue)
	}

	if index == len(k.args) {
		k.args = append(k.args, arg)
	} else {
		k.args[index] = arg
	}
	return nil
}

func (k *Kernel) Run() error {
	if err := k.kernel.RunWithArgs(k.args...); err != nil {
		return fmt.Errorf("kernel %s execution failed: %w", k.name, err)
	}
	return nil
}

// Free releases the compiled kernel.
func (k *Kernel) Free() {
	k.kernel.Free()
}
