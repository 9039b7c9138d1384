// Package opencl binds the driver interface to a system OpenCL ICD loader.
// It is only compiled with the gpu build tag; default builds get a stub whose
// constructor returns ErrNotBuilt.
package opencl

import "fmt"

// Name identifies the OpenCL driver.
const Name = "opencl"

// ErrNotBuilt reports that the binary was built without the gpu tag.
var ErrNotBuilt = fmt.Errorf("opencl support requires building with '-tags gpu'")
