package host

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cwbudde/clhost/internal/driver"
)

func TestParseOptions(t *testing.T) {
	tests := []struct {
		options string
		status  driver.Status
		msg     string
		defines map[string]string
		std     string
	}{
		{options: "", status: driver.Success, defines: map[string]string{}},
		{
			options: "-D A -DB=2 -D C=x -I kernels/ -Ikernels -cl-std=CL1.2 -cl-mad-enable -w",
			status:  driver.Success,
			defines: map[string]string{"A": "1", "B": "2", "C": "x"},
			std:     "CL1.2",
		},
		{options: "-D", status: driver.InvalidBuildOptions, msg: "missing argument to '-D'"},
		{options: "-cl-std=CL9.9", status: driver.InvalidBuildOptions, msg: "invalid value 'CL9.9'"},
		{options: "-O5", status: driver.InvalidBuildOptions, msg: "unrecognized build option '-O5'"},
	}
	for _, tt := range tests {
		t.Run(tt.options, func(t *testing.T) {
			opts, msg, st := parseOptions(tt.options)
			assert.Equal(t, tt.status, st)
			if tt.msg != "" {
				assert.Contains(t, msg, tt.msg)
				return
			}
			assert.Equal(t, tt.defines, opts.defines)
			assert.Equal(t, tt.std, opts.std)
		})
	}
}

func TestDeviceVersion(t *testing.T) {
	assert.Equal(t, 2.0, deviceVersion("OpenCL 2.0 clhost"))
	assert.Equal(t, 1.1, deviceVersion("OpenCL 1.1 CUDA"))
	assert.Equal(t, 1.2, deviceVersion("garbage"))
	assert.Equal(t, 1.2, deviceVersion("OpenCL x.y"))
}

func TestTypeSize(t *testing.T) {
	for typ, want := range map[string]int{
		"char": 1, "half": 2, "uint": 4, "double": 8,
		"float4": 16, "float3": 16, "uchar16": 16, "long2": 16,
	} {
		n, ok := typeSize(typ)
		assert.True(t, ok, typ)
		assert.Equal(t, want, n, typ)
	}
	_, ok := typeSize("matrix4")
	assert.False(t, ok)
}

func TestStripCommentsKeepsPositions(t *testing.T) {
	src := "a // x\nb /* y\nz */ c\n\"// kept\""
	out := stripComments(src)
	assert.Len(t, out, len(src))
	assert.Equal(t, strings.Count(src, "\n"), strings.Count(out, "\n"))
	assert.NotContains(t, out, "x")
	assert.NotContains(t, out, "y")
	assert.Contains(t, out, "c")
	assert.Contains(t, out, `"// kept"`)
}

func TestPreprocess(t *testing.T) {
	src := strings.Join([]string{
		"#ifndef WIDTH",
		"#define WIDTH 8",
		"#endif",
		"#ifdef DEBUG",
		"debug_only",
		"#else",
		"release_only",
		"#endif",
		"#define GONE",
		"#undef GONE",
	}, "\n")
	defines := map[string]string{}
	out, diags := preprocess(src, defines)
	require.Empty(t, diags)
	assert.Equal(t, "8", defines["WIDTH"])
	assert.NotContains(t, defines, "GONE")
	assert.Contains(t, out, "release_only")
	assert.NotContains(t, out, "debug_only")
	assert.Equal(t, strings.Count(src, "\n"), strings.Count(out, "\n"))

	defines = map[string]string{"WIDTH": "4", "DEBUG": "1"}
	out, diags = preprocess(src, defines)
	require.Empty(t, diags)
	assert.Equal(t, "4", defines["WIDTH"])
	assert.Contains(t, out, "debug_only")
}

func TestPreprocessDiagnostics(t *testing.T) {
	tests := []struct {
		src  string
		line int
		msg  string
	}{
		{"#ifndef N\n#error N must be defined\n#endif", 2, "N must be defined"},
		{"x\n#endif", 2, "#endif without #if"},
		{"#else", 1, "#else without #if"},
		{"#if 1\n#endif", 1, "#if expressions are not supported"},
		{"#bogus", 1, "invalid preprocessing directive #bogus"},
		{"#ifdef A\n", 2, "unterminated conditional directive"},
	}
	for _, tt := range tests {
		_, diags := preprocess(tt.src, map[string]string{})
		require.NotEmpty(t, diags, tt.src)
		assert.Equal(t, tt.line, diags[0].line, tt.src)
		assert.Equal(t, tt.msg, diags[0].msg, tt.src)
	}

	// Inactive #error is ignored
	_, diags := preprocess("#ifndef N\n#error missing\n#endif", map[string]string{"N": "1"})
	assert.Empty(t, diags)
}

func TestCheckBalance(t *testing.T) {
	assert.Empty(t, checkBalance("f(a[1]) { }"))

	diags := checkBalance("void f() {\n  g(;\n}")
	require.Len(t, diags, 1)
	assert.Equal(t, "<source>:3:1: error: unexpected '}'", diags[0].String())

	diags = checkBalance("{\n{\n}")
	require.Len(t, diags, 1)
	assert.Equal(t, 1, diags[0].line)
	assert.Equal(t, "unmatched '{'", diags[0].msg)
}

func TestParseKernels(t *testing.T) {
	src := `
__kernel void add(__global const float* a, __global float *out, uint n, float4 scale) {}
kernel void scratch(__local int* tmp, unsigned count) {}
__kernel __attribute__((reqd_work_group_size(8, 1, 1))) void img(__read_only image2d_t src, sampler_t s) {}
__kernel void none(void) {}
`
	sigs, diags := parseKernels(src)
	require.Empty(t, diags)
	require.Len(t, sigs, 4)

	add := sigs[0]
	assert.Equal(t, "add", add.name)
	assert.Equal(t, 2, add.line)
	require.Len(t, add.params, 4)
	assert.Equal(t, param{name: "a", typ: "float", kind: paramGlobal, size: 8}, add.params[0])
	assert.Equal(t, param{name: "n", typ: "uint", kind: paramScalar, size: 4}, add.params[2])
	assert.Equal(t, 16, add.params[3].size)

	scratch := sigs[1]
	assert.Equal(t, paramLocal, scratch.params[0].kind)
	assert.Equal(t, param{name: "count", typ: "uint", kind: paramScalar, size: 4}, scratch.params[1])

	assert.Equal(t, "img", sigs[2].name)
	assert.Equal(t, paramImage, sigs[2].params[0].kind)
	assert.Equal(t, paramSampler, sigs[2].params[1].kind)

	assert.Empty(t, sigs[3].params)
}

func TestParseKernelsErrors(t *testing.T) {
	tests := []struct {
		src string
		msg string
	}{
		{"__kernel int f() {}", "kernel 'f' must have void return type"},
		{"__kernel void f() {}\n__kernel void f() {}", "redefinition of kernel 'f'"},
		{"__kernel void f(float* p) {}", "must be declared __global"},
		{"__kernel void f(matrix m) {}", "unknown type name 'matrix'"},
	}
	for _, tt := range tests {
		_, diags := parseKernels(tt.src)
		require.NotEmpty(t, diags, tt.src)
		assert.Contains(t, diags[0].msg, tt.msg, tt.src)
	}
}
