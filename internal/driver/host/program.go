package host

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cwbudde/clhost/internal/driver"
)

type program struct {
	refs
	id     driver.Program
	ctx    *hostContext
	source string

	// Guarded by Driver.mu.
	built    bool
	log      string
	options  string
	sigs     map[string]*signature
	defines  map[string]string
	attached int
}

var knownFlags = map[string]bool{
	"-cl-single-precision-constant": true,
	"-cl-denorms-are-zero":          true,
	"-cl-opt-disable":               true,
	"-cl-mad-enable":                true,
	"-cl-no-signed-zeros":           true,
	"-cl-unsafe-math-optimizations": true,
	"-cl-finite-math-only":          true,
	"-cl-fast-relaxed-math":         true,
	"-cl-strict-aliasing":           true,
	"-cl-uniform-work-group-size":   true,
	"-cl-no-subgroup-ifp":           true,
	"-cl-kernel-arg-info":           true,
	"-w":                            true,
	"-Werror":                       true,
	"-g":                            true,
}

var languageVersions = map[string]float64{
	"CL1.0": 1.0, "CL1.1": 1.1, "CL1.2": 1.2, "CL2.0": 2.0, "CL3.0": 3.0,
}

// deviceVersion extracts the numeric part of "OpenCL <major.minor> ...".
func deviceVersion(version string) float64 {
	fields := strings.Fields(version)
	if len(fields) < 2 {
		return 1.2
	}
	v, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return 1.2
	}
	return v
}

type buildOptions struct {
	defines map[string]string
	std     string
}

// parseOptions validates a build option string. An invalid option yields
// InvalidBuildOptions with the offending token in the message.
func parseOptions(options string) (buildOptions, string, driver.Status) {
	opts := buildOptions{defines: make(map[string]string)}
	tokens := strings.Fields(options)
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		switch {
		case tok == "-D" || tok == "-I":
			if i+1 >= len(tokens) {
				return opts, fmt.Sprintf("error: missing argument to '%s'", tok), driver.InvalidBuildOptions
			}
			i++
			if tok == "-D" {
				addDefine(opts.defines, tokens[i])
			}
		case strings.HasPrefix(tok, "-D"):
			addDefine(opts.defines, tok[2:])
		case strings.HasPrefix(tok, "-I"):
		case strings.HasPrefix(tok, "-cl-std="):
			std := strings.TrimPrefix(tok, "-cl-std=")
			if _, ok := languageVersions[std]; !ok {
				return opts, fmt.Sprintf("error: invalid value '%s' in '%s'", std, tok), driver.InvalidBuildOptions
			}
			opts.std = std
		case knownFlags[tok]:
		default:
			return opts, fmt.Sprintf("error: unrecognized build option '%s'", tok), driver.InvalidBuildOptions
		}
	}
	return opts, "", driver.Success
}

func addDefine(defines map[string]string, def string) {
	name, value, found := strings.Cut(def, "=")
	if !found {
		value = "1"
	}
	defines[name] = value
}

func (d *Driver) CreateProgramWithSource(c driver.Context, source string) (driver.Program, driver.Status) {
	ctx, st := d.context(c)
	if !st.OK() {
		return 0, st
	}
	if source == "" {
		return 0, driver.InvalidValue
	}
	p := &program{refs: refs{1}, ctx: ctx, source: source}
	p.id = driver.Program(d.register(p))
	return p.id, driver.Success
}

func (d *Driver) BuildProgram(h driver.Program, devices []driver.DeviceID, options string) driver.Status {
	p, ok := lookup[*program](d, uintptr(h))
	if !ok {
		return driver.InvalidProgram
	}
	for _, id := range devices {
		if id != d.device {
			return driver.InvalidDevice
		}
	}
	if !d.cfg.info.CompilerAvailable {
		return driver.CompilerNotAvailable
	}

	d.mu.Lock()
	if p.attached > 0 {
		d.mu.Unlock()
		return driver.InvalidOperation
	}
	p.built = false
	d.mu.Unlock()

	log, sigs, defines, st := d.compile(p.source, options)

	d.mu.Lock()
	defer d.mu.Unlock()
	p.log = log
	p.options = options
	if !st.OK() {
		return st
	}
	p.built = true
	p.sigs = sigs
	p.defines = defines
	return driver.Success
}

// compile runs the front end over source and returns the build log.
func (d *Driver) compile(source, options string) (string, map[string]*signature, map[string]string, driver.Status) {
	opts, msg, st := parseOptions(options)
	if !st.OK() {
		return msg, nil, nil, st
	}
	if opts.std != "" && languageVersions[opts.std] > deviceVersion(d.cfg.info.Version) {
		return fmt.Sprintf("error: -cl-std=%s is not supported by %s", opts.std, d.cfg.info.Version), nil, nil, driver.BuildProgramFailure
	}

	src, diags := preprocess(stripComments(source), opts.defines)
	diags = append(diags, checkBalance(src)...)
	parsed, perr := parseKernels(src)
	diags = append(diags, perr...)

	sigs := make(map[string]*signature, len(parsed))
	for i := range parsed {
		sig := &parsed[i]
		if _, ok := d.cfg.lib.Lookup(sig.name); !ok {
			diags = append(diags, diagnostic{sig.line, 1, fmt.Sprintf("kernel '%s' has no implementation on this device", sig.name)})
			continue
		}
		sigs[sig.name] = sig
	}

	if len(diags) > 0 {
		lines := make([]string, len(diags))
		for i, diag := range diags {
			lines[i] = diag.String()
		}
		lines = append(lines, fmt.Sprintf("%d error(s) generated.", len(diags)))
		return strings.Join(lines, "\n"), nil, nil, driver.BuildProgramFailure
	}
	return "", sigs, opts.defines, driver.Success
}

func (d *Driver) ProgramBuildLog(h driver.Program, id driver.DeviceID) (string, driver.Status) {
	p, ok := lookup[*program](d, uintptr(h))
	if !ok {
		return "", driver.InvalidProgram
	}
	if id != d.device {
		return "", driver.InvalidDevice
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return p.log, driver.Success
}

func (d *Driver) RetainProgram(h driver.Program) driver.Status {
	return retain[*program](d, uintptr(h), driver.InvalidProgram)
}

func (d *Driver) ReleaseProgram(h driver.Program) driver.Status {
	_, _, st := release[*program](d, uintptr(h), driver.InvalidProgram)
	return st
}
