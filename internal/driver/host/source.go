package host

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

type paramKind int

const (
	paramScalar paramKind = iota
	paramGlobal
	paramLocal
	paramImage
	paramSampler
)

type param struct {
	name string
	typ  string
	kind paramKind
	size int
}

type signature struct {
	name   string
	line   int
	params []param
}

type diagnostic struct {
	line int
	col  int
	msg  string
}

func (d diagnostic) String() string {
	return fmt.Sprintf("<source>:%d:%d: error: %s", d.line, d.col, d.msg)
}

var scalarSizes = map[string]int{
	"bool": 4, "char": 1, "uchar": 1, "short": 2, "ushort": 2, "half": 2,
	"int": 4, "uint": 4, "float": 4, "long": 8, "ulong": 8, "double": 8,
	"size_t": 8, "ptrdiff_t": 8, "intptr_t": 8, "uintptr_t": 8,
}

var vectorType = regexp.MustCompile(`^([a-z]+?)(2|3|4|8|16)$`)

// typeSize returns the byte size of an OpenCL C scalar or vector type.
func typeSize(typ string) (int, bool) {
	if n, ok := scalarSizes[typ]; ok {
		return n, true
	}
	m := vectorType.FindStringSubmatch(typ)
	if m == nil {
		return 0, false
	}
	base, ok := scalarSizes[m[1]]
	if !ok {
		return 0, false
	}
	width, _ := strconv.Atoi(m[2])
	if width == 3 {
		width = 4
	}
	return base * width, true
}

// stripComments blanks comments while keeping line and column positions.
func stripComments(src string) string {
	out := []byte(src)
	for i := 0; i < len(out); i++ {
		switch {
		case out[i] == '"':
			for i++; i < len(out) && out[i] != '"' && out[i] != '\n'; i++ {
				if out[i] == '\\' {
					i++
				}
			}
		case out[i] == '/' && i+1 < len(out) && out[i+1] == '/':
			for ; i < len(out) && out[i] != '\n'; i++ {
				out[i] = ' '
			}
		case out[i] == '/' && i+1 < len(out) && out[i+1] == '*':
			for ; i < len(out); i++ {
				if out[i] == '*' && i+1 < len(out) && out[i+1] == '/' {
					out[i], out[i+1] = ' ', ' '
					i++
					break
				}
				if out[i] != '\n' {
					out[i] = ' '
				}
			}
		}
	}
	return string(out)
}

// preprocess evaluates #ifdef/#ifndef/#else/#endif, collects #define and
// reports #error. Inactive and directive lines are blanked.
func preprocess(src string, defines map[string]string) (string, []diagnostic) {
	lines := strings.Split(src, "\n")
	var diags []diagnostic
	type frame struct{ active, parent bool }
	stack := []frame{{active: true, parent: true}}

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		top := stack[len(stack)-1]
		if !strings.HasPrefix(trimmed, "#") {
			if !top.active {
				lines[i] = ""
			}
			continue
		}
		lines[i] = ""
		fields := strings.Fields(strings.TrimPrefix(trimmed, "#"))
		if len(fields) == 0 {
			continue
		}
		col := strings.Index(line, "#") + 1
		switch fields[0] {
		case "ifdef", "ifndef":
			if len(fields) < 2 {
				diags = append(diags, diagnostic{i + 1, col, "macro name missing"})
				stack = append(stack, frame{active: false, parent: top.active})
				continue
			}
			_, defined := defines[fields[1]]
			cond := defined == (fields[0] == "ifdef")
			stack = append(stack, frame{active: top.active && cond, parent: top.active})
		case "else":
			if len(stack) == 1 {
				diags = append(diags, diagnostic{i + 1, col, "#else without #if"})
				continue
			}
			stack[len(stack)-1].active = top.parent && !top.active
		case "endif":
			if len(stack) == 1 {
				diags = append(diags, diagnostic{i + 1, col, "#endif without #if"})
				continue
			}
			stack = stack[:len(stack)-1]
		case "define":
			if !top.active {
				continue
			}
			if len(fields) < 2 {
				diags = append(diags, diagnostic{i + 1, col, "macro name missing"})
				continue
			}
			defines[fields[1]] = strings.Join(fields[2:], " ")
		case "undef":
			if top.active && len(fields) > 1 {
				delete(defines, fields[1])
			}
		case "error":
			if top.active {
				diags = append(diags, diagnostic{i + 1, col, strings.Join(fields[1:], " ")})
			}
		case "pragma", "include", "if", "elif", "line":
			if fields[0] == "if" || fields[0] == "elif" {
				diags = append(diags, diagnostic{i + 1, col, "#" + fields[0] + " expressions are not supported"})
			}
		default:
			diags = append(diags, diagnostic{i + 1, col, "invalid preprocessing directive #" + fields[0]})
		}
	}
	if len(stack) > 1 {
		diags = append(diags, diagnostic{len(lines), 1, "unterminated conditional directive"})
	}
	return strings.Join(lines, "\n"), diags
}

// checkBalance reports the first unbalanced bracket.
func checkBalance(src string) []diagnostic {
	type open struct {
		ch        byte
		line, col int
	}
	pairs := map[byte]byte{')': '(', ']': '[', '}': '{'}
	var stack []open
	line, col := 1, 0
	for i := 0; i < len(src); i++ {
		c := src[i]
		col++
		switch c {
		case '\n':
			line, col = line+1, 0
		case '(', '[', '{':
			stack = append(stack, open{c, line, col})
		case ')', ']', '}':
			if len(stack) == 0 || stack[len(stack)-1].ch != pairs[c] {
				return []diagnostic{{line, col, fmt.Sprintf("unexpected '%c'", c)}}
			}
			stack = stack[:len(stack)-1]
		}
	}
	if len(stack) > 0 {
		o := stack[len(stack)-1]
		return []diagnostic{{o.line, o.col, fmt.Sprintf("unmatched '%c'", o.ch)}}
	}
	return nil
}

var kernelDecl = regexp.MustCompile(`(?:__kernel|\bkernel)\s+(?:__attribute__\s*\(\(.*?\)\)\s*)?(\w+)\s+(\w+)\s*\(([^)]*)\)`)

var qualifiers = map[string]bool{
	"const": true, "restrict": true, "__restrict": true, "volatile": true,
	"__read_only": true, "read_only": true, "__write_only": true, "write_only": true,
	"__read_write": true, "read_write": true, "__private": true, "private": true,
}

func parseParam(raw string) (param, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "void" {
		return param{}, fmt.Errorf("empty parameter")
	}
	pointer := strings.Contains(raw, "*")
	tokens := strings.Fields(strings.NewReplacer("*", " * ").Replace(raw))

	var space, typ, name string
	var unsigned bool
	for _, tok := range tokens {
		switch {
		case tok == "*":
		case tok == "__global" || tok == "global" || tok == "__constant" || tok == "constant":
			space = "global"
		case tok == "__local" || tok == "local":
			space = "local"
		case tok == "unsigned":
			unsigned = true
		case qualifiers[tok]:
		case typ == "":
			typ = tok
		default:
			name = tok
		}
	}
	if unsigned {
		if name == "" {
			name, typ = typ, "int"
		}
		typ = "u" + typ
	}
	if typ == "" || name == "" {
		return param{}, fmt.Errorf("malformed parameter %q", raw)
	}

	p := param{name: name, typ: typ}
	switch {
	case typ == "image2d_t" || typ == "image1d_t" || typ == "image3d_t" || typ == "image1d_buffer_t":
		p.kind, p.size = paramImage, 8
	case typ == "sampler_t":
		p.kind, p.size = paramSampler, 4
	case pointer && space == "local":
		p.kind = paramLocal
	case pointer:
		if space == "" {
			return param{}, fmt.Errorf("pointer parameter %q must be declared __global, __constant or __local", name)
		}
		p.kind, p.size = paramGlobal, 8
	default:
		n, ok := typeSize(typ)
		if !ok {
			return param{}, fmt.Errorf("unknown type name '%s'", typ)
		}
		p.kind, p.size = paramScalar, n
	}
	return p, nil
}

func lineOf(src string, offset int) (int, int) {
	line := strings.Count(src[:offset], "\n") + 1
	col := offset - strings.LastIndex(src[:offset], "\n")
	return line, col
}

// parseKernels extracts every kernel signature from preprocessed source.
func parseKernels(src string) ([]signature, []diagnostic) {
	var sigs []signature
	var diags []diagnostic
	seen := make(map[string]bool)
	for _, m := range kernelDecl.FindAllStringSubmatchIndex(src, -1) {
		line, col := lineOf(src, m[0])
		ret, name, params := src[m[2]:m[3]], src[m[4]:m[5]], src[m[6]:m[7]]
		if ret != "void" {
			diags = append(diags, diagnostic{line, col, fmt.Sprintf("kernel '%s' must have void return type", name)})
			continue
		}
		if seen[name] {
			diags = append(diags, diagnostic{line, col, fmt.Sprintf("redefinition of kernel '%s'", name)})
			continue
		}
		seen[name] = true
		sig := signature{name: name, line: line}
		if strings.TrimSpace(params) != "" && strings.TrimSpace(params) != "void" {
			for _, raw := range strings.Split(params, ",") {
				p, err := parseParam(raw)
				if err != nil {
					diags = append(diags, diagnostic{line, col, err.Error()})
					continue
				}
				sig.params = append(sig.params, p)
			}
		}
		sigs = append(sigs, sig)
	}
	return sigs, diags
}
