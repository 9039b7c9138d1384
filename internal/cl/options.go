package cl

import (
	"fmt"
	"slices"
	"strings"
)

// Options appended to every build unless the caller's options conflict.
var standardOptions = []string{
	"-cl-single-precision-constant",
	"-cl-fast-relaxed-math",
	"-cl-mad-enable",
	"-cl-no-signed-zeros",
	"-cl-denorms-are-zero",
}

const standardVersion = "CL2.0"

// MergeBuildOptions joins the caller's options with the standard suffix.
// A standard option is dropped when the caller already gave it, and all of
// them are dropped under -cl-opt-disable. The language version defaults to
// CL2.0 clamped to deviceVersion unless the caller picked one with -cl-std=.
func MergeBuildOptions(options []string, deviceVersion string) string {
	var tokens []string
	for _, o := range options {
		tokens = append(tokens, strings.Fields(o)...)
	}

	out := slices.Clone(tokens)
	if !slices.Contains(tokens, "-cl-opt-disable") {
		for _, o := range standardOptions {
			if !slices.Contains(tokens, o) {
				out = append(out, o)
			}
		}
	}
	if !slices.ContainsFunc(tokens, func(t string) bool { return strings.HasPrefix(t, "-cl-std=") }) {
		out = append(out, "-cl-std="+languageVersion(deviceVersion))
	}
	return strings.Join(out, " ")
}

// languageVersion is the standard language version, lowered to what the
// device supports.
func languageVersion(deviceVersion string) string {
	major, minor := parseVersion(deviceVersion)
	if major >= 2 {
		return standardVersion
	}
	return fmt.Sprintf("CL%d.%d", major, minor)
}
