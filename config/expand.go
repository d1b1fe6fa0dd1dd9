package config

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
)

var envRefPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

const dollarBraceSentinel = "\x00APMCORE_DOLLAR_BRACE\x00"

// ExpandEnvStrict replaces every ${VAR} in s with its environment value.
//
// Semantics:
//   - Only the braced form is expanded. A bare `$` is kept, so regexp anchors such
//     as `example\.com$` pass through untouched.
//   - A referenced variable missing from the environment is an error listing every
//     missing name.
//   - `$${` emits a literal `${`.
func ExpandEnvStrict(s string) (string, error) {
	return expandEnv(s, false)
}

// expandYAML is ExpandEnvStrict for YAML text. Lines whose first non-blank
// character is '#' are left as written; trailing comments are still expanded.
func expandYAML(s string) (string, error) {
	return expandEnv(s, true)
}

func expandEnv(s string, skipComments bool) (string, error) {
	missing := make(map[string]struct{})
	lines := strings.SplitAfter(s, "\n")
	for i, line := range lines {
		if skipComments && strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}
		lines[i] = expandLine(line, missing)
	}

	if len(missing) > 0 {
		keys := make([]string, 0, len(missing))
		for k := range missing {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return "", fmt.Errorf("%w: missing required environment variables: %s", ErrInvalidFile, strings.Join(keys, ", "))
	}
	return strings.Join(lines, ""), nil
}

func expandLine(line string, missing map[string]struct{}) string {
	line = strings.ReplaceAll(line, "$${", dollarBraceSentinel)
	line = envRefPattern.ReplaceAllStringFunc(line, func(ref string) string {
		key := envRefPattern.FindStringSubmatch(ref)[1]
		v, ok := os.LookupEnv(key)
		if !ok {
			missing[key] = struct{}{}
			return ref
		}
		return v
	})
	return strings.ReplaceAll(line, dollarBraceSentinel, "${")
}
