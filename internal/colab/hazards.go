package colab

import (
	"regexp"
	"strings"
)

// Severity of a Colab hazard.
type Severity string

const (
	Critical Severity = "critical"
	Warning  Severity = "warning"
)

// Hazard types.
const (
	SubprocessPip  = "subprocess_pip"
	HardcodedToken = "hardcoded_token"
	DeviceMapping  = "device_mapping"
)

// hazard is one known execution-environment problem. guarded reports
// whether a matching cell already handles the problem; fix rewrites a
// cell's source.
type hazard struct {
	kind        string
	severity    Severity
	description string
	pattern     *regexp.Regexp
	guarded     func(src string) bool
	fix         func(src string) string
}

var hazards = []hazard{
	{
		kind:        SubprocessPip,
		severity:    Critical,
		description: "subprocess pip install fails in Colab",
		pattern:     regexp.MustCompile(`subprocess\.check_call.*pip.*install`),
		guarded:     pipGuarded,
		fix:         fixPip,
	},
	{
		kind:        HardcodedToken,
		severity:    Critical,
		description: "Hardcoded token placeholder causes auth errors",
		pattern:     regexp.MustCompile(`os\.environ\[["']\w+["']\]\s*=\s*["']YOUR_\w*["']`),
		guarded:     tokenGuarded,
		fix:         fixToken,
	},
	{
		kind:        DeviceMapping,
		severity:    Warning,
		description: `device_map="auto" may not work optimally in Colab`,
		pattern:     deviceMapAuto,
		fix:         fixDeviceMap,
	},
}

func hazardFor(kind string) (hazard, bool) {
	for _, h := range hazards {
		if h.kind == kind {
			return h, true
		}
	}
	return hazard{}, false
}

var colabGuard = regexp.MustCompile(`if\s+IN_COLAB`)

// pipGuarded recognizes cells that already branch on IN_COLAB and install
// through IPython in that branch.
func pipGuarded(src string) bool {
	normalized := strings.ReplaceAll(src, "\r\n", "\n")
	if !colabGuard.MatchString(normalized) {
		return false
	}
	return strings.Contains(normalized, "%pip") ||
		strings.Contains(normalized, "run_line_magic('pip'") ||
		strings.Contains(normalized, `run_line_magic("pip"`) ||
		strings.Contains(normalized, "_subprocess.check_call(")
}

func tokenGuarded(src string) bool {
	return colabGuard.MatchString(src) && strings.Contains(src, "getpass(")
}

// pipCall consumes quoted arguments whole so extras such as
// "transformers[torch]" do not end the argument list.
var pipCall = regexp.MustCompile(`(?m)^([ \t]*)subprocess\.check_call\((\[sys\.executable,\s*["']-m["'],\s*["']pip["'],\s*["']install["'](?:"[^"\n]*"|'[^'\n]*'|[^\]"'])*\](?:[ \t]*\+[ \t]*[^)\n]+)?)\)`)

// fixPip rewrites each subprocess pip call so that, inside Colab, a failed
// install is retried through the %pip magic.
func fixPip(src string) string {
	return pipCall.ReplaceAllStringFunc(src, func(match string) string {
		m := pipCall.FindStringSubmatch(match)
		indent, cmd := m[1], m[2]
		lines := []string{
			"cmd = " + cmd,
			"try:",
			"    subprocess.check_call(cmd)",
			"except Exception:",
			"    if IN_COLAB:",
			"        packages = [arg for arg in cmd[4:] if isinstance(arg, str)]",
			"        from IPython import get_ipython",
			"        ip = get_ipython()",
			"        if ip is not None:",
			"            ip.run_line_magic('pip', 'install ' + ' '.join(packages))",
			"        else:",
			"            import subprocess as _subprocess",
			"            _subprocess.check_call([sys.executable, '-m', 'pip', 'install'] + packages)",
			"    else:",
			"        raise",
		}
		return indentLines(indent, lines)
	})
}

var tokenAssign = regexp.MustCompile(`(?m)^([ \t]*)(os\.environ\[["'](\w+)["']\]\s*=\s*["']YOUR_\w*["'])`)

// fixToken prompts for the secret in Colab and keeps the placeholder
// assignment for local runs.
func fixToken(src string) string {
	return tokenAssign.ReplaceAllStringFunc(src, func(match string) string {
		m := tokenAssign.FindStringSubmatch(match)
		indent, assign, name := m[1], m[2], m[3]
		return indentLines(indent, []string{
			"if IN_COLAB:",
			"    from getpass import getpass",
			`    os.environ["` + name + `"] = getpass('Enter ` + name + `: ')`,
			"else:",
			"    " + assign,
		})
	})
}

var deviceMapAuto = regexp.MustCompile(`device_map\s*=\s*["']auto["']`)

func fixDeviceMap(src string) string {
	return deviceMapAuto.ReplaceAllLiteralString(src, `device_map="cuda:0" if torch.cuda.is_available() else "cpu"`)
}

func indentLines(indent string, lines []string) string {
	var b strings.Builder
	for i, l := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(indent)
		b.WriteString(l)
	}
	return b.String()
}
