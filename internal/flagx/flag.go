// Package flagx contains helpers for picking a handful of bootstrap flags out
// of the command line before the full flag set is parsed.
package flagx

import (
	"flag"
	"os"
	"strings"
)

// FilterArgs keeps only the allowed flags (and their values) from args.
// Both "-c conf.json" and "--config=conf.json" forms are recognised. A value
// is taken from the next argument only if it does not itself start with '-'.
func FilterArgs(args []string, allowedFlags []string) []string {
	allowed := make(map[string]struct{}, len(allowedFlags))
	for _, f := range allowedFlags {
		allowed[f] = struct{}{}
	}

	filtered := make([]string, 0, len(args))

	for i := 0; i < len(args); i++ {
		arg := args[i]

		if name, _, ok := strings.Cut(arg, "="); ok && strings.HasPrefix(arg, "-") {
			if _, ok := allowed[name]; ok {
				filtered = append(filtered, arg)
			}
			continue
		}

		if _, ok := allowed[arg]; !ok {
			continue
		}
		filtered = append(filtered, arg)
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			filtered = append(filtered, args[i+1])
			i++
		}
	}

	return filtered
}

// Sources names the files the config layer reads before flags.
type Sources struct {
	JSONPath string
	EnvFile  string
}

// BootstrapSources extracts -c/-config and -env from the process arguments.
// Everything else is left for the main flag set.
func BootstrapSources() Sources {
	return parseSources(os.Args[1:])
}

func parseSources(args []string) Sources {
	var s Sources

	args = FilterArgs(args, []string{"-c", "-config", "-env"})

	fs := flag.NewFlagSet("bootstrap", flag.ContinueOnError)
	fs.SetOutput(discard{})
	fs.StringVar(&s.JSONPath, "config", "", "Path to JSON config file")
	fs.StringVar(&s.JSONPath, "c", "", "Path to JSON config file (short)")
	fs.StringVar(&s.EnvFile, "env", "", "Path to .env file")
	_ = fs.Parse(args)

	return s
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
