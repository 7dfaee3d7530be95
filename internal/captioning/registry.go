package captioning

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// LoadFunc constructs a captioner of one model family from a resolved
// model directory.
type LoadFunc func(dir string, params DecodeParams, logger *zap.Logger) (Captioner, error)

var families = map[string]LoadFunc{}

// Register adds a model family loader. Called from family init funcs.
func Register(name string, fn LoadFunc) {
	families[strings.ToLower(name)] = fn
}

// Load builds the captioner for the configured family from the resolved
// directory. Any failure here is a load error and aborts startup.
func Load(family, dir string, params DecodeParams, logger *zap.Logger) (Captioner, error) {
	fn, ok := families[strings.ToLower(family)]
	if !ok {
		return nil, fmt.Errorf("%w: %q, supported: %v", ErrUnknownFamily, family, Families())
	}

	return fn(dir, params, logger)
}

func Families() []string {
	names := make([]string, 0, len(families))
	for name := range families {
		names = append(names, name)
	}
	return names
}
