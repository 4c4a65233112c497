package setup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
)

// Keys of the configuration file read by the downstream pipeline.
const (
	KeyBase             = "BASE"
	KeyDepsDir          = "DEPS_DIR"
	KeyTargetSpecies    = "TARGET_SPECIES"
	KeyEvalThreshold    = "EVAL_THRESHOLD"
	KeyMissingThreshold = "MISSING_THRESHOLD"
	KeyBash             = "BASH"
	KeyGzip             = "GZIP"
	KeySum              = "SUM"
	KeyTBlastX          = "TBLASTX"
	KeyPasta            = "PASTA"
	KeyHyPhy            = "HYPHY"
	KeyMissingProgs     = "MISSING_PROGS"
)

// ConfigRecord is the environment description written for the analysis
// pipeline. Tool paths are empty when the tool was not found.
type ConfigRecord struct {
	Base             string
	DepsDir          string
	TargetSpecies    string
	EvalThreshold    float64
	MissingThreshold float64

	Bash    string
	Gzip    string
	Sum     string
	TBlastX string
	Pasta   string
	HyPhy   string

	// MissingProgs names the tools the installer was asked for
	// ("tBLASTx", "PASTA", "HyPhy").
	MissingProgs []string
}

// Validate reports every invalid field.
func (r *ConfigRecord) Validate() error {
	var errs *multierror.Error
	if strings.TrimSpace(r.Base) == "" {
		errs = multierror.Append(errs, errors.New("base directory is required"))
	}
	if r.EvalThreshold <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("e-value threshold must be positive, got %g", r.EvalThreshold))
	}
	if r.MissingThreshold < 0 || r.MissingThreshold > 1 {
		errs = multierror.Append(errs, fmt.Errorf("missing threshold must be within [0, 1], got %g", r.MissingThreshold))
	}
	return errs.ErrorOrNil()
}

func (r *ConfigRecord) toMap() map[string]string {
	return map[string]string{
		KeyBase:             r.Base,
		KeyDepsDir:          r.DepsDir,
		KeyTargetSpecies:    r.TargetSpecies,
		KeyEvalThreshold:    strconv.FormatFloat(r.EvalThreshold, 'g', -1, 64),
		KeyMissingThreshold: strconv.FormatFloat(r.MissingThreshold, 'g', -1, 64),
		KeyBash:             r.Bash,
		KeyGzip:             r.Gzip,
		KeySum:              r.Sum,
		KeyTBlastX:          r.TBlastX,
		KeyPasta:            r.Pasta,
		KeyHyPhy:            r.HyPhy,
		KeyMissingProgs:     strings.Join(r.MissingProgs, ","),
	}
}

// dotenvEscaper escapes a value for a double-quoted line that godotenv.Read
// turns back into the same string.
var dotenvEscaper = strings.NewReplacer(
	`\`, `\\`,
	"\n", `\n`,
	"\r", `\r`,
	`"`, `\"`,
	"!", `\!`,
	"$", `\$`,
	"`", "\\`",
)

// marshalRecord renders m as sorted KEY="value" lines. Every value is
// quoted, so strings such as "0123" are not rewritten as integers.
func marshalRecord(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf(`%s="%s"`, k, dotenvEscaper.Replace(m[k])))
	}
	return strings.Join(lines, "\n")
}

func recordFromMap(m map[string]string) (*ConfigRecord, error) {
	r := &ConfigRecord{
		Base:          m[KeyBase],
		DepsDir:       m[KeyDepsDir],
		TargetSpecies: m[KeyTargetSpecies],
		Bash:          m[KeyBash],
		Gzip:          m[KeyGzip],
		Sum:           m[KeySum],
		TBlastX:       m[KeyTBlastX],
		Pasta:         m[KeyPasta],
		HyPhy:         m[KeyHyPhy],
	}

	var err error
	if r.EvalThreshold, err = parseFloat(m, KeyEvalThreshold); err != nil {
		return nil, err
	}
	if r.MissingThreshold, err = parseFloat(m, KeyMissingThreshold); err != nil {
		return nil, err
	}
	if progs := m[KeyMissingProgs]; progs != "" {
		r.MissingProgs = strings.Split(progs, ",")
	}
	return r, nil
}

func parseFloat(m map[string]string, key string) (float64, error) {
	raw, ok := m[key]
	if !ok {
		return 0, fmt.Errorf("missing key %s", key)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

// writeRecord replaces path with r, going through a temporary file in the
// same directory. It reports whether a previous file was overwritten.
func writeRecord(path string, r *ConfigRecord) (bool, error) {
	content := marshalRecord(r.toMap())

	_, statErr := os.Stat(path)
	existed := statErr == nil

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return existed, fmt.Errorf("failed to create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".config-*")
	if err != nil {
		return existed, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	_, err = tmp.WriteString(content + "\n")
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return existed, fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return existed, fmt.Errorf("failed to set config permissions: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return existed, fmt.Errorf("failed to move config into place: %w", err)
	}
	return existed, nil
}

// ReadConfig loads a configuration file written by WriteConfig.
func ReadConfig(path string) (*ConfigRecord, error) {
	m, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return recordFromMap(m)
}
