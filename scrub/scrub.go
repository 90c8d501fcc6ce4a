// Package scrub removes known credential literals from a single file,
// replacing them with placeholder expressions.
//
// The scrub is meant to run once per commit inside a history rewrite, so it
// never fails its caller: a missing file, a file without secrets and any I/O
// or decoding error all complete with a Result, and only a successful rewrite
// reports Changed.
package scrub

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"go.uber.org/zap"
)

var errNotUTF8 = errors.New("content is not valid UTF-8")

// Scrubber applies a Config to files on a billy filesystem.
type Scrubber struct {
	fs     billy.Filesystem
	logger *zap.Logger
}

// New returns a Scrubber operating on fs. A nil logger disables logging.
func New(fs billy.Filesystem, logger *zap.Logger) *Scrubber {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scrubber{fs: fs, logger: logger}
}

// NewOS returns a Scrubber rooted at dir on the host filesystem.
func NewOS(dir string, logger *zap.Logger) *Scrubber {
	return New(osfs.New(dir), logger)
}

// Scrub runs cfg against the current working directory.
func Scrub(cfg Config) Result {
	return NewOS(".", nil).Scrub(cfg)
}

// quotes are the string delimiters stripped together with a secret literal,
// so that "AKIA..." becomes an expression rather than a string containing one.
var quotes = []string{`"`, `'`, "`"}

// Transform replaces every occurrence of every rule's secret when at least one
// of them is present. Rules are applied in order, including rules whose
// secret was not found. A secret that makes up a whole quoted string is
// replaced together with its quotes. The second return value reports whether
// anything was present.
func Transform(content string, rules []Rule) (string, bool) {
	found := false
	for _, r := range rules {
		if r.Secret != "" && strings.Contains(content, r.Secret) {
			found = true
			break
		}
	}
	if !found {
		return content, false
	}
	for _, r := range rules {
		if r.Secret == "" {
			continue
		}
		for _, q := range quotes {
			content = strings.ReplaceAll(content, q+r.Secret+q, r.Replacement)
		}
		content = strings.ReplaceAll(content, r.Secret, r.Replacement)
	}
	return content, true
}

// Scrub rewrites cfg.TargetPath if it holds any of the configured secrets.
func (s *Scrubber) Scrub(cfg Config) Result {
	res := s.scrub(cfg)
	log := s.logger.With(zap.String("path", cfg.TargetPath), zap.Stringer("outcome", res.Outcome))
	switch res.Outcome {
	case Rewritten:
		log.Info("scrubbed secrets")
	case Failed:
		log.Warn("scrub skipped after error", zap.Error(res.Err))
	default:
		log.Debug("nothing to scrub")
	}
	return res
}

func (s *Scrubber) scrub(cfg Config) Result {
	if err := cfg.Validate(); err != nil {
		return Result{Outcome: Failed, Err: err}
	}
	raw, err := util.ReadFile(s.fs, cfg.TargetPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Result{Outcome: Absent}
		}
		return Result{Outcome: Failed, Err: fmt.Errorf("read %s: %w", cfg.TargetPath, err)}
	}
	if !utf8.Valid(raw) {
		return Result{Outcome: Failed, Err: fmt.Errorf("decode %s: %w", cfg.TargetPath, errNotUTF8)}
	}

	updated, found := Transform(string(raw), cfg.Rules)
	if !found {
		return Result{Outcome: Unchanged}
	}

	if err := s.writeInPlace(cfg.TargetPath, []byte(updated)); err != nil {
		return Result{Outcome: Failed, Err: err}
	}
	return Result{Outcome: Rewritten}
}

// Inspect counts the occurrences of each rule's secret without writing.
func (s *Scrubber) Inspect(cfg Config) (Report, error) {
	if err := cfg.Validate(); err != nil {
		return Report{}, err
	}
	report := Report{Path: cfg.TargetPath}
	raw, err := util.ReadFile(s.fs, cfg.TargetPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return report, nil
		}
		return Report{}, fmt.Errorf("read %s: %w", cfg.TargetPath, err)
	}
	report.Exists = true
	content := string(raw)
	for _, r := range cfg.Rules {
		report.Counts = append(report.Counts, RuleCount{
			Rule:        r,
			Occurrences: strings.Count(content, r.Secret),
		})
	}
	return report, nil
}

// ReadTarget returns the content of the configured target.
func (s *Scrubber) ReadTarget(cfg Config) ([]byte, error) {
	return util.ReadFile(s.fs, cfg.TargetPath)
}

// writeInPlace truncates and rewrites path. The file keeps its mode, owner
// and inode, so hard links and symlinks to it see the new content.
func (s *Scrubber) writeInPlace(path string, data []byte) error {
	f, err := s.fs.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	n, err := f.Write(data)
	if err == nil && n < len(data) {
		err = io.ErrShortWrite
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
