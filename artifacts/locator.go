// Package artifacts finds the files a test-runner leaves behind: videos,
// trace archives and the HTML report.
package artifacts

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	VideoExtension = ".webm"
	TraceExtension = ".zip"
	TraceName      = "trace"
	ReportIndex    = "index.html"
)

var nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]+`)

// Normalize lowercases s and collapses every run of non-alphanumeric
// characters to a single "-", trimming leading and trailing separators.
func Normalize(s string) string {
	return strings.Trim(nonAlphanumeric.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

// Query constrains a lookup. Empty fields match everything.
type Query struct {
	Extension    string
	NameContains string
	SpecKey      string
}

// Locator answers "latest artifact" queries by walking the results tree on
// every call. There is no index; files written by an in-flight run are picked
// up as soon as they appear.
type Locator struct {
	logger     zerolog.Logger
	resultsDir string
	reportDir  string
	specSuffix string
}

func NewLocator(logger zerolog.Logger, resultsDir, reportDir, specSuffix string) *Locator {
	return &Locator{
		logger:     logger,
		resultsDir: resultsDir,
		reportDir:  reportDir,
		specSuffix: specSuffix,
	}
}

func (l *Locator) ResultsDir() string { return l.resultsDir }

func (l *Locator) ReportDir() string { return l.reportDir }

// SpecKey derives the path-matching key of a spec: its base name without the
// spec suffix, normalized.
func (l *Locator) SpecKey(spec string) string {
	base := filepath.Base(filepath.ToSlash(spec))
	if l.specSuffix != "" {
		base = strings.TrimSuffix(base, l.specSuffix)
	}
	return Normalize(base)
}

// Latest returns the most recently modified regular file matching q. When two
// files share a modification time, the first one in walk order wins.
// A missing or partially written tree yields ok == false, never an error.
func (l *Locator) Latest(q Query) (path string, ok bool) {
	var bestTime time.Time
	ext := strings.ToLower(q.Extension)
	name := strings.ToLower(q.NameContains)

	err := filepath.WalkDir(l.resultsDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			// Directories can vanish under a running test; skip what we can't read.
			if d != nil && d.IsDir() && p != l.resultsDir {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		lower := strings.ToLower(d.Name())
		if ext != "" && !strings.HasSuffix(lower, ext) {
			return nil
		}
		if name != "" && !strings.Contains(lower, name) {
			return nil
		}
		if q.SpecKey != "" {
			// Only the part below the results root carries runner metadata.
			rel, err := filepath.Rel(l.resultsDir, p)
			if err != nil || !strings.Contains(Normalize(rel), q.SpecKey) {
				return nil
			}
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if !ok || info.ModTime().After(bestTime) {
			path, bestTime, ok = p, info.ModTime(), true
		}
		return nil
	})
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		l.logger.Debug().Err(err).Str("dir", l.resultsDir).Msg("Artifact scan stopped early")
	}
	return path, ok
}

// LatestVideo returns the newest video recorded for spec.
func (l *Locator) LatestVideo(spec string) (string, bool) {
	return l.Latest(Query{Extension: VideoExtension, SpecKey: l.SpecKey(spec)})
}

// LatestTrace returns the newest trace archive recorded for spec.
func (l *Locator) LatestTrace(spec string) (string, bool) {
	return l.Latest(Query{Extension: TraceExtension, NameContains: TraceName, SpecKey: l.SpecKey(spec)})
}

// LatestAny returns the newest file with the given extension regardless of spec.
func (l *Locator) LatestAny(ext string) (string, bool) {
	return l.Latest(Query{Extension: ext})
}

// ReportAvailable reports whether an HTML report has been generated.
func (l *Locator) ReportAvailable() bool {
	info, err := os.Stat(filepath.Join(l.reportDir, ReportIndex))
	return err == nil && info.Mode().IsRegular()
}
