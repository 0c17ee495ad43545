package logger

import (
	"fmt"
	"os"
	"regexp"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

var nonWordChars = regexp.MustCompile(`\W`)

// logFileNames returns the all-levels and errors-only file paths for the
// configured domain and environment.
func logFileNames(opts Options) (all, errs string) {
	base := opts.Path + nonWordChars.ReplaceAllString(opts.Domain, "_") + "_" + opts.Env
	return base + ".log", base + ".error.log"
}

// buildFile adds the two file sinks. A missing target folder is reported
// through the streams built so far and the sinks are skipped. With rotation
// enabled the same files are written through periodic rotators instead.
func buildFile(c *core) error {
	info, err := os.Stat(c.opts.Path)
	if err != nil || !info.IsDir() {
		c.warn("Target log folder does not exist: " + c.opts.Path)
		return nil
	}

	allPath, errPath := logFileNames(c.opts)
	if c.opts.Rotation.Enabled {
		period, err := ParseRotationPeriod(c.opts.Rotation.Period)
		if err != nil {
			return err
		}
		c.addStream(&Stream{
			Name:  "rotation-all",
			Kind:  KindRotatingFile,
			Level: c.level,
			w:     newPeriodicRotator(allPath, period, c.opts.Rotation.Count, c.opts.clock),
		})
		c.addStream(&Stream{
			Name:  "rotation-errors",
			Kind:  KindRotatingFile,
			Level: LevelError,
			w:     newPeriodicRotator(errPath, period, c.opts.Rotation.Count, c.opts.clock),
		})
		return nil
	}

	allFile, err := openLogFile(allPath)
	if err != nil {
		c.warn(err.Error())
		return nil
	}
	errFile, err := openLogFile(errPath)
	if err != nil {
		_ = allFile.Close()
		c.warn(err.Error())
		return nil
	}
	c.addStream(&Stream{Name: "file-all", Kind: KindFile, Level: c.level, w: allFile})
	c.addStream(&Stream{Name: "file-errors", Kind: KindFile, Level: LevelError, w: errFile})
	return nil
}

func openLogFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //#nosec G302 -- log files are meant to be readable
	if err != nil {
		return nil, fmt.Errorf("cannot open log file %s: %w", path, err)
	}
	return f, nil
}

// periodicRotator rotates a lumberjack file whenever a period boundary has
// passed since the last write, keeping count old files.
type periodicRotator struct {
	mu     sync.Mutex
	lj     *lumberjack.Logger
	period time.Duration
	next   time.Time
	now    func() time.Time
}

func newPeriodicRotator(path string, period time.Duration, count int, now func() time.Time) *periodicRotator {
	if now == nil {
		now = time.Now
	}
	r := &periodicRotator{
		lj: &lumberjack.Logger{
			Filename:   path,
			MaxBackups: count,
			LocalTime:  true,
		},
		period: period,
		now:    now,
	}
	r.next = r.boundaryAfter(now())
	return r
}

func (r *periodicRotator) boundaryAfter(t time.Time) time.Time {
	return t.Truncate(r.period).Add(r.period)
}

func (r *periodicRotator) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if now := r.now(); !now.Before(r.next) {
		if err := r.lj.Rotate(); err != nil {
			return 0, err
		}
		r.next = r.boundaryAfter(now)
	}
	return r.lj.Write(p)
}

func (r *periodicRotator) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lj.Close()
}
