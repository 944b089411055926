package graph

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/kebairia/neoback/internal/logger"
)

// ErrTimeout is the cause attached to contexts bounding admin tool runs.
var ErrTimeout = errors.New("operation timed out")

// Admin wraps the database's native admin tool. Dumps guarantee a consistent
// snapshot without halting the database; loads require the target database
// to be stopped first.
type Admin struct {
	binPath string
	log     logger.Logger
}

// NewAdmin returns an Admin exec-ing the tool at binPath ("neo4j-admin" is
// resolved from PATH when no directory is given).
func NewAdmin(binPath string, log logger.Logger) *Admin {
	if binPath == "" {
		binPath = "neo4j-admin"
	}
	if log == nil {
		log = logger.Global()
	}
	return &Admin{binPath: binPath, log: log}
}

// DumpTo streams a full dump of the named database into w.
func (a *Admin) DumpTo(ctx context.Context, database string, w io.Writer) error {
	args := []string{"database", "dump", database, "--to-stdout"}

	cmd := exec.CommandContext(ctx, a.binPath, args...)
	cmd.Stdout = w

	tail := newTailWriter(2048)
	cmd.Stderr = tail

	a.log.Debug("running admin dump", "bin", a.binPath, "database", database)

	if err := cmd.Run(); err != nil {
		if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
			err = fmt.Errorf("%w: %v", cause, err)
		}
		return fmt.Errorf("admin dump of %q failed: %w%s", database, err, tail.suffix())
	}
	return nil
}

// LoadFrom streams a dump from r into the named database, replacing its
// contents. The database must be stopped.
func (a *Admin) LoadFrom(ctx context.Context, database string, r io.Reader) error {
	args := []string{"database", "load", database, "--from-stdin", "--overwrite-destination=true"}

	cmd := exec.CommandContext(ctx, a.binPath, args...)
	cmd.Stdin = r
	cmd.Stdout = io.Discard

	tail := newTailWriter(2048)
	cmd.Stderr = tail

	a.log.Debug("running admin load", "bin", a.binPath, "database", database)

	if err := cmd.Run(); err != nil {
		if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
			err = fmt.Errorf("%w: %v", cause, err)
		}
		return fmt.Errorf("admin load into %q failed: %w%s", database, err, tail.suffix())
	}
	return nil
}

// tailWriter keeps the last max bytes written. The admin tool reports
// progress on stderr; only the tail matters for error detail.
type tailWriter struct {
	max int
	buf []byte
}

func newTailWriter(max int) *tailWriter {
	return &tailWriter{max: max}
}

func (t *tailWriter) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}
	return len(p), nil
}

func (t *tailWriter) suffix() string {
	s := strings.TrimSpace(string(t.buf))
	if s == "" {
		return ""
	}
	return ": " + s
}
