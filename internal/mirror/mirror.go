// Package mirror forwards a repository to its configured mirrors with
// git push --mirror. Runs are serialized through a lock file and
// skipped entirely when the mirror host fails a liveness probe, so a
// dead peer does not pile up hung pushes.
package mirror

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"
)

// ErrLocked reports that another mirror run holds the lock file.
var ErrLocked = errors.New("another mirror run is in progress")

const defaultTimeout = 5 * time.Minute

// Remote is one mirror destination.
type Remote struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// ProbeConfig describes the SSH liveness probe. An empty Host
// disables probing.
type ProbeConfig struct {
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	User    string `yaml:"user"`
	Keyfile string `yaml:"keyfile"`
	Timeout int    `yaml:"timeout"`
}

// Config drives one mirror run.
type Config struct {
	Lockfile string      `yaml:"lockfile"`
	Timeout  int         `yaml:"timeout"`
	Remotes  []Remote    `yaml:"remotes"`
	Probe    ProbeConfig `yaml:"probe"`
}

// Runner pushes one repository to all configured remotes.
type Runner struct {
	cfg   Config
	dir   string
	probe func(ctx context.Context) error
	push  func(ctx context.Context, rem Remote) error
}

// New builds a runner for the repository at dir.
func New(cfg Config, dir string) *Runner {
	r := &Runner{cfg: cfg, dir: dir}
	r.probe = sshProbe(cfg.Probe)
	r.push = func(ctx context.Context, rem Remote) error {
		return gitPush(ctx, dir, rem)
	}
	return r
}

// Run probes, locks and pushes. Remotes are pushed concurrently, each
// under its own timeout; one remote failing does not cancel the
// others. Returns ErrLocked when a live lock is held.
func (r *Runner) Run(ctx context.Context) error {
	if len(r.cfg.Remotes) == 0 {
		return nil
	}

	release, err := r.lock()
	if err != nil {
		return err
	}
	defer release()

	if r.cfg.Probe.Host != "" {
		if err := r.probe(ctx); err != nil {
			return fmt.Errorf("mirror host not reachable: %w", err)
		}
	}

	var g errgroup.Group
	for _, rem := range r.cfg.Remotes {
		rem := rem
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(ctx, r.timeout())
			defer cancel()
			return r.push(pctx, rem)
		})
	}
	return g.Wait()
}

func (r *Runner) timeout() time.Duration {
	if r.cfg.Timeout > 0 {
		return time.Duration(r.cfg.Timeout) * time.Second
	}
	return defaultTimeout
}

func (r *Runner) lockPath() string {
	if r.cfg.Lockfile != "" {
		return r.cfg.Lockfile
	}
	return filepath.Join(r.dir, "mirror.lock")
}

// lock takes the lock file with an exclusive create. A lock older
// than twice the push timeout belongs to a run that died or hung and
// is taken over.
func (r *Runner) lock() (func(), error) {
	path := r.lockPath()
	for attempt := 0; ; attempt++ {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			f.WriteString(strconv.Itoa(os.Getpid()))
			f.Close()
			return func() { os.Remove(path) }, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("lock %s: %w", path, err)
		}

		fi, statErr := os.Stat(path)
		if statErr != nil || time.Since(fi.ModTime()) < 2*r.timeout() || attempt > 0 {
			return nil, fmt.Errorf("%w (%s)", ErrLocked, path)
		}
		os.Remove(path)
	}
}

func gitPush(ctx context.Context, dir string, rem Remote) error {
	name := rem.Name
	if name == "" {
		name = rem.URL
	}
	cmd := exec.CommandContext(ctx, "git", "-C", dir, "push", "--mirror", rem.URL)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("push %s: %v: %s", name, err, bytes.TrimSpace(out))
	}
	return nil
}
