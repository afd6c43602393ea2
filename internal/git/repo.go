package git

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

// ErrNotGitRepo indicates the directory is not a git repository.
var ErrNotGitRepo = errors.New("not a git repository")

// ErrObjectNotFound indicates the object does not exist in the repository.
var ErrObjectNotFound = errors.New("object not found")

// ErrCorruptObject indicates an object exists but could not be parsed.
var ErrCorruptObject = errors.New("corrupt object")

// ErrNotCommit indicates an object does not resolve to a commit.
var ErrNotCommit = errors.New("not a commit")

// ErrBadSignature indicates gpg rejected an object's signature.
var ErrBadSignature = errors.New("bad signature")

// Tag chains deeper than this are treated as corrupt.
const maxTagDepth = 10

// Repo runs git plumbing against a single repository. Object reads go
// through one long-lived `cat-file --batch` subprocess; everything
// else is a short git invocation. Methods are safe for concurrent use.
type Repo struct {
	dir string

	mu    sync.Mutex
	batch *batchProc
}

// Open binds to the repository at dir. Returns ErrNotGitRepo if dir
// does not hold one.
func Open(dir string) (*Repo, error) {
	if dir == "" {
		dir = "."
	}
	cmd := exec.Command("git", "-C", dir, "rev-parse", "--git-dir")
	if _, err := cmd.Output(); err != nil {
		return nil, fmt.Errorf("%s: %w", dir, ErrNotGitRepo)
	}
	return &Repo{dir: dir}, nil
}

// Dir returns the directory the repository was opened at.
func (r *Repo) Dir() string { return r.dir }

// Close shuts down the batch subprocess, if one was started.
func (r *Repo) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.batch == nil {
		return nil
	}
	err := r.batch.stop()
	r.batch = nil
	return err
}

// run executes a git subcommand against the repository and returns its
// stdout. On failure stderr is folded into the error.
func (r *Repo) run(args ...string) ([]byte, error) {
	cmd := exec.Command("git", append([]string{"-C", r.dir}, args...)...)
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return nil, fmt.Errorf("git %s: %s", args[0], bytes.TrimSpace(exitErr.Stderr))
		}
		return nil, fmt.Errorf("git %s: %w", args[0], err)
	}
	return output, nil
}

// readObject fetches one raw object through the batch subprocess,
// starting it on first use. A protocol failure drops the subprocess so
// the next read starts a fresh one.
func (r *Repo) readObject(id OID) (string, []byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.batch == nil {
		b, err := startBatch(r.dir)
		if err != nil {
			return "", nil, err
		}
		r.batch = b
	}
	typ, data, err := r.batch.read(id)
	if err != nil && !errors.Is(err, ErrObjectNotFound) {
		r.batch.stop()
		r.batch = nil
	}
	return typ, data, err
}

// Commit reads and parses the commit named by id. The object must be
// a commit; use PeelToCommit to chase annotated tags.
func (r *Repo) Commit(id OID) (*Commit, error) {
	typ, data, err := r.readObject(id)
	if err != nil {
		return nil, err
	}
	if typ != "commit" {
		return nil, fmt.Errorf("object %s is a %s: %w", id, typ, ErrNotCommit)
	}
	return parseCommit(id, data)
}

// Tag reads and parses the annotated tag named by id.
func (r *Repo) Tag(id OID) (*Tag, error) {
	typ, data, err := r.readObject(id)
	if err != nil {
		return nil, err
	}
	if typ != "tag" {
		return nil, fmt.Errorf("object %s is a %s, not a tag", id, typ)
	}
	return parseTag(id, data)
}

// ObjectType returns the type of the object named by id.
func (r *Repo) ObjectType(id OID) (string, error) {
	typ, _, err := r.readObject(id)
	return typ, err
}

// PeelToCommit resolves id to a commit, following annotated tag
// chains. Returns ErrNotCommit if the chain ends somewhere else.
func (r *Repo) PeelToCommit(id OID) (*Commit, error) {
	cur := id
	for depth := 0; depth < maxTagDepth; depth++ {
		typ, data, err := r.readObject(cur)
		if err != nil {
			return nil, err
		}
		switch typ {
		case "commit":
			return parseCommit(cur, data)
		case "tag":
			tag, err := parseTag(cur, data)
			if err != nil {
				return nil, err
			}
			cur = tag.Object
		default:
			return nil, fmt.Errorf("object %s is a %s: %w", id, typ, ErrNotCommit)
		}
	}
	return nil, fmt.Errorf("tag chain at %s deeper than %d: %w", id, maxTagDepth, ErrCorruptObject)
}

// batchProc is one `git cat-file --batch` subprocess.
type batchProc struct {
	cmd *exec.Cmd
	in  io.WriteCloser
	out *bufio.Reader
}

func startBatch(dir string) (*batchProc, error) {
	cmd := exec.Command("git", "-C", dir, "cat-file", "--batch")
	in, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting cat-file: %w", err)
	}
	return &batchProc{cmd: cmd, in: in, out: bufio.NewReader(out)}, nil
}

func (b *batchProc) stop() error {
	b.in.Close()
	return b.cmd.Wait()
}

// read requests one object and returns its type and raw contents. The
// response is `<oid> <type> <size>\n<contents>\n`, or `<oid> missing\n`
// for an object the repository does not have.
func (b *batchProc) read(id OID) (string, []byte, error) {
	if _, err := io.WriteString(b.in, string(id)+"\n"); err != nil {
		return "", nil, fmt.Errorf("cat-file request: %w", err)
	}
	header, err := b.out.ReadString('\n')
	if err != nil {
		return "", nil, fmt.Errorf("cat-file response: %w", err)
	}
	fields := strings.Fields(header)
	if len(fields) == 2 && fields[1] == "missing" {
		return "", nil, fmt.Errorf("%s: %w", id, ErrObjectNotFound)
	}
	if len(fields) != 3 {
		return "", nil, fmt.Errorf("cat-file: unexpected header %q", strings.TrimSpace(header))
	}
	size, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil || size < 0 {
		return "", nil, fmt.Errorf("cat-file: unexpected header %q", strings.TrimSpace(header))
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(b.out, data); err != nil {
		return "", nil, fmt.Errorf("cat-file body: %w", err)
	}
	if _, err := b.out.Discard(1); err != nil {
		return "", nil, fmt.Errorf("cat-file body: %w", err)
	}
	return fields[1], data, nil
}
