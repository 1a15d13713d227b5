// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package uxio

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"code.hybscloud.com/iox"
	"golang.org/x/sys/unix"
)

// ExitStatus is how a child ended: a normal exit carrying a code, or a
// termination by signal.
type ExitStatus struct {
	ws unix.WaitStatus
}

// Exited reports whether the child called exit.
func (s ExitStatus) Exited() bool { return s.ws.Exited() }

// Code returns the exit code; meaningful only when Exited reports true.
func (s ExitStatus) Code() int { return s.ws.ExitStatus() }

// Signaled reports whether a signal terminated the child.
func (s ExitStatus) Signaled() bool { return s.ws.Signaled() }

// Signal returns the terminating signal; meaningful only when Signaled
// reports true.
func (s ExitStatus) Signal() unix.Signal { return s.ws.Signal() }

// Success reports a normal exit with code zero.
func (s ExitStatus) Success() bool { return s.ws.Exited() && s.ws.ExitStatus() == 0 }

func (s ExitStatus) String() string {
	switch {
	case s.ws.Exited():
		return "exited " + strconv.Itoa(s.ws.ExitStatus())
	case s.ws.Signaled():
		return "signaled " + unix.SignalName(s.ws.Signal())
	default:
		return "status " + strconv.Itoa(int(s.ws))
	}
}

// Process supervises one spawned child: Running until its status is
// collected, Reaped afterwards.
//
// The kernel reuses a process id the moment the status is collected, so a
// pid stops designating this child at that exact point. Every reap attempt
// and every signal attempt therefore serializes on one lock: a signal is
// sent only after confirming, under the lock, that the status is still
// uncollected. Without that window a concurrent reap could let the pid be
// recycled between the check and the kill, delivering the signal to an
// unrelated process.
type Process struct {
	sw   *Switch
	pid  int
	hook *Hook

	// reapMu covers the read-liveness-then-act window of both Signal and
	// status collection.
	reapMu sync.Mutex
	status Future[ExitStatus]
}

// SpawnOption customizes a child process before the exec.
type SpawnOption func(*spawnConfig)

type spawnConfig struct {
	dir    string
	env    []string
	stdin  *FD
	stdout *FD
	stderr *FD
	extra  []*FD
}

// WithDir runs the child with dir as its working directory. The chdir
// happens in the child before descriptor assignment and the exec; a bad
// directory therefore surfaces as a synchronous spawn failure.
func WithDir(dir string) SpawnOption { return func(c *spawnConfig) { c.dir = dir } }

// WithEnv replaces the child environment. A nil env inherits the parent's.
func WithEnv(env []string) SpawnOption { return func(c *spawnConfig) { c.env = env } }

// WithStdio redirects the child's standard streams to guarded descriptors;
// a nil stream inherits the parent's. The child shares the descriptor's
// open file description, including its file status flags, so a stream
// carved from Pipe is non-blocking on the child side too.
func WithStdio(stdin, stdout, stderr *FD) SpawnOption {
	return func(c *spawnConfig) {
		c.stdin = stdin
		c.stdout = stdout
		c.stderr = stderr
	}
}

// WithExtraFiles passes fds to the child as descriptors 3, 4, and so on, in
// order.
func WithExtraFiles(fds ...*FD) SpawnOption {
	return func(c *spawnConfig) { c.extra = append(c.extra, fds...) }
}

// Spawn starts args[0] with argument vector args, supervised by sw. The
// path is used as given; callers wanting PATH resolution resolve it first.
//
// The fork and exec are one atomic step from the caller's point of view: a
// close-on-exec pipe carries the child's setup errno back to the parent, so
// an empty read means the exec replaced the child image, and any bytes mean
// the child died before doing anything observable. That failure surfaces
// synchronously as a *SpawnError carrying the child-reported cause. Child
// setup runs in order: the working-directory change, descriptor assignment,
// the exec.
//
// On success a reaper runs as a daemon of sw and a release hook guarantees
// the child is killed and reaped if sw tears down before natural exit, so
// the exit status always resolves before sw finishes releasing and no
// switch leaves a zombie behind.
func Spawn(sw *Switch, args []string, opts ...SpawnOption) (*Process, error) {
	if len(args) == 0 || args[0] == "" {
		return nil, &SpawnError{Path: "", Err: unix.EINVAL}
	}
	if err := sw.Check(); err != nil {
		return nil, err
	}
	var cfg spawnConfig
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.env == nil {
		cfg.env = os.Environ()
	}

	files, unpin, err := cfg.childFiles()
	if err != nil {
		return nil, err
	}
	defer unpin()

	pid, _, err := syscall.StartProcess(args[0], args, &syscall.ProcAttr{
		Dir:   cfg.dir,
		Env:   cfg.env,
		Files: files,
	})
	if err != nil {
		return nil, &SpawnError{Path: args[0], Err: err}
	}

	p := &Process{sw: sw, pid: pid}
	p.hook = sw.OnRelease(p.forceReap)
	if derr := sw.Daemon(p.reapLoop); derr != nil {
		// The switch beat us to releasing; the hook above already ran (or
		// will run) and force-reaps the child, so nothing leaks.
		return nil, derr
	}
	return p, nil
}

// childFiles pins the descriptors the child inherits and maps them onto the
// child's slots 0..n. The pins keep every descriptor open across the fork
// even if a concurrent Close starts; unpin drops them once the fork is
// done.
func (c *spawnConfig) childFiles() (files []uintptr, unpin func(), err error) {
	held := make([]*FD, 0, 3+len(c.extra))
	unpin = func() {
		for _, fd := range held {
			fd.decref()
		}
	}
	pin := func(fd *FD, inherit int) (uintptr, error) {
		if fd == nil {
			return uintptr(inherit), nil
		}
		if err := fd.incref(); err != nil {
			return 0, err
		}
		held = append(held, fd)
		return uintptr(fd.sysfd), nil
	}
	files = make([]uintptr, 0, 3+len(c.extra))
	for i, fd := range []*FD{c.stdin, c.stdout, c.stderr} {
		raw, perr := pin(fd, i)
		if perr != nil {
			unpin()
			return nil, nil, perr
		}
		files = append(files, raw)
	}
	for _, fd := range c.extra {
		if fd == nil {
			unpin()
			return nil, nil, wrapOp("spawn", "", unix.EBADF)
		}
		raw, perr := pin(fd, -1)
		if perr != nil {
			unpin()
			return nil, nil, perr
		}
		files = append(files, raw)
	}
	return files, unpin, nil
}

// Pid returns the child's process id. Once the exit status resolves the
// number no longer designates this child.
func (p *Process) Pid() int { return p.pid }

// Reaped reports whether the exit status has been collected.
func (p *Process) Reaped() bool { return p.status.Resolved() }

// Wait parks until the exit status is collected or ctx is done. The status
// resolves exactly once, and always before the owning switch finishes
// releasing.
func (p *Process) Wait(ctx context.Context) (ExitStatus, error) {
	return p.status.Await(ctx)
}

// Signal sends sig to the child. The reap lock is held across the liveness
// check and the kill, so the signal can never chase a recycled pid: either
// the status is still uncollected and the pid is ours (a zombie at worst),
// or the child was reaped and Signal returns without issuing a syscall.
// Signalling a reaped child is a no-op, not an error.
func (p *Process) Signal(sig unix.Signal) error {
	p.reapMu.Lock()
	defer p.reapMu.Unlock()
	if p.status.Resolved() {
		return nil
	}
	if err := unix.Kill(p.pid, sig); err != nil {
		return wrapOp("kill", strconv.Itoa(p.pid), err)
	}
	return nil
}

// reapLoop is the daemon half of supervision: wait on the shared
// child-death rendezvous, then re-check this child. SIGCHLD coalesces
// across children, so a wake proves nothing by itself; the collect attempt
// is what decides. Taking the generation before collecting closes the race
// where the death lands between the collect and the wait.
func (p *Process) reapLoop(ctx context.Context) {
	for {
		gen := childDeaths().generation()
		if p.collect() {
			return
		}
		select {
		case <-gen:
		case <-ctx.Done():
			// The switch is releasing; its hook force-reaps.
			return
		}
	}
}

// collect makes one non-blocking reap attempt, resolving the status under
// the reap lock on success. The kernel permits at most one successful
// collection per child; the lock is still required so Signal cannot fire
// between the collection and the status resolving.
func (p *Process) collect() bool {
	p.reapMu.Lock()
	defer p.reapMu.Unlock()
	if p.status.Resolved() {
		return true
	}
	var ws unix.WaitStatus
	for {
		wpid, err := unix.Wait4(p.pid, &ws, unix.WNOHANG, nil)
		switch {
		case err == unix.EINTR:
			continue
		case err != nil:
			// ECHILD: some foreign code reaped our child. Resolve anyway so
			// waiters wake and Signal stops acting on a pid the kernel may
			// already have recycled.
			p.status.Resolve(ExitStatus{})
			return true
		case wpid == p.pid:
			p.status.Resolve(ExitStatus{ws: ws})
			return true
		default:
			return false
		}
	}
}

// forceReap runs when the owning switch releases before the child was
// reaped: kill, then collect. This is the one release hook that blocks, and
// only long enough for the SIGKILL to land; it is what keeps a torn-down
// switch from leaving a zombie.
func (p *Process) forceReap() {
	p.reapMu.Lock()
	resolved := p.status.Resolved()
	if !resolved {
		_ = unix.Kill(p.pid, unix.SIGKILL)
	}
	p.reapMu.Unlock()
	if resolved {
		return
	}
	var bo iox.Backoff
	for !p.collect() {
		bo.Wait()
	}
}

// deathWatch fans the process-wide SIGCHLD stream out to every reaper as
// close-and-replace generations. One closing generation may cover several
// deaths, and reapers tolerate that by re-validating their own pid.
type deathWatch struct {
	mu  sync.Mutex
	gen chan struct{}
}

var (
	deathsOnce sync.Once
	deaths     *deathWatch
)

// childDeaths starts the watcher on first use: the signal registration
// lives for the rest of the process, which is why it is not tied to any
// switch.
func childDeaths() *deathWatch {
	deathsOnce.Do(func() {
		w := &deathWatch{gen: make(chan struct{})}
		c := make(chan os.Signal, 1)
		signal.Notify(c, unix.SIGCHLD)
		go func() {
			for range c {
				w.broadcast()
			}
		}()
		deaths = w
	})
	return deaths
}

// generation returns the channel the next broadcast closes.
func (w *deathWatch) generation() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.gen
}

func (w *deathWatch) broadcast() {
	w.mu.Lock()
	close(w.gen)
	w.gen = make(chan struct{})
	w.mu.Unlock()
}
