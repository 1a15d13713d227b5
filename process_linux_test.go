// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package uxio_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"code.hybscloud.com/uxio"
)

const shPath = "/bin/sh"

func TestSpawn_ExitZero(t *testing.T) {
	err := uxio.Run(context.Background(), func(sw *uxio.Switch) error {
		p, err := uxio.Spawn(sw, []string{shPath, "-c", "exit 0"})
		require.NoError(t, err)
		st, err := p.Wait(context.Background())
		require.NoError(t, err)
		assert.True(t, st.Exited())
		assert.True(t, st.Success())
		assert.Equal(t, 0, st.Code())
		assert.Equal(t, "exited 0", st.String())
		assert.True(t, p.Reaped())
		return nil
	})
	require.NoError(t, err)
}

func TestSpawn_ExitCode(t *testing.T) {
	err := uxio.Run(context.Background(), func(sw *uxio.Switch) error {
		p, err := uxio.Spawn(sw, []string{shPath, "-c", "exit 7"})
		require.NoError(t, err)
		st, err := p.Wait(context.Background())
		require.NoError(t, err)
		assert.True(t, st.Exited())
		assert.False(t, st.Success())
		assert.Equal(t, 7, st.Code())
		assert.Equal(t, "exited 7", st.String())
		return nil
	})
	require.NoError(t, err)
}

func TestSpawn_SignalTermination(t *testing.T) {
	err := uxio.Run(context.Background(), func(sw *uxio.Switch) error {
		p, err := uxio.Spawn(sw, []string{shPath, "-c", "sleep 30"})
		require.NoError(t, err)
		require.NoError(t, p.Signal(unix.SIGTERM))
		st, err := p.Wait(context.Background())
		require.NoError(t, err)
		assert.True(t, st.Signaled())
		assert.Equal(t, unix.SIGTERM, st.Signal())
		assert.Equal(t, "signaled SIGTERM", st.String())
		return nil
	})
	require.NoError(t, err)
}

func TestSpawn_MissingPath(t *testing.T) {
	err := uxio.Run(context.Background(), func(sw *uxio.Switch) error {
		_, serr := uxio.Spawn(sw, []string{"/nonexistent-binary-for-this-test"})
		var se *uxio.SpawnError
		require.ErrorAs(t, serr, &se)
		assert.True(t, uxio.IsSpawn(serr))
		assert.ErrorIs(t, serr, unix.ENOENT)
		assert.Equal(t, "/nonexistent-binary-for-this-test", se.Path)
		return nil
	})
	require.NoError(t, err)
}

func TestSpawn_EmptyArgv(t *testing.T) {
	err := uxio.Run(context.Background(), func(sw *uxio.Switch) error {
		_, serr := uxio.Spawn(sw, nil)
		var se *uxio.SpawnError
		require.ErrorAs(t, serr, &se)
		assert.ErrorIs(t, serr, unix.EINVAL)
		return nil
	})
	require.NoError(t, err)
}

func TestSpawn_CancelledSwitch(t *testing.T) {
	cause := errors.New("shutting down")
	err := uxio.Run(context.Background(), func(sw *uxio.Switch) error {
		sw.Cancel(cause)
		_, serr := uxio.Spawn(sw, []string{shPath, "-c", "exit 0"})
		assert.True(t, uxio.IsCancelled(serr))
		return nil
	})
	assert.ErrorIs(t, err, cause)
}

func TestSignal_AfterReapIsNoop(t *testing.T) {
	err := uxio.Run(context.Background(), func(sw *uxio.Switch) error {
		p, err := uxio.Spawn(sw, []string{shPath, "-c", "exit 0"})
		require.NoError(t, err)
		_, err = p.Wait(context.Background())
		require.NoError(t, err)
		assert.NoError(t, p.Signal(unix.SIGTERM))
		return nil
	})
	require.NoError(t, err)
}

func TestProcess_WaitHonorsContext(t *testing.T) {
	err := uxio.Run(context.Background(), func(sw *uxio.Switch) error {
		p, err := uxio.Spawn(sw, []string{shPath, "-c", "sleep 30"})
		require.NoError(t, err)
		short, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, werr := p.Wait(short)
		require.ErrorIs(t, werr, context.DeadlineExceeded)
		require.NoError(t, p.Signal(unix.SIGKILL))
		st, werr := p.Wait(context.Background())
		require.NoError(t, werr)
		assert.True(t, st.Signaled())
		return nil
	})
	require.NoError(t, err)
}

func TestRelease_ForceReapsRunningChild(t *testing.T) {
	var p *uxio.Process
	err := uxio.Run(context.Background(), func(sw *uxio.Switch) error {
		var serr error
		p, serr = uxio.Spawn(sw, []string{shPath, "-c", "sleep 30"})
		require.NoError(t, serr)
		return nil
	})
	require.NoError(t, err)
	require.True(t, p.Reaped())
	st, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Signaled())
	assert.Equal(t, unix.SIGKILL, st.Signal())
	assert.Equal(t, "signaled SIGKILL", st.String())
}

func TestSpawn_StdoutRedirected(t *testing.T) {
	err := uxio.Run(context.Background(), func(sw *uxio.Switch) error {
		r, w, err := uxio.Pipe(sw)
		require.NoError(t, err)
		p, err := uxio.Spawn(sw, []string{shPath, "-c", "printf foobar"},
			uxio.WithStdio(nil, w, nil))
		require.NoError(t, err)
		// Drop the parent's copy so end of input propagates when the child
		// exits.
		require.NoError(t, w.Close())
		assert.Equal(t, "foobar", string(drainFD(t, r)))
		st, err := p.Wait(context.Background())
		require.NoError(t, err)
		assert.True(t, st.Success())
		return nil
	})
	require.NoError(t, err)
}

func TestSpawn_ExtraFiles(t *testing.T) {
	err := uxio.Run(context.Background(), func(sw *uxio.Switch) error {
		r, w, err := uxio.Pipe(sw)
		require.NoError(t, err)
		p, err := uxio.Spawn(sw, []string{shPath, "-c", "printf ok >&3"},
			uxio.WithExtraFiles(w))
		require.NoError(t, err)
		require.NoError(t, w.Close())
		assert.Equal(t, "ok", string(drainFD(t, r)))
		st, err := p.Wait(context.Background())
		require.NoError(t, err)
		assert.True(t, st.Success())
		return nil
	})
	require.NoError(t, err)
}

func TestSpawn_NilExtraFileRejected(t *testing.T) {
	err := uxio.Run(context.Background(), func(sw *uxio.Switch) error {
		_, serr := uxio.Spawn(sw, []string{shPath, "-c", "exit 0"},
			uxio.WithExtraFiles(nil))
		require.Error(t, serr)
		assert.ErrorIs(t, serr, unix.EBADF)
		return nil
	})
	require.NoError(t, err)
}

func TestSpawn_WithDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "marker.txt"), []byte("quux"), 0o644))
	err := uxio.Run(context.Background(), func(sw *uxio.Switch) error {
		r, w, err := uxio.Pipe(sw)
		require.NoError(t, err)
		p, err := uxio.Spawn(sw, []string{shPath, "-c", "cat marker.txt"},
			uxio.WithDir(dir), uxio.WithStdio(nil, w, nil))
		require.NoError(t, err)
		require.NoError(t, w.Close())
		assert.Equal(t, "quux", string(drainFD(t, r)))
		st, err := p.Wait(context.Background())
		require.NoError(t, err)
		assert.True(t, st.Success())
		return nil
	})
	require.NoError(t, err)
}

func TestSpawn_WithDirMissingFailsSynchronously(t *testing.T) {
	err := uxio.Run(context.Background(), func(sw *uxio.Switch) error {
		_, serr := uxio.Spawn(sw, []string{shPath, "-c", "exit 0"},
			uxio.WithDir("/nonexistent-dir-for-this-test"))
		var se *uxio.SpawnError
		require.ErrorAs(t, serr, &se)
		assert.ErrorIs(t, serr, unix.ENOENT)
		return nil
	})
	require.NoError(t, err)
}

func TestSpawn_WithEnv(t *testing.T) {
	err := uxio.Run(context.Background(), func(sw *uxio.Switch) error {
		r, w, err := uxio.Pipe(sw)
		require.NoError(t, err)
		p, err := uxio.Spawn(sw, []string{shPath, "-c", `printf %s "$UXIO_MARK"`},
			uxio.WithEnv([]string{"UXIO_MARK=quux", "PATH=/usr/bin:/bin"}),
			uxio.WithStdio(nil, w, nil))
		require.NoError(t, err)
		require.NoError(t, w.Close())
		assert.Equal(t, "quux", string(drainFD(t, r)))
		_, err = p.Wait(context.Background())
		require.NoError(t, err)
		return nil
	})
	require.NoError(t, err)
}

func TestSpawn_InheritsEnvironmentByDefault(t *testing.T) {
	t.Setenv("UXIO_INHERITED", "flag")
	err := uxio.Run(context.Background(), func(sw *uxio.Switch) error {
		r, w, err := uxio.Pipe(sw)
		require.NoError(t, err)
		p, err := uxio.Spawn(sw, []string{shPath, "-c", `printf %s "$UXIO_INHERITED"`},
			uxio.WithStdio(nil, w, nil))
		require.NoError(t, err)
		require.NoError(t, w.Close())
		assert.Equal(t, "flag", string(drainFD(t, r)))
		_, err = p.Wait(context.Background())
		require.NoError(t, err)
		return nil
	})
	require.NoError(t, err)
}
