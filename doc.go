// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package uxio

// Package uxio provides the OS-facing core of a structured-concurrency I/O
// runtime: close-aware descriptor guards, a nonblocking retry engine, switch
// lifetimes with ordered release hooks, child process supervision, and a
// layered byte-transfer selector.
//
// Descriptor guards
//   - FD wraps a raw descriptor with a use count and a closed flag. Close is
//     idempotent and never interrupts an in-flight kernel call; the last use
//     to finish performs the real close. After Close wins the race, every
//     later use fails with ErrClosed instead of touching a possibly reused
//     descriptor number.
//
// Retry engine
//   - Every kernel call site follows one algorithm: yield once, attempt the
//     syscall, retry on EINTR, and on EAGAIN suspend on a readiness Waiter
//     before retrying. Callers never observe EINTR or would-block.
//   - Descriptors marked blocking take a best-effort readiness wait before
//     the first attempt. This is inherently racy under contention (another
//     consumer can drain the descriptor between the wait and the syscall)
//     and is kept only for descriptors that cannot be made non-blocking,
//     such as inherited terminals.
//
// Switches
//   - Run gives the body a Switch; on every exit path daemons are cancelled
//     and joined, then release hooks run in reverse registration order.
//     Check is the cancellation fence: it fails once releasing begins.
//
// Processes
//   - Spawn starts a child whose exec failure is reported synchronously as a
//     *SpawnError. A reaper daemon collects the exit status exactly once;
//     Signal and reaping serialize on one lock so a signal is never sent to
//     a reused process ID.
//
// Transfer
//   - Copy picks the cheapest strategy the descriptor pair supports:
//     sendfile/splice first, then a pooled staging chunk, then the generic
//     iox copy loop. Strategy misses fall through without redoing bytes.
//
// The package is Linux-first: the kernel-facing files build on Linux only,
// while the switch, future, pool and error layers are portable.
