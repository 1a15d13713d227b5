// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package uxio

import (
	"errors"

	"code.hybscloud.com/iox"
)

// Outcome classifies an operation result against uxio's error taxonomy.
//
// OutcomeOK:        success.
// OutcomeClosed:    the guarded descriptor was closed underneath the call.
// OutcomeCancelled: the owning switch released or was cancelled mid-call.
// OutcomeFailure:   any other error (kernel failures, spawn failures, EOF
//                   when the caller chooses not to absorb it).
type Outcome uint8

const (
	OutcomeFailure Outcome = iota
	OutcomeOK
	OutcomeClosed
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "OK"
	case OutcomeClosed:
		return "Closed"
	case OutcomeCancelled:
		return "Cancelled"
	default:
		return "Failure"
	}
}

// IsClosed reports whether err means the guarded descriptor was already
// closed. It returns true for ErrClosed and wrappers (via errors.Is).
func IsClosed(err error) bool { return errors.Is(err, ErrClosed) }

// IsCancelled reports whether err means the owning switch began releasing
// before the call completed. It returns true for ErrCancelled and wrappers
// (via errors.Is).
func IsCancelled(err error) bool { return errors.Is(err, ErrCancelled) }

// IsWouldBlock reports the iox would-block semantic. Descriptor operations
// absorb would-block inside the retry engine, so this matters mainly to
// custom Waiter implementations and to synthetic streams fed into Copy.
func IsWouldBlock(err error) bool { return iox.IsWouldBlock(err) }

// IsSpawn reports whether err came from a failed process spawn (the
// executable missing, not executable, or the child-side setup failing).
func IsSpawn(err error) bool {
	var se *SpawnError
	return errors.As(err, &se)
}

// Classify maps err to an Outcome. Use when a compact switch is preferred.
//
// Note: classification depends solely on the error value the caller passes;
// Classify does not reinterpret standard library sentinels like io.EOF.
func Classify(err error) Outcome {
	if err == nil {
		return OutcomeOK
	}
	if IsClosed(err) {
		return OutcomeClosed
	}
	if IsCancelled(err) {
		return OutcomeCancelled
	}
	return OutcomeFailure
}
