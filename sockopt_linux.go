// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package uxio

import (
	"strconv"

	"golang.org/x/sys/unix"
)

// SockOptInt names one of the closed set of integer socket options the
// runtime manipulates. Each name resolves to its kernel (level, option)
// pair through an exhaustive switch; there is no open-ended pass-through,
// so an unknown value fails instead of reaching the kernel.
type SockOptInt uint8

const (
	TCPCork SockOptInt = iota
	TCPKeepCount
	TCPKeepIdle
	TCPKeepInterval
	TCPDeferAccept
	TCPNoDelay
)

func (o SockOptInt) String() string {
	switch o {
	case TCPCork:
		return "tcp_cork"
	case TCPKeepCount:
		return "tcp_keepcnt"
	case TCPKeepIdle:
		return "tcp_keepidle"
	case TCPKeepInterval:
		return "tcp_keepintvl"
	case TCPDeferAccept:
		return "tcp_defer_accept"
	case TCPNoDelay:
		return "tcp_nodelay"
	default:
		return "sockopt(" + strconv.Itoa(int(o)) + ")"
	}
}

func sockOptCode(o SockOptInt) (level, opt int, err error) {
	switch o {
	case TCPCork:
		return unix.IPPROTO_TCP, unix.TCP_CORK, nil
	case TCPKeepCount:
		return unix.IPPROTO_TCP, unix.TCP_KEEPCNT, nil
	case TCPKeepIdle:
		return unix.IPPROTO_TCP, unix.TCP_KEEPIDLE, nil
	case TCPKeepInterval:
		return unix.IPPROTO_TCP, unix.TCP_KEEPINTVL, nil
	case TCPDeferAccept:
		return unix.IPPROTO_TCP, unix.TCP_DEFER_ACCEPT, nil
	case TCPNoDelay:
		return unix.IPPROTO_TCP, unix.TCP_NODELAY, nil
	default:
		return 0, 0, wrapOp("sockopt", o.String(), unix.EINVAL)
	}
}

// SetSockOptInt sets an integer socket option under the use guard.
func (fd *FD) SetSockOptInt(o SockOptInt, v int) error {
	level, opt, err := sockOptCode(o)
	if err != nil {
		return err
	}
	return wrapOp("setsockopt", o.String(), fd.Use(func(raw int) error {
		return unix.SetsockoptInt(raw, level, opt, v)
	}))
}

// GetSockOptInt reads an integer socket option under the use guard.
func (fd *FD) GetSockOptInt(o SockOptInt) (int, error) {
	level, opt, err := sockOptCode(o)
	if err != nil {
		return 0, err
	}
	var v int
	err = fd.Use(func(raw int) error {
		var e error
		v, e = unix.GetsockoptInt(raw, level, opt)
		return e
	})
	if err != nil {
		return 0, wrapOp("getsockopt", o.String(), err)
	}
	return v, nil
}
