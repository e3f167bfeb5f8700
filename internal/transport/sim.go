// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package transport

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/cloudgfe/host-bridge/internal/bridgeerr"
)

// DefaultSimAddr is the simulator's listening address (spec.md §6).
const DefaultSimAddr = "127.0.0.1:30000"

// pollPeekTimeout bounds how long a Polling Recv call waits for the first
// byte before reporting RecvUnavailable. It is short enough that the
// coordinator's idle backoff, not this timeout, governs perceived latency.
const pollPeekTimeout = 1 * time.Millisecond

// simTransport connects to a listening simulator over TCP. Recv's first
// call in Polling mode peeks for data with a short read deadline; once
// bytes are known to be present, callers switch to Blocking to read the
// remainder without racing the deadline.
type simTransport struct {
	conn net.Conn
	r    *bufio.Reader
}

// Dial connects to a simulator listening at addr (DefaultSimAddr in
// production use).
func Dial(addr string) (Transport, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", bridgeerr.ErrFatal, addr, err)
	}
	return &simTransport{conn: conn, r: bufio.NewReader(conn)}, nil
}

func (t *simTransport) Send(b []byte) error {
	if _, err := t.conn.Write(b); err != nil {
		return fmt.Errorf("%w: short write: %v", bridgeerr.ErrTransportFault, err)
	}
	return nil
}

func (t *simTransport) Recv(n int, mode PollMode, out []byte) (RecvStatus, error) {
	if len(out) < n {
		return RecvUnavailable, fmt.Errorf("%w: recv buffer shorter than n", bridgeerr.ErrInvalidArgument)
	}
	switch mode {
	case Polling:
		if err := t.conn.SetReadDeadline(time.Now().Add(pollPeekTimeout)); err != nil {
			return RecvUnavailable, fmt.Errorf("%w: %v", bridgeerr.ErrFatal, err)
		}
		defer t.conn.SetReadDeadline(time.Time{})
		_, err := io.ReadFull(t.r, out[:n])
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return RecvUnavailable, nil
			}
			return RecvUnavailable, fmt.Errorf("%w: %v", bridgeerr.ErrTransportFault, err)
		}
		return RecvOK, nil
	default: // Blocking
		if _, err := io.ReadFull(t.r, out[:n]); err != nil {
			return RecvUnavailable, fmt.Errorf("%w: %v", bridgeerr.ErrTransportFault, err)
		}
		return RecvOK, nil
	}
}

func (t *simTransport) Close() error {
	return t.conn.Close()
}
