// Copyright 2025 VeloxVOIP.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// 	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package nova

import (
	"context"
	"errors"
	"io"

	"github.com/frostbyte73/core"
	"github.com/gorilla/websocket"

	"github.com/livekit/protocol/logger"

	cerrors "github.com/veloxvoip/callengine/pkg/errors"
)

// StreamClient pumps one session's events over a transport: a write loop
// pulling from the session's outbound queue and a read loop dispatching
// decoded response chunks back into it.
type StreamClient struct {
	log       logger.Logger
	session   *Session
	transport Transport

	closed core.Fuse
	done   chan struct{}
}

func NewStreamClient(session *Session, transport Transport, log logger.Logger) *StreamClient {
	if log == nil {
		log = logger.GetLogger().WithComponent("stream_client")
	}
	return &StreamClient{
		log:       log.WithValues("sessionID", session.ID()),
		session:   session,
		transport: transport,
		done:      make(chan struct{}),
	}
}

// Run connects the transport and starts both pump loops. It returns once
// the connection is established; the loops run until the session closes or
// the transport fails.
func (c *StreamClient) Run(ctx context.Context) error {
	if err := c.transport.Connect(ctx); err != nil {
		return err
	}

	go c.writeLoop(ctx)
	go c.readLoop()

	c.log.Infow("model stream connected")
	return nil
}

// Done returns a channel closed once the read loop has exited.
func (c *StreamClient) Done() <-chan struct{} {
	return c.done
}

func (c *StreamClient) writeLoop(ctx context.Context) {
	for {
		ev, err := c.session.NextEvent(ctx)
		if err != nil {
			// Queue drained after close, end the stream cleanly.
			c.Close()
			return
		}
		if err := c.transport.Send(ev); err != nil {
			if !c.closed.IsBroken() {
				c.log.Errorw("failed to send stream event", err)
				c.session.EmitError(err)
			}
			c.Close()
			return
		}
	}
}

func (c *StreamClient) readLoop() {
	defer close(c.done)
	for {
		msg, err := c.transport.Receive()
		if err != nil {
			if !c.closed.IsBroken() && !isExpectedClose(err) {
				c.log.Errorw("stream read failed", err)
				c.session.EmitError(err)
			}
			c.Close()
			return
		}

		ev, err := ParseInbound(msg)
		if err != nil {
			// Malformed payloads are dropped, never fatal to the session.
			c.log.Warnw("dropping malformed stream chunk", err)
			continue
		}
		c.session.Dispatch(ev)
	}
}

// Close tears down the transport. Idempotent.
func (c *StreamClient) Close() {
	if c.closed.IsBroken() {
		return
	}
	c.closed.Break()
	if err := c.transport.Close(); err != nil {
		c.log.Debugw("transport close", "error", err)
	}
}

func isExpectedClose(err error) bool {
	if errors.Is(err, cerrors.ErrTransportClosed) || errors.Is(err, io.EOF) {
		return true
	}
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
