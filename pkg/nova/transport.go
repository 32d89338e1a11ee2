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
	"net/http"
	"sync/atomic"

	"github.com/frostbyte73/core"
	"github.com/gorilla/websocket"

	"github.com/livekit/protocol/logger"

	"github.com/veloxvoip/callengine/pkg/config"
	"github.com/veloxvoip/callengine/pkg/errors"
)

// Transport carries JSON frames to and from the speech-to-speech stream.
type Transport interface {
	Connect(ctx context.Context) error
	Send(payload []byte) error
	Receive() ([]byte, error)
	Close() error
}

// wsTransport is the websocket transport used in production.
type wsTransport struct {
	log    logger.Logger
	conf   *config.StreamConfig
	conn   atomic.Pointer[websocket.Conn]
	closed core.Fuse
}

func NewWebSocketTransport(conf *config.StreamConfig, log logger.Logger) Transport {
	if log == nil {
		log = logger.GetLogger().WithComponent("stream_transport")
	}
	return &wsTransport{log: log, conf: conf}
}

func (t *wsTransport) Connect(ctx context.Context) error {
	header := http.Header{}
	if t.conf.APIKey != "" {
		header.Set("Authorization", "Bearer "+t.conf.APIKey)
	}
	if t.conf.ModelID != "" {
		header.Set("X-Model-Id", t.conf.ModelID)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, t.conf.URL, header)
	if err != nil {
		return errors.Wrap(err, "could not connect to model stream")
	}
	t.conn.Store(conn)
	return nil
}

func (t *wsTransport) Send(payload []byte) error {
	if t.closed.IsBroken() {
		return errors.ErrTransportClosed
	}
	conn := t.conn.Load()
	if conn == nil {
		return errors.ErrStreamNotReady
	}
	return conn.WriteMessage(websocket.TextMessage, payload)
}

func (t *wsTransport) Receive() ([]byte, error) {
	if t.closed.IsBroken() {
		return nil, errors.ErrTransportClosed
	}
	conn := t.conn.Load()
	if conn == nil {
		return nil, errors.ErrStreamNotReady
	}
	_, msg, err := conn.ReadMessage()
	if err != nil {
		if t.closed.IsBroken() {
			return nil, errors.ErrTransportClosed
		}
		return nil, err
	}
	return msg, nil
}

func (t *wsTransport) Close() error {
	if t.closed.IsBroken() {
		return nil
	}
	t.closed.Break()
	if conn := t.conn.Load(); conn != nil {
		return conn.Close()
	}
	return nil
}
