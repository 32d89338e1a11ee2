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

package service

import (
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"sync/atomic"
	"time"

	"github.com/frostbyte73/core"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/livekit/protocol/logger"

	"github.com/veloxvoip/callengine/pkg/config"
	"github.com/veloxvoip/callengine/pkg/stats"
	"github.com/veloxvoip/callengine/version"
)

type engineStopFunc func()
type engineActiveCallsFunc func() int

// Service owns the auxiliary HTTP servers and the drain loop that waits
// for in-flight calls before stopping the engine.
type Service struct {
	conf *config.Config
	log  logger.Logger

	promServer   *http.Server
	pprofServer  *http.Server
	healthServer *http.Server

	engineStop        engineStopFunc
	engineActiveCalls engineActiveCallsFunc

	mon      *stats.Monitor
	shutdown core.Fuse
	killed   atomic.Bool
}

func NewService(
	conf *config.Config, log logger.Logger, engineStop engineStopFunc,
	engineActiveCalls engineActiveCallsFunc, mon *stats.Monitor,
) *Service {
	s := &Service{
		conf: conf,
		log:  log,

		engineStop:        engineStop,
		engineActiveCalls: engineActiveCalls,

		mon: mon,
	}
	if conf.PrometheusPort > 0 {
		s.promServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", conf.PrometheusPort),
			Handler: promhttp.Handler(),
		}
	}
	if conf.PProfPort > 0 {
		mux := http.NewServeMux()
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
		s.pprofServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", conf.PProfPort),
			Handler: mux,
		}
	}
	if conf.HealthPort > 0 {
		mux := http.NewServeMux()
		s.healthServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", conf.HealthPort),
			Handler: mux,
		}

		mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			st := s.Health()
			var code int
			switch st {
			case stats.HealthOK:
				code = http.StatusOK
			case stats.HealthUnderLoad:
				code = http.StatusTooManyRequests
			default:
				code = http.StatusServiceUnavailable
			}
			w.Header().Set("Content-Type", "text/plain")
			w.WriteHeader(code)
			_, _ = w.Write([]byte(st.String()))
		})
	}
	return s
}

// Stop begins shutdown. With kill set, the drain loop is skipped and
// in-flight calls are abandoned.
func (s *Service) Stop(kill bool) {
	s.mon.Shutdown()
	s.killed.Store(kill)
	s.shutdown.Break()
}

func (s *Service) Run() error {
	s.log.Debugw("starting service", "version", version.Version)

	if srv := s.promServer; srv != nil {
		l, err := net.Listen("tcp", srv.Addr)
		if err != nil {
			return err
		}
		defer l.Close()
		go func() {
			_ = srv.Serve(l)
		}()
	}

	if srv := s.pprofServer; srv != nil {
		l, err := net.Listen("tcp", srv.Addr)
		if err != nil {
			return err
		}
		defer l.Close()
		go func() {
			_ = srv.Serve(l)
		}()
	}

	if srv := s.healthServer; srv != nil {
		l, err := net.Listen("tcp", srv.Addr)
		if err != nil {
			return err
		}
		defer l.Close()
		go func() {
			_ = srv.Serve(l)
		}()
	}

	s.log.Debugw("service ready")

	<-s.shutdown.Watch()
	s.log.Infow("shutting down")

	if !s.killed.Load() {
		drainTicker := time.NewTicker(5 * time.Second)
		defer drainTicker.Stop()

		for !s.killed.Load() {
			n := s.engineActiveCalls()
			if n == 0 {
				break
			}
			s.log.Infow("waiting for calls to finish", "active", n)
			<-drainTicker.C
		}
	}

	s.engineStop()
	return nil
}

func (s *Service) Health() stats.HealthStatus {
	return s.mon.Health()
}
