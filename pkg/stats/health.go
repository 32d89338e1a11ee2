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

package stats

type HealthStatus int

const (
	HealthOK HealthStatus = iota
	HealthUnderLoad
	HealthShuttingDown
)

func (h HealthStatus) String() string {
	switch h {
	case HealthOK:
		return "ok"
	case HealthUnderLoad:
		return "under load"
	case HealthShuttingDown:
		return "shutting down"
	default:
		return "unknown"
	}
}

func (m *Monitor) Health() HealthStatus {
	if m == nil || !m.started.Load() {
		return HealthShuttingDown
	}
	if m.maxCalls > 0 && m.activeCalls.Load() >= m.maxCalls {
		return HealthUnderLoad
	}
	return HealthOK
}
