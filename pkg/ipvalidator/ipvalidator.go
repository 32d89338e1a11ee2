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

package ipvalidator

import (
	"fmt"
	"net"
	"strings"
)

// Validator checks request source addresses against an allowlist of
// IPs and CIDR ranges, used to restrict carrier webhook routes.
type Validator struct {
	networks []*net.IPNet
}

// NewValidator accepts both CIDR ranges and single IPs. A single IP is
// widened to /32 (IPv4) or /128 (IPv6).
func NewValidator(allowed []string) (*Validator, error) {
	v := &Validator{
		networks: make([]*net.IPNet, 0, len(allowed)),
	}

	for _, ipStr := range allowed {
		ipStr = strings.TrimSpace(ipStr)
		if ipStr == "" {
			continue
		}

		if !strings.Contains(ipStr, "/") {
			ip := net.ParseIP(ipStr)
			if ip == nil {
				return nil, fmt.Errorf("invalid IP address: %s", ipStr)
			}
			if ip.To4() != nil {
				ipStr = ipStr + "/32"
			} else {
				ipStr = ipStr + "/128"
			}
		}

		_, ipNet, err := net.ParseCIDR(ipStr)
		if err != nil {
			return nil, fmt.Errorf("invalid IP/CIDR '%s': %w", ipStr, err)
		}

		v.networks = append(v.networks, ipNet)
	}

	return v, nil
}

// IsAllowed reports whether the given address is in any allowed range.
// Accepts both bare IPs and the "IP:port" form of http.Request.RemoteAddr.
func (v *Validator) IsAllowed(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	ip := net.ParseIP(strings.TrimSpace(host))
	if ip == nil {
		return false
	}

	for _, network := range v.networks {
		if network.Contains(ip) {
			return true
		}
	}

	return false
}

// Networks returns the parsed ranges, useful for logging at startup.
func (v *Validator) Networks() []string {
	result := make([]string, len(v.networks))
	for i, network := range v.networks {
		result[i] = network.String()
	}
	return result
}
