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

package ipvalidator_test

import (
	"testing"

	"github.com/veloxvoip/callengine/pkg/ipvalidator"
)

func TestNewValidator(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		wantErr bool
	}{
		{name: "valid CIDR ranges", allowed: []string{"192.168.1.0/24", "10.0.0.0/8"}},
		{name: "valid single IPs", allowed: []string{"192.168.1.100", "10.0.0.1"}},
		{name: "mixed CIDR and single IPs", allowed: []string{"192.168.1.0/24", "10.0.0.1"}},
		{name: "empty list", allowed: []string{}},
		{name: "whitespace entries", allowed: []string{"  192.168.1.0/24  ", "  ", "10.0.0.1"}},
		{name: "IPv6 CIDR", allowed: []string{"2001:db8::/32"}},
		{name: "IPv6 single address", allowed: []string{"::1", "2001:db8::1"}},
		{name: "invalid IP address", allowed: []string{"999.999.999.999"}, wantErr: true},
		{name: "invalid CIDR notation", allowed: []string{"192.168.1.0/99"}, wantErr: true},
		{name: "malformed CIDR", allowed: []string{"192.168.1/24"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := ipvalidator.NewValidator(tt.allowed)
			if tt.wantErr {
				if err == nil {
					t.Error("NewValidator() expected error but got none")
				}
				return
			}
			if err != nil {
				t.Errorf("NewValidator() unexpected error: %v", err)
				return
			}
			if v == nil {
				t.Error("NewValidator() returned nil validator")
			}
		})
	}
}

func TestValidatorIsAllowed(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		addr    string
		want    bool
	}{
		{name: "IP in CIDR range", allowed: []string{"192.168.1.0/24"}, addr: "192.168.1.50", want: true},
		{name: "IP outside CIDR range", allowed: []string{"192.168.1.0/24"}, addr: "192.168.2.1", want: false},
		{name: "exact IP match", allowed: []string{"192.168.1.100"}, addr: "192.168.1.100", want: true},
		{name: "single IP no match", allowed: []string{"192.168.1.100"}, addr: "192.168.1.101", want: false},
		{name: "match last in list", allowed: []string{"10.0.0.0/8", "192.168.1.0/24", "172.16.0.1"}, addr: "172.16.0.1", want: true},
		{name: "no match in list", allowed: []string{"10.0.0.0/8", "192.168.1.0/24"}, addr: "8.8.8.8", want: false},

		// RemoteAddr carries a port.
		{name: "remote addr in range", allowed: []string{"192.168.1.0/24"}, addr: "192.168.1.50:44312", want: true},
		{name: "remote addr not in range", allowed: []string{"192.168.1.0/24"}, addr: "192.168.2.50:44312", want: false},
		{name: "IPv6 remote addr", allowed: []string{"2001:db8::/32"}, addr: "[2001:db8::1]:44312", want: true},

		{name: "empty allowed list", allowed: []string{}, addr: "192.168.1.1", want: false},
		{name: "invalid address", allowed: []string{"192.168.1.0/24"}, addr: "invalid-ip", want: false},
		{name: "empty address", allowed: []string{"192.168.1.0/24"}, addr: "", want: false},
		{name: "large /8 block", allowed: []string{"10.0.0.0/8"}, addr: "10.255.255.255", want: true},
		{name: "IPv6 in range", allowed: []string{"2001:db8::/32"}, addr: "2001:db8::1", want: true},
		{name: "IPv6 out of range", allowed: []string{"2001:db8::/32"}, addr: "2001:db9::1", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := ipvalidator.NewValidator(tt.allowed)
			if err != nil {
				t.Fatalf("NewValidator() error: %v", err)
			}
			if got := v.IsAllowed(tt.addr); got != tt.want {
				t.Errorf("IsAllowed(%q) = %v, want %v", tt.addr, got, tt.want)
			}
		})
	}
}

func TestValidatorNetworks(t *testing.T) {
	v, err := ipvalidator.NewValidator([]string{"192.168.1.0/24", "10.0.0.1", "172.16.0.0/16"})
	if err != nil {
		t.Fatal(err)
	}
	nets := v.Networks()
	if len(nets) != 3 {
		t.Fatalf("Networks() returned %d entries, want 3", len(nets))
	}
	if nets[1] != "10.0.0.1/32" {
		t.Errorf("single IP not widened to /32: %s", nets[1])
	}
}

func BenchmarkValidatorIsAllowed(b *testing.B) {
	v, err := ipvalidator.NewValidator([]string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"127.0.0.1",
	})
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		v.IsAllowed("192.168.1.50:44312")
	}
}
