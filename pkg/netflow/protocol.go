// Copyright 2024 The Solaris Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package netflow

import "fmt"

// protocolNames is the IANA-assigned protocol number table for the
// commonly-seen subset (not the full registry).
var protocolNames = map[uint64]string{
	1:   "icmp",
	2:   "igmp",
	6:   "tcp",
	17:  "udp",
	41:  "ipv6",
	47:  "gre",
	50:  "esp",
	51:  "ah",
	58:  "icmpv6",
	89:  "ospf",
	103: "pim",
	132: "sctp",
}

// protocolName resolves an IP protocol number to its name, falling back to a
// synthetic "proto_N" label for numbers outside the transcribed table.
func protocolName(n uint64) string {
	if name, ok := protocolNames[n]; ok {
		return name
	}
	return fmt.Sprintf("proto_%d", n)
}

const protocolIdentifierFieldType = 4
