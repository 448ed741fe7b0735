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

// standardFields holds the IANA IPFIX Information Element registry entries
// this decoder compiles in, transcribed from the subset the reference
// implementation's field table covers. Keyed by field type only (Enterprise
// zero).
var standardFields = map[uint16]FieldInfo{
	1:   {Name: "octetDeltaCount", Type: TypeUint64, Description: "Number of octets in the flow"},
	2:   {Name: "packetDeltaCount", Type: TypeUint64, Description: "Number of packets in the flow"},
	3:   {Name: "deltaFlowCount", Type: TypeUint64, Description: "Number of flows aggregated"},
	4:   {Name: "protocolIdentifier", Type: TypeUint8, Description: "IP protocol number"},
	5:   {Name: "ipClassOfService", Type: TypeUint8, Description: "IPv4 ToS / IPv6 traffic class"},
	6:   {Name: "tcpControlBits", Type: TypeUint16, Description: "TCP flags"},
	7:   {Name: "sourceTransportPort", Type: TypeUint16, Description: "Source L4 port"},
	8:   {Name: "sourceIPv4Address", Type: TypeIPv4, Description: "Source IPv4 address"},
	9:   {Name: "sourceIPv4PrefixLength", Type: TypeUint8, Description: "Source IPv4 prefix length"},
	10:  {Name: "ingressInterface", Type: TypeUint32, Description: "SNMP ifIndex of the ingress interface"},
	11:  {Name: "destinationTransportPort", Type: TypeUint16, Description: "Destination L4 port"},
	12:  {Name: "destinationIPv4Address", Type: TypeIPv4, Description: "Destination IPv4 address"},
	13:  {Name: "destinationIPv4PrefixLength", Type: TypeUint8, Description: "Destination IPv4 prefix length"},
	14:  {Name: "egressInterface", Type: TypeUint32, Description: "SNMP ifIndex of the egress interface"},
	15:  {Name: "ipNextHopIPv4Address", Type: TypeIPv4, Description: "IPv4 next-hop router address"},
	16:  {Name: "bgpSourceAsNumber", Type: TypeUint32, Description: "Source BGP AS number"},
	17:  {Name: "bgpDestinationAsNumber", Type: TypeUint32, Description: "Destination BGP AS number"},
	21:  {Name: "flowEndSysUpTime", Type: TypeUint32, Description: "Flow end time relative to exporter uptime"},
	22:  {Name: "flowStartSysUpTime", Type: TypeUint32, Description: "Flow start time relative to exporter uptime"},
	23:  {Name: "postOctetDeltaCount", Type: TypeUint64, Description: "Post-policy octet count"},
	24:  {Name: "postPacketDeltaCount", Type: TypeUint64, Description: "Post-policy packet count"},
	27:  {Name: "sourceIPv6Address", Type: TypeIPv6, Description: "Source IPv6 address"},
	28:  {Name: "destinationIPv6Address", Type: TypeIPv6, Description: "Destination IPv6 address"},
	29:  {Name: "sourceIPv6PrefixLength", Type: TypeUint8, Description: "Source IPv6 prefix length"},
	30:  {Name: "destinationIPv6PrefixLength", Type: TypeUint8, Description: "Destination IPv6 prefix length"},
	32:  {Name: "icmpTypeCodeIPv4", Type: TypeUint16, Description: "ICMP type*256+code"},
	52:  {Name: "minimumTTL", Type: TypeUint8, Description: "Minimum observed TTL"},
	53:  {Name: "maximumTTL", Type: TypeUint8, Description: "Maximum observed TTL"},
	56:  {Name: "sourceMacAddress", Type: TypeMAC, Description: "Source MAC address"},
	57:  {Name: "postDestinationMacAddress", Type: TypeMAC, Description: "Post-policy destination MAC"},
	58:  {Name: "vlanId", Type: TypeUint16, Description: "802.1Q VLAN ID"},
	61:  {Name: "flowDirection", Type: TypeUint8, Description: "Ingress or egress flow"},
	62:  {Name: "ipv6NextHopAddress", Type: TypeIPv6, Description: "IPv6 next-hop router address"},
	70:  {Name: "mplsTopLabelStackSection", Type: TypeBinary, Description: "Top MPLS label stack entry"},
	80:  {Name: "destinationMacAddress", Type: TypeMAC, Description: "Destination MAC address"},
	81:  {Name: "postSourceMacAddress", Type: TypeMAC, Description: "Post-policy source MAC"},
	94:  {Name: "applicationDescription", Type: TypeString, Description: "Description of the classified application"},
	95:  {Name: "applicationId", Type: TypeBinary, Description: "Classification engine application identifier"},
	96:  {Name: "applicationName", Type: TypeString, Description: "Name of the classified application"},
	136: {Name: "flowEndReason", Type: TypeUint8, Description: "Reason the flow was terminated"},
	150: {Name: "flowStartSeconds", Type: TypeTimestampSeconds, Description: "Flow start time, seconds since epoch"},
	151: {Name: "flowEndSeconds", Type: TypeTimestampSeconds, Description: "Flow end time, seconds since epoch"},
	152: {Name: "flowStartMilliseconds", Type: TypeTimestampMillis, Description: "Flow start time, milliseconds since epoch"},
	153: {Name: "flowEndMilliseconds", Type: TypeTimestampMillis, Description: "Flow end time, milliseconds since epoch"},
	154: {Name: "flowStartMicroseconds", Type: TypeTimestampMicros, Description: "Flow start time, microseconds since epoch"},
	155: {Name: "flowEndMicroseconds", Type: TypeTimestampMicros, Description: "Flow end time, microseconds since epoch"},
	156: {Name: "flowStartNanoseconds", Type: TypeTimestampNanos, Description: "Flow start time, nanoseconds since epoch"},
	157: {Name: "flowEndNanoseconds", Type: TypeTimestampNanos, Description: "Flow end time, nanoseconds since epoch"},
	176: {Name: "icmpTypeIPv4", Type: TypeUint8, Description: "ICMP type"},
	177: {Name: "icmpCodeIPv4", Type: TypeUint8, Description: "ICMP code"},
	225: {Name: "postNATSourceIPv4Address", Type: TypeIPv4, Description: "Source IPv4 address after NAT"},
	226: {Name: "postNATDestinationIPv4Address", Type: TypeIPv4, Description: "Destination IPv4 address after NAT"},
	227: {Name: "postNAPTSourceTransportPort", Type: TypeUint16, Description: "Source port after NAT/NAPT"},
	228: {Name: "postNAPTDestinationTransportPort", Type: TypeUint16, Description: "Destination port after NAT/NAPT"},
	236: {Name: "ingressVRFID", Type: TypeUint32, Description: "VRF of the ingress interface"},
	237: {Name: "egressVRFID", Type: TypeUint32, Description: "VRF of the egress interface"},
}

// variableLengthFields lists the standard fields this registry treats as
// string-typed when IPFIX encodes them with a variable-length marker
// (applicationName and similar are the common real-world examples).
var variableLengthFields = map[uint16]bool{
	94: true, // applicationDescription
	96: true, // applicationName
}
