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

// Enterprise numbers (IANA Private Enterprise Numbers) for the built-in
// tables below.
const (
	EnterpriseHPEAruba uint32 = 14823
	EnterpriseCisco    uint32 = 9
	EnterpriseJuniper  uint32 = 2636
)

// builtinEnterpriseFields transcribes the representative subset of
// enterprise-specific fields the reference implementation compiles in. It is
// not a complete vendor registry.
var builtinEnterpriseFields = map[FieldKey]FieldInfo{
	{Enterprise: EnterpriseHPEAruba, FieldType: 1}:  {Name: "apMacAddress", Type: TypeMAC, Description: "Aruba access point MAC address"},
	{Enterprise: EnterpriseHPEAruba, FieldType: 2}:  {Name: "apSsid", Type: TypeString, Description: "Aruba SSID the client associated with"},
	{Enterprise: EnterpriseHPEAruba, FieldType: 3}:  {Name: "apRadioId", Type: TypeUint8, Description: "Aruba radio identifier"},
	{Enterprise: EnterpriseHPEAruba, FieldType: 12}: {Name: "userRole", Type: TypeString, Description: "Aruba user role name"},

	{Enterprise: EnterpriseCisco, FieldType: 40}:  {Name: "ciscoNbarApplicationId", Type: TypeBinary, Description: "Cisco NBAR application identifier"},
	{Enterprise: EnterpriseCisco, FieldType: 41}:  {Name: "ciscoNbarApplicationName", Type: TypeString, Description: "Cisco NBAR application name"},
	{Enterprise: EnterpriseCisco, FieldType: 42}:  {Name: "ciscoSgtSourceTag", Type: TypeUint16, Description: "Cisco TrustSec source security group tag"},
	{Enterprise: EnterpriseCisco, FieldType: 43}:  {Name: "ciscoSgtDestinationTag", Type: TypeUint16, Description: "Cisco TrustSec destination security group tag"},

	{Enterprise: EnterpriseJuniper, FieldType: 1}: {Name: "juniperInputInterfaceName", Type: TypeString, Description: "Juniper ingress logical interface name"},
	{Enterprise: EnterpriseJuniper, FieldType: 2}: {Name: "juniperOutputInterfaceName", Type: TypeString, Description: "Juniper egress logical interface name"},
	{Enterprise: EnterpriseJuniper, FieldType: 3}: {Name: "juniperFirewallAction", Type: TypeString, Description: "Juniper firewall filter action"},
}
