/* Copyright 2020 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package rover provides a small, resource-bounded text command
// interpreter for robots.
//
// The core code is in packages 'buffer' and 'dispatch'.  Package
// 'sio' couples a dispatcher to transports, and `cmd/roverd` is a
// process that runs one with stdio, MQTT, WebSockets, TCP, or a
// serial port.
package rover
