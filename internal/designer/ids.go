/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package designer

import (
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

// IDGenerator produces field identities. Implementations must not repeat a value within
// a session; the designer additionally skips ids that are already taken.
type IDGenerator interface {
	NewID() string
}

// UUIDs generates random version 4 UUIDs.
type UUIDs struct{}

func (UUIDs) NewID() string { return uuid.NewString() }

// Sequence generates Prefix1, Prefix2, ... and is safe for concurrent use.
type Sequence struct {
	Prefix string
	n      atomic.Uint64
}

func NewSequence(prefix string) *Sequence {
	if prefix == "" {
		prefix = "f"
	}
	return &Sequence{Prefix: prefix}
}

func (s *Sequence) NewID() string {
	return s.Prefix + strconv.FormatUint(s.n.Add(1), 10)
}
