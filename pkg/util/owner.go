// Copyright 2023-2024 daviszhen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package util

import (
	"fmt"

	"github.com/petermattis/goid"
)

// OwnerCheck records the goroutine that created an object and panics
// when another goroutine touches it. A zero OwnerCheck checks nothing.
type OwnerCheck struct {
	owner int64
}

func NewOwnerCheck(enabled bool) OwnerCheck {
	if !enabled {
		return OwnerCheck{}
	}
	return OwnerCheck{owner: goid.Get()}
}

func (oc OwnerCheck) Enabled() bool {
	return oc.owner != 0
}

func (oc OwnerCheck) Check(op string) {
	if oc.owner == 0 {
		return
	}
	if rid := goid.Get(); rid != oc.owner {
		panic(fmt.Sprintf("%s from goroutine %d, owner is %d", op, rid, oc.owner))
	}
}
