/*
Copyright 2025 Nemo(shengyi) Lv

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package clock provides the single monotonic timestamp domain shared by
// every shard's MVCC version ring and the transaction manager's BEGIN
// timestamps, so that a snapshot read anchored at a BEGIN timestamp can be
// compared against version entries stamped by shards that never talk to
// each other directly.
package clock

import "github.com/bwmarrin/snowflake"

// Clock hands out strictly increasing timestamps.
type Clock struct {
	node *snowflake.Node
}

// New builds a Clock. epochMillis is a Unix-millisecond epoch snowflake IDs
// are generated relative to; it only needs to be stable for one process
// lifetime, since timestamps are never persisted across restarts.
func New(epochMillis int64) (*Clock, error) {
	snowflake.Epoch = epochMillis
	node, err := snowflake.NewNode(0)
	if err != nil {
		return nil, err
	}
	return &Clock{node: node}, nil
}

// Now returns the next timestamp in the domain. Safe for concurrent use.
func (c *Clock) Now() int64 {
	return int64(c.node.Generate())
}
