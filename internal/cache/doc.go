// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license, which can be
// found in the LICENSE file.

/*
Package cache implements the two-tier cache of §4.6: an in-process LRU (L1)
backed by a columnar-store-backed key/value table (L2), with a timeframe-
keyed TTL policy and explicit read-through/write-through ordering.

# Overview

Get checks L1 first; on an L1 miss it falls through to L2 and, on an L2 hit,
repopulates L1. Set writes L2 first (with the query's full TTL) then L1
(with a shorter TTL, per DefaultTTLPolicy.L1TTL), so a process restart loses
only the L1 tier.

# Core types

  - Cache: the two-tier façade (Get/Set/Invalidate/Clear/CleanupExpired).
  - TTLPolicy: per-Timeframe TTL table (tick/intraday/daily/weekly/default).
  - l1.Cache: mutex-guarded LRU with per-entry expiry.
  - l2.Store: gorm-backed key/value table (cache_entries).
*/
package cache
