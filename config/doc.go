// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package config manages vprism's configuration lifecycle.

# Overview

config loads the full Config tree from defaults, an optional YAML file, and
environment variables, in that priority order (later sources override
earlier ones).

# Core types

  - Config: top-level aggregate covering Cache, Providers, Circuit, Health,
    Batch, Database, and Log.
  - Loader: builder-pattern loader; chain WithConfigPath/WithEnvPrefix/
    WithValidator before calling Load.

# Usage

	cfg, err := config.NewLoader().
		WithConfigPath("config.yaml").
		WithEnvPrefix("VPRISM").
		Load()
*/
package config
