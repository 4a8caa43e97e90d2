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

import "os"

const (
	// DefaultMaxMemoryRows is the number of rows a result keeps in memory
	// before it moves them to a temporary store.
	DefaultMaxMemoryRows = 40000
)

type SpillOptions struct {
	// Enabled false keeps every result in memory. It is the analog of an
	// in-memory or read-only database.
	Enabled       bool   `tag:"enabled" toml:"enabled"`
	MaxMemoryRows int    `tag:"maxMemoryRows" toml:"maxMemoryRows"`
	TempDir       string `tag:"tempDir" toml:"tempDir"`
}

type DatasetColumn struct {
	Name string `tag:"name" toml:"name"`
	Type string `tag:"type" toml:"type"`
}

type Dataset struct {
	Name    string          `tag:"name" toml:"name"`
	Path    string          `tag:"path" toml:"path"`
	Format  string          `tag:"format" toml:"format"`
	Columns []DatasetColumn `tag:"columns" toml:"columns"`
}

type ServerOptions struct {
	Addr        string `tag:"addr" toml:"addr"`
	MetricsAddr string `tag:"metricsAddr" toml:"metricsAddr"`
}

type DebugOptions struct {
	CheckOwner  bool `tag:"checkOwner" toml:"checkOwner"`
	PrintResult bool `tag:"printResult" toml:"printResult"`
	PrintPlan   bool `tag:"printPlan" toml:"printPlan"`
	IgnoreCase  bool `tag:"ignoreCase" toml:"ignoreCase"`
}

type LogOptions struct {
	Level string `tag:"level" toml:"level"`
}

type Config struct {
	Spill    SpillOptions  `tag:"spill" toml:"spill"`
	Server   ServerOptions `tag:"server" toml:"server"`
	Datasets []Dataset     `tag:"datasets" toml:"datasets"`
	Debug    DebugOptions  `tag:"debug" toml:"debug"`
	Log      LogOptions    `tag:"log" toml:"log"`
}

func DefaultConfig() *Config {
	return &Config{
		Spill: SpillOptions{
			Enabled:       true,
			MaxMemoryRows: DefaultMaxMemoryRows,
			TempDir:       os.TempDir(),
		},
		Server: ServerOptions{
			Addr:        "127.0.0.1:5432",
			MetricsAddr: "127.0.0.1:9100",
		},
		Log: LogOptions{
			Level: "info",
		},
	}
}

func (cfg *Config) Dataset(name string) (Dataset, bool) {
	for _, ds := range cfg.Datasets {
		if ds.Name == name {
			return ds, true
		}
	}
	return Dataset{}, false
}
