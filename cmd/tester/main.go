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

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/daviszhen/rowbuf/pkg/compute"
	"github.com/daviszhen/rowbuf/pkg/parser"
	"github.com/daviszhen/rowbuf/pkg/storage"
	"github.com/daviszhen/rowbuf/pkg/util"
)

func init() {
	cobra.OnInitialize(loadConfig)
	initQueryCmd()
}

var testerCfg = util.DefaultConfig()

///root cmd

var info = "tester"
var RootCmd = &cobra.Command{
	Use:          "tester",
	Short:        info,
	Long:         info,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("use tester --help or -h")
	},
}

func initDebugOptions() {
	testerCfg.Debug.CheckOwner = viper.GetBool("debug.checkOwner")
	testerCfg.Debug.PrintResult = viper.GetBool("debug.printResult")
	testerCfg.Debug.PrintPlan = viper.GetBool("debug.printPlan")
	testerCfg.Debug.IgnoreCase = viper.GetBool("debug.ignoreCase")
}

func initSpillOptions() {
	if viper.IsSet("spill.enabled") {
		testerCfg.Spill.Enabled = viper.GetBool("spill.enabled")
	}
	if viper.IsSet("spill.maxMemoryRows") {
		testerCfg.Spill.MaxMemoryRows = viper.GetInt("spill.maxMemoryRows")
	}
	if dir := viper.GetString("spill.tempDir"); dir != "" {
		testerCfg.Spill.TempDir = dir
	}
}

func initDatasets() error {
	raw, ok := viper.Get("datasets").([]any)
	if !ok {
		return nil
	}
	for i := range raw {
		m, ok := raw[i].(map[string]any)
		if !ok {
			return fmt.Errorf("invalid dataset entry %d", i)
		}
		sub := viper.New()
		if err := sub.MergeConfigMap(m); err != nil {
			return err
		}
		ds := util.Dataset{
			Name:   sub.GetString("name"),
			Path:   sub.GetString("path"),
			Format: sub.GetString("format"),
		}
		cols, _ := sub.Get("columns").([]any)
		for _, c := range cols {
			m, ok := c.(map[string]any)
			if !ok {
				return fmt.Errorf("dataset %s: invalid column", ds.Name)
			}
			ds.Columns = append(ds.Columns, util.DatasetColumn{
				Name: fmt.Sprint(m["name"]),
				Type: fmt.Sprint(m["type"]),
			})
		}
		testerCfg.Datasets = append(testerCfg.Datasets, ds)
	}
	return nil
}

//query cmd

var queryInfo = "run window queries against the configured datasets"
var queryFlags struct {
	sqls     []string
	files    []string
	percent  bool
	parallel int
}
var queryCmd = &cobra.Command{
	Use:   "query",
	Short: queryInfo,
	Long:  queryInfo,
	RunE: func(cmd *cobra.Command, args []string) error {
		initDebugOptions()
		initSpillOptions()
		if err := initDatasets(); err != nil {
			return err
		}
		if err := util.InitLogger(viper.GetString("log.level")); err != nil {
			return err
		}
		defer util.Sync()
		sqls := append([]string{}, queryFlags.sqls...)
		sqls = append(sqls, args...)
		for _, file := range queryFlags.files {
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			for _, sql := range strings.Split(string(data), ";") {
				if sql = strings.TrimSpace(sql); sql != "" {
					sqls = append(sqls, sql)
				}
			}
		}
		return runQueries(testerCfg, sqls, queryFlags.percent, queryFlags.parallel)
	},
}

func initQueryCmd() {
	RootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringSliceVar(&queryFlags.sqls, "sql", nil, "query to run. repeatable")
	queryCmd.Flags().StringSliceVar(&queryFlags.files, "file", nil, "file of ';' separated queries")
	queryCmd.Flags().BoolVar(&queryFlags.percent, "percent", false, "treat LIMIT as FETCH PERCENT")
	queryCmd.Flags().IntVar(&queryFlags.parallel, "parallel", 4, "queries run at the same time")
	queryCmd.Flags().Int("max_memory_rows", 0, "rows a result keeps in memory")
	queryCmd.Flags().String("temp_dir", "", "directory of temporary result files")

	viper.BindPFlag("spill.maxMemoryRows", queryCmd.Flags().Lookup("max_memory_rows"))
	viper.BindPFlag("spill.tempDir", queryCmd.Flags().Lookup("temp_dir"))
}

func runQueries(cfg *util.Config, sqls []string, percent bool, parallel int) error {
	datasets := make(map[string]*storage.Dataset)
	for _, dsCfg := range cfg.Datasets {
		ds, err := storage.LoadDataset(dsCfg)
		if err != nil {
			return err
		}
		datasets[ds.Name] = ds
	}
	outputs := make([]string, len(sqls))
	g := errgroup.Group{}
	g.SetLimit(max(parallel, 1))
	for i, sql := range sqls {
		g.Go(func() error {
			out, err := runQuery(cfg, datasets, sql, percent)
			if err != nil {
				return fmt.Errorf("query %d: %w", i, err)
			}
			outputs[i] = out
			return nil
		})
	}
	err := g.Wait()
	for i, out := range outputs {
		if out != "" {
			fmt.Printf("-- query %d: %s\n%s", i, sqls[i], out)
		}
	}
	return err
}

func runQuery(
	cfg *util.Config,
	datasets map[string]*storage.Dataset,
	sql string,
	percent bool,
) (string, error) {
	w, err := parser.ParseWindow(sql)
	if err != nil {
		return "", err
	}
	ds, ok := datasets[w.Table]
	if !ok {
		return "", fmt.Errorf("no dataset %s", w.Table)
	}
	session := compute.NewSession(cfg)
	defer session.Close()
	result, err := compute.RunWindow(session, ds, w, compute.WindowOptions{FetchPercent: percent})
	if err != nil {
		return "", err
	}
	defer result.Close()

	sb := strings.Builder{}
	if cfg.Debug.PrintPlan {
		sb.WriteString(result.Explain())
	}
	if cfg.Debug.PrintResult {
		for i := 0; i < result.VisibleColumnCount(); i++ {
			if i > 0 {
				sb.WriteByte('|')
			}
			sb.WriteString(result.Alias(i))
		}
		sb.WriteByte('\n')
		for {
			has, err := result.Next()
			if err != nil {
				return "", err
			}
			if !has {
				break
			}
			row := result.CurrentRow().Visible(result.VisibleColumnCount())
			for i, val := range row {
				if i > 0 {
					sb.WriteByte('|')
				}
				sb.WriteString(val.String())
			}
			sb.WriteByte('\n')
		}
	}
	fmt.Fprintf(&sb, "(%d rows)\n", result.RowCount())
	util.Info("query done",
		zap.String("sql", sql),
		zap.Int64("rows", result.RowCount()),
		zap.Bool("spilled", result.NeedToClose()))
	return sb.String(), nil
}

var defCfgFilePaths = []string{".", "etc"}
var cfgFileName = "rowbuf.toml"

func loadConfig() {
	has := false
	for _, dirPath := range defCfgFilePaths {
		fpath := filepath.Join(dirPath, cfgFileName)
		if util.FileIsValid(fpath) {
			viper.SetConfigFile(fpath)
			err := viper.ReadInConfig()
			if err != nil {
				util.Error("viper load config file failed",
					zap.String("fpath", fpath),
					zap.Error(err))
				continue
			}
			has = true
			break
		}
	}
	if !has {
		util.Error("rowbuf.toml does not exist")
		os.Exit(1)
	}
}

func main() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
