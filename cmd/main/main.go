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
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	wire "github.com/jeroenrinzema/psql-wire"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/daviszhen/rowbuf/pkg/compute"
	"github.com/daviszhen/rowbuf/pkg/parser"
	"github.com/daviszhen/rowbuf/pkg/storage"
	"github.com/daviszhen/rowbuf/pkg/util"
)

var runCfg = util.DefaultConfig()

var defCfgFilePaths = []string{".", "etc"}
var cfgFileName = "rowbuf.toml"

func loadConfig() {
	has := false
	for _, dirPath := range defCfgFilePaths {
		fpath := filepath.Join(dirPath, cfgFileName)
		if util.FileIsValid(fpath) {
			_, err := toml.DecodeFile(fpath, runCfg)
			if err != nil {
				util.Error("load config file failed",
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

type server struct {
	cfg      *util.Config
	datasets map[string]*storage.Dataset
	metrics  *compute.Metrics
}

func main() {
	loadConfig()
	if err := util.InitLogger(runCfg.Log.Level); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer util.Sync()

	reg := prometheus.NewRegistry()
	srv := &server{
		cfg:      runCfg,
		datasets: make(map[string]*storage.Dataset),
		metrics:  compute.NewMetrics(reg),
	}
	for _, dsCfg := range runCfg.Datasets {
		ds, err := storage.LoadDataset(dsCfg)
		if err != nil {
			util.Error("load dataset failed", zap.Error(err))
			os.Exit(1)
		}
		srv.datasets[ds.Name] = ds
	}

	if runCfg.Server.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			err := http.ListenAndServe(runCfg.Server.MetricsAddr, mux)
			util.Error("metrics server stopped", zap.Error(err))
		}()
	}

	util.Info("listening", zap.String("addr", runCfg.Server.Addr))
	if err := wire.ListenAndServe(runCfg.Server.Addr, srv.handler); err != nil {
		util.Error("server stopped", zap.Error(err))
		os.Exit(1)
	}
}

func (srv *server) handler(ctx context.Context, query string) (wire.PreparedStatements, error) {
	util.Info("incoming SQL :", zap.String("query", query))
	w, err := parser.ParseWindow(query)
	if err != nil {
		return nil, err
	}
	ds, ok := srv.datasets[w.Table]
	if !ok {
		return nil, fmt.Errorf("no dataset %s", w.Table)
	}
	//rows are read only when the statement runs
	cols, err := compute.WindowColumns(ds, w)
	if err != nil {
		return nil, err
	}
	execCtx := ExecCtx{
		srv:    srv,
		ds:     ds,
		window: w,
	}
	return wire.Prepared(
		wire.NewStatement(execCtx.handleX,
			wire.WithColumns(cols),
		),
	), nil
}

type ExecCtx struct {
	srv    *server
	ds     *storage.Dataset
	window *parser.Window
}

func (exec *ExecCtx) handleX(ctx context.Context, writer wire.DataWriter, parameters []wire.Parameter) error {
	session := compute.NewSession(exec.srv.cfg, compute.WithMetrics(exec.srv.metrics))
	defer session.Close()
	result, err := compute.RunWindow(session, exec.ds, exec.window, compute.WindowOptions{})
	if err != nil {
		return err
	}
	defer result.Close()
	if exec.srv.cfg.Debug.PrintPlan {
		util.Info("result", zap.String("plan", result.Explain()))
	}
	if err := result.Reset(); err != nil {
		return err
	}
	cnt, err := result.WriteTo(writer)
	if err != nil {
		return err
	}
	return writer.Complete(fmt.Sprintf("SELECT %d", cnt))
}
