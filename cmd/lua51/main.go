// Copyright 2024 The zb Authors
// SPDX-License-Identifier: MIT

// Command lua51 runs Lua 5.1 scripts against the runtime in this module.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"zombiezen.com/go/log"

	lua "lua51.dev/runtime"
)

var initLogOnce sync.Once

func initLogging(showDebug bool) {
	initLogOnce.Do(func() {
		minLogLevel := log.Info
		if showDebug {
			minLogLevel = log.Debug
		}
		log.SetDefault(&log.LevelFilter{
			Min:    minLogLevel,
			Output: log.New(os.Stderr, "lua51: ", log.StdFlags, nil),
		})
	})
}

func main() {
	rootCommand := &cobra.Command{
		Use:           "lua51 [options] script.lua [script.lua ...]",
		Short:         "run Lua 5.1 scripts",
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.MinimumNArgs(1),
	}

	showDebug := rootCommand.PersistentFlags().Bool("debug", false, "show debugging output")
	jobs := rootCommand.Flags().IntP("jobs", "j", 1, "number of scripts to run concurrently, each in its own isolated state")
	rootCommand.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		initLogging(*showDebug)
		return nil
	}
	rootCommand.RunE = func(cmd *cobra.Command, args []string) error {
		return runScripts(cmd.Context(), args, *jobs)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCommand.ExecuteContext(ctx)
	cancel()
	if err != nil {
		initLogging(*showDebug)
		log.Errorf(context.Background(), "%v", err)
		os.Exit(1)
	}
}

// runScripts runs every named script to completion, each in its own
// GlobalState. Per spec, separate GlobalStates share nothing, so
// running them concurrently across goroutines is safe; errgroup is the
// idiomatic way to bound that concurrency and collect the first error.
func runScripts(ctx context.Context, paths []string, jobs int) error {
	if jobs < 1 {
		jobs = 1
	}
	grp, ctx := errgroup.WithContext(ctx)
	grp.SetLimit(jobs)
	for _, path := range paths {
		path := path
		grp.Go(func() error {
			return runScript(ctx, path)
		})
	}
	return grp.Wait()
}

func runScript(ctx context.Context, path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	g := lua.NewGlobalState(lua.Options{})
	g.OpenLibs()
	_, err = g.DoString(ctx, src, path)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}
