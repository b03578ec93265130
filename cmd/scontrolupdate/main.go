// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Command scontrolupdate implements the `scontrol update` job-update
// argument parser (§4.7): `key=value`/`key+=value`/`key-=value` tokens
// naming a job by JobId= or Name=, applied through the controller and,
// for a resized single non-array job, followed by resize-reset script
// generation in the current directory.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/hpcsched/alloc/internal/jobupdate"
	"github.com/hpcsched/alloc/internal/restcontroller"
	"github.com/hpcsched/alloc/pkg/auth"
	allocconfig "github.com/hpcsched/alloc/pkg/config"
	"github.com/hpcsched/alloc/pkg/logging"
	"github.com/hpcsched/alloc/pkg/metrics"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: scontrol update JobId=<id> <field>=<value> [<field>=<value> ...]")
		return 1
	}

	log := logging.NewLogger(logging.DefaultConfig())

	cfg := allocconfig.NewDefault()
	cfg.Load()

	ctrl, err := restcontroller.New(cfg, auth.NewNoAuth(), metrics.NewInMemoryCollector(), log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "scontrol:", err)
		return 1
	}
	defer ctrl.Close()

	wd, err := os.Getwd()
	if err != nil {
		fmt.Fprintln(os.Stderr, "scontrol: cannot determine working directory:", err)
		return 1
	}

	client := jobupdate.NewClient(ctrl, wd, log)
	results, err := client.Run(context.Background(), args)
	if err != nil {
		if jobupdate.IsGresHelp(err) {
			printGresHelp()
			return 0
		}
		fmt.Fprintln(os.Stderr, "scontrol:", err)
		return 1
	}

	exit := 0
	for _, r := range results {
		if r.Err == nil {
			continue
		}
		if jobupdate.IsGresHelp(r.Err) {
			printGresHelp()
			continue
		}
		fmt.Fprintf(os.Stderr, "scontrol: update failed for job %s: %s\n", r.JobID, r.Err)
		exit = 1
	}
	return exit
}

func printGresHelp() {
	fmt.Fprintln(os.Stdout, "Valid gres options (%Type:Count)")
	fmt.Fprintln(os.Stdout, "Gres count can be a numeric value")
}
