// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Command scrun is the OCI runtime front-end (§4.6): it implements the
// create/start/state/kill/delete/version verbs an OCI-compatible
// container engine expects, driving each container's allocation through
// a per-container anchor process over a unix socket.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/hpcsched/alloc/internal/container"
	"github.com/hpcsched/alloc/pkg/logging"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// killSignals maps the signal names an OCI runtime's `kill` verb accepts
// (bare or SIG-prefixed, any case) onto their numeric values.
var killSignals = map[string]syscall.Signal{
	"TERM": syscall.SIGTERM,
	"KILL": syscall.SIGKILL,
	"INT":  syscall.SIGINT,
	"HUP":  syscall.SIGHUP,
	"QUIT": syscall.SIGQUIT,
	"USR1": syscall.SIGUSR1,
	"USR2": syscall.SIGUSR2,
	"STOP": syscall.SIGSTOP,
	"CONT": syscall.SIGCONT,
}

// parseKillSignal accepts a numeric signal or a name like "TERM"/"SIGTERM"
// in any case, upper-casing it and stripping a "SIG" prefix before the
// table lookup.
func parseKillSignal(s string) (syscall.Signal, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return syscall.Signal(n), nil
	}

	upper := cases.Upper(language.Und).String(s)
	name := strings.TrimPrefix(upper, "SIG")
	if sig, ok := killSignals[name]; ok {
		return sig, nil
	}
	return 0, fmt.Errorf("unrecognised signal %q", s)
}

var (
	flagRoot          string
	flagLogFile       string
	flagLogFormat     string
	flagDebug         bool
	flagVerbose       int
	flagCgroupManager string
	flagRootless      bool
	flagSystemdCgroup bool
	flagForce         bool

	log logging.Logger
	key container.SocketHashKey
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "scrun:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "scrun",
		Short:         "OCI runtime front-end over the allocation protocol",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cfg := logging.DefaultConfig()
			if flagDebug {
				cfg.Level = slog.LevelDebug
			}
			if flagLogFormat == "json" {
				cfg.Format = logging.FormatJSON
			}
			if flagLogFile != "" {
				if f, err := os.OpenFile(flagLogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600); err == nil {
					cfg.Output = f
				}
			}
			log = logging.NewLogger(cfg)

			// cgroup/rootless flags are accepted so container engines that
			// always pass them don't fail invocation, but this front-end
			// delegates cgroup and namespace setup to the allocation
			// protocol's own job containment (§4.6 non-goals).
			if flagCgroupManager != "" || flagRootless || flagSystemdCgroup {
				log.Warn("ignoring cgroup/namespace flags; containment is delegated to the allocation",
					"cgroup_manager", flagCgroupManager, "rootless", flagRootless, "systemd_cgroup", flagSystemdCgroup)
			}
		},
	}

	root.PersistentFlags().StringVar(&flagRoot, "root", "", "runtime root directory (default: autodetected)")
	root.PersistentFlags().StringVar(&flagLogFile, "log", "", "write logs to this file instead of stdout")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "log format: text or json")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
	root.PersistentFlags().CountVarP(&flagVerbose, "verbose", "v", "increase verbosity")
	root.PersistentFlags().StringVar(&flagCgroupManager, "cgroup-manager", "", "ignored; accepted for engine compatibility")
	root.PersistentFlags().BoolVar(&flagRootless, "rootless", false, "ignored; accepted for engine compatibility")
	root.PersistentFlags().BoolVar(&flagSystemdCgroup, "systemd-cgroup", false, "ignored; accepted for engine compatibility")

	root.AddCommand(createCmd(), startCmd(), stateCmd(), killCmd(), deleteCmd(), versionCmd())
	return root
}

// insideUserNamespace reports whether the process's uid map is anything
// other than the host identity mapping, the standard signal that uid 0
// here is not uid 0 on the host.
func insideUserNamespace() bool {
	data, err := os.ReadFile("/proc/self/uid_map")
	if err != nil {
		return false
	}
	fields := strings.Fields(string(data))
	return !(len(fields) == 3 && fields[0] == "0" && fields[1] == "0" && fields[2] == "4294967295")
}

func resolveRoot() (string, error) {
	if flagRoot != "" {
		return flagRoot, nil
	}
	return container.RuntimeRoot(os.Getuid(), insideUserNamespace())
}

func openStore(root string) *container.Store {
	user := strconv.Itoa(os.Getuid())
	if u := os.Getenv("USER"); u != "" {
		user = u
	}
	return container.NewStore(root, container.NewUnixAnchorDialer(root, user, key), log)
}

func createCmd() *cobra.Command {
	var (
		bundle        string
		consoleSocket string
		pidFile       string
		noPivot       bool
		noNewKeyring  bool
		preserveFds   int
	)

	cmd := &cobra.Command{
		Use:   "create --bundle PATH <id>",
		Short: "create a container from an OCI bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if bundle == "" {
				return fmt.Errorf("--bundle is required")
			}
			id := args[0]
			root, err := resolveRoot()
			if err != nil {
				return err
			}

			if consoleSocket != "" || pidFile != "" || noPivot || noNewKeyring || preserveFds > 0 {
				log.Warn("ignoring bundle-setup flags; filesystem/keyring/fd/pid-file setup is delegated to the allocation",
					"console_socket", consoleSocket, "pid_file", pidFile,
					"no_pivot", noPivot, "no_new_keyring", noNewKeyring, "preserve_fds", preserveFds)
			}

			store := openStore(root)
			_, err = store.Create(id, bundle)
			return err
		},
	}

	cmd.Flags().StringVar(&bundle, "bundle", "", "path to the OCI bundle (required)")
	cmd.Flags().StringVar(&consoleSocket, "console-socket", "", "ignored; accepted for engine compatibility")
	cmd.Flags().StringVar(&pidFile, "pid-file", "", "ignored; accepted for engine compatibility")
	cmd.Flags().BoolVar(&noPivot, "no-pivot", false, "ignored; accepted for engine compatibility")
	cmd.Flags().BoolVar(&noNewKeyring, "no-new-keyring", false, "ignored; accepted for engine compatibility")
	cmd.Flags().IntVar(&preserveFds, "preserve-fds", 0, "ignored; accepted for engine compatibility")
	return cmd
}

func startCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start <id>",
		Short: "start a created container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := resolveRoot()
			if err != nil {
				return err
			}
			store := openStore(root)
			return store.Start(cmd.Context(), args[0])
		},
	}
}

func stateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "state <id>",
		Short: "print a container's current state as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := resolveRoot()
			if err != nil {
				return err
			}
			store := openStore(root)
			st, err := store.State(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			data, err := container.StateJSON(st)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}

func killCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "kill <id> [signal]",
		Short: "send a signal to a container",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sig := syscall.SIGTERM
			if len(args) == 2 {
				parsed, err := parseKillSignal(args[1])
				if err != nil {
					return err
				}
				sig = parsed
			}
			root, err := resolveRoot()
			if err != nil {
				return err
			}
			store := openStore(root)
			return store.Kill(cmd.Context(), args[0], sig)
		},
	}
}

func deleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "delete a container's state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := resolveRoot()
			if err != nil {
				return err
			}
			store := openStore(root)
			return store.Delete(cmd.Context(), args[0], flagForce)
		},
	}
	cmd.Flags().BoolVarP(&flagForce, "force", "f", false, "kill a still-running container before deleting")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print runtime and spec versions",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for k, v := range container.Version() {
				fmt.Fprintf(out, "%s: %s\n", k, v)
			}
			return nil
		},
	}
}
