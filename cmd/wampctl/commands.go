// File: cmd/wampctl/commands.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/momentics/hioload-wamp/client"
)

func callCmd(opts *globalOptions) *cobra.Command {
	var kwargs string
	cmd := &cobra.Command{
		Use:   "call <procedure> [json-args]",
		Short: "Call a procedure and print its result",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, argv []string) error {
			args, kw, err := parsePayload(optional(argv, 1), kwargs)
			if err != nil {
				return err
			}
			s, err := opts.open(nil)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := s.start(ctx); err != nil {
				return err
			}
			defer s.close()

			res, err := s.client.Call(ctx, argv[0], args, kw)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{"args": res.Args, "kwargs": res.Kwargs})
		},
	}
	cmd.Flags().StringVar(&kwargs, "kwargs", "", "keyword arguments as a JSON object")
	return cmd
}

func publishCmd(opts *globalOptions) *cobra.Command {
	var kwargs string
	cmd := &cobra.Command{
		Use:   "publish <topic> [json-args]",
		Short: "Publish one event to a topic",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, argv []string) error {
			args, kw, err := parsePayload(optional(argv, 1), kwargs)
			if err != nil {
				return err
			}
			s, err := opts.open(nil)
			if err != nil {
				return err
			}
			if err := s.start(cmd.Context()); err != nil {
				return err
			}
			defer s.close()
			return s.client.Publish(argv[0], args, kw)
		},
	}
	cmd.Flags().StringVar(&kwargs, "kwargs", "", "keyword arguments as a JSON object")
	return cmd
}

func subscribeCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "subscribe <topic>...",
		Short: "Print events from one or more topics until interrupted",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, argv []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			var mu sync.Mutex
			app := client.NewApp()
			for _, topic := range argv {
				app.Subscribe(topic, func(args []any, kwargs map[string]any) {
					mu.Lock()
					defer mu.Unlock()
					_ = printJSON(out, map[string]any{"args": args, "kwargs": kwargs})
				})
			}

			s, err := opts.open(app)
			if err != nil {
				return err
			}
			if err := s.start(ctx); err != nil {
				return err
			}
			defer s.close()

			select {
			case <-ctx.Done():
				return nil
			case <-s.client.Done():
				return s.client.Err()
			}
		},
	}
}

func optional(argv []string, i int) string {
	if i < len(argv) {
		return argv[i]
	}
	return ""
}

func printJSON(w io.Writer, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(raw))
	return err
}
