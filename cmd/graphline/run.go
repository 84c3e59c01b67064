package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/graphline/graphline"
	"github.com/graphline/graphline/handlers"
	"github.com/graphline/graphline/middleware"
	"github.com/graphline/graphline/yaml"
)

func newRunCmd() *cobra.Command {
	var (
		inputJSON string
		timeout   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "run <file.yaml>",
		Short: "Execute a graph definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()

			def, err := yaml.NewParser().ParseFile(args[0])
			if err != nil {
				return err
			}
			graph, err := def.Graph()
			if err != nil {
				return err
			}

			var inputs any
			if inputJSON != "" {
				if err := json.Unmarshal([]byte(inputJSON), &inputs); err != nil {
					return fmt.Errorf("parse --input: %w", err)
				}
			}

			kv := graphline.NewMemoryStore()
			handlerReg := graphline.NewHandlerRegistry()
			deps := handlers.Deps{
				Cache:   kv,
				Triples: handlers.NewMemoryTripleStore(),
				Logger:  logger,
			}
			if err := handlers.RegisterAll(handlerReg, deps,
				middleware.Recovery(),
				middleware.Logging(logger),
			); err != nil {
				return err
			}

			graphReg := graphline.NewGraphRegistry()
			if err := graphReg.Register(graph); err != nil {
				return err
			}

			exec := graphline.NewExecutor(handlerReg, graphReg,
				graphline.WithLogger(logger),
				graphline.WithRunStore(graphline.NewKVRunStore(kv)),
			)

			result := exec.Execute(cmd.Context(), graphline.Request{
				GraphID: graph.ID,
				Inputs:  inputs,
				Timeout: timeout,
			})

			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			if result.Status != graphline.RunCompleted {
				return fmt.Errorf("run %s ended with status %s", result.ID, result.Status)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&inputJSON, "input", "", "run inputs as a JSON document")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "per-run deadline (0 = none)")
	return cmd
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file.yaml>",
		Short: "Validate a graph definition without executing it",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			def, err := yaml.NewParser().ParseFile(args[0])
			if err != nil {
				return err
			}
			graph, err := def.Graph()
			if err != nil {
				return err
			}
			fmt.Printf("%s: valid (%d nodes, %d edges)\n", graph.ID, len(graph.Nodes), len(graph.Edges))
			return nil
		},
	}
}

func newHandlersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "handlers",
		Short: "List built-in handler types",
		Run: func(_ *cobra.Command, _ []string) {
			for _, key := range handlers.Keys() {
				meta, _ := handlers.Describe(key)
				fmt.Printf("%-12s %s\n", key, meta.Description)
			}
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "info <type>",
		Short: "Show a handler's config schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			meta, ok := handlers.Describe(args[0])
			if !ok {
				return fmt.Errorf("unknown handler type %q", args[0])
			}
			fmt.Printf("%s\n\n%s\n", meta.Key, meta.Description)
			if len(meta.ConfigSchema) > 0 {
				schema, err := json.MarshalIndent(meta.ConfigSchema, "", "  ")
				if err != nil {
					return err
				}
				fmt.Printf("\nConfig schema:\n%s\n", schema)
			}
			return nil
		},
	})
	return cmd
}

func newLogger() graphline.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return graphline.NewSlogLogger(slog.New(h))
}
