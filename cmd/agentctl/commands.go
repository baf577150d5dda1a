package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"agentdb/internal/export"
	"agentdb/internal/models"
	"agentdb/internal/server"
)

func testConnectionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test-connection",
		Short: "Open a fresh connection to the agent's database and report the latency",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *server.App, agentID uuid.UUID) error {
				res, err := app.Connections.TestConnection(ctx, agentID)
				if err != nil {
					return err
				}
				if err := printJSON(cmd.OutOrStdout(), res); err != nil {
					return err
				}
				if !res.Success {
					return fmt.Errorf("connection test failed")
				}
				return nil
			})
		},
	}
}

func introspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "introspect",
		Short: "Print the external schema as a JSON document without storing it",
		Long:  "Print the external schema as a JSON document. The output is accepted by the import command.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *server.App, agentID uuid.UUID) error {
				snap, err := app.Schema.FetchSchema(ctx, agentID)
				if err != nil {
					return err
				}
				for _, w := range snap.Warnings {
					fmt.Fprintln(cmd.ErrOrStderr(), "warning:", w)
				}
				return printJSON(cmd.OutOrStdout(), snap)
			})
		},
	}
}

func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Introspect the external database and merge it into the agent's metadata",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *server.App, agentID uuid.UUID) error {
				summary, err := app.Schema.Sync(ctx, agentID)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), summary)
			})
		},
	}
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <document.json>",
		Short: "Replace the agent's schema with a JSON schema document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var doc models.SchemaSnapshot
			if err := json.Unmarshal(raw, &doc); err != nil {
				return fmt.Errorf("invalid schema document: %w", err)
			}
			for i, t := range doc.Tables {
				if t.Name == "" {
					return fmt.Errorf("invalid schema document: table %d has no name", i)
				}
			}

			return withApp(cmd, func(ctx context.Context, app *server.App, agentID uuid.UUID) error {
				summary, err := app.Schema.ImportFromDocument(ctx, agentID, &doc)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), summary)
			})
		},
	}
}

func exportCmd() *cobra.Command {
	var (
		query  string
		format string
		output string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Stream every row of a query to an xlsx or csv file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *server.App, agentID uuid.UUID) error {
				if format != export.FormatXLSX && format != export.FormatCSV {
					return fmt.Errorf("unsupported export format: %s", format)
				}
				path := output
				if path == "" {
					path = "export." + format
				}

				var f *os.File
				stats, err := app.Query.ExportQuery(ctx, agentID, query, func() (export.Sink, error) {
					var err error
					if f, err = os.Create(path); err != nil {
						return nil, err
					}
					return export.NewSink(format, f)
				})
				if f != nil {
					if closeErr := f.Close(); closeErr != nil && err == nil {
						err = closeErr
					}
					// an aborted workbook leaves an empty file behind
					if err != nil && format == export.FormatXLSX {
						_ = os.Remove(path)
					}
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "exported %d rows in %d chunks to %s\n", stats.Rows, stats.Chunks, path)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&query, "query", "q", "", "SELECT statement to export")
	cmd.Flags().StringVar(&format, "format", export.FormatXLSX, "output format (xlsx/csv)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default export.<format>)")
	_ = cmd.MarkFlagRequired("query")
	return cmd
}

func diagramCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diagram",
		Short: "Print the agent's curated schema as a Mermaid ER diagram",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, app *server.App, agentID uuid.UUID) error {
				diagram, err := app.Metadata.Diagram(ctx, agentID)
				if err != nil {
					return err
				}
				_, err = fmt.Fprint(cmd.OutOrStdout(), diagram)
				return err
			})
		},
	}
}
