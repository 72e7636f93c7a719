// Package main provides the configurator-cli binary: offline schema tools,
// an interactive configuration wizard and a thin client for a running
// configurator service.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/terra-clan/part-configurator/internal/catalog"
	"github.com/terra-clan/part-configurator/internal/config"
	"github.com/terra-clan/part-configurator/internal/models"
	"github.com/terra-clan/part-configurator/internal/preview"
	"github.com/terra-clan/part-configurator/internal/validation"
	"github.com/terra-clan/part-configurator/internal/wizard"
	"github.com/terra-clan/part-configurator/pkg/client"
)

const appName = "configurator-cli"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// options are the persistent flags shared by every subcommand
type options struct {
	schemasDir string
	apiURL     string
	apiKey     string
	asJSON     bool
}

func rootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Parametric part configurator tools",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.schemasDir, "schemas-dir", os.Getenv("SCHEMAS_DIR"), "Directory of extra YAML product schemas")
	cmd.PersistentFlags().StringVar(&opts.apiURL, "api", envOr("CONFIGURATOR_URL", "http://localhost:8080"), "Configurator service URL")
	cmd.PersistentFlags().StringVar(&opts.apiKey, "api-key", os.Getenv("CONFIGURATOR_API_KEY"), "API key for the configurator service")
	cmd.PersistentFlags().BoolVar(&opts.asJSON, "json", false, "Print JSON instead of text")

	cmd.AddCommand(
		schemasCmd(opts),
		validateCmd(opts),
		scaleCmd(opts),
		inspectModelCmd(opts),
		wizardCmd(opts),
		healthCmd(opts),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, config.Version)
			},
		},
	)

	return cmd
}

func schemasCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "schemas [id]",
		Short: "List product schemas or show one in full",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := opts.registry()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if len(args) == 1 {
				schema, ok := registry.Get(args[0])
				if !ok {
					return fmt.Errorf("%w: %s", catalog.ErrSchemaNotFound, args[0])
				}
				if opts.asJSON {
					return writeJSON(out, schema)
				}
				return writeSchema(out, schema)
			}

			if opts.asJSON {
				return writeJSON(out, registry.Summaries())
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSLUG\tNAME\tSTEPS\tPARAMETERS")
			for _, s := range registry.Summaries() {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\n", s.ID, s.Slug, s.Name, s.Steps, s.Parameters)
			}
			return tw.Flush()
		},
	}
}

func validateCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <schema> [KEY=value...]",
		Short: "Validate form values against a schema",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, form, err := opts.schemaAndForm(args)
			if err != nil {
				return err
			}
			report := validation.ValidateForm(form, schema)
			complete := validation.AllComplete(form, schema)

			out := cmd.OutOrStdout()
			if opts.asJSON {
				if err := writeJSON(out, client.ValidationReport{SchemaID: schema.ID, Steps: report, Complete: complete}); err != nil {
					return err
				}
			} else {
				writeReport(out, schema, report, complete)
			}
			if !complete {
				return errIncomplete
			}
			return nil
		},
	}
}

func scaleCmd(opts *options) *cobra.Command {
	var modelsDir string

	cmd := &cobra.Command{
		Use:   "scale <schema> [KEY=value...]",
		Short: "Compute the preview scale and model URL for form values",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, form, err := opts.schemaAndForm(args)
			if err != nil {
				return err
			}
			payload := preview.NewResolver(modelsDir, "").Payload(schema, form)

			out := cmd.OutOrStdout()
			if opts.asJSON {
				return writeJSON(out, payload)
			}
			fmt.Fprintf(out, "scale: %g x %g x %g\n", payload.Scale[0], payload.Scale[1], payload.Scale[2])
			if payload.ModelURL != "" {
				fmt.Fprintf(out, "model: %s\n", payload.ModelURL)
			}
			if payload.Fallback {
				fmt.Fprintf(out, "fallback: %s\n", payload.Reason)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&modelsDir, "models-dir", os.Getenv("MODELS_DIR"), "Directory holding the GLB models")
	return cmd
}

func inspectModelCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect-model <file.glb>",
		Short: "Print the scene graph of a binary glTF model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := preview.InspectFile(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.asJSON {
				return writeJSON(out, info)
			}
			return info.WriteTree(out)
		},
	}
}

func wizardCmd(opts *options) *cobra.Command {
	var (
		schemaID string
		save     bool
	)

	cmd := &cobra.Command{
		Use:   "wizard [KEY=value...]",
		Short: "Configure a part step by step in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			registry, err := opts.registry()
			if err != nil {
				return err
			}
			initial, err := parseValues(args)
			if err != nil {
				return err
			}

			w := wizard.New(registry, wizard.NewSurveyDriver())
			if schemaID == "" {
				if schemaID, err = w.ChooseSchema(ctx); err != nil {
					return err
				}
			}

			res, err := w.Run(ctx, schemaID, initial)
			if err != nil {
				if errors.Is(err, wizard.ErrAborted) {
					fmt.Fprintln(cmd.ErrOrStderr(), "aborted")
					return nil
				}
				return err
			}

			out := cmd.OutOrStdout()
			if err := writeValues(out, res.Values); err != nil {
				return err
			}
			if !res.Complete {
				return errIncomplete
			}

			if !save {
				ok, err := w.Confirm(ctx, "Save this configuration to "+opts.apiURL+"?", true)
				if err != nil || !ok {
					return err
				}
			}
			return saveConfiguration(ctx, opts.client(), out, res)
		},
	}
	cmd.Flags().StringVarP(&schemaID, "schema", "s", "", "Product schema id (asks when empty)")
	cmd.Flags().BoolVarP(&save, "yes", "y", false, "Save without asking")
	return cmd
}

func healthCmd(opts *options) *cobra.Command {
	var (
		watch    bool
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check the configurator service",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			c := opts.client()

			if !watch {
				status, err := c.Health(ctx)
				if err != nil {
					return err
				}
				if opts.asJSON {
					return writeJSON(out, status)
				}
				fmt.Fprintf(out, "%s %s: %s\n", status.Service, status.Version, status.Status)
				return nil
			}

			m := client.NewHealthMonitor(c, interval, func(healthy bool, err error) {
				if healthy {
					fmt.Fprintf(out, "%s %s is healthy\n", time.Now().Format(time.RFC3339), opts.apiURL)
					return
				}
				fmt.Fprintf(out, "%s %s is unhealthy: %v\n", time.Now().Format(time.RFC3339), opts.apiURL, err)
			})
			m.Start(ctx)
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Keep polling and report changes")
	cmd.Flags().DurationVar(&interval, "interval", client.DefaultMonitorInterval, "Polling interval with --watch")
	return cmd
}

var errIncomplete = errors.New("configuration is incomplete")

func (o *options) registry() (*catalog.Registry, error) {
	registry, err := catalog.NewBuiltinRegistry()
	if err != nil {
		return nil, err
	}
	if o.schemasDir != "" {
		if _, err := catalog.NewLoader(registry).LoadFromDir(o.schemasDir); err != nil {
			return nil, fmt.Errorf("failed to load schemas from %s: %w", o.schemasDir, err)
		}
	}
	return registry, nil
}

func (o *options) client() *client.Client {
	return client.NewClient(o.apiURL, o.apiKey, client.WithTimeout(30*time.Second))
}

// schemaAndForm resolves args[0] strictly and parses the remaining assignments
func (o *options) schemaAndForm(args []string) (*models.Schema, models.FormState, error) {
	registry, err := o.registry()
	if err != nil {
		return nil, nil, err
	}
	schema, ok := registry.Get(args[0])
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", catalog.ErrSchemaNotFound, args[0])
	}
	form, err := parseValues(args[1:])
	if err != nil {
		return nil, nil, err
	}
	for key := range form {
		if _, ok := schema.Parameter(key); !ok {
			return nil, nil, fmt.Errorf("unknown parameter %q for %s", key, schema.ID)
		}
	}
	return schema, form, nil
}

func parseValues(args []string) (models.FormState, error) {
	form := make(models.FormState, len(args))
	for _, arg := range args {
		key, value, err := models.ParseAssignment(arg)
		if err != nil {
			return nil, err
		}
		form[key] = value
	}
	return form, nil
}

// saveConfiguration replays the wizard result into a server session and
// applies it
func saveConfiguration(ctx context.Context, c *client.Client, out io.Writer, res *wizard.Result) error {
	st, err := c.CreateSession(ctx, res.SchemaID, res.Values)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	defer func() { _ = c.DeleteSession(context.WithoutCancel(ctx), st.ID) }()

	applied, err := c.ApplySession(ctx, st.ID)
	if err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}
	fmt.Fprintf(out, "saved configuration %d (%s)\n", applied.ConfigurationID, applied.Status)
	return nil
}

func writeSchema(out io.Writer, schema *models.Schema) error {
	fmt.Fprintf(out, "%s (%s)\n", schema.Name, schema.ID)
	if schema.ModelPath != "" {
		fmt.Fprintf(out, "model: %s\n", schema.ModelPath)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for i, step := range schema.Steps {
		fmt.Fprintf(tw, "\n%d. %s\t\t\t\n", i+1, step.Title)
		for _, p := range validation.ParametersByStep(step.ID, schema) {
			required := ""
			if p.Required {
				required = "required"
			}
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", p.Key, p.Label, p.InputKind, required)
		}
	}
	return tw.Flush()
}

func writeReport(out io.Writer, schema *models.Schema, report map[string]validation.StepResult, complete bool) {
	for _, step := range schema.Steps {
		r := report[step.ID]
		mark := "ok"
		if !r.Valid {
			mark = "invalid"
		}
		fmt.Fprintf(out, "%-8s %s\n", mark, step.Title)
		for _, fe := range r.Errors {
			fmt.Fprintf(out, "         %s: %s\n", fe.Key, fe.Error)
		}
	}
	if complete {
		fmt.Fprintln(out, "complete")
	}
}

func writeValues(out io.Writer, form models.FormState) error {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, k := range keys {
		fmt.Fprintf(tw, "%s\t%s\n", k, form[k])
	}
	return tw.Flush()
}

func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
