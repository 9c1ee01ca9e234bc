package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/orrn/labelspool/internal/core"
)

type printOptions struct {
	sourcesPath string
	quantities  []string
	yes         bool
}

// sourceFile is the YAML layout of --sources.
type sourceFile struct {
	Sources []struct {
		BatchID      int64  `yaml:"batch_id"`
		ProductName  string `yaml:"product_name"`
		Price        string `yaml:"price"`
		FallbackCode string `yaml:"fallback_code"`
	} `yaml:"sources"`
}

func newPrintCmd(root *rootOptions) *cobra.Command {
	opts := &printOptions{}
	cmd := &cobra.Command{
		Use:   "print",
		Short: "Collect barcodes for batches and print their labels",
		Example: `  labelspool print --sources batches.yaml
  labelspool print --sources batches.yaml --qty 8901234567890=3 --yes`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPrint(cmd.Context(), root, opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&opts.sourcesPath, "sources", "s", "", "YAML file listing the batches to print")
	cmd.Flags().StringArrayVar(&opts.quantities, "qty", nil, "quantity override as CODE=N (repeatable)")
	cmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "answer yes to every confirmation")
	_ = cmd.MarkFlagRequired("sources")
	return cmd
}

func loadSources(path string) ([]core.BatchSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sources: %w", err)
	}

	var file sourceFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse sources: %w", err)
	}

	sources := make([]core.BatchSource, 0, len(file.Sources))
	for i, s := range file.Sources {
		price := decimal.Zero
		if s.Price != "" {
			if price, err = decimal.NewFromString(s.Price); err != nil {
				return nil, fmt.Errorf("source %d: invalid price %q: %w", i, s.Price, err)
			}
		}
		sources = append(sources, core.BatchSource{
			BatchID:      s.BatchID,
			ProductName:  s.ProductName,
			Price:        price,
			FallbackCode: s.FallbackCode,
		})
	}
	return sources, nil
}

func parseQuantities(values []string) (map[string]int, error) {
	out := make(map[string]int, len(values))
	for _, v := range values {
		code, n, ok := strings.Cut(v, "=")
		if !ok || code == "" {
			return nil, fmt.Errorf("invalid --qty %q, want CODE=N", v)
		}
		q, err := strconv.Atoi(n)
		if err != nil {
			return nil, fmt.Errorf("invalid --qty %q: %w", v, err)
		}
		out[code] = q
	}
	return out, nil
}

func runPrint(ctx context.Context, root *rootOptions, opts *printOptions, in io.Reader, out io.Writer) error {
	sources, err := loadSources(opts.sourcesPath)
	if err != nil {
		return err
	}
	overrides, err := parseQuantities(opts.quantities)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, root)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx = core.WithOperator(ctx, os.Getenv("USER"))
	prompter := &terminalPrompter{in: bufio.NewReader(in), out: out, yes: opts.yes}
	dialog := core.NewPrintDialog(a.session, a.collector, prompter, a.cfg.Print.MaxQuantity, a.logger)

	if err := dialog.Prepare(ctx, sources); err != nil {
		if errors.Is(err, core.ErrCancelled) {
			fmt.Fprintln(out, "Cancelled.")
			return nil
		}
		return err
	}

	for code, q := range overrides {
		if _, err := dialog.SetQuantity(code, q); err != nil {
			return err
		}
	}

	printItems(out, dialog)

	if _, err := dialog.Print(ctx); err != nil {
		if errors.Is(err, core.ErrCancelled) {
			fmt.Fprintln(out, "Cancelled.")
			return nil
		}
		return err
	}
	return nil
}

func printItems(out io.Writer, dialog *core.PrintDialog) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CODE\tPRODUCT\tPRICE\tQTY")
	for _, item := range dialog.Items() {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", item.Code, item.ProductName, item.Price.StringFixed(2), item.Qty)
	}
	tw.Flush()
	fmt.Fprintf(out, "%d labels on %s\n", dialog.Total(), dialog.Printer())
}

// terminalPrompter asks y/N questions on the terminal.
type terminalPrompter struct {
	in  *bufio.Reader
	out io.Writer
	yes bool
}

func (p *terminalPrompter) Confirm(_ context.Context, prompt string) bool {
	if p.yes {
		fmt.Fprintf(p.out, "%s yes\n", prompt)
		return true
	}
	fmt.Fprintf(p.out, "%s [y/N] ", prompt)
	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		fmt.Fprintln(p.out)
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

func (p *terminalPrompter) Notify(_ context.Context, message string, severity core.Severity) {
	switch severity {
	case core.SeverityError:
		fmt.Fprintf(p.out, "Error: %s\n", message)
	case core.SeverityWarning:
		fmt.Fprintf(p.out, "Warning: %s\n", message)
	default:
		fmt.Fprintln(p.out, message)
	}
}
