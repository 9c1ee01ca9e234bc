package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/orrn/labelspool/internal/bridge"
	"github.com/orrn/labelspool/internal/core"
)

type renderOptions struct {
	code  string
	name  string
	price string
	dpi   string
	out   string
}

func newRenderCmd(root *rootOptions) *cobra.Command {
	opts := &renderOptions{}
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a single label to a PNG or PDF file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(root, opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.code, "code", "", "barcode payload")
	cmd.Flags().StringVar(&opts.name, "name", "", "product name")
	cmd.Flags().StringVar(&opts.price, "price", "0", "unit price")
	cmd.Flags().StringVar(&opts.dpi, "dpi", "", "printer resolution (203, 300 or 600), defaults to the config")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "label.png", "output file, .png or .pdf")
	_ = cmd.MarkFlagRequired("code")
	return cmd
}

func runRender(root *rootOptions, opts *renderOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}

	layout := core.LayoutFromConfig(cfg.Label)
	if opts.dpi != "" {
		if layout.DPI, err = core.ParseDPIStr(opts.dpi); err != nil {
			return err
		}
	}

	price, err := decimal.NewFromString(opts.price)
	if err != nil {
		return fmt.Errorf("invalid price %q: %w", opts.price, err)
	}

	renderer, err := core.NewLabelRenderer(layout)
	if err != nil {
		return err
	}
	label, err := renderer.Render(opts.code, opts.name, price)
	if err != nil {
		return err
	}

	var data []byte
	switch strings.ToLower(filepath.Ext(opts.out)) {
	case ".png":
		data = label.PNG
	case ".pdf":
		var buf bytes.Buffer
		jobCfg := core.JobConfig{
			Printer:  bridge.PDFPrinterName,
			WidthMM:  layout.WidthMM,
			HeightMM: layout.HeightMM,
			DPI:      layout.DPI,
		}
		if err := bridge.WriteLabelsPDF(&buf, jobCfg, []string{label.Base64()}); err != nil {
			return err
		}
		data = buf.Bytes()
	default:
		return fmt.Errorf("unsupported output %q, use .png or .pdf", opts.out)
	}

	if err := os.WriteFile(opts.out, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", opts.out, err)
	}

	w, h := renderer.Size()
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%dx%d dots at %d dpi)\n", opts.out, w, h, layout.DPI)
	return nil
}
