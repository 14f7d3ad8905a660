package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nvr-ai/edge-vision/inference"
	"github.com/nvr-ai/edge-vision/models"
)

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Print the model tensors and the architecture that decodes them",
		Args:  cobra.NoArgs,
		RunE:  inspectHandler,
	}
}

func inspectHandler(cmd *cobra.Command, _ []string) error {
	c, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	e, err := openEngine(c)
	if err != nil {
		return err
	}
	defer e.Close()

	out := cmd.OutOrStdout()
	if err := describe(out, e); err != nil {
		return err
	}
	if entry, ok := models.Match(e, c.Architecture); ok {
		fmt.Fprintf(out, "\narchitecture: %s\n", entry.Type)
	} else {
		fmt.Fprintf(out, "\narchitecture: none matches (hint %s)\n", c.Architecture)
	}
	return nil
}

// describe writes one row per tensor: direction, index, name, type, shape and quantization.
func describe(w io.Writer, e inference.Engine) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tINDEX\tNAME\tTYPE\tSHAPE\tSCALE\tZERO POINT")
	rows := []struct {
		kind  string
		count int
		get   func(int) (inference.Tensor, error)
	}{
		{"input", e.InputCount(), e.Input},
		{"output", e.OutputCount(), e.Output},
	}
	for _, r := range rows {
		for i := 0; i < r.count; i++ {
			t, err := r.get(i)
			if err != nil {
				return err
			}
			shape := t.Shape.String()
			if t.Variable {
				shape += " (variable)"
			}
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%g\t%d\n", r.kind, i, t.Name, t.Type, shape, t.Quant.Scale, t.Quant.ZeroPoint)
		}
	}
	return tw.Flush()
}
