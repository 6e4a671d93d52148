package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"pixrecon/internal/app/service/classifier"
)

func classifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify [file]",
		Short: "Classify a webhook payload read from file or stdin",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			raw, err := io.ReadAll(in)
			if err != nil {
				return fmt.Errorf("read payload: %w", err)
			}

			ev, err := classifier.Classify(raw)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(struct {
				GatewayReference string `json:"gatewayReference"`
				Event            string `json:"event"`
				Kind             string `json:"kind,omitempty"`
				Target           string `json:"target"`
				Transition       bool   `json:"transition"`
			}{ev.GatewayReference, ev.Name, string(ev.Kind), string(ev.Target), ev.Transition()})
		},
	}
}
