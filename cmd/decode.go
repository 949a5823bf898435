package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/cognitodev/launchpad/pkg/llm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type decodeOutput struct {
	ID      string            `json:"id"`
	Title   string            `json:"title"`
	Actions []decodeAction    `json:"actions"`
	Files   map[string]string `json:"files"`
}

type decodeAction struct {
	Kind string `json:"kind"`
	Type string `json:"type"`
	Path string `json:"path,omitempty"`
	Size int    `json:"size"`
}

func DecodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decode [file]",
		Short: "Decode the artifact in a model reply",
		Long:  `Reads a raw model reply from a file, or stdin when no file is given, and prints the artifact it contains.`,
		Args:  cobra.MaximumNArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return viper.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			var input io.Reader = cmd.InOrStdin()
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("failed to open %s: %w", args[0], err)
				}
				defer f.Close()
				input = f
			}

			raw, err := io.ReadAll(input)
			if err != nil {
				return fmt.Errorf("failed to read reply: %w", err)
			}

			return decodeReply(cmd.OutOrStdout(), string(raw), viper.GetBool("json"))
		},
	}

	cmd.Flags().Bool("json", false, "Print the decoded artifact as JSON")

	return cmd
}

func decodeReply(w io.Writer, raw string, asJSON bool) error {
	artifact, ok := llm.DecodeArtifact(raw)
	if !ok {
		return fmt.Errorf("no artifact found in reply")
	}

	out := decodeOutput{
		ID:      artifact.ID,
		Title:   artifact.Title,
		Actions: []decodeAction{},
		Files:   artifact.FileMap(),
	}
	for _, a := range artifact.Actions {
		out.Actions = append(out.Actions, decodeAction{
			Kind: string(a.Kind),
			Type: a.Type,
			Path: a.Path,
			Size: len(a.Content),
		})
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Fprintf(w, "artifact %s %q\n", out.ID, out.Title)
	for i, a := range out.Actions {
		if a.Path != "" {
			fmt.Fprintf(w, "  %d. %s %s (%d bytes)\n", i+1, a.Kind, a.Path, a.Size)
		} else {
			fmt.Fprintf(w, "  %d. %s (%d bytes)\n", i+1, a.Kind, a.Size)
		}
	}
	fmt.Fprintf(w, "%d file(s)\n", len(out.Files))
	return nil
}
