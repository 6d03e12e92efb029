package main

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/vbonduro/calscan/internal/domain"
	"github.com/vbonduro/calscan/internal/scanner"
)

func newScanCommand(cfgFile *string) *cobra.Command {
	var follow string

	cmd := &cobra.Command{
		Use:   "scan <image>",
		Short: "Analyze one food photo and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var followOp scanner.Operation
			switch follow {
			case "":
			case "recipe":
				followOp = scanner.OpRecipe
			case "alternative":
				followOp = scanner.OpAlternative
			default:
				return fmt.Errorf("--follow must be recipe or alternative, got %q", follow)
			}

			mimeType, err := detectMIME(args[0])
			if err != nil {
				return err
			}
			img, err := domain.NewImageFromFile(args[0], mimeType)
			if err != nil {
				return err
			}

			a, err := setup(cmd.Context(), *cfgFile)
			if err != nil {
				return err
			}
			defer a.close()

			o := scanner.NewOrchestrator(a.gen, a.recorder(), a.logger)
			o.SelectImage(img)

			ops := []scanner.Operation{scanner.OpAnalyze}
			if follow != "" {
				ops = append(ops, followOp)
			}

			out := cmd.OutOrStdout()
			for _, op := range ops {
				res, err := o.Run(cmd.Context(), op)
				if err != nil {
					if msg := scanner.UserMessage(op, err); msg != "" {
						return errors.New(msg)
					}
					return err
				}
				fmt.Fprintf(out, "%s\n%s\n\n", res.Kind.Heading(), res.Text)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&follow, "follow", "f", "", "follow-up after the analysis: recipe or alternative")
	return cmd
}

// detectMIME uses the file extension and falls back to sniffing the header.
func detectMIME(path string) (string, error) {
	if t := mime.TypeByExtension(strings.ToLower(filepath.Ext(path))); strings.HasPrefix(t, "image/") {
		return strings.SplitN(t, ";", 2)[0], nil
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open image: %w", err)
	}
	defer func() { _ = f.Close() }()

	head := make([]byte, domain.SniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", fmt.Errorf("failed to read image: %w", err)
	}
	if t, ok := domain.SniffImageMIME(head[:n]); ok {
		return t, nil
	}
	return "", fmt.Errorf("%s is not an image", path)
}
