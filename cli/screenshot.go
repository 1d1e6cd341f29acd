package cli

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"

	"github.com/mobile-next/siminspect/commands"
	"github.com/spf13/cobra"
)

var screenshotCmd = &cobra.Command{
	Use:   "screenshot",
	Short: "Take a screenshot of a simulator through the companion",
	Long:  `Refreshes the selected simulator through the companion and saves the screenshot taken with its accessibility tree. Use --output - to write the image to stdout.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := startInspector(context.Background(), runtimeOptions{companion: true}); err != nil {
			return err
		}

		if response := commands.TreeRefreshCommand(context.Background()); response.Status == "error" {
			return finish(response)
		}

		req := commands.ScreenshotRequest{
			Format:     screenshotFormat,
			Quality:    screenshotJpegQuality,
			OutputPath: screenshotOutputPath,
		}
		response := commands.ScreenshotCommand(req)

		// Handle stdout output for binary data
		if screenshotOutputPath == "-" && response.Status == "ok" {
			if screenshotResp, ok := response.Data.(commands.ScreenshotResponse); ok && screenshotResp.Data != "" {
				imageBytes, err := base64.StdEncoding.DecodeString(screenshotResp.Data)
				if err != nil {
					return fmt.Errorf("failed to decode image data: %v", err)
				}
				if _, err := os.Stdout.Write(imageBytes); err != nil {
					return fmt.Errorf("failed to write to stdout: %v", err)
				}
				return nil
			}
		}

		return finish(response)
	},
}

func init() {
	rootCmd.AddCommand(screenshotCmd)

	screenshotCmd.Flags().StringVar(&deviceId, "device", "", "ID of the simulator to take a screenshot from")
	screenshotCmd.Flags().StringVarP(&screenshotOutputPath, "output", "o", "", "Output file path for the screenshot (e.g., ./screen.png, or '-' for stdout)")
	screenshotCmd.Flags().StringVarP(&screenshotFormat, "format", "f", "png", "Output format for the screenshot (png or jpeg)")
	screenshotCmd.Flags().IntVarP(&screenshotJpegQuality, "quality", "q", 90, "JPEG quality (1-100, only applies if format is jpeg)")
}
