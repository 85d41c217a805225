package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/roschler/livepeer-image-helper-back-end/internal/chat"
	"github.com/roschler/livepeer-image-helper-back-end/internal/logging"
	"github.com/roschler/livepeer-image-helper-back-end/internal/params"
	"github.com/roschler/livepeer-image-helper-back-end/internal/progress"
	"github.com/roschler/livepeer-image-helper-back-end/internal/volley"
)

var chatUser string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the image assistant from the terminal",
	Long: `Runs image assistant turns interactively for one user. Each turn asks for
the processing mode and the request text; refine turns use the most
recent image of the conversation. Press Ctrl+C to quit.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := chat.ValidateUserID(chatUser); err != nil {
			return err
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger, err := logging.NewDevelopment(verbose)
		if err != nil {
			return err
		}
		defer logger.Sync()

		a, err := buildApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		activeImage, err := lastImage(cmd, a.history)
		if err != nil {
			return err
		}

		modes := []params.Mode{params.ModeNew, params.ModeRefine, params.ModeEnhance}
		for {
			modePrompt := promptui.Select{
				Label: "Mode",
				Items: modes,
			}
			idx, _, err := modePrompt.Run()
			if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("mode selection: %w", err)
			}
			mode := modes[idx]
			if mode == params.ModeRefine && activeImage == "" {
				fmt.Fprintln(os.Stderr, "Nothing to refine yet; generate an image first.")
				continue
			}

			inputPrompt := promptui.Prompt{Label: "You"}
			input, err := inputPrompt.Run()
			if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("reading input: %w", err)
			}
			if strings.TrimSpace(input) == "" {
				continue
			}

			report := progress.StartTurn(progress.NewReporter(), -1)
			out, err := a.processor.Process(cmd.Context(), volley.Turn{
				UserID:         chatUser,
				Input:          input,
				Mode:           mode,
				ActiveImageURL: activeImage,
			}, report)
			report.Finish()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				continue
			}

			fmt.Println()
			fmt.Println(out.Volley.ResponseToUser)
			fmt.Println()
			for _, u := range out.ImageURLs {
				fmt.Println("  " + u)
			}
			fmt.Println()
			if len(out.ImageURLs) > 0 {
				activeImage = out.ImageURLs[0]
			}
		}
	},
}

// lastImage returns the first image of the user's latest volley, if any.
func lastImage(cmd *cobra.Command, store chat.Store) (string, error) {
	h, err := store.Load(cmd.Context(), chatUser, chat.ImageAssistant)
	if err != nil {
		return "", err
	}
	if last, ok := h.LastVolley(); ok && len(last.GeneratedImageURLs) > 0 {
		return last.GeneratedImageURLs[0], nil
	}
	return "", nil
}

func init() {
	chatCmd.Flags().StringVarP(&chatUser, "user", "u", "local-user", "user id the conversation is stored under")
	rootCmd.AddCommand(chatCmd)
}
