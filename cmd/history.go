package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/roschler/livepeer-image-helper-back-end/internal/chat"
)

var (
	historyKind string
	historyList bool
)

var historyCmd = &cobra.Command{
	Use:   "history [user-id]",
	Short: "Print a user's conversation history as YAML",
	Long:  `Prints the stored volleys of one user as YAML, or with --list the stored histories (SQLite backend only).`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := openStores(cfg, zap.NewNop())
		if err != nil {
			return err
		}
		defer a.Close()

		if historyList {
			lister, ok := a.history.(chat.Lister)
			if !ok {
				return fmt.Errorf("history backend %q cannot list histories", cfg.History.Backend)
			}
			sums, err := lister.List(cmd.Context(), 0)
			if err != nil {
				return err
			}
			return yaml.NewEncoder(os.Stdout).Encode(sums)
		}

		if len(args) != 1 {
			return fmt.Errorf("a user id is required unless --list is given")
		}
		kind, err := chat.ParseKind(historyKind)
		if err != nil {
			return err
		}
		h, err := a.history.Load(cmd.Context(), args[0], kind)
		if err != nil {
			return err
		}
		if h.Empty() {
			fmt.Fprintf(os.Stderr, "No history for %s (%s)\n", args[0], kind)
			return nil
		}

		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(h)
	},
}

func init() {
	historyCmd.Flags().StringVar(&historyKind, "kind", string(chat.ImageAssistant), "assistant kind")
	historyCmd.Flags().BoolVar(&historyList, "list", false, "list stored histories")
	rootCmd.AddCommand(historyCmd)
}
