package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var resetYes bool

func init() {
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "skip the confirmation prompt")
}

var countCmd = &cobra.Command{
	Use:   "count",
	Short: "Print the number of records in the collection",
	Args:  cobra.NoArgs,
	RunE:  runCount,
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Destroy and recreate the collection",
	Long: `Irreversibly delete every record in the active collection and recreate
it empty. The configured backend must have allow_reset enabled.`,
	Args: cobra.NoArgs,
	RunE: runReset,
}

func runCount(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	n, err := a.store.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Println(n)
	return nil
}

func runReset(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if !resetYes {
		fmt.Fprint(os.Stderr, "This permanently deletes all records in the collection. Continue? [y/N] ")
		line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		if answer := strings.ToLower(strings.TrimSpace(line)); answer != "y" && answer != "yes" {
			fmt.Fprintln(os.Stderr, "aborted")
			return nil
		}
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.store.Reset(ctx); err != nil {
		return err
	}
	fmt.Println("collection reset")
	return nil
}
