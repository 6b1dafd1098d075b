// Command clipbridgectl is the CLI front end for a running clipbridged
// daemon, talking to it exclusively over the control socket.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/clipbridge/clipbridge/pkg/controlclient"
	"github.com/clipbridge/clipbridge/pkg/ingest"
	"github.com/clipbridge/clipbridge/pkg/types"
	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "clipbridgectl",
	Short:   "Control a running clipbridge daemon",
	Version: Version,
}

func init() {
	rootCmd.PersistentFlags().String("socket", defaultSocketPath(), "Path to the daemon's control socket")
	rootCmd.PersistentFlags().String("events-socket", defaultEventsSocketPath(), "Path to the daemon's events socket")
	rootCmd.AddCommand(statusCmd, listCmd, peersCmd, copyCmd, fetchCmd, eventsCmd, shutdownCmd)
}

func defaultSocketPath() string {
	home, _ := os.UserHomeDir()
	return home + "/.clipbridge/control.sock"
}

func defaultEventsSocketPath() string {
	home, _ := os.UserHomeDir()
	return home + "/.clipbridge/events.sock"
}

func dial(cmd *cobra.Command) (*controlclient.Client, error) {
	socketPath, _ := cmd.Flags().GetString("socket")
	return controlclient.Dial(socketPath)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the daemon's current status",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dial(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		st, err := c.Status()
		if err != nil {
			return err
		}
		return printJSON(st)
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List clipboard history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		c, err := dial(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		items, err := c.List(limit)
		if err != nil {
			return err
		}
		for _, item := range items {
			fmt.Printf("%s\t%s\t%s\t%d bytes\n", item.ItemID, item.Kind, item.SourceDeviceName, item.Size)
		}
		return nil
	},
}

func init() {
	listCmd.Flags().Int("limit", 20, "Maximum number of history rows to show")
}

var peersCmd = &cobra.Command{
	Use:   "peers",
	Short: "List known and connected peers",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dial(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		peers, err := c.Peers()
		if err != nil {
			return err
		}
		for _, p := range peers {
			fmt.Printf("%s\t%s\n", p.DeviceID, p.State)
		}
		return nil
	},
}

var copyCmd = &cobra.Command{
	Use:   "copy",
	Short: "Ingest a text clipboard item read from stdin",
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")

		text, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}

		c, err := dial(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		snap := ingest.Snapshot{
			Kind: types.KindText,
			TS:   time.Now(),
			Text: string(text),
		}
		meta, needsConfirm, err := c.Ingest(snap, force)
		if err != nil {
			return err
		}
		if needsConfirm {
			fmt.Println("item exceeds the soft size cap; re-run with --force to ingest anyway")
			return nil
		}
		fmt.Printf("ingested %s (%d bytes)\n", meta.ItemID, meta.Size)
		return nil
	},
}

func init() {
	copyCmd.Flags().Bool("force", false, "Ingest even if the item exceeds the soft size cap")
}

var fetchCmd = &cobra.Command{
	Use:   "fetch <item-id> [file-id]",
	Short: "Ensure an item's content is cached locally, fetching from a peer if needed",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		itemID := args[0]
		var fileID string
		if len(args) == 2 {
			fileID = args[1]
		}

		c, err := dial(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		transferID, err := c.Fetch(itemID, fileID)
		if err != nil {
			return err
		}
		if transferID == "" {
			fmt.Println("already cached locally")
		} else {
			fmt.Printf("transfer started: %s (watch `clipbridgectl events` for its CONTENT_CACHED)\n", transferID)
		}
		return nil
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Stream the daemon's event feed (PEER_ONLINE, CONTENT_CACHED, ...) as JSON lines",
	RunE: func(cmd *cobra.Command, args []string) error {
		socketPath, _ := cmd.Flags().GetString("events-socket")
		c, err := controlclient.DialEvents(socketPath)
		if err != nil {
			return err
		}
		defer c.Close()

		enc := json.NewEncoder(os.Stdout)
		for {
			w, err := c.Next()
			if err != nil {
				if err == io.EOF {
					return nil
				}
				return err
			}
			if err := enc.Encode(w); err != nil {
				return err
			}
		}
	},
}

var shutdownCmd = &cobra.Command{
	Use:   "shutdown",
	Short: "Ask the daemon to stop",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := dial(cmd)
		if err != nil {
			return err
		}
		defer c.Close()
		return c.Shutdown()
	},
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
