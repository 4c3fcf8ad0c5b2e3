package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmerrifield20/StorefrontProvenance/internal/provenance"
	"github.com/jmerrifield20/StorefrontProvenance/pkg/client"
)

// ── verify ───────────────────────────────────────────────────────────────────

var (
	verifyFile    string
	verifyGenesis bool
)

var verifyCmd = &cobra.Command{
	Use:   "verify [product-id]",
	Short: "Verify a provenance chain",
	Long: `Verify checks a product's provenance chain.

With --file the chain is read from a JSON file ("-" for stdin) and verified
offline; no server is contacted:

  provctl verify --file chain.json

Otherwise the stored chain of the given product is verified by the server:

  provctl verify prod_42

The exit status is 1 when the chain is unverified.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runVerify,
}

func init() {
	verifyCmd.Flags().StringVarP(&verifyFile, "file", "f", "", "verify the chain in this JSON file offline (- for stdin)")
	verifyCmd.Flags().BoolVar(&verifyGenesis, "genesis", false, "also check the first event's own hash (offline only)")
}

func runVerify(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if verifyFile == "" {
		if len(args) != 1 {
			return fmt.Errorf("a product id or --file is required")
		}
		c, err := newClient()
		if err != nil {
			return err
		}
		v, err := c.Verify(context.Background(), args[0])
		if err != nil {
			if client.IsRetryable(err) {
				return fmt.Errorf("history unavailable, try again later: %w", err)
			}
			return err
		}
		fmt.Fprintf(out, "%s: %s (%d events)\n", v.ProductID, v.Badge, v.Events)
		if !v.Verified {
			return errUnverified
		}
		return nil
	}

	raw, err := readInput(cmd.InOrStdin(), verifyFile)
	if err != nil {
		return err
	}
	return verifyOffline(out, raw, verifyGenesis)
}

// verifyOffline decodes and verifies raw, printing the badge and the first
// failing link.
func verifyOffline(out io.Writer, raw []byte, genesis bool) error {
	events, err := provenance.DecodeChain(raw)
	if err != nil {
		return err
	}
	var opts []provenance.CheckOption
	if genesis {
		opts = append(opts, provenance.WithGenesisCheck())
	}

	productID := "(empty chain)"
	if len(events) > 0 {
		productID = events[0].ProductID
	}
	if err := provenance.CheckChain(events, opts...); err != nil {
		fmt.Fprintf(out, "%s: %s (%d events)\n", productID, provenance.BadgeUnverified, len(events))
		var ce *provenance.ChainError
		if errors.As(err, &ce) {
			fmt.Fprintf(out, "  event %d: %s\n", ce.Index, ce.Reason)
		}
		return errUnverified
	}
	fmt.Fprintf(out, "%s: %s (%d events)\n", productID, provenance.BadgeVerified, len(events))
	return nil
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read chain file: %w", err)
	}
	return raw, nil
}

// ── history ──────────────────────────────────────────────────────────────────

var historyFormat string

var historyCmd = &cobra.Command{
	Use:   "history <product-id>",
	Short: "Show a product's stored provenance chain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		report, err := c.History(context.Background(), args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if historyFormat == "json" {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(report.Events)
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "STATUS\tTIME\tHASH\tPREVIOUS")
		for _, e := range report.Events {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				e.Status,
				time.UnixMilli(e.Timestamp).UTC().Format(time.RFC3339),
				shortHash(e.Hash),
				shortHash(e.PreviousHash),
			)
		}
		if err := w.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(out, "\n%s\n", report.Badge)
		return nil
	},
}

func init() {
	historyCmd.Flags().StringVar(&historyFormat, "format", "text", "Output format: text or json")
}

// ── record ───────────────────────────────────────────────────────────────────

var (
	recordStatus   string
	recordActor    string
	recordMetadata string
)

var recordCmd = &cobra.Command{
	Use:   "record <product-id>",
	Short: "Append the next lifecycle event to a product's chain",
	Long: `Record appends created, purchased or delivered to a product's chain.

The actor token is read from --token or the PROVCTL_TOKEN environment variable:

  provctl record prod_42 --status purchased --token "$BUYER_TOKEN"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if recordStatus == "" {
			return fmt.Errorf("--status is required")
		}
		req := client.RecordRequest{Status: recordStatus, Actor: recordActor}
		if recordMetadata != "" {
			if !json.Valid([]byte(recordMetadata)) {
				return fmt.Errorf("--metadata must be valid JSON")
			}
			req.Metadata = json.RawMessage(recordMetadata)
		}

		c, err := newClient()
		if err != nil {
			return err
		}
		sub, err := c.Record(context.Background(), args[0], req)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "recorded %s for %s\n  hash:     %s\n  previous: %s\n",
			sub.Event.Status, sub.Event.ProductID, sub.Event.Hash, sub.Event.PreviousHash)
		return nil
	},
}

var bearerToken string

func init() {
	recordCmd.Flags().StringVar(&recordStatus, "status", "", "Lifecycle status: created, purchased or delivered")
	recordCmd.Flags().StringVar(&recordActor, "actor", "", "Actor ID (servers with tokens enabled take it from the token)")
	recordCmd.Flags().StringVar(&recordMetadata, "metadata", "", "JSON metadata carried with the event")
	recordCmd.Flags().StringVar(&bearerToken, "token", "", "actor token (default $PROVCTL_TOKEN)")
}

func newClient() (*client.Client, error) {
	var opts []client.Option
	tok := bearerToken
	if tok == "" {
		tok = viper.GetString("token")
	}
	if tok != "" {
		opts = append(opts, client.WithBearerToken(tok))
	}
	return client.New(serverURL, opts...)
}

func shortHash(h string) string {
	if len(h) <= 12 {
		return h
	}
	return h[:12]
}
