package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmerrifield20/StorefrontProvenance/internal/paylink"
)

var paylinkCmd = &cobra.Command{
	Use:   "paylink",
	Short: "Encode and decode storefront payment links offline",
}

var (
	plBaseURL string
	plProduct string
	plPrice   float64
	plTitle   string
	plMaxAge  time.Duration
)

var paylinkEncodeCmd = &cobra.Command{
	Use:   "encode",
	Short: "Mint a payment link",
	RunE: func(cmd *cobra.Command, args []string) error {
		link, token, err := paylink.NewGenerator(plBaseURL).Generate(plProduct, plPrice, plTitle)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\ntoken: %s\n", link, token)
		return nil
	},
}

var paylinkDecodeCmd = &cobra.Command{
	Use:   "decode <link-or-token>",
	Short: "Show the parameters of a payment link",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var opts []paylink.DecodeOption
		if plMaxAge > 0 {
			opts = append(opts, paylink.WithMaxAge(plMaxAge))
		}
		p, err := paylink.Decode(args[0], opts...)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	},
}

func init() {
	paylinkEncodeCmd.Flags().StringVar(&plBaseURL, "base-url", "http://localhost:3000", "storefront frontend URL")
	paylinkEncodeCmd.Flags().StringVar(&plProduct, "product", "", "product ID")
	paylinkEncodeCmd.Flags().Float64Var(&plPrice, "price", 0, "price")
	paylinkEncodeCmd.Flags().StringVar(&plTitle, "title", "", "product title")
	paylinkDecodeCmd.Flags().DurationVar(&plMaxAge, "max-age", 0, "reject links older than this (e.g. 24h)")

	paylinkCmd.AddCommand(paylinkEncodeCmd)
	paylinkCmd.AddCommand(paylinkDecodeCmd)
}
