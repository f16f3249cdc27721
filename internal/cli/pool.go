package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/AntoineMrtl/oracle-swap-back/internal/core/amount"
	"github.com/AntoineMrtl/oracle-swap-back/internal/core/oracle"
	"github.com/AntoineMrtl/oracle-swap-back/internal/core/swap"
	"github.com/AntoineMrtl/oracle-swap-back/internal/pricesvc"
)

var (
	// Pool command flags
	priceUnsafe bool
	minOut      string
	feePaid     string
	refresh     bool
	opsFilter   string
	opsLimit    int
	rawAmounts  bool
)

var poolCmd = &cobra.Command{
	Use:   "pool",
	Short: "Show reserves, shares, prices and fees",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return executeMethod(cmd, "pool_info", nil)
	},
}

var priceCmd = &cobra.Command{
	Use:   "price <asset|feed>",
	Short: "Show the cached price of an asset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		method := "get_price"
		if priceUnsafe {
			method = "get_price_unsafe"
		}
		params := map[string]interface{}{"asset": args[0]}
		if _, err := oracle.ParseFeedID(args[0]); err == nil {
			params = map[string]interface{}{"feed": args[0]}
		}
		return executeMethod(cmd, method, params)
	},
}

var quoteCmd = &cobra.Command{
	Use:   "quote <a_to_b|b_to_a> <amount>",
	Short: "Price a swap without executing it",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, in, err := parseSwapArgs(args)
		if err != nil {
			return err
		}
		return executeMethod(cmd, "quote", map[string]interface{}{
			"direction": dir.String(),
			"amount_in": in.String(),
		})
	},
}

var swapCmd = &cobra.Command{
	Use:   "swap <a_to_b|b_to_a> <amount>",
	Short: "Swap one pool asset for the other at the oracle rate",
	Long: `Swap one pool asset for the other at the oracle rate.

Amounts are token quantities such as 0.5 unless --raw is set. With --refresh
the latest signed prices are fetched from the price service and submitted
with the swap, paying exactly the required update fee.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, in, err := parseSwapArgs(args)
		if err != nil {
			return err
		}
		params := map[string]interface{}{
			"direction": dir.String(),
			"amount_in": in.String(),
		}
		if minOut != "" {
			assets, err := cfg.Assets()
			if err != nil {
				return err
			}
			outDecimals := assets[1].Decimals
			if dir == swap.BToA {
				outDecimals = assets[0].Decimals
			}
			guard, err := parseAmountArg(minOut, outDecimals)
			if err != nil {
				return fmt.Errorf("--min-out: %w", err)
			}
			params["min_amount_out"] = guard.String()
		}
		if err := attachUpdates(cmd.Context(), params); err != nil {
			return err
		}
		return executeMethod(cmd, "swap", params)
	},
}

var arbitrateCmd = &cobra.Command{
	Use:   "arbitrate <amount>",
	Short: "Sell into the side of the pool that is short in oracle value",
	Long: `Sell into the side of the pool that is short in oracle value.

The amount is in base units of whichever asset the pool is short of, since
the direction is only known once prices are applied.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in, err := amount.Parse(args[0])
		if err != nil {
			return err
		}
		params := map[string]interface{}{"amount_in": in.String()}
		if err := attachUpdates(cmd.Context(), params); err != nil {
			return err
		}
		return executeMethod(cmd, "arbitrate", params)
	},
}

var addLiquidityCmd = &cobra.Command{
	Use:   "add-liquidity <provider> <amount_a> <amount_b>",
	Short: "Deposit both assets and mint pool shares",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		assets, err := cfg.Assets()
		if err != nil {
			return err
		}
		a, err := parseAmountArg(args[1], assets[0].Decimals)
		if err != nil {
			return err
		}
		b, err := parseAmountArg(args[2], assets[1].Decimals)
		if err != nil {
			return err
		}
		return executeMethod(cmd, "add_liquidity", map[string]interface{}{
			"provider": args[0],
			"amount_a": a.String(),
			"amount_b": b.String(),
		})
	},
}

var removeLiquidityCmd = &cobra.Command{
	Use:   "remove-liquidity <provider> <shares>",
	Short: "Burn pool shares for the pro-rata reserves",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		shares, err := amount.Parse(args[1])
		if err != nil {
			return err
		}
		return executeMethod(cmd, "remove_liquidity", map[string]interface{}{
			"provider": args[0],
			"shares":   shares.String(),
		})
	},
}

var operationsCmd = &cobra.Command{
	Use:   "operations",
	Short: "List journaled pool operations, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		params := map[string]interface{}{"limit": opsLimit}
		if opsFilter != "" {
			params["op"] = opsFilter
		}
		return executeMethod(cmd, "operations", params)
	},
}

func init() {
	rootCmd.AddCommand(poolCmd, priceCmd, quoteCmd, swapCmd, arbitrateCmd,
		addLiquidityCmd, removeLiquidityCmd, operationsCmd)

	priceCmd.Flags().BoolVar(&priceUnsafe, "unsafe", false, "return the cached price regardless of age")

	for _, c := range []*cobra.Command{quoteCmd, swapCmd, addLiquidityCmd} {
		c.Flags().BoolVar(&rawAmounts, "raw", false, "amounts are base units instead of token quantities")
	}
	swapCmd.Flags().StringVar(&minOut, "min-out", "", "minimum output amount (slippage guard)")
	for _, c := range []*cobra.Command{swapCmd, arbitrateCmd} {
		c.Flags().BoolVar(&refresh, "refresh", false, "fetch and submit the latest prices with the operation")
		c.Flags().StringVar(&feePaid, "fee", "", "update fee to attach, in base units (default: exact fee with --refresh)")
	}
	operationsCmd.Flags().StringVar(&opsFilter, "op", "", "only list this operation (swap, arbitrate, ingest, ...)")
	operationsCmd.Flags().IntVar(&opsLimit, "limit", 20, "maximum number of operations")
}

// executeMethod calls method on the server and prints the result
func executeMethod(cmd *cobra.Command, method string, params interface{}) error {
	result, err := clientFromConfig().Call(cmd.Context(), method, params)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), result)
}

func printJSON(w io.Writer, v interface{}) error {
	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(pretty))
	return err
}

// parseSwapArgs parses a direction and an input amount in the input asset's units.
func parseSwapArgs(args []string) (swap.Direction, amount.Amount, error) {
	dir, err := swap.ParseDirection(args[0])
	if err != nil {
		return 0, amount.Zero(), err
	}
	assets, err := cfg.Assets()
	if err != nil {
		return 0, amount.Zero(), err
	}
	decimals := assets[0].Decimals
	if dir == swap.BToA {
		decimals = assets[1].Decimals
	}
	in, err := parseAmountArg(args[1], decimals)
	return dir, in, err
}

func parseAmountArg(s string, decimals uint8) (amount.Amount, error) {
	if rawAmounts {
		return amount.Parse(s)
	}
	return amount.ParseUnits(s, decimals)
}

// attachUpdates adds --refresh updates and the --fee payment to params.
func attachUpdates(ctx context.Context, params map[string]interface{}) error {
	if feePaid != "" {
		fee, err := amount.Parse(feePaid)
		if err != nil {
			return fmt.Errorf("--fee: %w", err)
		}
		params["fee"] = fee.String()
	}
	if !refresh {
		return nil
	}

	batch, err := fetchLatest(ctx)
	if err != nil {
		return err
	}
	params["updates"] = encodeBatch(batch)
	if feePaid == "" {
		fee, err := rpcIngester{ctx: ctx, client: clientFromConfig()}.UpdateFee(batch)
		if err != nil {
			return err
		}
		params["fee"] = fee.String()
	}
	return nil
}

// fetchLatest fetches signed updates for both pool feeds from the price service.
func fetchLatest(ctx context.Context) ([][]byte, error) {
	ids, err := poolFeeds()
	if err != nil {
		return nil, err
	}
	client, err := pricesvc.NewClient(cfg.PriceService.Config, logger)
	if err != nil {
		return nil, err
	}
	return client.Latest(ctx, ids)
}

func poolFeeds() ([]oracle.FeedID, error) {
	assets, err := cfg.Assets()
	if err != nil {
		return nil, err
	}
	return []oracle.FeedID{assets[0].Feed, assets[1].Feed}, nil
}
