package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/ethaccount/gasless/src/app"
	"github.com/ethaccount/gasless/src/domain"
	"github.com/ethaccount/gasless/src/service"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

type executeFlags struct {
	to       string
	value    string
	data     string
	chainID  int64
	direct   bool
	estimate bool
	actionID string
	timeout  time.Duration
}

func main() {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Overload(".env"); err != nil {
			log.Fatalf("Error loading .env file: %v", err)
		}
	}

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var flags executeFlags

	cmd := &cobra.Command{
		Use:   "execute",
		Short: "Execute a single call with the local key wallet",
		Long: `Connects the wallet from PRIVATE_KEY, then sends one call through the sponsored
path when an account factory and AA endpoints are configured, falling back to a
regular transaction otherwise. The result is printed as JSON.`,
		Example: `  execute --to 0x70997970C51812dc3A010C7d01b50e0d17dc79C8 --value 0.001
  execute --to 0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238 --data 0xa9059cbb... --chain 84532
  execute --to 0x70997970C51812dc3A010C7d01b50e0d17dc79C8 --value 0.001 --estimate`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), flags)
		},
	}

	cmd.Flags().StringVar(&flags.to, "to", "", "call target address (required)")
	cmd.Flags().StringVar(&flags.value, "value", "0", "native value in ether")
	cmd.Flags().StringVar(&flags.data, "data", "0x", "hex encoded calldata")
	cmd.Flags().Int64Var(&flags.chainID, "chain", 0, "switch to this chain before executing")
	cmd.Flags().BoolVar(&flags.direct, "direct", false, "skip the sponsored path")
	cmd.Flags().BoolVar(&flags.estimate, "estimate", false, "only print the fee estimate")
	cmd.Flags().StringVar(&flags.actionID, "action-id", "", "idempotency key of the action")
	cmd.Flags().DurationVar(&flags.timeout, "timeout", 5*time.Minute, "overall timeout")
	_ = cmd.MarkFlagRequired("to")

	return cmd
}

func parseCall(flags executeFlags) (domain.CallRequest, error) {
	if !common.IsHexAddress(flags.to) {
		return domain.CallRequest{}, fmt.Errorf("invalid --to address %q", flags.to)
	}
	data, err := hexutil.Decode(ensureHexPrefix(flags.data))
	if err != nil {
		return domain.CallRequest{}, fmt.Errorf("invalid --data: %w", err)
	}
	ether, err := decimal.NewFromString(flags.value)
	if err != nil || ether.IsNegative() {
		return domain.CallRequest{}, fmt.Errorf("invalid --value %q", flags.value)
	}
	wei := ether.Shift(18)
	if !wei.IsInteger() {
		return domain.CallRequest{}, fmt.Errorf("--value %q has more than 18 decimals", flags.value)
	}

	return domain.CallRequest{
		To:    common.HexToAddress(flags.to),
		Data:  data,
		Value: (*hexutil.Big)(wei.BigInt()),
	}, nil
}

func ensureHexPrefix(s string) string {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s
	}
	return "0x" + s
}

func run(ctx context.Context, flags executeFlags) error {
	call, err := parseCall(flags)
	if err != nil {
		return err
	}

	config := app.NewWalletConfig()
	logger := app.InitLogger(*config.LogLevel, *config.Environment)

	ctx, cancel := context.WithTimeout(ctx, flags.timeout)
	defer cancel()
	ctx = logger.WithContext(ctx)

	services, err := app.NewServices(ctx, *config, service.NewMemoryExecutionStore(), nil)
	if err != nil {
		return err
	}
	defer services.Close(context.WithoutCancel(ctx))

	if err := services.ConnectWallet(ctx); err != nil {
		return err
	}
	if flags.chainID != 0 {
		if _, err := services.Connection.SwitchNetwork(ctx, flags.chainID); err != nil {
			return err
		}
	}

	if flags.estimate {
		return printJSON(services.Estimator.Estimate(ctx, call))
	}

	result, err := services.Orchestrator.Execute(ctx, []domain.CallRequest{call}, domain.ExecuteOptions{
		ForceDirect: flags.direct,
		ActionID:    flags.actionID,
	})
	if err != nil {
		logger.Error().Err(err).Msg("Execution failed")
		return err
	}
	return printJSON(result)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
