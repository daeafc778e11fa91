package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hanko-field/configurator/internal/domain"
	"github.com/hanko-field/configurator/internal/platform/money"
	"github.com/hanko-field/configurator/internal/repositories/memory"
	"github.com/hanko-field/configurator/internal/services"
)

var errPricingInvalid = errors.New("payload could not be priced")

type priceOutput struct {
	Pricing             services.PricingResult `json:"pricing"`
	ServerSignature     string                 `json:"serverSignature,omitempty"`
	ClientEchoSignature string                 `json:"clientEchoSignature,omitempty"`
	Display             string                 `json:"display,omitempty"`
}

func newPriceCmd(opts *rootOptions) *cobra.Command {
	var (
		payloadPath   string
		pricebookPath string
		currency      string
		locale        string
	)
	cmd := &cobra.Command{
		Use:   "price",
		Short: "Price a design payload offline",
		Long: `Prices a design payload JSON file against a pricebook YAML file (the
bundled fixture when --pricebook is omitted) and prints the result with the
server signature, the signature a client would echo back and the total formatted
for --locale.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			payload, err := loadPayload(payloadPath)
			if err != nil {
				return err
			}
			book, err := loadPricebook(pricebookPath)
			if err != nil {
				return err
			}
			opts.log().Debug("pricing payload",
				zap.String("pricebook", book.Version),
				zap.Int("components", len(payload.BaseComponents)),
			)

			result := services.PriceDesign(payload, book.Lookup(), services.PriceOptions{Currency: currency})
			out := priceOutput{Pricing: result}
			if result.Valid {
				out.ServerSignature = result.PricingSignature
				out.ClientEchoSignature = services.ClientEchoSignature(payload, result)
				out.Display = money.Format(result.Total, result.Currency, locale)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(out); err != nil {
				return err
			}
			if !result.Valid {
				return fmt.Errorf("%w: %d errors", errPricingInvalid, len(result.Errors))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&payloadPath, "payload", "", "Design payload JSON file")
	cmd.Flags().StringVar(&pricebookPath, "pricebook", "", "Pricebook YAML file (default: bundled fixture)")
	cmd.Flags().StringVar(&currency, "currency", "", "Expected currency; must match the pricebook")
	cmd.Flags().StringVar(&locale, "locale", "en-US", "BCP 47 locale for the display total")
	_ = cmd.MarkFlagRequired("payload")
	return cmd
}

func loadPayload(path string) (services.DesignPayload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return services.DesignPayload{}, fmt.Errorf("read payload: %w", err)
	}
	var payload services.DesignPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return services.DesignPayload{}, fmt.Errorf("decode payload %s: %w", path, err)
	}
	return payload, nil
}

func loadPricebook(path string) (domain.PricebookSnapshot, error) {
	if path == "" {
		return memory.FixturePricebook()
	}
	return memory.LoadPricebookFile(path)
}
