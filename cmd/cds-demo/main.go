// cds-demo runs a single attested contact-discovery call against a service
// endpoint and prints the registered numbers.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"cds-client/attestation"
	"cds-client/discovery"
	"cds-client/shared"
	"cds-client/transport"
)

func main() {
	shared.LoadDotEnv()

	var (
		serviceURL    string
		enclaveID     string
		measurementHx string
		trustRootPath string
		authToken     string
		timeout       time.Duration
	)

	rootCmd := &cobra.Command{
		Use:   "cds-demo [numbers...]",
		Short: "Discover which contacts are registered, via an attested enclave",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			measurement, err := hex.DecodeString(measurementHx)
			if err != nil {
				return fmt.Errorf("invalid --mrenclave: %w", err)
			}
			rootPEM, err := os.ReadFile(trustRootPath)
			if err != nil {
				return fmt.Errorf("failed to read trust root: %w", err)
			}

			logger, err := shared.NewLoggerFromEnv("cds-demo")
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			service := transport.NewHTTPService(transport.Config{
				BaseURL: serviceURL,
				Timeout: timeout,
			}, logger.Component("transport"))

			client := discovery.NewClient(discovery.ClientConfig{
				EnclaveID:           enclaveID,
				ExpectedMeasurement: measurement,
				Trust:               attestation.TrustRoot{RootCertPEM: rootPEM},
			}, service, transport.StaticCredentials{Token: authToken}, logger)

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			registered, err := client.GetRegisteredContacts(ctx, args)
			if err != nil {
				return err
			}

			client.Feedback().ReportMatch(ctx)
			for _, number := range registered {
				fmt.Println(number)
			}
			return nil
		},
	}

	flags := rootCmd.Flags()
	flags.StringVar(&serviceURL, "url", shared.GetEnvOrDefault("CDS_URL", "https://localhost:8443"), "service base URL")
	flags.StringVar(&enclaveID, "enclave-id", shared.GetEnvOrDefault("CDS_ENCLAVE_ID", ""), "enclave identifier route parameter")
	flags.StringVar(&measurementHx, "mrenclave", shared.GetEnvOrDefault("CDS_MRENCLAVE", ""), "expected enclave measurement, hex")
	flags.StringVar(&trustRootPath, "trust-root", shared.GetEnvOrDefault("CDS_TRUST_ROOT", "trust-root.pem"), "path to the pinned trust root PEM")
	flags.StringVar(&authToken, "auth-token", shared.GetEnvOrDefault("CDS_AUTH_TOKEN", ""), "bearer-style authorization value")
	flags.DurationVar(&timeout, "timeout", shared.GetEnvDurationOrDefault("CDS_TIMEOUT", 30*time.Second), "request timeout")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
