package cmd

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var keygenOut string

// keygenCmd generates the tool's RSA signing key pair. The private key goes
// into the tool registration file's private_key_file slot; the public key is
// what gets pasted into the platform's tool configuration.
var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an RSA key pair for platform registration",
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			return fmt.Errorf("generate key: %w", err)
		}

		privPEM := pem.EncodeToMemory(&pem.Block{
			Type:  "RSA PRIVATE KEY",
			Bytes: x509.MarshalPKCS1PrivateKey(key),
		})
		pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
		if err != nil {
			return fmt.Errorf("encode public key: %w", err)
		}
		pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})

		privPath := keygenOut + ".key"
		pubPath := keygenOut + ".pub"
		if err := os.WriteFile(privPath, privPEM, 0o600); err != nil {
			return fmt.Errorf("write %s: %w", privPath, err)
		}
		if err := os.WriteFile(pubPath, pubPEM, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", pubPath, err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s and %s\n", privPath, pubPath)
		return nil
	},
}

func init() {
	keygenCmd.Flags().StringVar(&keygenOut, "out", "configs/tool", "Output path prefix for the key pair")
	rootCmd.AddCommand(keygenCmd)
}
