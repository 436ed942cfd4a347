package main

import (
	"fmt"
	"os"
	"time"

	"github.com/pquerna/otp/totp"
)

// Prints the current TOTP code for the configured admin secret, or
// provisions a fresh secret when none is set. Used when bootstrapping the
// admin login.
func main() {
	secret := os.Getenv("ADMIN_TOTP_SECRET")
	if secret == "" {
		key, err := totp.Generate(totp.GenerateOpts{
			Issuer:      "intentrouter",
			AccountName: "admin",
		})
		if err != nil {
			fmt.Printf("Error generating TOTP secret: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Generated new secret: %s\n", key.Secret())
		fmt.Printf("Provisioning URL: %s\n", key.URL())
		secret = key.Secret()
	}

	code, err := totp.GenerateCode(secret, time.Now())
	if err != nil {
		fmt.Printf("Error generating TOTP code: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Current TOTP Code: %s\n", code)
	fmt.Printf("Valid for: ~30 seconds\n")
}
