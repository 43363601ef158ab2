package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/marcelsud/webhook-dispatch/seed"
)

/* validate-seed - Standalone CLI tool to validate webhooks.yaml
 * Usage: go run cmd/validate-seed/main.go [webhooks.yaml]
 * Exit codes: 0 = valid, 1 = invalid
 */

func main() {
	seedFile := "webhooks.yaml"
	if len(os.Args) > 1 {
		seedFile = os.Args[1]
	}

	fmt.Printf("Validating seed file: %s\n", seedFile)
	fmt.Println(strings.Repeat("-", 50))

	loader := seed.NewLoader()
	if err := loader.Load(seedFile); err != nil {
		fmt.Fprintf(os.Stderr, "VALIDATION FAILED\n\n")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	webhooks := loader.List()
	fmt.Printf("VALIDATION PASSED\n\n")
	fmt.Printf("Loaded %d webhook(s):\n", len(webhooks))

	for i, wh := range webhooks {
		fmt.Printf("\n%d. Webhook: %s\n", i+1, wh.ID)
		fmt.Printf("   URL:     %s\n", wh.URL)
		fmt.Printf("   Events:  %s\n", strings.Join(wh.Events, ", "))
		fmt.Printf("   Active:  %t\n", wh.Active)
		if wh.Filter != "" {
			fmt.Printf("   Filter:  %s\n", wh.Filter)
		}
		if wh.Secret != "" {
			fmt.Printf("   Secret:  (set)\n")
		}
	}

	fmt.Printf("\nAll webhooks are valid!\n")
}
