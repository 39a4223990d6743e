// cmd/tools/issue-token/main.go
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"storefront-workers/internal/common/auth"
	"storefront-workers/internal/common/config"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	accountID := flag.Int64("account", 0, "Account ID to issue the token for")
	ttl := flag.Duration("ttl", 24*time.Hour, "Token lifetime")
	verify := flag.String("verify", "", "Verify a token instead of issuing one")
	flag.Parse()

	cfg, err := config.LoadFromFile(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.Issuer, *ttl)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	if *verify != "" {
		id, err := tokens.Verify(*verify)
		if err != nil {
			fmt.Printf("Invalid token: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Valid token for account %d\n", id)
		return
	}

	if *accountID <= 0 {
		fmt.Println("Error: -account is required.")
		flag.Usage()
		os.Exit(1)
	}

	token, err := tokens.Issue(*accountID)
	if err != nil {
		fmt.Printf("Error issuing token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
