// Package main provides a CLI tool for generating test tokens for the
// campusgate API. Tokens are signed with the dev signing key unless -key is
// given and will NOT work against a production deployment.
package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"campusgate/internal/credential"
	"campusgate/internal/platform/config"
	"campusgate/internal/seeder"
	id "campusgate/pkg/domain"
	"campusgate/pkg/platform/middleware/admin"
)

const (
	// Default values matching config.FromEnv when nothing is set
	defaultIssuer   = "https://auth.campusgate.localhost"
	defaultAudience = "campusgate-api"
	defaultTokenTTL = 15 * time.Minute
)

type tokenOutput struct {
	Token     string            `json:"token"`
	Type      string            `json:"type"`
	ExpiresIn string            `json:"expires_in,omitempty"`
	Claims    map[string]any    `json:"claims,omitempty"`
	Usage     map[string]string `json:"usage"`
}

func main() {
	accessCmd := flag.NewFlagSet("access", flag.ExitOnError)
	adminCmd := flag.NewFlagSet("admin", flag.ExitOnError)

	accessAs := accessCmd.String("as", "", "Demo principal name (see 'tokengen principals')")
	accessPrincipal := accessCmd.String("principal", "", "Principal ID (UUID). Generated if empty and -as is not set.")
	accessEmail := accessCmd.String("email", "", "Email claim")
	accessPlatformAdmin := accessCmd.Bool("platform-admin", false, "Mint a platform admin token")
	accessTTL := accessCmd.Duration("ttl", defaultTokenTTL, "Token time-to-live")
	accessKey := accessCmd.String("key", config.DevSigningKey, "HS256 signing key")
	accessJSON := accessCmd.Bool("json", false, "Output as JSON")

	adminToken := adminCmd.String("token", config.DevAdminToken, "Admin token to hash")
	adminJSON := adminCmd.Bool("json", false, "Output as JSON")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "access":
		_ = accessCmd.Parse(os.Args[2:]) //nolint:errcheck // ExitOnError
		principalID := resolvePrincipal(*accessAs, *accessPrincipal)
		generateAccessToken(principalID, *accessAs, *accessEmail, *accessPlatformAdmin, *accessTTL, *accessKey, *accessJSON)
	case "admin":
		_ = adminCmd.Parse(os.Args[2:]) //nolint:errcheck // ExitOnError
		showAdminToken(*adminToken, *adminJSON)
	case "principals":
		listPrincipals()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`tokengen - Generate test tokens for the campusgate API

WARNING: These tokens use the dev signing key unless -key is given.
         Only use for local development and testing.

Usage:
  tokengen <command> [flags]

Commands:
  access      Generate a bearer token (JWT)
  admin       Show the admin API token and its bcrypt hash
  principals  List the seeded demo principals

Examples:
  # Token for the seeded Harare teacher
  tokengen access -as harare-teacher

  # Platform admin token with a custom TTL
  tokengen access -platform-admin -ttl 1h

  # Hash for ADMIN_TOKEN_HASH_HEX
  tokengen admin -token "my-admin-token"

Use "tokengen <command> -h" for more information about a command.`)
}

func resolvePrincipal(as, raw string) id.PrincipalID {
	if as != "" {
		p, ok := seeder.Principals[as]
		if !ok {
			fmt.Fprintf(os.Stderr, "Unknown demo principal: %s\n", as)
			os.Exit(1)
		}
		return p
	}
	if raw == "" {
		return id.NewPrincipalID()
	}
	p, err := id.ParsePrincipalID(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid principal UUID: %s\n", raw)
		os.Exit(1)
	}
	return p
}

func generateAccessToken(principalID id.PrincipalID, name, email string, platformAdmin bool, ttl time.Duration, key string, jsonOutput bool) {
	req := credential.IssueRequest{
		PrincipalID: principalID,
		Email:       email,
		Name:        name,
		TTL:         ttl,
	}
	if platformAdmin {
		req.PlatformRole = credential.PlatformAdminRole
	}

	issuer := credential.NewIssuer([]byte(key), defaultIssuer, defaultAudience, defaultTokenTTL)
	token, jti, err := issuer.Issue(context.Background(), req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating token: %v\n", err)
		os.Exit(1)
	}

	keyType := "custom"
	if key == config.DevSigningKey {
		keyType = "dev"
	}

	if jsonOutput {
		printJSON(tokenOutput{
			Token:     token,
			Type:      "access_token",
			ExpiresIn: ttl.String(),
			Claims: map[string]any{
				"sub":           principalID.String(),
				"platform_role": req.PlatformRole,
				"jti":           jti,
			},
			Usage: map[string]string{
				"header":      "Authorization: Bearer <token>",
				"signing_key": keyType,
			},
		})
		return
	}
	fmt.Println("Access Token (JWT)")
	fmt.Println("==================")
	fmt.Printf("Signing Key:  %s\n", keyType)
	fmt.Printf("Expires In:   %s\n", ttl)
	fmt.Printf("Principal ID: %s\n", principalID)
	if platformAdmin {
		fmt.Println("Platform:     admin")
	}
	fmt.Printf("JTI:          %s\n", jti)
	fmt.Println()
	fmt.Println("Token:")
	fmt.Println(token)
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  curl -H \"Authorization: Bearer <token>\" http://harare-primary.campusgate.localhost:8080/api/me")
}

func showAdminToken(token string, jsonOutput bool) {
	hash, err := admin.HashToken(token)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error hashing admin token: %v\n", err)
		os.Exit(1)
	}
	hexHash := hex.EncodeToString(hash)

	if jsonOutput {
		printJSON(tokenOutput{
			Token: token,
			Type:  "admin_token",
			Usage: map[string]string{
				"header":               "X-Admin-Token: " + token,
				"ADMIN_TOKEN_HASH_HEX": hexHash,
			},
		})
		return
	}
	fmt.Println("Admin API Token")
	fmt.Println("===============")
	fmt.Printf("Token: %s\n", token)
	fmt.Printf("Hash:  ADMIN_TOKEN_HASH_HEX=%s\n", hexHash)
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  curl -H \"X-Admin-Token: " + token + "\" -H \"X-Admin-Actor-ID: you@example.com\" http://campusgate.localhost:8080/admin/tenants")
}

func listPrincipals() {
	names := make([]string, 0, len(seeder.Principals))
	for name := range seeder.Principals {
		names = append(names, name)
	}
	slices.Sort(names)
	width := 0
	for _, n := range names {
		width = max(width, len(n))
	}
	for _, n := range names {
		fmt.Printf("%s%s  %s\n", n, strings.Repeat(" ", width-len(n)), seeder.Principals[n])
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
		os.Exit(1)
	}
}
