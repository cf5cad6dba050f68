// Command gen-token prints a bearer token for a server running with AUTH0_TEST_MODE.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"studyboard/api"
)

func main() {
	sub := flag.String("sub", "perf-user", "subject (user id) of the token")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	secret := os.Getenv("TEST_JWT_SECRET")
	if secret == "" {
		log.Fatal("missing TEST_JWT_SECRET")
	}
	issuer := ""
	if d := os.Getenv("AUTH0_DOMAIN"); d != "" {
		issuer = "https://" + d + "/"
	}
	tok, err := api.SignTestToken([]byte(secret), *sub, os.Getenv("AUTH0_AUDIENCE"), issuer, *ttl)
	if err != nil {
		log.Fatalf("generate token: %v", err)
	}
	fmt.Print(tok)
}
