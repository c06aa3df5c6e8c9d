package main

import (
	"flag"
	"fmt"
	"log"

	"classattend/internal/auth"
	"classattend/internal/config"
)

// mktoken mints a bearer token for local development and testing against
// the API, standing in for the external identity provider.
func main() {
	subject := flag.String("subject", "", "caller id to embed in the token")
	role := flag.String("role", auth.RoleStudent, "instructor or student")
	flag.Parse()

	if *subject == "" {
		log.Fatal("-subject is required")
	}
	if *role != auth.RoleInstructor && *role != auth.RoleStudent {
		log.Fatalf("unknown role %q", *role)
	}

	cfg := config.Load()
	token, exp, err := auth.Issue(*subject, *role, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL)
	if err != nil {
		log.Fatalf("issue failed: %v", err)
	}
	fmt.Println(token)
	log.Printf("expires %s", exp.Format("2006-01-02 15:04:05 MST"))
}
