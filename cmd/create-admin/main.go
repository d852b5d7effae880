// Registers the first admin account. The store rejects a second genesis
// registration, so running this against a provisioned database is safe.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/ProvChain-Network/provenance_layer/internal/app/services/accounts"
	"github.com/ProvChain-Network/provenance_layer/internal/app/storage/postgres"
	"github.com/ProvChain-Network/provenance_layer/internal/database"
	"github.com/ProvChain-Network/provenance_layer/internal/identity"
)

func main() {
	dsn := flag.String("dsn", os.Getenv("PROV_POSTGRES_DSN"), "Postgres DSN")
	address := flag.String("address", "", "Admin address; omit to generate a fresh key pair")
	flag.Parse()

	if *dsn == "" {
		log.Fatalf("-dsn or PROV_POSTGRES_DSN is required")
	}

	adminAddress := *address
	var generated *identity.KeyPair
	if adminAddress == "" {
		pair, err := identity.CreateKeyPair()
		if err != nil {
			log.Fatalf("generate key pair: %v", err)
		}
		generated = &pair
		adminAddress = pair.Address
	}

	db, err := database.Open(*dsn)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	svc := accounts.New(postgres.New(db), nil)
	acct, err := svc.CreateAdminAccount(context.Background(), adminAddress)
	if err != nil {
		if errors.Is(err, accounts.ErrAdminExists) {
			log.Fatalf("an admin account already exists; use the API to register further accounts")
		}
		log.Fatalf("create admin account: %v", err)
	}

	fmt.Printf("Admin account registered.\n  Address: %s\n  Permissions: %v\n  Access level: %d\n",
		acct.Address, acct.Permissions, acct.AccessLevel)
	if generated != nil {
		fmt.Printf("  Secret: %s\n", identity.PrivateKeyToHex(generated.Secret))
		fmt.Println("Store the secret securely; it cannot be recovered.")
	}
}
