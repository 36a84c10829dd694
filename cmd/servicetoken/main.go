// Command servicetoken prints a signed service token for a collaborator,
// such as the battle service, using BATTLE_JWT_SECRET from the environment
// or a .env file.
package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/dom/pack-minter/internal/service"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

func main() {
	subject := pflag.StringP("subject", "s", service.BattleSubject, "token subject (battle or operator)")
	ttl := pflag.DurationP("ttl", "t", 30*24*time.Hour, "token lifetime")
	pflag.Parse()

	_ = godotenv.Load()
	secret := os.Getenv("BATTLE_JWT_SECRET")
	if secret == "" {
		log.Fatal("BATTLE_JWT_SECRET is required")
	}

	token, err := service.NewServiceTokenService(secret).Issue(*subject, *ttl)
	if err != nil {
		log.Fatalf("failed to sign token: %v", err)
	}
	fmt.Println(token)
}
