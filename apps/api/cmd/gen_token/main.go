// Command gen_token prints a user session token for local API testing, e.g.
//
//	curl -b "rotambenim_session=$(go run ./cmd/gen_token -user 1 -email me@example.com)" localhost:8080/api/v1/places
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	userID := flag.Int64("user", 1, "user id to embed")
	email := flag.String("email", "dev@rotambenim.local", "email to embed")
	ttl := flag.Duration("ttl", 8*time.Hour, "token lifetime")
	flag.Parse()

	signingSecret := strings.TrimSpace(os.Getenv("APP_SIGNING_SECRET"))
	if len(signingSecret) < 16 {
		fmt.Fprintln(os.Stderr, "APP_SIGNING_SECRET must be at least 16 characters")
		os.Exit(2)
	}

	claims := jwt.MapClaims{
		"user_id": *userID,
		"email":   *email,
		"iat":     time.Now().Unix(),
		"exp":     time.Now().Add(*ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString([]byte(signingSecret))
	if err != nil {
		panic(err)
	}
	fmt.Println(signedToken)
}
