// Command keygen writes a signing key pair for the auth service.
package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"

	"github.com/mentorclub/auth-service/infrastructure/service/jwt"
)

func main() {
	alg := flag.String("alg", jwt.AlgorithmRS256, "signing algorithm: RS256 or EdDSA")
	out := flag.String("out", ".", "directory for private.pem and public.pem")
	flag.Parse()

	privatePEM, publicPEM, err := jwt.GenerateKeyPairPEM(*alg)
	if err != nil {
		log.Fatalf("failed to generate key pair: %v", err)
	}

	if err := os.MkdirAll(*out, 0o700); err != nil {
		log.Fatalf("failed to create %s: %v", *out, err)
	}

	privatePath := filepath.Join(*out, "private.pem")
	publicPath := filepath.Join(*out, "public.pem")
	if err := os.WriteFile(privatePath, privatePEM, 0o600); err != nil {
		log.Fatalf("failed to write private key: %v", err)
	}
	if err := os.WriteFile(publicPath, publicPEM, 0o644); err != nil {
		log.Fatalf("failed to write public key: %v", err)
	}

	log.Printf("wrote %s and %s (%s)", privatePath, publicPath, *alg)
	log.Printf("set JWT_ALG=%s JWT_PRIVATE_KEY_FILE=%s JWT_PUBLIC_KEY_FILE=%s", *alg, privatePath, publicPath)
}
