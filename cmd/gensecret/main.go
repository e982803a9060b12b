package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/nkiryanov/walletledger/internal/service/auth"
)

const SecretKeyBytesLen = 32

// Prints a new secret key, or with --actor an access token signed by the given secret for local runs
func main() {
	if err := run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "gensecret: %v\n", err)
		os.Exit(1)
	}
}

func run(out io.Writer, args []string) error {
	fs := pflag.NewFlagSet("gensecret", pflag.ContinueOnError)
	secret := fs.StringP("secret-key", "s", "", "Secret key to sign the token with (new one is generated if empty)")
	actor := fs.String("actor", "", "Actor uuid to issue an access token for")
	ttl := fs.Duration("ttl", time.Hour, "Access token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *secret == "" {
		key, err := newSecretKey()
		if err != nil {
			return fmt.Errorf("error while generating secret key: %w", err)
		}
		*secret = key
		fmt.Fprintln(out, key)
	}

	if *actor == "" {
		return nil
	}

	actorID, err := uuid.Parse(*actor)
	if err != nil {
		return fmt.Errorf("invalid actor: %w", err)
	}

	tokens, err := auth.New(auth.Config{SecretKey: *secret, AccessTTL: *ttl})
	if err != nil {
		return err
	}
	token, err := tokens.IssueAccess(actorID)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, token.Value)
	return nil
}

func newSecretKey() (string, error) {
	b := make([]byte, SecretKeyBytesLen)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
