// Command adminhash prints the bcrypt hash of an admin secret for ADMIN_SECRET_HASH.
//
//	adminhash <secret>
//	echo -n <secret> | adminhash
package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/rkrmr33/bukber/internal/auth"
)

func main() {
	secret, err := readSecret()
	if err != nil {
		slog.Error("Failed to read secret", "error", err)
		os.Exit(1)
	}
	if secret == "" {
		fmt.Fprintln(os.Stderr, "usage: adminhash <secret>")
		os.Exit(2)
	}

	hash, err := auth.HashSecret(secret)
	if err != nil {
		slog.Error("Failed to hash secret", "error", err)
		os.Exit(1)
	}
	fmt.Println(string(hash))
}

func readSecret() (string, error) {
	if len(os.Args) > 1 {
		return os.Args[1], nil
	}
	info, err := os.Stdin.Stat()
	if err != nil {
		return "", err
	}
	if info.Mode()&os.ModeCharDevice != 0 {
		return "", nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", nil
	}
	return strings.TrimRight(line, "\r\n"), nil
}
