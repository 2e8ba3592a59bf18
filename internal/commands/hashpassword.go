// Package commands holds the subcommands of the duty-calendar binary.
package commands

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"syscall"

	"golang.org/x/term"

	"github.com/klabast/wb-services/duty-calendar/internal/app"
)

// HashPassword handles the hash-password subcommand. It writes the
// "username:argon2id-hash" file that protects the edit routes.
func HashPassword(args []string) {
	fs := flag.NewFlagSet("hash-password", flag.ExitOnError)
	overwrite := fs.Bool("overwrite", false, "Overwrite existing auth file without asking")
	insecureUnmask := fs.Bool("insecure-unmask-password", false, "Show password as plain text (INSECURE!)")
	file := fs.String("file", "", "Auth file to write (default: $AUTH_FILE or auth.secret next to the binary)")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: duty-calendar hash-password [OPTIONS]\n\n")
		fmt.Fprintf(os.Stderr, "Creates the auth file for edit mode (Argon2id).\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  AUTH_FILE    Path to auth file (overridden by -file)\n")
	}
	fs.Parse(args)

	path := *file
	if path == "" {
		path = os.Getenv("AUTH_FILE")
	}

	if err := createCredentials(path, *overwrite, *insecureUnmask); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func createCredentials(path string, overwrite, unmasked bool) error {
	path, err := app.ResolveAuthFile(path)
	if err != nil {
		return err
	}

	stdin := bufio.NewReader(os.Stdin)

	fmt.Print("Enter username: ")
	username, err := readLine(stdin)
	if err != nil {
		return fmt.Errorf("reading username: %w", err)
	}
	if username == "" {
		return errors.New("username cannot be empty")
	}

	var password, confirm string
	if unmasked {
		fmt.Fprintf(os.Stderr, "⚠️  WARNING: Password will be visible on screen!\n")
		fmt.Print("Enter password:   ")
		if password, err = readLine(stdin); err != nil {
			return fmt.Errorf("reading password: %w", err)
		}
		fmt.Print("Confirm password: ")
		if confirm, err = readLine(stdin); err != nil {
			return fmt.Errorf("reading password confirmation: %w", err)
		}
	} else {
		password = readPasswordWithMask("Enter password:   ")
		confirm = readPasswordWithMask("Confirm password: ")
	}

	if password == "" {
		return errors.New("password cannot be empty")
	}
	if password != confirm {
		return errors.New("passwords do not match")
	}

	return app.CreateAuthFile(path, username, password, overwrite, stdin, os.Stdout)
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	return line, nil
}

// readPasswordWithMask reads a password in raw mode and echoes asterisks.
func readPasswordWithMask(prompt string) string {
	fmt.Print(prompt)
	fd := int(syscall.Stdin)

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		// Not a terminal; fall back to hidden input
		password, _ := term.ReadPassword(fd)
		fmt.Println()
		return string(password)
	}
	defer term.Restore(fd, oldState)

	var password []byte
	buf := make([]byte, 1)
	for {
		if _, err := os.Stdin.Read(buf); err != nil {
			break
		}
		switch c := buf[0]; c {
		case '\n', '\r':
			fmt.Print("\r\n")
			return string(password)
		case 127, 8: // backspace
			if len(password) > 0 {
				password = password[:len(password)-1]
				fmt.Print("\b \b")
			}
		case 3: // Ctrl+C
			term.Restore(fd, oldState)
			fmt.Println()
			os.Exit(1)
		default:
			if c >= 32 && c <= 126 {
				password = append(password, c)
				fmt.Print("*")
			}
		}
	}

	fmt.Print("\r\n")
	return string(password)
}
