package bootstrap

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"
)

func GenPassword() {
	fmt.Fprintf(os.Stderr, "Password: ")
	passwordBytes, _ := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintf(os.Stderr, "\n")
	if err := HashPassword(os.Stdout, string(passwordBytes)); err != nil {
		panic(err)
	}
}

func HashPassword(w io.Writer, password string) error {
	password = strings.TrimSpace(password)
	if password == "" {
		return fmt.Errorf("empty password")
	}
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(hashedPassword))
	return nil
}
