// Command desk is the terminal front end of the library catalog: sign in, browse and search the
// catalog, and lend or administer books according to the signed-in role.
package main

import (
	"fmt"
	"os"
	"syscall"

	"golang.org/x/term"
)

func main() {
	a := &app{
		in:     os.Stdin,
		out:    os.Stdout,
		prompt: readPassword,
	}
	if err := newRootCmd(a).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// readPassword reads a password without echoing it.
func readPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
