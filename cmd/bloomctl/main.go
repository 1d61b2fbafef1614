// bloomctl builds Bloom filters from the command line and drives an LSM
// store whose tables are guarded by Bloom filters.
package main

import (
	"errors"
	"fmt"
	"os"

	flags "github.com/jessevdk/go-flags"
)

func newParser() (*flags.Parser, error) {
	parser := flags.NewParser(&cfg, flags.Default)
	commands := []struct {
		name, short string
		data        any
	}{
		{"check", "build a filter from items and test queries against it", &checkCommand{}},
		{"put", "store a value", &putCommand{}},
		{"get", "print a stored value", &getCommand{}},
		{"delete", "delete a value", &deleteCommand{}},
		{"scan", "print every key-value pair in an inclusive key range", &scanCommand{}},
	}
	for _, c := range commands {
		if _, err := parser.AddCommand(c.name, c.short, "", c.data); err != nil {
			return nil, err
		}
	}
	return parser, nil
}

func main() {
	parser, err := newParser()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if _, err := parser.Parse(); err != nil {
		var e *flags.Error
		if errors.As(err, &e) {
			if e.Type == flags.ErrHelp {
				os.Exit(0)
			}
			// go-flags already printed the parse error.
			os.Exit(1)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
