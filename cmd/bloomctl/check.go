package main

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/danish45007/velocitybloom"
)

// checkCommand builds a filter from a list of items and tests queries
// against it.
type checkCommand struct {
	Capacity uint64 `short:"n" long:"capacity" description:"filter capacity; defaults to the number of items"`
	Items    string `short:"i" long:"items" description:"file with one item per line, - for stdin" required:"true"`
}

// Execute runs the check command.
func (c *checkCommand) Execute(args []string) error {
	if err := setLogLevels(cfg.DebugLevel); err != nil {
		return err
	}
	filterOpts, err := cfg.filterOptions()
	if err != nil {
		return err
	}

	var in io.Reader = os.Stdin
	if c.Items != "-" {
		f, err := os.Open(c.Items)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	items, err := readItems(in)
	if err != nil {
		return err
	}
	return runCheck(os.Stdout, items, args, c.Capacity, filterOpts...)
}

// readItems returns the non-empty lines of r.
func readItems(r io.Reader) ([]string, error) {
	var items []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			items = append(items, line)
		}
	}
	return items, scanner.Err()
}

// runCheck adds items to a new filter and writes one line per query to w.
// A zero capacity sizes the filter for exactly the given items.
func runCheck(w io.Writer, items, queries []string, capacity uint64, opts ...velocitybloom.Option) error {
	if capacity == 0 {
		capacity = uint64(len(items))
	}
	f, err := velocitybloom.NewFilter(capacity, opts...)
	if err != nil {
		return err
	}

	ignored := 0
	for _, item := range items {
		if !f.Accept([]byte(item)) {
			ignored++
		}
	}
	if ignored > 0 {
		log.Warnf("Filter is full, ignored %d of %d items", ignored, len(items))
	}
	log.Infof("Filter: capacity=%d bits=%d probes=%d count=%d fill=%.3f est-fp=%.5f",
		f.Capacity(), f.Bits(), f.Probes(), f.Count(), f.FillRatio(), f.EstimatedFPRate())

	for _, query := range queries {
		verdict := "no"
		if f.Check([]byte(query)) {
			verdict = "maybe"
		}
		if _, err := fmt.Fprintf(w, "%s\t%s\n", query, verdict); err != nil {
			return err
		}
	}
	return nil
}
