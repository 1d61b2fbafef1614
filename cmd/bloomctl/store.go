package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/danish45007/velocitybloom/lsm"
)

// storeOptions are the options shared by the store commands.
type storeOptions struct {
	Dir string `short:"D" long:"dir" description:"directory of the store"`
}

// open opens the store selected on the command line.
func (s *storeOptions) open() (*lsm.LSMTree, error) {
	if err := setLogLevels(cfg.DebugLevel); err != nil {
		return nil, err
	}
	opts, err := cfg.storeOptions()
	if err != nil {
		return nil, err
	}
	dir := s.Dir
	if dir == "" {
		dir = defaultDataDir
	}
	return lsm.Open(dir, opts...)
}

// withStore opens the store, runs fn and closes the store.
func (s *storeOptions) withStore(fn func(*lsm.LSMTree) error) error {
	tree, err := s.open()
	if err != nil {
		return err
	}
	if err := fn(tree); err != nil {
		tree.Close()
		return err
	}
	return tree.Close()
}

type putCommand struct {
	storeOptions
	Args struct {
		Key   string `positional-arg-name:"key"`
		Value string `positional-arg-name:"value"`
	} `positional-args:"yes" required:"yes"`
}

// Execute runs the put command.
func (c *putCommand) Execute([]string) error {
	return c.withStore(func(tree *lsm.LSMTree) error {
		return tree.Put(c.Args.Key, []byte(c.Args.Value))
	})
}

type getCommand struct {
	storeOptions
	Args struct {
		Key string `positional-arg-name:"key"`
	} `positional-args:"yes" required:"yes"`
}

// Execute runs the get command.
func (c *getCommand) Execute([]string) error {
	return c.withStore(func(tree *lsm.LSMTree) error {
		value, err := tree.Get(c.Args.Key)
		if errors.Is(err, lsm.ErrKeyNotFound) {
			return fmt.Errorf("%s: not found", c.Args.Key)
		}
		if err != nil {
			return err
		}
		stats := tree.Stats()
		log.Debugf("Lookup stats: filter skips=%d table reads=%d filter bits=%d",
			stats.FilterSkips, stats.TableReads, stats.FilterBits)
		_, err = fmt.Fprintf(os.Stdout, "%s\n", value)
		return err
	})
}

type deleteCommand struct {
	storeOptions
	Args struct {
		Key string `positional-arg-name:"key"`
	} `positional-args:"yes" required:"yes"`
}

// Execute runs the delete command.
func (c *deleteCommand) Execute([]string) error {
	return c.withStore(func(tree *lsm.LSMTree) error {
		return tree.Delete(c.Args.Key)
	})
}

type scanCommand struct {
	storeOptions
	Args struct {
		Start string `positional-arg-name:"start"`
		End   string `positional-arg-name:"end"`
	} `positional-args:"yes" required:"yes"`
}

// Execute runs the scan command.
func (c *scanCommand) Execute([]string) error {
	return c.withStore(func(tree *lsm.LSMTree) error {
		pairs, err := tree.RangeScan(c.Args.Start, c.Args.End)
		if err != nil {
			return err
		}
		for _, kv := range pairs {
			if _, err := fmt.Fprintf(os.Stdout, "%s\t%s\n", kv.Key, kv.Value); err != nil {
				return err
			}
		}
		return nil
	})
}
