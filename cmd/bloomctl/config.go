package main

import (
	"fmt"

	"github.com/danish45007/velocitybloom"
	"github.com/danish45007/velocitybloom/lsm"
)

const (
	defaultDataDir    = "bloomctl_data"
	defaultDebugLevel = "info"
	defaultHash       = "murmur3"
)

// config defines the options shared by every command.
type config struct {
	DebugLevel string  `short:"d" long:"debuglevel" description:"logging level {trace, debug, info, warn, error, critical, off}"`
	Hash       string  `long:"hash" description:"hash family for filters {murmur3, xxhash, siphash}"`
	FPRate     float64 `long:"fprate" description:"target false positive rate of filters"`
}

// filterOptions returns the filter options selected on the command line.
func (c *config) filterOptions() ([]velocitybloom.Option, error) {
	hashes, ok := velocitybloom.HashFamilyByName(c.Hash)
	if !ok {
		return nil, fmt.Errorf("unknown hash family %q", c.Hash)
	}
	return []velocitybloom.Option{
		velocitybloom.WithHashFamily(hashes),
		velocitybloom.WithFalsePositiveRate(c.FPRate),
	}, nil
}

// storeOptions returns the LSM tree options selected on the command line.
func (c *config) storeOptions() ([]lsm.Option, error) {
	filterOpts, err := c.filterOptions()
	if err != nil {
		return nil, err
	}
	return []lsm.Option{lsm.WithFilterOptions(filterOpts...)}, nil
}

var cfg = config{
	DebugLevel: defaultDebugLevel,
	Hash:       defaultHash,
	FPRate:     velocitybloom.DefaultFalsePositiveRate,
}
