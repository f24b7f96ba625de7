package main

import (
	"flag"
	"fmt"
	"io"

	"github.com/Anish-Chanda/sdhash/internal/config"
)

type options struct {
	deep        bool
	genCompare  bool
	compare     bool
	validate    bool
	buildIndex  bool
	verbose     bool
	showVersion bool
	awsCheck    bool

	catalogSave   bool
	catalogSearch bool

	listFile    string
	name        string
	output      string
	indexSearch string

	threshold int
	blockKB   int
	threads   int
	sample    int
	segmentMB int

	inputs []string
}

func parseFlags(args []string, cfg *config.Config, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("sdhash", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "Usage: sdhash [options] <source files>|<digest files>")
		fs.PrintDefaults()
	}

	o := &options{}
	fs.BoolVar(&o.deep, "r", false, "generate digests from directories and files")
	fs.BoolVar(&o.genCompare, "g", false, "generate digests and compare all pairs")
	fs.BoolVar(&o.compare, "c", false, "compare all pairs in a digest file, or two digest files to each other")
	fs.BoolVar(&o.validate, "validate", false, "parse digest files to check they are valid")
	fs.BoolVar(&o.buildIndex, "index", false, "generate a feature index while hashing (requires -o)")
	fs.BoolVar(&o.verbose, "verbose", false, "debugging and progress output")
	fs.BoolVar(&o.showVersion, "version", false, "show version info")
	fs.BoolVar(&o.awsCheck, "aws-check", false, "verify AWS credentials for s3:// inputs and print the account")
	fs.BoolVar(&o.catalogSave, "catalog-save", false, "store generated digests in the Postgres catalog")
	fs.BoolVar(&o.catalogSearch, "catalog-search", false, "compare generated digests against the Postgres catalog")

	fs.StringVar(&o.listFile, "f", "", "generate digests from a list of file names, one per line")
	fs.StringVar(&o.name, "n", "", "digest name for stdin input")
	fs.StringVar(&o.output, "o", "", "output file (base name with -index)")
	fs.StringVar(&o.indexSearch, "index-search", "", "match inputs against a feature index file")

	fs.IntVar(&o.threshold, "t", cfg.OutputThreshold, "only show results >= threshold")
	fs.IntVar(&o.blockKB, "b", cfg.BlockSizeKB, "hash inputs in n KiB blocks (0 whole inputs, -1 automatic)")
	fs.IntVar(&o.threads, "p", cfg.Threads, "compute threads to use")
	fs.IntVar(&o.sample, "s", cfg.SampleSize, "sample N filters for comparisons")
	fs.IntVar(&o.segmentMB, "z", 0, "read whole inputs in segments of n MiB")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	o.inputs = fs.Args()

	switch {
	case o.buildIndex && o.output == "":
		return nil, fmt.Errorf("indexing requires an output base name (-o)")
	case o.compare && (len(o.inputs) < 1 || len(o.inputs) > 2):
		return nil, fmt.Errorf("-c takes one or two digest files, got %d", len(o.inputs))
	case o.threads < 1:
		return nil, fmt.Errorf("-p must be at least 1")
	case o.blockKB < -1:
		return nil, fmt.Errorf("-b must be -1, 0 or positive")
	case o.segmentMB < 0:
		return nil, fmt.Errorf("-z must not be negative")
	}
	return o, nil
}

// blockSize converts the -b value to bytes, keeping 0 and -1 as they are.
func (o *options) blockSize() int {
	if o.blockKB > 0 {
		return o.blockKB << 10
	}
	return o.blockKB
}
