package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Anish-Chanda/sdhash/internal/catalog"
	"github.com/Anish-Chanda/sdhash/internal/config"
	"github.com/Anish-Chanda/sdhash/internal/index"
	"github.com/Anish-Chanda/sdhash/internal/logger"
	"github.com/Anish-Chanda/sdhash/internal/set"
	"github.com/Anish-Chanda/sdhash/internal/source"
	"github.com/Anish-Chanda/sdhash/sdbf"
)

type app struct {
	cfg    *config.Config
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	awsCfg func() (aws.Config, error)
	s3     func() (source.S3API, error)
}

func newApp(cfg *config.Config, stdin io.Reader, stdout, stderr io.Writer) *app {
	a := &app{cfg: cfg, stdin: stdin, stdout: stdout, stderr: stderr}
	a.awsCfg = sync.OnceValues(func() (aws.Config, error) {
		awsCfg, err := loadAWSConfig(cfg.AWSRegion, cfg.S3Endpoint)
		if err != nil {
			return aws.Config{}, fmt.Errorf("AWS config: %w", err)
		}
		return awsCfg, nil
	})
	a.s3 = sync.OnceValues(func() (source.S3API, error) {
		awsCfg, err := a.awsCfg()
		if err != nil {
			return nil, err
		}
		return source.NewS3Client(awsCfg), nil
	})
	return a
}

// verifyAWS returns the AWS account ID, or error.
func verifyAWS(ctx context.Context, awsCfg aws.Config) (string, error) {
	stsClient := sts.NewFromConfig(awsCfg)
	out, err := stsClient.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", err
	}
	return aws.ToString(out.Account), nil
}

func loadAWSConfig(region, endpoint string) (cfg aws.Config, err error) {
	opts := []func(*awsConfig.LoadOptions) error{awsConfig.WithRegion(region)}
	if endpoint == "" {
		endpoint = os.Getenv("AWS_ENDPOINT_URL")
	}
	if endpoint != "" {
		res := aws.EndpointResolverFunc(
			func(service, region string) (aws.Endpoint, error) {
				return aws.Endpoint{URL: endpoint, SigningRegion: region}, nil
			})
		opts = append(opts, awsConfig.WithEndpointResolver(res))
	}
	return awsConfig.LoadDefaultConfig(context.Background(), opts...)
}

func (a *app) run(ctx context.Context, args []string) error {
	o, err := parseFlags(args, a.cfg, a.stderr)
	if err != nil {
		return err
	}
	if o.showVersion {
		fmt.Fprintln(a.stdout, version)
		return nil
	}
	if o.verbose {
		zap.ReplaceGlobals(logger.New("debug", a.cfg.LogFormat))
	}
	if o.awsCheck {
		awsCfg, err := a.awsCfg()
		if err != nil {
			return err
		}
		account, err := verifyAWS(ctx, awsCfg)
		if err != nil {
			return fmt.Errorf("AWS not configured: %w", err)
		}
		fmt.Fprintf(a.stdout, "AWS account %s\n", account)
		return nil
	}

	switch {
	case o.validate:
		return a.validateFiles(o)
	case o.compare:
		return a.compareFiles(o)
	case o.indexSearch != "":
		return a.searchIndex(ctx, o)
	default:
		return a.hash(ctx, o)
	}
}

func (a *app) generator(o *options) (*sdbf.Generator, error) {
	p := sdbf.DefaultParams()
	if o.segmentMB > 0 {
		p.SegmentSize = o.segmentMB << 20
	}
	return sdbf.NewGenerator(p)
}

// opener resolves inputs: "-" is stdin, s3:// URLs go through the lazily
// built S3 client, everything else is a local file.
func (a *app) opener(o *options) set.Opener {
	return func(ctx context.Context, name string) (source.Source, error) {
		if name == source.StdinName {
			n := o.name
			if n == "" {
				n = source.StdinName
			}
			return source.ReadAll(n, a.stdin)
		}
		var api source.S3API
		if strings.HasPrefix(name, "s3://") {
			var err error
			if api, err = a.s3(); err != nil {
				return nil, err
			}
		}
		return source.Open(ctx, name, api)
	}
}

// inputs gathers the names to hash from -f and the arguments, walking
// directories when -r is set.
func (a *app) inputs(o *options) ([]string, error) {
	log := zap.L().Named("inputs")
	names := append([]string(nil), o.inputs...)
	if o.listFile != "" {
		f, err := os.Open(o.listFile)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			if line := strings.TrimSpace(sc.Text()); line != "" {
				names = append(names, line)
			}
		}
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("read %s: %w", o.listFile, err)
		}
	}

	var out []string
	for _, name := range names {
		if name == source.StdinName || strings.HasPrefix(name, "s3://") {
			out = append(out, name)
			continue
		}
		fi, err := os.Stat(name)
		if err != nil || !fi.IsDir() {
			out = append(out, name)
			continue
		}
		if !o.deep {
			log.Warn("skipping directory, use -r to descend", zap.String("dir", name))
			continue
		}
		err = filepath.WalkDir(name, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				log.Warn("walk", zap.String("path", path), zap.Error(err))
				return nil
			}
			if d.Type().IsRegular() {
				out = append(out, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (a *app) hash(ctx context.Context, o *options) error {
	names, err := a.inputs(o)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return fmt.Errorf("no inputs to hash")
	}
	gen, err := a.generator(o)
	if err != nil {
		return err
	}

	var opts []sdbf.CreateOption
	var idx *index.Index
	if o.buildIndex {
		idx = index.New(filepath.Base(o.output), a.cfg.IndexCapacity, a.cfg.IndexFPRate)
		opts = append(opts, sdbf.WithFeatureHook(idx.Add))
	}

	s, hashErr := set.Hash(ctx, gen, a.opener(o), names, o.blockSize(), o.threads, o.output, opts...)
	if s == nil {
		return hashErr
	}

	var outErr error
	switch {
	case o.catalogSearch:
		outErr = a.searchCatalog(ctx, o, s)
	case o.genCompare:
		results := s.CompareAll(o.threshold, a.cfg.MinFeatures, o.sample)
		outErr = a.withOutput(o.output, func(w io.Writer) error {
			return set.WriteResults(w, results)
		})
	default:
		path := o.output
		if idx != nil {
			path += ".sdbf"
		}
		outErr = a.withOutput(path, func(w io.Writer) error {
			_, err := s.WriteTo(w)
			return err
		})
	}

	if idx != nil {
		if err := idx.WriteFile(o.output + index.Ext); err != nil {
			outErr = multierr.Append(outErr, err)
		}
	}
	if o.catalogSave {
		outErr = multierr.Append(outErr, a.saveCatalog(ctx, s))
	}
	return multierr.Combine(hashErr, outErr)
}

func (a *app) compareFiles(o *options) error {
	first, err := set.ReadFile(o.inputs[0])
	if err != nil {
		return err
	}
	var results []set.Result
	if len(o.inputs) == 1 {
		results = first.CompareAll(o.threshold, a.cfg.MinFeatures, o.sample)
	} else {
		second, err := set.ReadFile(o.inputs[1])
		if err != nil {
			return err
		}
		results = first.CompareTo(second, o.threshold, a.cfg.MinFeatures, o.sample)
	}
	return a.withOutput(o.output, func(w io.Writer) error {
		return set.WriteResults(w, results)
	})
}

func (a *app) validateFiles(o *options) error {
	if len(o.inputs) == 0 {
		return fmt.Errorf("no digest files to validate")
	}
	var errs error
	for _, path := range o.inputs {
		s, err := set.ReadFile(path)
		if err != nil {
			fmt.Fprintf(a.stdout, "%s: invalid\n", path)
			errs = multierr.Append(errs, err)
			continue
		}
		fmt.Fprintf(a.stdout, "%s: %d digests, %d filters, %d bytes\n", path, s.Len(), s.FilterCount(), s.InputSize())
	}
	return errs
}

func (a *app) searchIndex(ctx context.Context, o *options) error {
	idx, err := index.ReadFile(o.indexSearch)
	if err != nil {
		return err
	}
	names, err := a.inputs(o)
	if err != nil {
		return err
	}
	gen, err := a.generator(o)
	if err != nil {
		return err
	}

	open := a.opener(o)
	var results []set.Result
	var errs error
	for _, name := range names {
		m, err := queryOne(ctx, idx, gen, open, name, o.blockSize())
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		if score := int(math.Round(100 * m)); score >= o.threshold {
			results = append(results, set.Result{A: name, B: idx.Name(), Score: score})
		}
	}
	outErr := a.withOutput(o.output, func(w io.Writer) error {
		return set.WriteResults(w, results)
	})
	return multierr.Combine(errs, outErr)
}

func queryOne(ctx context.Context, idx *index.Index, gen *sdbf.Generator, open set.Opener, name string, blockSize int) (float64, error) {
	src, err := open(ctx, name)
	if err != nil {
		return 0, err
	}
	defer src.Close()
	size, err := src.Size()
	if err != nil {
		return 0, err
	}
	m, _, err := idx.Query(gen, src, set.BlockSizeFor(size, blockSize))
	return m, err
}

func (a *app) openCatalog() (*catalog.Catalog, error) {
	if err := catalog.Migrate(a.cfg.PostgresDSN); err != nil {
		return nil, err
	}
	return catalog.Open(a.cfg.PostgresDSN)
}

func (a *app) saveCatalog(ctx context.Context, s *set.Set) error {
	c, err := a.openCatalog()
	if err != nil {
		return err
	}
	defer c.Close()
	log := zap.L().Named("catalog")
	for _, d := range s.Digests() {
		id, err := c.Save(ctx, d)
		if err != nil {
			return err
		}
		log.Info("catalogued", zap.String("id", id), zap.String("name", d.Name()))
	}
	return nil
}

func (a *app) searchCatalog(ctx context.Context, o *options, s *set.Set) error {
	c, err := a.openCatalog()
	if err != nil {
		return err
	}
	defer c.Close()
	var results []set.Result
	for _, d := range s.Digests() {
		hits, err := c.Search(ctx, d, o.threshold, a.cfg.MinFeatures, o.sample)
		if err != nil {
			return err
		}
		for _, h := range hits {
			results = append(results, set.Result{A: d.Name(), B: h.Entry.Name, Score: h.Score})
		}
	}
	return a.withOutput(o.output, func(w io.Writer) error {
		return set.WriteResults(w, results)
	})
}

// withOutput runs fn against stdout, or against path when it is set.
func (a *app) withOutput(path string, fn func(io.Writer) error) error {
	if path == "" {
		return fn(a.stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(f)
	if err := fn(bw); err != nil {
		f.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
