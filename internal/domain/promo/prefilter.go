package promo

import (
	"bufio"
	"context"
	"os"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"
)

// PrefilterConfig sizes the Bloom filter behind a Prefilter.
type PrefilterConfig struct {
	// Capacity is the expected number of issued codes.
	Capacity uint
	// FalsePositiveRate is the accepted rate of never-issued codes passing.
	FalsePositiveRate float64
}

func (c PrefilterConfig) withDefaults() PrefilterConfig {
	if c.Capacity == 0 {
		c.Capacity = 1_000_000
	}
	if c.FalsePositiveRate <= 0 || c.FalsePositiveRate >= 1 {
		c.FalsePositiveRate = 0.001
	}
	return c
}

// Prefilter answers "was this code possibly issued?". It never rejects an
// issued code.
type Prefilter struct {
	filter *bloom.BloomFilter
	codes  uint64
}

// NewPrefilter builds a Prefilter over the given codes.
func NewPrefilter(cfg PrefilterConfig, codes ...string) *Prefilter {
	cfg = cfg.withDefaults()
	p := &Prefilter{filter: bloom.NewWithEstimates(cfg.Capacity, cfg.FalsePositiveRate)}
	for _, code := range codes {
		if code = Normalize(code); code != "" {
			p.filter.AddString(code)
			p.codes++
		}
	}
	return p
}

// LoadPrefilter builds a Prefilter from gzip files holding one issued code
// per line. Files are read concurrently.
func LoadPrefilter(ctx context.Context, cfg PrefilterConfig, paths ...string) (*Prefilter, error) {
	if len(paths) == 0 {
		return nil, errors.New("no prefilter files")
	}
	cfg = cfg.withDefaults()

	parts := make([]*Prefilter, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		g.Go(func() error {
			p := NewPrefilter(cfg)
			if err := streamGzFile(ctx, path, func(code string) {
				if code = Normalize(code); code != "" {
					p.filter.AddString(code)
					p.codes++
				}
			}); err != nil {
				return errors.Wrapf(err, "load %s", path)
			}
			parts[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := parts[0]
	for _, p := range parts[1:] {
		if err := merged.filter.Merge(p.filter); err != nil {
			return nil, errors.Wrap(err, "merge filters")
		}
		merged.codes += p.codes
	}
	return merged, nil
}

// MayContain reports whether code was possibly issued.
func (p *Prefilter) MayContain(code string) bool {
	return p.filter.TestString(Normalize(code))
}

// Codes returns the number of codes added, duplicates included.
func (p *Prefilter) Codes() uint64 {
	return p.codes
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(line string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open")
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrap(err, "create gzip reader")
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "scan")
	}
	return nil
}
