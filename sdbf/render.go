package sdbf

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/Anish-Chanda/sdhash/internal/featurehash"
)

const (
	magicStream = "sdbf"
	magicBlock  = "sdbf-dd"
	version     = "03"
	hashName    = "sha1"
)

var b64 = base64.StdEncoding

// Render encodes d in the sdbf text format, without a trailing newline:
//
//	sdbf:03:<namelen>:<name>:<size>:sha1:256:5:7ff:<maxfeat>:<chunks>:<lastcount>:<base64 filters>
//	sdbf-dd:03:<namelen>:<name>:<size>:sha1:256:5:7ff:<maxfeat>:<chunks>:<blocksize>{:<count hex>:<base64 filter>}
func Render(d *Digest) string {
	var sb strings.Builder
	magic := magicStream
	if d.blockSize > 0 {
		magic = magicBlock
	}
	fmt.Fprintf(&sb, "%s:%s:%d:%s:%d:%s:%d:%d:%x:%d:%d:",
		magic, version, len(d.name), d.name, d.realSize, hashName,
		FilterSize, featurehash.Count, featurehash.Mask, d.maxFeatures, len(d.chunks))

	if d.blockSize > 0 {
		sb.WriteString(strconv.Itoa(d.blockSize))
		for _, c := range d.chunks {
			fmt.Fprintf(&sb, ":%02x:", c.count)
			sb.WriteString(b64.EncodeToString(c.bytes()))
		}
		return sb.String()
	}

	last := 0
	if n := len(d.chunks); n > 0 {
		last = d.chunks[n-1].count
	}
	sb.WriteString(strconv.Itoa(last))
	sb.WriteByte(':')
	all := make([]byte, 0, len(d.chunks)*FilterSize)
	for _, c := range d.chunks {
		all = append(all, c.bytes()...)
	}
	sb.WriteString(b64.EncodeToString(all))
	return sb.String()
}

// Parse decodes a digest produced by Render. A single trailing newline is
// tolerated. Every structural problem is reported as ErrMalformedDigest.
func Parse(s string) (*Digest, error) {
	s = strings.TrimSuffix(s, "\n")
	s = strings.TrimSuffix(s, "\r")

	head := strings.SplitN(s, ":", 4)
	if len(head) != 4 {
		return nil, malformed("truncated header")
	}
	var block bool
	switch head[0] {
	case magicStream:
	case magicBlock:
		block = true
	default:
		return nil, malformed("unknown magic %q", head[0])
	}
	if head[1] != version {
		return nil, malformed("unsupported version %q", head[1])
	}
	nameLen, err := strconv.Atoi(head[2])
	if err != nil || nameLen < 0 || nameLen > len(head[3]) {
		return nil, malformed("bad name length %q", head[2])
	}
	name, rest := head[3][:nameLen], head[3][nameLen:]
	if !strings.HasPrefix(rest, ":") {
		return nil, malformed("name not followed by separator")
	}
	f := strings.Split(rest[1:], ":")
	if len(f) < 8 {
		return nil, malformed("expected at least 8 fields after name, got %d", len(f))
	}

	d := &Digest{name: name}
	if d.realSize, err = strconv.ParseInt(f[0], 10, 64); err != nil || d.realSize < 0 {
		return nil, malformed("bad size %q", f[0])
	}
	if f[1] != hashName || f[2] != strconv.Itoa(FilterSize) ||
		f[3] != strconv.Itoa(featurehash.Count) || f[4] != strconv.FormatUint(featurehash.Mask, 16) {
		return nil, malformed("unsupported filter parameters %s:%s:%s:%s", f[1], f[2], f[3], f[4])
	}
	if d.maxFeatures, err = strconv.Atoi(f[5]); err != nil || d.maxFeatures <= 0 {
		return nil, malformed("bad max features %q", f[5])
	}
	n, err := strconv.Atoi(f[6])
	if err != nil || n < 0 {
		return nil, malformed("bad chunk count %q", f[6])
	}

	if block {
		return parseBlocks(d, n, f[7:])
	}
	return parseStream(d, n, f[7:])
}

func parseStream(d *Digest, n int, f []string) (*Digest, error) {
	if len(f) != 2 {
		return nil, malformed("expected last count and filters, got %d fields", len(f))
	}
	last, err := strconv.Atoi(f[0])
	if err != nil || last < 0 || last > d.maxFeatures || (n == 0 && last != 0) {
		return nil, malformed("bad last count %q", f[0])
	}
	raw, err := b64.DecodeString(f[1])
	if err != nil {
		return nil, malformed("filters: %v", err)
	}
	if len(raw)%FilterSize != 0 || len(raw)/FilterSize != n {
		return nil, malformed("filters decode to %d bytes for %d chunks", len(raw), n)
	}
	d.chunks = make([]chunk, n)
	for i := range d.chunks {
		count := d.maxFeatures
		if i == n-1 {
			count = last
		}
		d.chunks[i] = chunkFromBytes(raw[i*FilterSize:(i+1)*FilterSize], count)
	}
	return d, nil
}

func parseBlocks(d *Digest, n int, f []string) (*Digest, error) {
	var err error
	if d.blockSize, err = strconv.Atoi(f[0]); err != nil || d.blockSize <= 0 {
		return nil, malformed("bad block size %q", f[0])
	}
	f = f[1:]
	if len(f)%2 != 0 || len(f)/2 != n {
		return nil, malformed("expected 2 fields for each of %d chunks, got %d", n, len(f))
	}
	d.chunks = make([]chunk, n)
	for i := range d.chunks {
		count, err := strconv.ParseUint(f[2*i], 16, 16)
		if err != nil || int(count) > d.maxFeatures {
			return nil, malformed("chunk %d: bad feature count %q", i, f[2*i])
		}
		raw, err := b64.DecodeString(f[2*i+1])
		if err != nil || len(raw) != FilterSize {
			return nil, malformed("chunk %d: bad filter", i)
		}
		d.chunks[i] = chunkFromBytes(raw, int(count))
	}
	return d, nil
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedDigest, fmt.Sprintf(format, args...))
}
