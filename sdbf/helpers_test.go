package sdbf_test

import (
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/Anish-Chanda/sdhash/internal/source"
	"github.com/Anish-Chanda/sdhash/sdbf"
)

func randomBytes(seed uint64, n int) []byte {
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(r.Uint32())
	}
	return b
}

// prose builds pseudo-random English-like text of roughly n bytes.
func prose(seed uint64, n int) []byte {
	words := strings.Fields(`the of and to in is that for it as was with be by on not he this are
		or his from at which but have an they you were her she there been one all we their has
		would when if so no what can more out some time could them other these may than then
		first any like now its only over such our very after also most made through years new
		work where much before must well back because good each those people between state
		under system program number found during without around against another example world`)
	r := rand.New(rand.NewPCG(seed, 7))
	var sb strings.Builder
	for sb.Len() < n {
		sb.WriteString(words[r.IntN(len(words))])
		if r.IntN(12) == 0 {
			sb.WriteString(".\n")
		} else {
			sb.WriteByte(' ')
		}
	}
	return []byte(sb.String())
}

func mustCreate(t *testing.T, name string, data []byte, blockSize int) *sdbf.Digest {
	t.Helper()
	d, err := sdbf.Create(source.FromBytes(name, data), blockSize)
	if err != nil {
		t.Fatalf("Create(%s) error: %v", name, err)
	}
	return d
}
