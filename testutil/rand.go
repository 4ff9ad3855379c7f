package testutil

import (
	"math/rand"

	fuzz "github.com/google/gofuzz"
	. "github.com/onsi/ginkgo"
)

var RandSource = rand.NewSource(GinkgoRandomSeed())
var Rand = rand.New(RandSource)
var Fuzzer = fuzz.New().RandSource(RandSource)
var Fuzz = Fuzzer.Fuzz

// FastRand is reader of data that is random enough for tests, but cheap to generate.
var FastRand = fastRandReader{}

type fastRandReader struct{}

func (fastRandReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	b := byte(Rand.Int())
	for i := range p {
		p[i] = b + byte(i)
	}
	return len(p), nil
}
