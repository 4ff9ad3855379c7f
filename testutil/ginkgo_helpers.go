// Package testutil contains helpers shared by ginkgo suites.
package testutil

import (
	"bytes"
	"fmt"
	"os"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

const maxPrintableLen = 1024

func Byf(format string, args ...interface{}) {
	By(fmt.Sprintf(format, args...))
	fmt.Fprintln(GinkgoWriter)
}

// ExpectBytesEqual have much less overhead for large byte chunks but gomega.Equal.
func ExpectBytesEqual(a, b []byte) {
	ExpectBytesEqualWithOffset(1, a, b)
}

func ExpectBytesEqualWithOffset(off int, a, b []byte) {
	off++
	if bytes.Equal(a, b) {
		return
	}
	if len(a)+len(b) <= 2*maxPrintableLen {
		ExpectWithOffset(off, a).To(Equal(b))
	}
	ExpectWithOffset(off, len(a)).To(Equal(len(b)), "Length are unequal and data is too large to print.")
	for i, ab := range a {
		if ab != b[i] {
			end := i + maxPrintableLen
			if end > len(a) {
				end = len(a)
			}
			ExpectWithOffset(off, a[i:end]).To(Equal(b[i:end]), "Skipped %v equal bytes.", i)
		}
	}
}

// TmpFileName returns name of not existing file in temp dir.
func TmpFileName() string {
	f, err := os.CreateTemp("", "go_test_tmp_")
	Expect(err).To(BeNil())
	filename := f.Name()
	Expect(f.Close()).To(Succeed())
	Expect(os.Remove(filename)).To(Succeed())
	return filename
}
