package id

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

var idPattern = regexp.MustCompile(`^job-\d+-[0-9a-f]{12}$`)

func TestGenerate_Format(t *testing.T) {
	assert.Regexp(t, idPattern, Generate())
}

func TestGenerate_NoCollisions(t *testing.T) {
	const n = 2000
	seen := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		got := Generate()
		_, dup := seen[got]
		assert.False(t, dup, "duplicate ID %s", got)
		seen[got] = struct{}{}
	}
}
