package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFull(t *testing.T) {
	got := Full()
	assert.True(t, strings.HasPrefix(got, "tideline/"))

	suffix := strings.TrimPrefix(got, "tideline/")
	assert.NotEmpty(t, suffix)
	assert.LessOrEqual(t, len(suffix), 8)
}
