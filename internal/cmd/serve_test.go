package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseAPIKeys(t *testing.T) {
	assert.Nil(t, parseAPIKeys(""))
	assert.Equal(t, []string{"key1"}, parseAPIKeys("key1"))
	assert.Equal(t, []string{"key1", "key2"}, parseAPIKeys("key1, key2"))
	assert.Equal(t, []string{"key1"}, parseAPIKeys(" key1 , , "))
}
