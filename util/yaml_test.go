package util

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type yamlTestType struct {
	Name  string `yaml:"name"`
	Count int    `yaml:"count"`
}

func TestYAMLMarshal(t *testing.T) {
	y, err := MarshalYaml(&yamlTestType{
		Name:  "succ",
		Count: 3,
	})
	assert.NoError(t, err)
	assert.Equal(t, "name: succ\ncount: 3\n", y)
}

func TestYAMLUnmarshalReader(t *testing.T) {
	value := yamlTestType{}
	assert.NoError(t, UnmarshalYamlReader(strings.NewReader("name: foo\ncount: 7\n"), &value))
	assert.Equal(t, yamlTestType{Name: "foo", Count: 7}, value)
}

func TestYAMLUnmarshalRejectsUnknownFields(t *testing.T) {
	value := yamlTestType{}
	err := UnmarshalYamlReader(strings.NewReader("name: foo\nunknown: 1\n"), &value)
	assert.Error(t, err)
}
