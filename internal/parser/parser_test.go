package parser

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func runJob(t *testing.T, content string) *Job {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.cfg")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	job := NewJob(path, zap.NewNop())
	job.Start()
	job.Wait()
	return job
}

func TestJob_ParsesMapping(t *testing.T) {
	job := runJob(t, "name: cluster\nhost: cluster.example.org\nport: 22\n")

	assert.Empty(t, job.Errors())

	mappings := FindData[*Mapping](job.Bank())
	require.Len(t, mappings, 1)

	name, ok := mappings[0].Get("name")
	require.True(t, ok)
	assert.Equal(t, "cluster", name)
}

func TestJob_ParsesMultipleDocuments(t *testing.T) {
	job := runJob(t, "name: first\n---\nname: second\n")

	mappings := FindData[*Mapping](job.Bank())
	require.Len(t, mappings, 2)

	name, _ := mappings[0].Get("name")
	assert.Equal(t, "first", name)
	name, _ = mappings[1].Get("name")
	assert.Equal(t, "second", name)
}

func TestJob_RecordsErrorsForMalformedInput(t *testing.T) {
	job := runJob(t, "name: [unclosed\n")

	assert.NotEmpty(t, job.Errors())
	assert.Empty(t, FindData[*Mapping](job.Bank()))
}

func TestJob_MissingFile(t *testing.T) {
	job := NewJob(filepath.Join(t.TempDir(), "absent.cfg"), zap.NewNop())
	job.Start()
	job.Wait()

	assert.NotEmpty(t, job.Errors())
	assert.Empty(t, job.Bank().All())
}

func TestJob_StartIsIdempotent(t *testing.T) {
	job := runJob(t, "name: once\n")
	job.Start() // second Start is a no-op
	job.Wait()

	assert.Len(t, FindData[*Mapping](job.Bank()), 1)
}

func TestMapping_Decode(t *testing.T) {
	job := runJob(t, "name: cluster\nhost: cluster.example.org\nport: 2222\n")

	mappings := FindData[*Mapping](job.Bank())
	require.Len(t, mappings, 1)

	var out struct {
		Name string `yaml:"name"`
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	}
	require.NoError(t, mappings[0].Decode(&out))
	assert.Equal(t, "cluster", out.Name)
	assert.Equal(t, "cluster.example.org", out.Host)
	assert.Equal(t, 2222, out.Port)
}
