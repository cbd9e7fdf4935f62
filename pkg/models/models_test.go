package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseCollisionPolicy(t *testing.T) {
	tests := []struct {
		in   string
		want CollisionPolicy
	}{
		{"overwrite", PolicyOverwrite},
		{"Error", PolicyError},
		{" RENAME ", PolicyRename},
	}
	for _, tt := range tests {
		got, err := ParseCollisionPolicy(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseCollisionPolicy("skip")
	assert.EqualError(t, err, `unknown collision policy "skip"`)
}

func TestParseBlobKind(t *testing.T) {
	kind, err := ParseBlobKind("Append")
	require.NoError(t, err)
	assert.Equal(t, BlobKindAppend, kind)
	assert.Equal(t, "append", kind.String())

	_, err = ParseBlobKind("file")
	assert.Error(t, err)
}

func TestUnknownValuesDoNotMarshal(t *testing.T) {
	assert.Equal(t, "CollisionPolicy(7)", CollisionPolicy(7).String())
	_, err := json.Marshal(Destination{CollisionPolicy: 7})
	assert.Error(t, err)

	_, err = json.Marshal(Source{BlobKind: 9})
	assert.Error(t, err)
}

func TestDownloadJob_YAML(t *testing.T) {
	doc := `
id: nightly
mode: download
source:
  container: reports
  blob: 2024/summary.csv
  kind: page
destination:
  directory: /srv/in
  policy: Rename
`
	var job DownloadJob
	require.NoError(t, yaml.Unmarshal([]byte(doc), &job))

	assert.Equal(t, DownloadJob{
		ID:   "nightly",
		Mode: JobModeDownload,
		Source: Source{
			ContainerName: "reports",
			BlobName:      "2024/summary.csv",
			BlobKind:      BlobKindPage,
		},
		Destination: Destination{Directory: "/srv/in", CollisionPolicy: PolicyRename}.AsJob(),
	}, job)

	assert.Error(t, yaml.Unmarshal([]byte("destination:\n  policy: merge\n"), &job))
}

func TestDownloadJob_JSON(t *testing.T) {
	exists := true
	job := DownloadJob{
		ID:          "j1",
		Mode:        JobModeExists,
		Source:      Source{ContainerName: "c", BlobName: "b"},
		Destination: Destination{CollisionPolicy: PolicyError}.AsJob(),
		Status:      JobStatus{State: JobStateCompleted, Exists: &exists},
	}

	data, err := json.Marshal(job)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"policy":"error"`)
	assert.Contains(t, string(data), `"kind":"block"`)
	assert.Contains(t, string(data), `"exists":true`)

	var decoded DownloadJob
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.NotNil(t, decoded.Destination.CollisionPolicy)
	assert.Equal(t, PolicyError, *decoded.Destination.CollisionPolicy)
	require.NotNil(t, decoded.Status.Exists)
	assert.True(t, *decoded.Status.Exists)
}

func TestJobDestination_Resolve(t *testing.T) {
	def := Destination{Directory: "/default", CollisionPolicy: PolicyRename}

	var unset JobDestination
	require.NoError(t, yaml.Unmarshal([]byte("directory: /job\n"), &unset))
	assert.Nil(t, unset.CollisionPolicy)
	assert.Equal(t, Destination{Directory: "/job", CollisionPolicy: PolicyRename}, unset.Resolve(def))

	var overwrite JobDestination
	require.NoError(t, yaml.Unmarshal([]byte("policy: overwrite\n"), &overwrite))
	require.NotNil(t, overwrite.CollisionPolicy)
	assert.Equal(t, Destination{Directory: "/default", CollisionPolicy: PolicyOverwrite}, overwrite.Resolve(def))

	assert.Equal(t, def, JobDestination{}.Resolve(def))
}
