package models

import (
	"fmt"
	"strings"
	"time"
)

// BlobKind selects how the remote blob reference is resolved
type BlobKind int

const (
	BlobKindBlock BlobKind = iota
	BlobKindPage
	BlobKindAppend
)

var blobKindNames = map[BlobKind]string{
	BlobKindBlock:  "block",
	BlobKindPage:   "page",
	BlobKindAppend: "append",
}

// String returns the lower-case name of the blob kind
func (k BlobKind) String() string {
	if name, ok := blobKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("BlobKind(%d)", int(k))
}

// ParseBlobKind parses a blob kind name, ignoring case
func ParseBlobKind(s string) (BlobKind, error) {
	for kind, name := range blobKindNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("unknown blob kind %q", s)
}

// MarshalText implements encoding.TextMarshaler
func (k BlobKind) MarshalText() ([]byte, error) {
	if _, ok := blobKindNames[k]; !ok {
		return nil, fmt.Errorf("unknown blob kind %d", int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (k *BlobKind) UnmarshalText(text []byte) error {
	kind, err := ParseBlobKind(string(text))
	if err != nil {
		return err
	}
	*k = kind
	return nil
}

// CollisionPolicy governs what happens when the destination file already exists
type CollisionPolicy int

const (
	// PolicyOverwrite replaces any existing file
	PolicyOverwrite CollisionPolicy = iota
	// PolicyError fails the download before any bytes are transferred
	PolicyError
	// PolicyRename picks the first free name of the form base(n).ext
	PolicyRename
)

var policyNames = map[CollisionPolicy]string{
	PolicyOverwrite: "overwrite",
	PolicyError:     "error",
	PolicyRename:    "rename",
}

// String returns the lower-case name of the policy
func (p CollisionPolicy) String() string {
	if name, ok := policyNames[p]; ok {
		return name
	}
	return fmt.Sprintf("CollisionPolicy(%d)", int(p))
}

// ParseCollisionPolicy parses a policy name, ignoring case
func ParseCollisionPolicy(s string) (CollisionPolicy, error) {
	for policy, name := range policyNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return policy, nil
		}
	}
	return 0, fmt.Errorf("unknown collision policy %q", s)
}

// MarshalText implements encoding.TextMarshaler
func (p CollisionPolicy) MarshalText() ([]byte, error) {
	if _, ok := policyNames[p]; !ok {
		return nil, fmt.Errorf("unknown collision policy %d", int(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (p *CollisionPolicy) UnmarshalText(text []byte) error {
	policy, err := ParseCollisionPolicy(string(text))
	if err != nil {
		return err
	}
	*p = policy
	return nil
}

// Source identifies one remote blob
type Source struct {
	ConnectionString string   `yaml:"connection_string" json:"connectionString"`
	ContainerName    string   `yaml:"container" json:"container"`
	BlobName         string   `yaml:"blob" json:"blob"`
	BlobKind         BlobKind `yaml:"kind" json:"kind"`
}

// Destination describes where a downloaded blob is written locally
type Destination struct {
	Directory       string          `yaml:"directory" json:"directory"`
	CollisionPolicy CollisionPolicy `yaml:"policy" json:"policy"`
}

// AsJob returns d as a job destination with every field set
func (d Destination) AsJob() JobDestination {
	policy := d.CollisionPolicy
	return JobDestination{Directory: d.Directory, CollisionPolicy: &policy}
}

// JobDestination is a Destination as written in a job list.
// An empty Directory or a nil CollisionPolicy falls back to the configured destination.
type JobDestination struct {
	Directory       string           `yaml:"directory" json:"directory,omitempty"`
	CollisionPolicy *CollisionPolicy `yaml:"policy" json:"policy,omitempty"`
}

// Resolve fills the unset fields of d from def
func (d JobDestination) Resolve(def Destination) Destination {
	resolved := def
	if d.Directory != "" {
		resolved.Directory = d.Directory
	}
	if d.CollisionPolicy != nil {
		resolved.CollisionPolicy = *d.CollisionPolicy
	}
	return resolved
}

// DownloadResult describes a file written by a successful download
type DownloadResult struct {
	FullPath  string `json:"fullPath"`
	FileName  string `json:"fileName"`
	SizeBytes int64  `json:"sizeBytes"`
}

// ContentResult holds blob content read directly into memory
type ContentResult struct {
	Content string `json:"content"`
}

// JobMode selects which operation a DownloadJob runs
type JobMode string

const (
	JobModeDownload JobMode = "download"
	JobModeRead     JobMode = "read"
	JobModeExists   JobMode = "exists"
)

// DownloadJob is one unit of work for the serial runner
type DownloadJob struct {
	ID          string         `yaml:"id" json:"id"`
	Mode        JobMode        `yaml:"mode" json:"mode"`
	Source      Source         `yaml:"source" json:"source"`
	Destination JobDestination `yaml:"destination" json:"destination"`
	Encoding    string         `yaml:"encoding" json:"encoding,omitempty"`
	Status      JobStatus      `yaml:"-" json:"status"`
}

// JobStatus represents the current status of a job
type JobStatus struct {
	State       JobState        `json:"state"`
	Message     string          `json:"message,omitempty"`
	StartedAt   time.Time       `json:"startedAt,omitempty"`
	CompletedAt time.Time       `json:"completedAt,omitempty"`
	Error       string          `json:"error,omitempty"`
	Download    *DownloadResult `json:"download,omitempty"`
	Content     *ContentResult  `json:"content,omitempty"`
	Exists      *bool           `json:"exists,omitempty"`
}

// JobState represents the possible states of a job
type JobState string

const (
	JobStatePending    JobState = "pending"
	JobStateProcessing JobState = "processing"
	JobStateCompleted  JobState = "completed"
	JobStateFailed     JobState = "failed"
	JobStateCancelled  JobState = "cancelled"
)
