package operations

import (
	"fmt"
	"time"
)

// Target is one artifact a backup run can produce.
type Target string

const (
	TargetFullBackup Target = "fullBackup"
	TargetSchema     Target = "schema"
	TargetData       Target = "data"
	TargetStorage    Target = "storage"
	TargetAuthUsers  Target = "authUsers"
	TargetConfig     Target = "config"
)

// Targets lists every target in execution order.
var Targets = []Target{
	TargetFullBackup,
	TargetSchema,
	TargetData,
	TargetStorage,
	TargetAuthUsers,
	TargetConfig,
}

// ArtifactSet records the outcome of each attempted target. A target that
// is absent was not attempted in this run.
type ArtifactSet map[Target]bool

// Succeeded reports whether every attempted target succeeded.
func (a ArtifactSet) Succeeded() bool {
	for _, ok := range a {
		if !ok {
			return false
		}
	}
	return true
}

// Failed returns the attempted targets that failed, in execution order.
func (a ArtifactSet) Failed() []Target {
	var failed []Target
	for _, t := range Targets {
		if ok, attempted := a[t]; attempted && !ok {
			failed = append(failed, t)
		}
	}
	return failed
}

// Mode selects which targets a backup run attempts.
type Mode string

const (
	ModeFull     Mode = "full"
	ModeDatabase Mode = "database"
	ModeStorage  Mode = "storage"
	ModeConfig   Mode = "config"
)

// Targets returns the targets attempted in mode, in execution order.
func (m Mode) Targets() ([]Target, error) {
	switch m {
	case ModeFull, "":
		return Targets, nil
	case ModeDatabase:
		return []Target{TargetFullBackup, TargetAuthUsers}, nil
	case ModeStorage:
		return []Target{TargetStorage}, nil
	case ModeConfig:
		return []Target{TargetConfig}, nil
	default:
		return nil, fmt.Errorf("unknown backup mode %q", m)
	}
}

// RestoreMode selects which steps a restore run performs.
type RestoreMode string

const (
	RestoreFull     RestoreMode = "full"
	RestoreDatabase RestoreMode = "database"
	RestoreStorage  RestoreMode = "storage"
	RestoreAuth     RestoreMode = "auth"
)

// Restore steps, in execution order.
const (
	StepDatabase = "database"
	StepStorage  = "storage"
	StepAuth     = "auth"
)

// Steps returns the restore steps performed in m, in execution order.
func (m RestoreMode) Steps() ([]string, error) {
	switch m {
	case RestoreFull, "":
		return []string{StepDatabase, StepStorage, StepAuth}, nil
	case RestoreDatabase:
		return []string{StepDatabase}, nil
	case RestoreStorage:
		return []string{StepStorage}, nil
	case RestoreAuth:
		return []string{StepAuth}, nil
	default:
		return nil, fmt.Errorf("unknown restore mode %q", m)
	}
}

// StepResult describes one backup target or restore step.
type StepResult struct {
	Name    string
	OK      bool
	Skipped bool
	// Path and SizeBytes describe the artifact a step wrote, when it wrote
	// exactly one file.
	Path      string
	SizeBytes int64
	// Items and ItemsOK count per-item work (objects, users, SQL files).
	Items         int
	ItemsOK       int
	Buckets       int
	BucketsFailed int
	Err           error
	Duration      time.Duration
}

func (s *StepResult) fail(err error) {
	s.OK = false
	s.Err = err
}
