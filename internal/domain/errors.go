package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidSource          = errors.New("invalid source")
	ErrNotFound               = errors.New("path does not exist")
	ErrNotADirectory          = errors.New("path is not a directory")
	ErrSourceUnreadable       = errors.New("source unreadable")
	ErrArchiveWrite           = errors.New("archive write failed")
	ErrDestinationExists      = errors.New("destination already exists")
	ErrStoreUnavailable       = errors.New("catalog store unavailable")
	ErrRecordNotFound         = errors.New("backup record not found")
	ErrUnsupportedCompression = errors.New("unsupported compression kind")
)

// Stage names a state of the backup pipeline.
type Stage string

const (
	StageValidating Stage = "validating"
	StageSizing     Stage = "sizing"
	StageArchiving  Stage = "archiving"
	StageRecording  Stage = "recording"
	StageDone       Stage = "done"
	StageFailed     Stage = "failed"
)

// StageError reports which pipeline stage a fatal failure happened in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("backup failed while %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// FailedStage returns the stage recorded in err, if any.
func FailedStage(err error) (Stage, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return "", false
}
