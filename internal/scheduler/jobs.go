package scheduler

import (
	"github.com/aristath/glidepath/internal/database"
	"github.com/aristath/glidepath/internal/modules/positions"
	"github.com/rs/zerolog"
)

// WALCheckpointJob truncates the SQLite write-ahead log so it cannot grow
// unbounded between restarts.
type WALCheckpointJob struct {
	db  *database.DB
	log zerolog.Logger
}

// NewWALCheckpointJob creates a new WAL checkpoint job
func NewWALCheckpointJob(db *database.DB, log zerolog.Logger) *WALCheckpointJob {
	return &WALCheckpointJob{
		db:  db,
		log: log.With().Str("job", "wal_checkpoint").Logger(),
	}
}

// Name implements Job
func (j *WALCheckpointJob) Name() string { return "wal_checkpoint" }

// Run implements Job
func (j *WALCheckpointJob) Run() error {
	return j.db.WALCheckpoint("TRUNCATE")
}

// PruneUploadsJob deletes superseded upload batches. Analyses only ever read
// the latest batch per (user, filename), so older batches are dead weight.
type PruneUploadsJob struct {
	repo *positions.Repository
	log  zerolog.Logger
}

// NewPruneUploadsJob creates a new upload pruning job
func NewPruneUploadsJob(repo *positions.Repository, log zerolog.Logger) *PruneUploadsJob {
	return &PruneUploadsJob{
		repo: repo,
		log:  log.With().Str("job", "prune_uploads").Logger(),
	}
}

// Name implements Job
func (j *PruneUploadsJob) Name() string { return "prune_uploads" }

// Run implements Job
func (j *PruneUploadsJob) Run() error {
	pruned, err := j.repo.PruneSuperseded()
	if err != nil {
		return err
	}
	if pruned > 0 {
		j.log.Info().Int64("batches", pruned).Msg("Pruned superseded upload batches")
	}
	return nil
}
