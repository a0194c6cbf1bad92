// Package cleanup implements the cron-driven retention sweep. Uploaded
// sources, redacted outputs and run records all age out after the
// configured retention window; the sweeper deletes what is past it.
package cleanup

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/smart-redact/redactd/internal/evidence"
)

// Sweeper removes expired files and run records on a cron schedule.
type Sweeper struct {
	cron      *cron.Cron
	dirs      []string
	store     *evidence.Store
	retention time.Duration
}

// NewSweeper builds a sweeper over the given directories and run store.
// The store may be nil when no audit trail is configured. Cron
// expressions use the standard 5-field format; the sweep registers as
// "@hourly".
func NewSweeper(dirs []string, store *evidence.Store, retention time.Duration) *Sweeper {
	return &Sweeper{
		cron:      cron.New(),
		dirs:      dirs,
		store:     store,
		retention: retention,
	}
}

// Start registers the hourly sweep and begins the schedule.
func (s *Sweeper) Start() error {
	_, err := s.cron.AddFunc("@hourly", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		s.Sweep(ctx)
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the scheduler and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// Sweep runs one pass immediately: files older than the retention
// window go, then run records past it. Per-file errors are logged and
// skipped so one stuck file cannot wedge the whole sweep.
func (s *Sweeper) Sweep(ctx context.Context) {
	cutoff := time.Now().Add(-s.retention)
	removed := 0

	for _, dir := range s.dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if !os.IsNotExist(err) {
				log.Warn().Err(err).Str("dir", dir).Msg("retention sweep cannot read directory")
			}
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			info, err := entry.Info()
			if err != nil || info.ModTime().After(cutoff) {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			if err := os.Remove(path); err != nil {
				log.Warn().Err(err).Str("path", path).Msg("retention sweep cannot remove file")
				continue
			}
			removed++
		}
	}

	var records int64
	if s.store != nil {
		n, err := s.store.DeleteOlderThan(ctx, cutoff)
		if err != nil {
			log.Warn().Err(err).Msg("retention sweep cannot expire run records")
		} else {
			records = n
		}
	}

	if removed > 0 || records > 0 {
		log.Info().
			Int("files_removed", removed).
			Int64("records_removed", records).
			Time("cutoff", cutoff).
			Msg("retention sweep completed")
	}
}
