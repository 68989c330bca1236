package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"tryon-server-go/internal/platform/errors"
	"tryon-server-go/internal/platform/logging"
)

// FeedbackStore appends feedback lines to a plain log file and mirrors each
// submission into the database.
type FeedbackStore struct {
	logFile string
	db      *gorm.DB
	logger  *logging.Logger
}

// NewFeedbackStore constructs a feedback sink. db may be nil, in which case
// only the log file is written.
func NewFeedbackStore(logFile string, db *gorm.DB, logger *logging.Logger) *FeedbackStore {
	if logger == nil {
		logger = logging.DefaultLogger
	}
	return &FeedbackStore{logFile: logFile, db: db, logger: logger}
}

// Save records one feedback submission. rawPayload is the original request
// body, stored verbatim for auditing.
func (s *FeedbackStore) Save(score int, comment string, rawPayload []byte) error {
	if dir := filepath.Dir(s.logFile); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(errors.KindStorage, "feedback.save", "create feedback directory", err)
		}
	}

	f, err := os.OpenFile(s.logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrap(errors.KindStorage, "feedback.save", "open feedback log", err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "Score: %d, Comment: %s\n", score, comment); err != nil {
		return errors.Wrap(errors.KindStorage, "feedback.save", "append feedback line", err)
	}

	if s.db != nil {
		record := FeedbackRecord{
			Score:   score,
			Comment: comment,
			Payload: datatypes.JSON(rawPayload),
		}
		if err := s.db.Create(&record).Error; err != nil {
			// The log file is the primary sink; a failed mirror write is
			// logged, not surfaced.
			s.logger.WarnTag("Feedback", "database mirror failed: %v", err)
		}
	}

	s.logger.InfoTag("Feedback", "feedback recorded: score=%d", score)
	return nil
}
