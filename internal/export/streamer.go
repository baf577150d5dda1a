// Package export streams query results to a file in bounded-size chunks.
package export

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"agentdb/internal/sqlpage"
	"agentdb/internal/utils"
)

const DefaultChunkSize = 100

// Sink receives one header row followed by batches of data rows.
type Sink interface {
	WriteHeader(columns []string) error
	WriteRows(columns []string, rows []map[string]any) error
	// Flush pushes buffered output to the underlying writer.
	Flush() error
	// Close finishes the file. Abort ends a failed export instead: output already flushed
	// stays as is and nothing else is written.
	Close() error
	Abort() error
	ContentType() string
	Extension() string
}

type Stats struct {
	Rows   int64
	Chunks int
}

type Streamer struct {
	chunkSize int
	log       *zap.Logger
}

func NewStreamer(chunkSize int, log *zap.Logger) *Streamer {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Streamer{chunkSize: chunkSize, log: log}
}

// Stream issues sql in LIMIT/OFFSET chunks until totalCount rows (capped by any declared
// limit) have been written, or the database runs out of rows. Each chunk is flushed before the
// next one is requested. On failure the rows already flushed stay in the output.
func (s *Streamer) Stream(ctx context.Context, sink Sink, exec sqlpage.Executor, sql string, totalCount int64) (Stats, error) {
	lc, err := sqlpage.ParseLimitOffset(sql)
	if err != nil {
		return Stats{}, err
	}
	maxRecords := min(max(totalCount, 0), lc.Limit)

	var stats Stats
	headerWritten := false

	for {
		size := min(int64(s.chunkSize), maxRecords-stats.Rows)
		chunkSQL := sqlpage.BuildChunk(lc.CleanSQL, size, lc.Offset+stats.Rows)

		res, err := exec.Execute(ctx, chunkSQL)
		if err != nil {
			s.log.Warn("export chunk failed",
				zap.Int("chunk", stats.Chunks+1),
				zap.Int64("rows_written", stats.Rows),
				zap.String("sql", utils.TruncateSQL(sql)),
				zap.Error(err))
			return stats, fmt.Errorf("export chunk %d failed: %w", stats.Chunks+1, err)
		}

		if !headerWritten {
			if err := sink.WriteHeader(res.Columns); err != nil {
				return stats, fmt.Errorf("failed to write header: %w", err)
			}
			headerWritten = true
		}

		if len(res.Rows) > 0 {
			if err := sink.WriteRows(res.Columns, res.Rows); err != nil {
				return stats, fmt.Errorf("failed to write rows: %w", err)
			}
			stats.Rows += int64(len(res.Rows))
			stats.Chunks++
		}

		if err := sink.Flush(); err != nil {
			return stats, fmt.Errorf("failed to flush export: %w", err)
		}

		if len(res.Rows) == 0 || int64(len(res.Rows)) < size || stats.Rows >= maxRecords {
			break
		}
	}

	s.log.Info("export completed",
		zap.Int64("rows", stats.Rows),
		zap.Int("chunks", stats.Chunks),
		zap.Int64("max_records", maxRecords))
	return stats, nil
}
