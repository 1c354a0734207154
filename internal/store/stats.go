package store

import "context"

// UserStats summarizes a user's activity.
type UserStats struct {
	DocumentsUploaded int     `db:"documents_uploaded" json:"documents_uploaded"`
	TotalChunks       int     `db:"total_chunks" json:"total_chunks"`
	ChatSessions      int     `db:"chat_sessions" json:"chat_sessions"`
	SearchQueries     int     `db:"search_queries" json:"search_queries"`
	StorageUsedMB     float64 `db:"-" json:"storage_used_mb"`
}

// RecordSearch bumps the user's search counter.
func (s *Store) RecordSearch(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO search_counts (user_id, count) VALUES (?, 1)
		ON CONFLICT(user_id) DO UPDATE SET count = count + 1`, userID)
	if err != nil {
		return dbError("record search", err)
	}
	return nil
}

func (s *Store) UserStats(ctx context.Context, userID string) (UserStats, error) {
	var row struct {
		UserStats
		StorageBytes int64 `db:"storage_bytes"`
	}
	err := s.db.GetContext(ctx, &row, `
		SELECT
			(SELECT COUNT(*) FROM documents WHERE user_id = ?1) AS documents_uploaded,
			(SELECT COALESCE(SUM(chunk_count), 0) FROM documents WHERE user_id = ?1) AS total_chunks,
			(SELECT COALESCE(SUM(size_bytes), 0) FROM documents WHERE user_id = ?1) AS storage_bytes,
			(SELECT COUNT(*) FROM chat_sessions WHERE user_id = ?1 AND is_active = 1) AS chat_sessions,
			(SELECT COALESCE(MAX(count), 0) FROM search_counts WHERE user_id = ?1) AS search_queries`, userID)
	if err != nil {
		return UserStats{}, dbError("user stats", err)
	}
	st := row.UserStats
	st.StorageUsedMB = float64(row.StorageBytes) / (1 << 20)
	return st, nil
}
