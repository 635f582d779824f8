package database

import (
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Question)

// Querier is satisfied by *sql.DB and *sql.Tx
type Querier interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	QueryRow(query string, args ...interface{}) *sql.Row
	Query(query string, args ...interface{}) (*sql.Rows, error)
}

// FilePair pairs a face record's id with its image path on disk.
type FilePair struct {
	ID        int64
	Filename  string
	ImagePath string
}

// ListFilePairs returns id, filename and image path for every live face
// record, ordered by id. The reconciler walks this list against the asset
// filesystem; it deliberately avoids loading embedding blobs.
func ListFilePairs(db Querier) ([]FilePair, error) {
	queryBuilder := psql.Select("id", "filename", "image_path").
		From("faces").
		Where(sq.Eq{"deleted_at": nil}).
		OrderBy("id ASC")
	sqlStr, args, err := queryBuilder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build SQL for ListFilePairs: %w", err)
	}

	rows, err := db.Query(sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute ListFilePairs query: %w", err)
	}
	defer rows.Close()

	var pairs []FilePair
	for rows.Next() {
		var p FilePair
		if err := rows.Scan(&p.ID, &p.Filename, &p.ImagePath); err != nil {
			return nil, fmt.Errorf("failed to scan file pair row: %w", err)
		}
		pairs = append(pairs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating file pair rows: %w", err)
	}
	return pairs, nil
}

// ListKnownFilenames returns the set of filenames present in the faces table.
func ListKnownFilenames(db Querier) (map[string]struct{}, error) {
	queryBuilder := psql.Select("filename").
		From("faces").
		Where(sq.Eq{"deleted_at": nil})
	sqlStr, args, err := queryBuilder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build SQL for ListKnownFilenames: %w", err)
	}

	rows, err := db.Query(sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute ListKnownFilenames query: %w", err)
	}
	defer rows.Close()

	known := make(map[string]struct{})
	for rows.Next() {
		var filename string
		if err := rows.Scan(&filename); err != nil {
			return nil, fmt.Errorf("failed to scan filename row: %w", err)
		}
		known[filename] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating filename rows: %w", err)
	}
	return known, nil
}

// CountMissingEmbeddings counts live records without an embedding blob.
func CountMissingEmbeddings(db Querier) (int64, error) {
	queryBuilder := psql.Select("COUNT(*)").
		From("faces").
		Where(sq.And{
			sq.Eq{"deleted_at": nil},
			sq.Or{sq.Eq{"embedding_data": nil}, sq.Eq{"embedding_data": []byte{}}},
		})
	sqlStr, args, err := queryBuilder.ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build SQL for CountMissingEmbeddings: %w", err)
	}

	var count int64
	if err := db.QueryRow(sqlStr, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to execute CountMissingEmbeddings query: %w", err)
	}
	return count, nil
}

// CountByQualityFlag returns record counts grouped by quality flag.
func CountByQualityFlag(db Querier) (map[string]int64, error) {
	queryBuilder := psql.Select("quality_flag", "COUNT(*)").
		From("faces").
		Where(sq.Eq{"deleted_at": nil}).
		GroupBy("quality_flag")
	sqlStr, args, err := queryBuilder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build SQL for CountByQualityFlag: %w", err)
	}

	rows, err := db.Query(sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute CountByQualityFlag query: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var flag string
		var count int64
		if err := rows.Scan(&flag, &count); err != nil {
			return nil, fmt.Errorf("failed to scan quality flag row: %w", err)
		}
		counts[flag] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating quality flag rows: %w", err)
	}
	return counts, nil
}
