package storage

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/tkrajina/gpxgo/gpx"
)

const (
	decimalBase                        = 10
	defaultReducePrecisionDecimalPlace = 2
	deleteBatchSize                    = 500
	deleteBatchPause                   = 50 * time.Millisecond

	// About the diagonal of a two decimal grid cell at mid latitudes.
	clusterRadiusMeters = 1500
)

// LocationLog represents a row in the location_logs table
type LocationLog struct {
	ID          int64
	Latitude    float64
	Longitude   float64
	Distance    float64
	SearchCount int64
	SearchTime  time.Time
	LastSearch  time.Time
}

// PopularLocation represents a clustered area of searches with its popularity
type PopularLocation struct {
	Latitude    float64 `json:"lat"`
	Longitude   float64 `json:"lng"`
	SearchCount int64   `json:"weight"`
	Radius      float64 `json:"radius"` // largest search radius in the cluster, km
}

func reduceLocationPrecision(lat, lng float64, decimalPlaces int) (roundedLat, roundedLng float64) {
	factor := math.Pow(decimalBase, float64(decimalPlaces))
	roundedLat = math.Round(lat*factor) / factor
	roundedLng = math.Round(lng*factor) / factor
	return
}

// LogSearchLocation records a search around latitude, longitude. Coordinates
// are rounded to two decimals so repeated searches from the same area share
// a row.
func (s *Storage) LogSearchLocation(ctx context.Context, latitude, longitude, distance float64) error {
	var id int64
	newLat, newLong := reduceLocationPrecision(latitude, longitude, defaultReducePrecisionDecimalPlace)
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM location_logs
		WHERE latitude = ?
		AND longitude = ?
		LIMIT 1
	`, newLat, newLong).Scan(&id)

	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("error checking for existing location: %w", err)
	}

	if errors.Is(err, sql.ErrNoRows) {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO location_logs (latitude, longitude, distance)
			VALUES (?, ?, ?)
		`, newLat, newLong, distance)
		if err != nil {
			return fmt.Errorf("error logging search location: %w", err)
		}
		return nil
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE location_logs
		SET search_count = search_count + 1, last_search = CURRENT_TIMESTAMP, distance = ?
		WHERE id = ?
	`, distance, id)
	if err != nil {
		return fmt.Errorf("error updating search location: %w", err)
	}
	return nil
}

// GetLocationLogs retrieves location logs, most searched first.
// A limit of 0 returns every row.
func (s *Storage) GetLocationLogs(ctx context.Context, limit int) ([]LocationLog, error) {
	query := `SELECT id, latitude, longitude, distance, search_count,
			  CAST(strftime('%s', search_time) AS INTEGER), CAST(strftime('%s', last_search) AS INTEGER)
			  FROM location_logs
			  ORDER BY search_count DESC, id ASC`

	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error retrieving location logs: %w", err)
	}
	defer rows.Close()

	var logs []LocationLog
	for rows.Next() {
		var logEntry LocationLog
		var searchTime, lastSearch int64
		if err := rows.Scan(
			&logEntry.ID,
			&logEntry.Latitude,
			&logEntry.Longitude,
			&logEntry.Distance,
			&logEntry.SearchCount,
			&searchTime,
			&lastSearch,
		); err != nil {
			return nil, fmt.Errorf("error scanning location log: %w", err)
		}
		logEntry.SearchTime = time.Unix(searchTime, 0).UTC()
		logEntry.LastSearch = time.Unix(lastSearch, 0).UTC()
		logs = append(logs, logEntry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}

	return logs, nil
}

// GetPopularLocationHeatmap clusters logged searches that are close to each
// other and returns the clusters, most popular first.
func (s *Storage) GetPopularLocationHeatmap(ctx context.Context, limit int) ([]PopularLocation, error) {
	logs, err := s.GetLocationLogs(ctx, 0)
	if err != nil {
		return nil, err
	}

	popular := clusterSearches(logs, clusterRadiusMeters)
	if limit > 0 && len(popular) > limit {
		popular = popular[:limit]
	}
	return popular, nil
}

// clusterSearches folds each log into the first cluster whose centroid lies
// within radius meters, or starts a new one. logs are expected most searched
// first so busy spots seed the clusters.
func clusterSearches(logs []LocationLog, radius float64) []PopularLocation {
	var clusters []PopularLocation
	for _, entry := range logs {
		i := slices.IndexFunc(clusters, func(c PopularLocation) bool {
			return gpx.Distance2D(c.Latitude, c.Longitude, entry.Latitude, entry.Longitude, true) <= radius
		})
		if i < 0 {
			clusters = append(clusters, PopularLocation{
				Latitude:    entry.Latitude,
				Longitude:   entry.Longitude,
				SearchCount: entry.SearchCount,
				Radius:      entry.Distance,
			})
			continue
		}

		c := &clusters[i]
		total := c.SearchCount + entry.SearchCount
		if total > 0 {
			c.Latitude = (c.Latitude*float64(c.SearchCount) + entry.Latitude*float64(entry.SearchCount)) / float64(total)
			c.Longitude = (c.Longitude*float64(c.SearchCount) + entry.Longitude*float64(entry.SearchCount)) / float64(total)
		}
		c.SearchCount = total
		c.Radius = max(c.Radius, entry.Distance)
	}

	slices.SortStableFunc(clusters, func(a, b PopularLocation) int {
		return cmp.Compare(b.SearchCount, a.SearchCount)
	})
	return clusters
}

// DeleteOldSearches removes location logs whose last search is older than
// daysOld days and returns how many rows were deleted.
func (s *Storage) DeleteOldSearches(ctx context.Context, daysOld int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -daysOld).Format("2006-01-02 15:04:05")
	s.log.Info("Starting cleanup of old searches", "cutoff", cutoff)

	var deleted int64
	for {
		res, err := s.db.ExecContext(ctx, `
			DELETE FROM location_logs WHERE id IN (
				SELECT id FROM location_logs WHERE last_search < ? ORDER BY id LIMIT ?
			)`, cutoff, deleteBatchSize)
		if err != nil {
			return deleted, fmt.Errorf("error deleting location logs: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return deleted, fmt.Errorf("error counting deleted rows: %w", err)
		}
		deleted += n
		if n < deleteBatchSize {
			break
		}
		s.log.Debug("Deleted location log records", "count", deleted)
		time.Sleep(deleteBatchPause)
	}

	s.log.Info("Completed search log cleanup", "deleted_count", deleted)
	return deleted, nil
}
