package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/timetable-scheduler-api/internal/models"
)

// EntryReference names the entity column an entry lookup filters on.
type EntryReference string

const (
	EntryReferenceCourse  EntryReference = "course_id"
	EntryReferenceFaculty EntryReference = "faculty_id"
	EntryReferenceRoom    EntryReference = "room_id"
)

// TimetableEntryRepository manages the schedule rows of timetables.
type TimetableEntryRepository struct {
	db *sqlx.DB
}

// NewTimetableEntryRepository builds repository.
func NewTimetableEntryRepository(db *sqlx.DB) *TimetableEntryRepository {
	return &TimetableEntryRepository{db: db}
}

func (r *TimetableEntryRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// ReplaceAll swaps the whole schedule of a timetable, preserving entry order.
func (r *TimetableEntryRepository) ReplaceAll(ctx context.Context, exec sqlx.ExtContext, timetableID string, entries []models.ScheduleEntry) error {
	target := r.exec(exec)
	if _, err := target.ExecContext(ctx, `DELETE FROM timetable_entries WHERE timetable_id = $1`, timetableID); err != nil {
		return fmt.Errorf("clear timetable entries: %w", err)
	}

	const query = `
INSERT INTO timetable_entries (id, timetable_id, position, course_id, faculty_id, room_id, day, start_time, end_time)
VALUES (:id, :timetable_id, :position, :course_id, :faculty_id, :room_id, :day, :start_time, :end_time)`
	for i, entry := range entries {
		row := models.TimetableEntryRow{
			ID:            uuid.NewString(),
			TimetableID:   timetableID,
			Position:      i,
			ScheduleEntry: entry,
		}
		if _, err := sqlx.NamedExecContext(ctx, target, query, row); err != nil {
			return fmt.Errorf("insert timetable entry: %w", err)
		}
	}
	return nil
}

// ListByTimetable returns the schedule of one timetable in stored order.
func (r *TimetableEntryRepository) ListByTimetable(ctx context.Context, timetableID string) ([]models.ScheduleEntry, error) {
	const query = `SELECT course_id, faculty_id, room_id, day, start_time, end_time
FROM timetable_entries WHERE timetable_id = $1 ORDER BY position ASC`
	var entries []models.ScheduleEntry
	if err := r.db.SelectContext(ctx, &entries, query, timetableID); err != nil {
		return nil, fmt.Errorf("list timetable entries: %w", err)
	}
	return entries, nil
}

// ListByTimetables returns schedules keyed by timetable id.
func (r *TimetableEntryRepository) ListByTimetables(ctx context.Context, timetableIDs []string) (map[string][]models.ScheduleEntry, error) {
	result := make(map[string][]models.ScheduleEntry, len(timetableIDs))
	if len(timetableIDs) == 0 {
		return result, nil
	}
	query, args, err := sqlx.In(`SELECT timetable_id, position, course_id, faculty_id, room_id, day, start_time, end_time
FROM timetable_entries WHERE timetable_id IN (?) ORDER BY timetable_id ASC, position ASC`, timetableIDs)
	if err != nil {
		return nil, fmt.Errorf("build timetable entries query: %w", err)
	}
	var rows []models.TimetableEntryRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("list timetable entries: %w", err)
	}
	for _, row := range rows {
		result[row.TimetableID] = append(result[row.TimetableID], row.ScheduleEntry)
	}
	return result, nil
}

// TimetableIDsReferencing lists timetables whose schedule mentions the entity.
func (r *TimetableEntryRepository) TimetableIDsReferencing(ctx context.Context, ref EntryReference, id string) ([]string, error) {
	switch ref {
	case EntryReferenceCourse, EntryReferenceFaculty, EntryReferenceRoom:
	default:
		return nil, fmt.Errorf("unsupported entry reference %q", ref)
	}
	query := fmt.Sprintf(`SELECT DISTINCT timetable_id FROM timetable_entries WHERE %s = $1 ORDER BY timetable_id ASC`, ref)
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, id); err != nil {
		return nil, fmt.Errorf("list timetables referencing %s: %w", ref, err)
	}
	return ids, nil
}
