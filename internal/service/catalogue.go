package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/noah-isme/timetable-scheduler-api/internal/models"
	"github.com/noah-isme/timetable-scheduler-api/internal/repository"
	appErrors "github.com/noah-isme/timetable-scheduler-api/pkg/errors"
)

// referenceFinder locates timetables whose schedule uses an entity.
type referenceFinder interface {
	TimetableIDsReferencing(ctx context.Context, ref repository.EntryReference, id string) ([]string, error)
}

// revalidationNotifier is told when an entity a schedule may use has changed.
type revalidationNotifier interface {
	Notify(ref repository.EntryReference, id string)
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// normalizeAvailability lower-cases day keys, drops empty days and rejects
// unknown weekdays or malformed intervals.
func normalizeAvailability(in models.Availability) (models.Availability, error) {
	out := models.Availability{}
	for day, intervals := range in {
		key := strings.ToLower(strings.TrimSpace(day))
		if _, ok := weekdays[key]; !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown availability day %q", day))
		}
		for _, interval := range intervals {
			start, errStart := time.Parse("15:04", strings.TrimSpace(interval.Start))
			end, errEnd := time.Parse("15:04", strings.TrimSpace(interval.End))
			if errStart != nil || errEnd != nil {
				return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("availability on %s must use HH:MM times", key))
			}
			if !start.Before(end) {
				return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("availability on %s ends before it starts", key))
			}
			out[key] = append(out[key], models.TimeInterval{Start: start.Format("15:04"), End: end.Format("15:04")})
		}
	}
	for key := range out {
		sort.Slice(out[key], func(i, j int) bool { return out[key][i].Start < out[key][j].Start })
	}
	return out, nil
}

// normalizeTags trims, drops blanks and removes case-insensitive duplicates.
func normalizeTags(tags []string) models.StringList {
	trimmed := lo.FilterMap(tags, func(tag string, _ int) (string, bool) {
		tag = strings.TrimSpace(tag)
		return tag, tag != ""
	})
	return models.StringList(lo.UniqBy(trimmed, strings.ToLower))
}

// ensureUnreferenced refuses to delete an entity a stored schedule still uses.
func ensureUnreferenced(ctx context.Context, finder referenceFinder, ref repository.EntryReference, id, entity string) error {
	if finder == nil {
		return nil
	}
	ids, err := finder.TimetableIDsReferencing(ctx, ref, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check timetable references")
	}
	if len(ids) > 0 {
		return appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("%s is scheduled in %d timetable(s)", entity, len(ids)))
	}
	return nil
}
