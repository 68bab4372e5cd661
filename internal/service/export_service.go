package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/timetable-scheduler-api/internal/models"
	"github.com/noah-isme/timetable-scheduler-api/internal/scheduler"
	appErrors "github.com/noah-isme/timetable-scheduler-api/pkg/errors"
	"github.com/noah-isme/timetable-scheduler-api/pkg/export"
)

// ExportFormat names a downloadable timetable rendering.
type ExportFormat string

const (
	ExportFormatCSV  ExportFormat = "csv"
	ExportFormatPDF  ExportFormat = "pdf"
	ExportFormatXLSX ExportFormat = "xlsx"
	ExportFormatICS  ExportFormat = "ics"
)

var exportContentTypes = map[ExportFormat]string{
	ExportFormatCSV:  "text/csv; charset=utf-8",
	ExportFormatPDF:  "application/pdf",
	ExportFormatXLSX: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	ExportFormatICS:  "text/calendar; charset=utf-8",
}

type timetableReader interface {
	Get(ctx context.Context, id string) (*models.Timetable, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type gridRenderer interface {
	Render(title string, week export.WeekGrid, entries export.Dataset) ([]byte, error)
}

type calendarRenderer interface {
	Render(name string, from time.Time, events []export.Event) ([]byte, error)
}

// ExportFile is a rendered document ready to stream.
type ExportFile struct {
	Filename    string
	ContentType string
	Payload     []byte
}

// ExportService renders stored timetables as CSV, PDF, XLSX or iCalendar.
type ExportService struct {
	timetables timetableReader
	courses    courseLister
	faculty    facultyLister
	rooms      roomLister
	grid       *scheduler.Grid
	csv        csvRenderer
	pdf        gridRenderer
	xlsx       gridRenderer
	ics        calendarRenderer
	logger     *zap.Logger
}

// NewExportService constructs an ExportService. Nil renderers fall back to the defaults.
func NewExportService(timetables timetableReader, courses courseLister, faculty facultyLister, rooms roomLister, grid *scheduler.Grid, logger *zap.Logger, csv csvRenderer, pdf, xlsx gridRenderer, ics calendarRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	if xlsx == nil {
		xlsx = export.NewXLSXExporter()
	}
	if ics == nil {
		ics = export.NewICSExporter(time.UTC, 0)
	}
	return &ExportService{
		timetables: timetables,
		courses:    courses,
		faculty:    faculty,
		rooms:      rooms,
		grid:       grid,
		csv:        csv,
		pdf:        pdf,
		xlsx:       xlsx,
		ics:        ics,
		logger:     logger,
	}
}

// ParseExportFormat validates a requested format.
func ParseExportFormat(raw string) (ExportFormat, error) {
	format := ExportFormat(strings.ToLower(strings.TrimSpace(raw)))
	if format == "" {
		return ExportFormatCSV, nil
	}
	if _, ok := exportContentTypes[format]; !ok {
		return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", raw))
	}
	return format, nil
}

// Export renders one timetable. from anchors the first week of calendar exports.
func (s *ExportService) Export(ctx context.Context, id string, format ExportFormat, from time.Time) (*ExportFile, error) {
	contentType, ok := exportContentTypes[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
	timetable, err := s.timetables.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	labels, err := s.loadLabels(ctx)
	if err != nil {
		return nil, err
	}

	var payload []byte
	switch format {
	case ExportFormatCSV:
		payload, err = s.csv.Render(s.entriesDataset(timetable, labels))
	case ExportFormatPDF:
		payload, err = s.pdf.Render(timetable.Name, s.weekGrid(timetable, labels), s.entriesDataset(timetable, labels))
	case ExportFormatXLSX:
		payload, err = s.xlsx.Render(timetable.Name, s.weekGrid(timetable, labels), s.entriesDataset(timetable, labels))
	case ExportFormatICS:
		var events []export.Event
		events, err = s.events(timetable, labels)
		if err == nil {
			if from.IsZero() {
				from = time.Now()
			}
			payload, err = s.ics.Render(timetable.Name, from, events)
		}
	}
	if err != nil {
		if appErrors.Is(err, appErrors.ErrValidation) {
			return nil, err
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render timetable export")
	}

	s.logger.Debug("timetable exported", zap.String("timetable_id", id), zap.String("format", string(format)), zap.Int("bytes", len(payload)))
	return &ExportFile{
		Filename:    fmt.Sprintf("%s.%s", sanitizeFilename(timetable.Name), format),
		ContentType: contentType,
		Payload:     payload,
	}, nil
}

type exportLabels struct {
	courses map[string]models.Course
	faculty map[string]string
	rooms   map[string]string
}

func (s *ExportService) loadLabels(ctx context.Context) (*exportLabels, error) {
	labels := &exportLabels{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		courses, err := s.courses.List(gctx, models.CourseFilter{})
		labels.courses = lo.KeyBy(courses, func(c models.Course) string { return c.ID })
		return err
	})
	g.Go(func() error {
		faculty, err := s.faculty.List(gctx, models.FacultyFilter{})
		labels.faculty = lo.Associate(faculty, func(f models.Faculty) (string, string) { return f.ID, f.Name })
		return err
	})
	g.Go(func() error {
		rooms, err := s.rooms.List(gctx, models.RoomFilter{})
		labels.rooms = lo.Associate(rooms, func(r models.Room) (string, string) { return r.ID, r.Name })
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export labels")
	}
	return labels, nil
}

func (l *exportLabels) course(id string) (code, name, kind string) {
	if c, ok := l.courses[id]; ok {
		return c.Code, c.Name, string(c.Type)
	}
	return id, "", ""
}

func (l *exportLabels) facultyName(id string) string {
	if name, ok := l.faculty[id]; ok {
		return name
	}
	return id
}

func (l *exportLabels) roomName(id string) string {
	if name, ok := l.rooms[id]; ok {
		return name
	}
	return id
}

func (s *ExportService) entriesDataset(t *models.Timetable, labels *exportLabels) export.Dataset {
	dataset := export.Dataset{
		Headers: []string{"Day", "Start", "End", "Course Code", "Course Name", "Type", "Faculty", "Room"},
	}
	for _, e := range t.Schedule {
		code, name, kind := labels.course(e.CourseID)
		dataset.Rows = append(dataset.Rows, []string{
			e.Day, e.StartTime, e.EndTime, code, name, kind, labels.facultyName(e.FacultyID), labels.roomName(e.RoomID),
		})
	}
	return dataset
}

func (s *ExportService) weekGrid(t *models.Timetable, labels *exportLabels) export.WeekGrid {
	slots := lo.Map(s.grid.Slots(), func(slot scheduler.Slot, _ int) string { return slot.Label })
	week := export.NewWeekGrid(s.grid.Days(), slots)
	for _, e := range t.Schedule {
		idx, ok := s.grid.Locate(e.Day, e.StartTime, e.EndTime)
		if !ok {
			continue
		}
		day, slot := s.grid.Position(idx)
		code, _, _ := labels.course(e.CourseID)
		week.Add(day, slot, fmt.Sprintf("%s / %s / %s", code, labels.roomName(e.RoomID), labels.facultyName(e.FacultyID)))
	}
	return week
}

func (s *ExportService) events(t *models.Timetable, labels *exportLabels) ([]export.Event, error) {
	events := make([]export.Event, 0, len(t.Schedule))
	for i, e := range t.Schedule {
		weekday, ok := weekdays[strings.ToLower(strings.TrimSpace(e.Day))]
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("day %q cannot be placed on a calendar", e.Day))
		}
		start, errStart := time.Parse("15:04", e.StartTime)
		end, errEnd := time.Parse("15:04", e.EndTime)
		if errStart != nil || errEnd != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("entry %d has unreadable times", i))
		}
		code, name, _ := labels.course(e.CourseID)
		events = append(events, export.Event{
			UID:         fmt.Sprintf("%s-%d@timetable-scheduler", t.ID, i),
			Summary:     strings.TrimSpace(code + " " + name),
			Location:    labels.roomName(e.RoomID),
			Description: "Faculty: " + labels.facultyName(e.FacultyID),
			Weekday:     weekday,
			Start:       start.Hour()*60 + start.Minute(),
			End:         end.Hour()*60 + end.Minute(),
		})
	}
	return events, nil
}

func sanitizeFilename(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "timetable"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_", "\"", "")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
