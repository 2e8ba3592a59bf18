package app

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/klabast/wb-services/duty-calendar/internal/assignment"
	"github.com/klabast/wb-services/duty-calendar/internal/calendar"
)

// Duty is one student on duty on one date.
type Duty struct {
	Date    string `json:"date"`
	Student string `json:"student"`
}

// Duties flattens m into rows sorted by date, then student. A non-empty
// student keeps only that student's rows.
func Duties(m assignment.Map, student string) []Duty {
	var duties []Duty
	for date, e := range m {
		for _, name := range e.Students() {
			if student != "" && name != student {
				continue
			}
			duties = append(duties, Duty{Date: date, Student: name})
		}
	}
	slices.SortFunc(duties, func(a, b Duty) int {
		if c := strings.Compare(a.Date, b.Date); c != 0 {
			return c
		}
		return strings.Compare(a.Student, b.Student)
	})
	return duties
}

// FilterFromYear keeps duties in [from, to]; to == 0 means open-ended.
// Rows with malformed dates are dropped.
func FilterFromYear(duties []Duty, from, to int) []Duty {
	var out []Duty
	for _, d := range duties {
		year, ok := parseYear(d.Date)
		if !ok || year < from || (to != 0 && year > to) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// icsWriter emits CRLF-terminated iCalendar lines.
type icsWriter struct {
	w io.Writer
}

func (iw icsWriter) line(format string, args ...any) {
	if _, err := fmt.Fprintf(iw.w, format+"\r\n", args...); err != nil {
		zap.L().Error("error writing to response", zap.Error(err))
	}
}

// icsEscape escapes TEXT values (RFC 5545 3.3.11).
func icsEscape(s string) string {
	return strings.NewReplacer(`\`, `\\`, ";", `\;`, ",", `\,`, "\n", `\n`).Replace(s)
}

// dutyUID is stable per (date, student) so subscribed calendars update events
// in place. The student part is a name-based UUID: case-sensitive and free of
// characters that are special in iCalendar.
func dutyUID(d Duty) string {
	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte(d.Date+"/"+d.Student))
	return fmt.Sprintf("%s-%s@%s", d.Date, id, ICSDomain)
}

func writeVEvent(iw icsWriter, d Duty, day time.Time, stamp string) {
	iw.line("UID:%s", dutyUID(d))
	iw.line("DTSTAMP:%s", stamp)
	iw.line("DTSTART;VALUE=DATE:%s", day.Format("20060102"))
	iw.line("DTEND;VALUE=DATE:%s", day.AddDate(0, 0, 1).Format("20060102"))
	iw.line("SUMMARY:%s", icsEscape("Duty: "+d.Student))
	iw.line("DESCRIPTION:%s", icsEscape(fmt.Sprintf("%s is on duty on %s", d.Student, calendar.FormatDate(d.Date))))
}

// reminder is an alarm at a wall-clock time some days before the duty.
type reminder struct {
	daysBefore int
	at         string
}

// parseReminders reads reminder2Days/time2Days, reminder1Day/time1Day and
// reminderSameDay/timeSameDay.
func parseReminders(r *http.Request) []reminder {
	q := r.URL.Query()
	var out []reminder
	for _, p := range []struct {
		flag, time string
		days       int
	}{
		{"reminder2Days", "time2Days", 2},
		{"reminder1Day", "time1Day", 1},
		{"reminderSameDay", "timeSameDay", 0},
	} {
		if q.Get(p.flag) == "true" && q.Get(p.time) != "" {
			out = append(out, reminder{daysBefore: p.days, at: q.Get(p.time)})
		}
	}
	return out
}

// GenerateICS writes a downloadable iCalendar file with optional reminders.
func GenerateICS(w http.ResponseWriter, r *http.Request, name string, duties []Duty) {
	reminders := parseReminders(r)

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.ics", fileName(name)))

	iw := icsWriter{w: w}
	iw.line("BEGIN:VCALENDAR")
	iw.line("VERSION:2.0")
	iw.line("PRODID:%s", ICSProductID)
	iw.line("X-WR-CALNAME:%s", icsEscape(name))
	iw.line("X-WR-TIMEZONE:%s", ICSTimezone)
	iw.line("CALSCALE:GREGORIAN")

	stamp := time.Now().UTC().Format("20060102T150405Z")
	for _, d := range duties {
		day, err := time.Parse(calendar.DateLayout, d.Date)
		if err != nil {
			continue
		}
		iw.line("BEGIN:VEVENT")
		writeVEvent(iw, d, day, stamp)
		for _, rem := range reminders {
			AddAlarm(w, day, rem.daysBefore, rem.at, d.Student)
		}
		iw.line("END:VEVENT")
	}

	iw.line("END:VCALENDAR")
}

// AddAlarm writes a VALARM firing at alarmTime (HH:MM) daysBefore the all-day
// event. Malformed times are skipped.
func AddAlarm(w io.Writer, eventDate time.Time, daysBefore int, alarmTime string, student string) {
	hh, mm, ok := strings.Cut(alarmTime, ":")
	if !ok {
		return
	}
	hour, err1 := strconv.Atoi(hh)
	minute, err2 := strconv.Atoi(mm)
	if err1 != nil || err2 != nil || hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return
	}

	// Trigger is relative to 00:00 of the event day.
	offset := time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute -
		time.Duration(daysBefore)*24*time.Hour

	sign := ""
	if offset < 0 {
		sign = "-"
		offset = -offset
	}
	total := int(offset.Minutes())

	iw := icsWriter{w: w}
	iw.line("BEGIN:VALARM")
	iw.line("ACTION:DISPLAY")
	iw.line("DESCRIPTION:%s", icsEscape("Reminder: duty "+student))
	iw.line("TRIGGER:%sP%dDT%dH%dM", sign, total/(24*60), total%(24*60)/60, total%60)
	iw.line("END:VALARM")
}

// GenerateSubscriptionICS writes an inline feed for calendar subscriptions:
// no attachment header, no alarms, METHOD:PUBLISH with a refresh hint.
func GenerateSubscriptionICS(w http.ResponseWriter, name string, duties []Duty) {
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")

	iw := icsWriter{w: w}
	iw.line("BEGIN:VCALENDAR")
	iw.line("VERSION:2.0")
	iw.line("PRODID:%s", ICSProductID)
	iw.line("METHOD:PUBLISH")
	iw.line("X-WR-CALNAME:%s", icsEscape(name))
	iw.line("X-WR-TIMEZONE:%s", ICSTimezone)
	iw.line("CALSCALE:GREGORIAN")
	iw.line("X-PUBLISHED-TTL:PT1H")

	stamp := time.Now().UTC().Format("20060102T150405Z")
	for _, d := range duties {
		day, err := time.Parse(calendar.DateLayout, d.Date)
		if err != nil {
			continue
		}
		iw.line("BEGIN:VEVENT")
		writeVEvent(iw, d, day, stamp)
		iw.line("END:VEVENT")
	}

	iw.line("END:VCALENDAR")
}

// GenerateCSV writes the duty list as CSV.
func GenerateCSV(w http.ResponseWriter, name string, duties []Duty) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.csv", fileName(name)))

	cw := csv.NewWriter(w)
	cw.Write([]string{"Date", "Day", "Student"})
	for _, d := range duties {
		cw.Write([]string{d.Date, calendar.FormatDate(d.Date), d.Student})
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		zap.L().Error("error writing csv export", zap.Error(err))
	}
}

// GenerateJSON writes the duty list as a JSON document.
func GenerateJSON(w http.ResponseWriter, name string, duties []Duty) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.json", fileName(name)))

	if duties == nil {
		duties = []Duty{}
	}
	data := map[string]any{
		"name":   name,
		"duties": duties,
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Error("error encoding JSON export", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to generate JSON")
	}
}

const xlsxSheet = "Duty Roster"

// GenerateXLSX writes the duty list as an Excel workbook.
func GenerateXLSX(w http.ResponseWriter, name string, duties []Duty) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", xlsxSheet); err != nil {
		writeError(w, http.StatusInternalServerError, ErrInternalServer)
		return err
	}
	f.SetColWidth(xlsxSheet, "A", "A", 14)
	f.SetColWidth(xlsxSheet, "B", "B", 20)
	f.SetColWidth(xlsxSheet, "C", "C", 24)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4CAF50"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})

	for i, title := range []string{"Date", "Day", "Student"} {
		axis, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(xlsxSheet, axis, title)
	}
	f.SetCellStyle(xlsxSheet, "A1", "C1", headerStyle)

	for i, d := range duties {
		row := i + 2
		f.SetCellValue(xlsxSheet, cell("A", row), d.Date)
		f.SetCellValue(xlsxSheet, cell("B", row), calendar.FormatDate(d.Date))
		f.SetCellValue(xlsxSheet, cell("C", row), d.Student)
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.xlsx", fileName(name)))
	return f.Write(w)
}

func cell(col string, row int) string {
	return col + strconv.Itoa(row)
}

// fileName makes name safe for a Content-Disposition filename.
func fileName(name string) string {
	return strings.ToLower(strings.Join(strings.FieldsFunc(name, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9')
	}), "_"))
}
