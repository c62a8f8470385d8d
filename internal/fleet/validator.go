package fleet

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"signage-fleet-backend/internal/model"
	"signage-fleet-backend/internal/parse"
)

// FieldErrors aggregates validation failures keyed by parameter name, so a
// request with three broken fields reports all three at once.
type FieldErrors map[string][]string

func (e FieldErrors) Add(field, format string, args ...any) {
	e[field] = append(e[field], fmt.Sprintf(format, args...))
}

func (e FieldErrors) Error() string {
	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var b strings.Builder
	b.WriteString("validation failed")
	for _, f := range fields {
		for _, msg := range e[f] {
			b.WriteString("; ")
			b.WriteString(f)
			b.WriteString(": ")
			b.WriteString(msg)
		}
	}
	return b.String()
}

// ErrOrNil lets validators build up a FieldErrors unconditionally and
// return it only when something actually failed.
func (e FieldErrors) ErrOrNil() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

var allowedTimesInHour = map[int]bool{1: true, 2: true, 3: true, 4: true, 6: true, 12: true}

var allowedEvents = map[string]bool{"click": true, "door_open": true, "motion": true}

var allowedActiveAdBehaviors = map[string]bool{"skip": true, "stop": true, "wait_until_end": true}

const (
	defaultWeight   = 50
	minTimedeltaSec = 60
)

// Fixed-hour variants fall back to the widest representable daily window
// when one side is omitted.
var (
	defaultDailyStart = parse.DayTime{Hour: 0, Minute: 0, Second: 1}
	defaultDailyEnd   = parse.DayTime{Hour: 23, Minute: 59, Second: 58}
)

// adParameters is the normalized persisted form: validated input with
// defaults applied, stripped of fields the broadcast type does not use.
type adParameters struct {
	TimesInHour    int    `json:"times_in_hour"`
	Weight         int    `json:"weight"`
	Timedelta      string `json:"timedelta,omitempty"`
	DailyStartTime string `json:"daily_start_time,omitempty"`
	DailyEndTime   string `json:"daily_end_time,omitempty"`
	Event          string `json:"event,omitempty"`
	ActiveAd       string `json:"active_ad,omitempty"`
}

// ValidateAdParameters checks the scheduling parameters of an ad order
// against the requirements of its broadcast type and returns the
// normalized JSON document to persist. All failures are collected into one
// FieldErrors value.
func ValidateAdParameters(params map[string]any, bt model.BroadcastType) (model.JSON, error) {
	errs := FieldErrors{}
	out := adParameters{Weight: defaultWeight}

	tih, ok := intParam(params, "times_in_hour", errs)
	if !ok {
		errs.Add("times_in_hour", "this field is required")
	} else if !allowedTimesInHour[tih] {
		errs.Add("times_in_hour", "must be one of 1, 2, 3, 4, 6, 12, got %d", tih)
	} else {
		out.TimesInHour = tih
	}

	if _, present := params["weight"]; present {
		w, ok := intParam(params, "weight", errs)
		if ok {
			if w < 0 || w > 100 {
				errs.Add("weight", "must be between 0 and 100, got %d", w)
			} else {
				out.Weight = w
			}
		}
	}

	switch bt {
	case model.BroadcastFullWindow:
		// Whole working window: nothing beyond the common fields.

	case model.BroadcastOffsetFromOpen, model.BroadcastOffsetFromClose:
		out.Timedelta = requireTimedelta(params, errs)

	case model.BroadcastFixedBoth:
		start := requireDayTime(params, "daily_start_time", errs)
		end := requireDayTime(params, "daily_end_time", errs)
		checkDailyWindow(start, end, errs)
		out.DailyStartTime, out.DailyEndTime = formatWindow(start, end)

	case model.BroadcastFixedEnd:
		start := &defaultDailyStart
		end := requireDayTime(params, "daily_end_time", errs)
		checkDailyWindow(start, end, errs)
		out.DailyStartTime, out.DailyEndTime = formatWindow(start, end)

	case model.BroadcastFixedStart:
		start := requireDayTime(params, "daily_start_time", errs)
		end := &defaultDailyEnd
		checkDailyWindow(start, end, errs)
		out.DailyStartTime, out.DailyEndTime = formatWindow(start, end)

	case model.BroadcastEventTrigger:
		out.Event = requireChoice(params, "event", allowedEvents, errs)
		out.ActiveAd = requireChoice(params, "active_ad", allowedActiveAdBehaviors, errs)

	default:
		errs.Add("broadcast_type", "unknown broadcast type %d", bt)
	}

	if err := errs.ErrOrNil(); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("failed to encode ad parameters: %w", err)
	}
	return raw, nil
}

// ValidateBgPlaylist checks a playlist against a background order: it must
// have at least one file and every file must carry the order's category.
func ValidateBgPlaylist(playlist *model.Playlist, category model.ContentCategory) error {
	errs := FieldErrors{}
	if len(playlist.Files) == 0 {
		errs.Add("playlist", "playlist %q has no files", playlist.Name)
	}
	for _, f := range playlist.Files {
		if f.Category != category {
			errs.Add("playlist", "file %q is %s, order requires %s", f.Name, f.Category, category)
		}
	}
	return errs.ErrOrNil()
}

// ValidateSlides checks that every slide key refers to a playlist member
// and returns the offending file ids.
func ValidateSlides(slides map[string]json.RawMessage, playlist *model.Playlist) []string {
	members := make(map[string]bool, len(playlist.Files))
	for _, f := range playlist.Files {
		members[f.ID] = true
	}

	var offenders []string
	for id := range slides {
		if !members[id] {
			offenders = append(offenders, id)
		}
	}
	sort.Strings(offenders)
	return offenders
}

// intParam reads an integral parameter. JSON numbers arrive as float64; a
// fractional value is an error, not a truncation.
func intParam(params map[string]any, key string, errs FieldErrors) (int, bool) {
	v, present := params[key]
	if !present {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		if n != float64(int(n)) {
			errs.Add(key, "must be an integer, got %v", n)
			return 0, false
		}
		return int(n), true
	case int:
		return n, true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			errs.Add(key, "must be an integer, got %v", n)
			return 0, false
		}
		return int(i), true
	default:
		errs.Add(key, "must be an integer, got %T", v)
		return 0, false
	}
}

func stringParam(params map[string]any, key string, errs FieldErrors) (string, bool) {
	v, present := params[key]
	if !present {
		errs.Add(key, "this field is required")
		return "", false
	}
	s, ok := v.(string)
	if !ok {
		errs.Add(key, "must be a string, got %T", v)
		return "", false
	}
	return s, true
}

func requireTimedelta(params map[string]any, errs FieldErrors) string {
	s, ok := stringParam(params, "timedelta", errs)
	if !ok {
		return ""
	}
	dt, err := parse.ParseDayTime(s)
	if err != nil {
		errs.Add("timedelta", "%v", err)
		return ""
	}
	if dt.Seconds() < minTimedeltaSec {
		errs.Add("timedelta", "must be at least one minute, got %s", dt)
		return ""
	}
	return dt.String()
}

func requireDayTime(params map[string]any, key string, errs FieldErrors) *parse.DayTime {
	s, ok := stringParam(params, key, errs)
	if !ok {
		return nil
	}
	dt, err := parse.ParseDayTime(s)
	if err != nil {
		errs.Add(key, "%v", err)
		return nil
	}
	return &dt
}

func checkDailyWindow(start, end *parse.DayTime, errs FieldErrors) {
	if start == nil || end == nil {
		return
	}
	if !start.Before(*end) {
		errs.Add("daily_start_time", "must be before daily_end_time (%s is not before %s)", start, end)
	}
}

func formatWindow(start, end *parse.DayTime) (string, string) {
	var s, e string
	if start != nil {
		s = start.String()
	}
	if end != nil {
		e = end.String()
	}
	return s, e
}

func requireChoice(params map[string]any, key string, allowed map[string]bool, errs FieldErrors) string {
	s, ok := stringParam(params, key, errs)
	if !ok {
		return ""
	}
	if !allowed[s] {
		choices := make([]string, 0, len(allowed))
		for c := range allowed {
			choices = append(choices, c)
		}
		sort.Strings(choices)
		errs.Add(key, "must be one of %s, got %q", strings.Join(choices, ", "), s)
		return ""
	}
	return s
}
