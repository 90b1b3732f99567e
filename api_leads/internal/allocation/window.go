package allocation

import (
	"strconv"
	"strings"
	"time"

	"dopahiyaa/api_leads/internal/errs"
	"dopahiyaa/api_leads/internal/models"
)

const dateLayout = "2006-01-02"

// ResolveWindow turns a subscription's date filter into absolute bounds at
// purchase time. Explicit start/end dates win over a named range. "today"
// covers the purchase day; "last_N_days" covers N days either side of now.
// Unknown named ranges price as a filter but do not bound allocation.
func ResolveWindow(f models.Filters, now time.Time) (start, end *time.Time, err error) {
	if f.StartDate != "" || f.EndDate != "" {
		if f.StartDate != "" {
			t, perr := time.ParseInLocation(dateLayout, f.StartDate, now.Location())
			if perr != nil {
				return nil, nil, errs.Invalid("startDate must be YYYY-MM-DD")
			}
			start = &t
		}
		if f.EndDate != "" {
			t, perr := time.ParseInLocation(dateLayout, f.EndDate, now.Location())
			if perr != nil {
				return nil, nil, errs.Invalid("endDate must be YYYY-MM-DD")
			}
			t = t.AddDate(0, 0, 1)
			end = &t
		}
		if start != nil && end != nil && !start.Before(*end) {
			return nil, nil, errs.Invalid("startDate must not be after endDate")
		}
		return start, end, nil
	}

	switch {
	case f.DateRange == "":
		return nil, nil, nil
	case f.DateRange == "today":
		s := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		e := s.AddDate(0, 0, 1)
		return &s, &e, nil
	case strings.HasPrefix(f.DateRange, "last_") && strings.HasSuffix(f.DateRange, "_days"):
		n, perr := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(f.DateRange, "last_"), "_days"))
		if perr != nil || n <= 0 {
			return nil, nil, nil
		}
		s := now.AddDate(0, 0, -n)
		e := now.AddDate(0, 0, n)
		return &s, &e, nil
	default:
		return nil, nil, nil
	}
}
