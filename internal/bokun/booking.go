package bokun

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// Booking is the part of a Bokun booking the back-office keeps.
type Booking struct {
	ConfirmationCode string
	Title            string
	Duration         string
	Start            time.Time
	HasTime          bool
	CustomerName     string
	Participants     int
	Paid             bool
	Cancelled        bool
}

// Date is the local start date, YYYY-MM-DD.
func (b Booking) Date() string {
	return b.Start.Format("2006-01-02")
}

// Time is the local start time, HH:MM, or 00:00 for all-day bookings.
func (b Booking) Time() string {
	if !b.HasTime {
		return "00:00"
	}
	return b.Start.Format("15:04")
}

// bookingNamespace scopes the derived ids of bookings without a code.
var bookingNamespace = uuid.MustParse("8f7c1a52-6b0e-4a4e-9a53-1f2d0b6c9e11")

func parseSearch(body []byte, loc *time.Location) ([]Booking, int, error) {
	if !gjson.ValidBytes(body) {
		return nil, 0, fmt.Errorf("decode booking search: invalid JSON")
	}
	root := gjson.ParseBytes(body)
	items := root.Get("items")
	if !items.IsArray() {
		return nil, 0, fmt.Errorf("decode booking search: missing items")
	}

	var out []Booking
	items.ForEach(func(_, item gjson.Result) bool {
		if b, ok := parseBooking(item, loc); ok {
			out = append(out, b)
		}
		return true
	})
	total := int(root.Get("totalHits").Int())
	return out, total, nil
}

// parseBooking reduces one search item. Items without a start date are
// skipped.
func parseBooking(item gjson.Result, loc *time.Location) (Booking, bool) {
	product := item.Get("productBookings.0")

	start, hasTime, ok := parseStart(product, loc)
	if !ok {
		start, hasTime, ok = parseStart(item, loc)
	}
	if !ok {
		return Booking{}, false
	}

	b := Booking{
		ConfirmationCode: firstString(item, "confirmationCode", "externalBookingReference", "productConfirmationCode"),
		Title:            firstString(product, "product.title", "title"),
		Duration:         firstString(product, "product.durationText", "durationText"),
		Start:            start,
		HasTime:          hasTime,
		CustomerName:     customerName(item.Get("customer")),
		Participants:     int(firstInt(product, "totalParticipants", "participants")),
		Cancelled:        isCancelled(item) || isCancelled(product),
		Paid:             isPaid(item),
	}
	if b.Title == "" {
		b.Title = firstString(item, "productTitle", "title")
	}
	if b.Title == "" {
		b.Title = "Bokun booking"
	}
	if b.Participants == 0 {
		b.Participants = int(item.Get("totalParticipants").Int())
	}
	if b.ConfirmationCode == "" {
		b.ConfirmationCode = "BKN-" + uuid.NewSHA1(bookingNamespace, []byte(item.Raw)).String()
	}
	return b, true
}

// parseStart reads startDateTime or startDate (epoch millis or ISO text) and
// an optional startTime "HH:MM".
func parseStart(v gjson.Result, loc *time.Location) (time.Time, bool, bool) {
	if !v.Exists() {
		return time.Time{}, false, false
	}
	if dt := v.Get("startDateTime"); dt.Exists() {
		if t, ok := parseInstant(dt, loc); ok {
			return t, true, true
		}
	}
	date := v.Get("startDate")
	if !date.Exists() {
		return time.Time{}, false, false
	}
	day, ok := parseInstant(date, loc)
	if !ok {
		return time.Time{}, false, false
	}
	clock := strings.TrimSpace(firstString(v, "startTime", "startTimeStr"))
	if clock == "" {
		return day, false, true
	}
	parsed, err := time.Parse("15:04", clock[:min(len(clock), 5)])
	if err != nil {
		return day, false, true
	}
	y, m, d := day.Date()
	return time.Date(y, m, d, parsed.Hour(), parsed.Minute(), 0, 0, loc), true, true
}

func parseInstant(v gjson.Result, loc *time.Location) (time.Time, bool) {
	switch v.Type {
	case gjson.Number:
		return time.UnixMilli(v.Int()).In(loc), true
	case gjson.String:
		s := strings.TrimSpace(v.String())
		for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
			if t, err := time.ParseInLocation(layout, s, loc); err == nil {
				return t.In(loc), true
			}
		}
	}
	return time.Time{}, false
}

func customerName(c gjson.Result) string {
	name := strings.TrimSpace(c.Get("firstName").String() + " " + c.Get("lastName").String())
	if name == "" {
		name = strings.TrimSpace(c.Get("name").String())
	}
	return name
}

func isCancelled(v gjson.Result) bool {
	return strings.EqualFold(v.Get("status").String(), "CANCELLED")
}

func isPaid(item gjson.Result) bool {
	if ps := item.Get("paymentStatus"); ps.Exists() {
		return strings.EqualFold(ps.String(), "PAID")
	}
	total := item.Get("totalPrice").Float()
	return total > 0 && item.Get("paidAmount").Float() >= total
}

func firstString(v gjson.Result, paths ...string) string {
	for _, p := range paths {
		if s := strings.TrimSpace(v.Get(p).String()); s != "" {
			return s
		}
	}
	return ""
}

func firstInt(v gjson.Result, paths ...string) int64 {
	for _, p := range paths {
		if r := v.Get(p); r.Exists() && r.Int() != 0 {
			return r.Int()
		}
	}
	return 0
}
