package app

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/guidedesk/guidedesk/internal/api"
	"github.com/guidedesk/guidedesk/internal/tours"
)

func renderTable(w io.Writer, header []string, rows [][]string) error {
	table := tablewriter.NewWriter(w)
	table.Header(header)
	for _, row := range rows {
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return table.Render()
}

func tourRows(list []api.Tour) [][]string {
	rows := make([][]string, 0, len(list))
	for _, t := range list {
		status := "unpaid"
		switch {
		case bool(t.Cancelled):
			status = "cancelled"
		case bool(t.Paid):
			status = "paid"
		}
		id := strconv.FormatInt(t.ID, 10)
		if t.ID <= 0 {
			id = "local"
		}
		rows = append(rows, []string{id, t.Date, clock(t.Time), t.Title, t.GuideName, status})
	}
	return rows
}

func guideRows(list []api.Guide) [][]string {
	rows := make([][]string, 0, len(list))
	for _, g := range list {
		id := strconv.FormatInt(g.ID, 10)
		if g.ID <= 0 {
			id = "local"
		}
		rows = append(rows, []string{id, g.Name, g.Phone, g.Email, g.Languages.String()})
	}
	return rows
}

func clock(s string) string {
	if len(s) > 5 {
		return s[:5]
	}
	return s
}

// sourceNote explains a listing that did not come straight from the API.
func sourceNote[T any](res tours.Result[T]) string {
	switch res.Source {
	case tours.SourceStale:
		return fmt.Sprintf("offline, showing data cached %s (%v)", res.FetchedAt.Local().Format("2006-01-02 15:04"), res.Err)
	case tours.SourceEmpty:
		if res.Err != nil {
			return fmt.Sprintf("offline and nothing cached (%v)", res.Err)
		}
	}
	return ""
}
