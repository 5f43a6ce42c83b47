package cli

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/disiqueira/gotree/v3"
	"github.com/dmitrijs2005/photodrop/internal/client/journal"
	"github.com/dmitrijs2005/photodrop/internal/models"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
)

const timeLayout = "2006-01-02 15:04"

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}

// renderPlain is the non-terminal form: one tab-separated line per row.
func renderPlain(rows [][]string) string {
	var b strings.Builder
	for _, row := range rows {
		b.WriteString(strings.Join(row, "\t"))
		b.WriteByte('\n')
	}
	return b.String()
}

func submissionRows(list []models.Submission, removing func(id string) bool) [][]string {
	rows := make([][]string, 0, len(list))
	for i, s := range list {
		state := ""
		if removing != nil && removing(s.ID) {
			state = "deleting"
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", i+1),
			s.ID,
			s.Email,
			s.FolderNumber,
			formatTime(s.CreatedAt),
			state,
		})
	}
	return rows
}

func renderSubmissions(list []models.Submission, removing func(id string) bool, tty bool) string {
	rows := submissionRows(list, removing)
	if !tty {
		return renderPlain(rows)
	}
	return renderTable(
		[]string{"#", "ID", "Email", "Folder", "Created", "State"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
	)
}

func renderJournal(entries []journal.Entry, tty bool) string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		size := ""
		if e.Width > 0 && e.Height > 0 {
			size = fmt.Sprintf("%dx%d", e.Width, e.Height)
		}
		rows = append(rows, []string{formatTime(e.SubmittedAt), e.Email, e.FolderNumber, e.Name, size, e.Device})
	}
	if !tty {
		return renderPlain(rows)
	}
	return renderTable(
		[]string{"Submitted", "Email", "Folder", "File", "Size", "Device"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	)
}

// renderTree groups submissions under their folder number. Folders are
// sorted; entries keep their listing order inside a folder.
func renderTree(list []models.Submission, root string) string {
	tree := gotree.New(root)
	folders := make(map[string]gotree.Tree)
	var names []string
	for _, s := range list {
		if _, ok := folders[s.FolderNumber]; !ok {
			folders[s.FolderNumber] = nil
			names = append(names, s.FolderNumber)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		folders[name] = tree.Add("folder " + name)
	}
	for _, s := range list {
		folders[s.FolderNumber].Add(s.Email + " (" + s.ID + ")")
	}
	return tree.Print()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(timeLayout)
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
