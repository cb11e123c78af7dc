package ui

import (
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	pretty "github.com/jedib0t/go-pretty/v6/table"
)

// KeyTableItem is one row of the keygen output.
type KeyTableItem struct {
	Field string
	Value string
}

// KeyTableView renders key details with lipgloss/table.
func KeyTableView(items []KeyTableItem) string {
	if len(items) == 0 {
		return MutedStyle.Render("No key")
	}

	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{item.Field, item.Value})
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers("Field", "Value").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})

	return tbl.Render()
}

func RenderKeyTable(items []KeyTableItem) {
	fmt.Println(KeyTableView(items))
}

// KeyNoticeView frames a one-off secret the user has to store themselves.
func KeyNoticeView(label, secret string) string {
	return KeyBoxStyle.Render(fmt.Sprintf("%s %s\n%s", IconKey, label, BoldStyle.Render(secret)))
}

// SessionSummary is printed after the chat screen closes.
type SessionSummary struct {
	Room              string
	User              string
	State             string
	Sent              int
	Received          int
	Deferred          int
	DecryptFailures   int
	SendFailures      int
	LocalFingerprint  string
	RemoteFingerprint string
	Duration          time.Duration
}

func SessionSummaryView(summary SessionSummary) string {
	tw := pretty.NewWriter()
	tw.SetTitle("Session Summary")
	tw.AppendHeader(pretty.Row{"Metric", "Value"})
	tw.AppendRows([]pretty.Row{
		{"Room", summary.Room},
		{"User", summary.User},
		{"State", summary.State},
		{"Sent", strconv.Itoa(summary.Sent)},
		{"Received", strconv.Itoa(summary.Received)},
	})

	if summary.Deferred > 0 {
		tw.AppendRow(pretty.Row{"Deferred", strconv.Itoa(summary.Deferred)})
	}
	if summary.DecryptFailures > 0 || summary.SendFailures > 0 {
		tw.AppendSeparator()
		tw.AppendRow(pretty.Row{"Decrypt failures", strconv.Itoa(summary.DecryptFailures)})
		tw.AppendRow(pretty.Row{"Send failures", strconv.Itoa(summary.SendFailures)})
	}

	tw.AppendSeparator()
	tw.AppendRow(pretty.Row{"Your key", orDash(summary.LocalFingerprint)})
	tw.AppendRow(pretty.Row{"Peer key", orDash(summary.RemoteFingerprint)})
	tw.AppendRow(pretty.Row{"Duration", formatDuration(summary.Duration)})

	tw.SetStyle(pretty.StyleRounded)
	return tw.Render()
}

func RenderSessionSummary(summary SessionSummary) {
	fmt.Println(SessionSummaryView(summary))
}

type RoomInfo struct {
	Room string
	User string
}

func NewRoomInfo(room, user string) *RoomInfo {
	return &RoomInfo{Room: room, User: user}
}

func (r *RoomInfo) View() string {
	content := fmt.Sprintf("%s Room Created!\n\n%s Room:  %s\n%s You:   %s\n\n%s",
		IconSuccess,
		IconRoom, BoldStyle.Foreground(Primary).Render(r.Room),
		IconPeer, r.User,
		MutedStyle.Render(fmt.Sprintf("%s Share: warpchat join %s", IconCopy, r.Room)),
	)

	return RoomBoxStyle.Render(content)
}

func RenderRoomInfo(room, user string) {
	fmt.Println(NewRoomInfo(room, user).View())
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}
