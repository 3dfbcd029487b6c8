package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/yuanying/epubview/internal/book"
	"github.com/yuanying/epubview/internal/event"
)

// Terminal cells in the pixels of the headless surface's basic font.
const (
	cellWidth  = 7
	cellHeight = 13
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF"))

	pageStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#DDDDDD"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Padding(0, 1)

	controlsStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666")).
			Italic(true)

	noticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFAA00")).
			Bold(true)
)

type pager struct {
	ctx    context.Context
	book   *book.Book
	notice string
	width  int
	height int
}

func newPager(ctx context.Context, b *book.Book) *pager {
	p := &pager{ctx: ctx, book: b}
	b.Subscribe(event.BookAtEnd, func(any) { p.notice = "End of book" })
	b.Subscribe(event.BookAtStart, func(any) { p.notice = "Start of book" })
	return p
}

func (p *pager) Init() tea.Cmd {
	return nil
}

func (p *pager) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		var err error
		p.notice = ""
		switch msg.String() {
		case "right", "l", " ":
			err = p.book.NextPage(p.ctx)
		case "left", "h":
			err = p.book.PrevPage(p.ctx)
		case "n":
			err = p.book.NextChapter(p.ctx)
		case "p":
			err = p.book.PrevChapter(p.ctx)
		case "q", "Q", "ctrl+c":
			return p, tea.Quit
		}
		if err != nil {
			p.notice = err.Error()
		}
		return p, nil

	case tea.WindowSizeMsg:
		p.width = msg.Width
		p.height = msg.Height
		// Two lines are kept for the status and controls.
		if err := p.book.Resize(p.ctx, max(msg.Width, 1)*cellWidth, max(msg.Height-2, 1)*cellHeight); err != nil {
			p.notice = err.Error()
		}
		return p, nil
	}
	return p, nil
}

// pageText is the text of the displayed page, both halves of a spread
// included.
func (p *pager) pageText() string {
	r := p.book.Renderer()
	if r == nil {
		return ""
	}
	pages := r.PageMap()
	pos := r.ChapterPos()
	if pos < 1 {
		return ""
	}
	first, last := pos-1, pos-1
	if r.Spreads() {
		first, last = (pos-1)*2, (pos-1)*2+1
	}
	var texts []string
	for i := first; i <= last && i < len(pages); i++ {
		texts = append(texts, pages[i].Text)
	}
	return strings.Join(texts, "\n\n")
}

func (p *pager) View() string {
	var sb strings.Builder

	title := titleStyle.Render(p.book.Metadata().Title)
	chapter := ""
	if ch := p.book.CurrentChapter(); ch != nil {
		chapter = ch.URL
	}
	page := ""
	if r := p.book.Renderer(); r != nil {
		page = fmt.Sprintf("%d/%d", r.ChapterPos(), r.DisplayedPages())
	}
	sb.WriteString(title)
	sb.WriteString(statusStyle.Render(fmt.Sprintf("%s | %s | %s", chapter, page, p.book.CurrentLocationCFI())))
	if p.notice != "" {
		sb.WriteString(noticeStyle.Render(" " + p.notice))
	}
	sb.WriteString("\n")

	text := pageStyle
	if p.width > 0 {
		text = text.Width(p.width)
	}
	body := text.Render(p.pageText())
	sb.WriteString(body)

	if p.height > 0 {
		for i := lipgloss.Height(body); i < p.height-2; i++ {
			sb.WriteString("\n")
		}
	}
	sb.WriteString("\n")
	sb.WriteString(controlsStyle.Render("←/→: page  n/p: chapter  Q: quit"))
	return sb.String()
}

func newReadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read <book.epub>",
		Short: "Page through a book in the terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, _ := cmd.Flags().GetString("goto")
			b, _, err := openBook(cmd, args, func(o *book.Options) { o.Goto = target })
			if err != nil {
				return err
			}
			defer b.Close()

			if err := b.RenderTo(cmd.Context()); err != nil {
				return err
			}
			prog := tea.NewProgram(newPager(cmd.Context(), b), tea.WithAltScreen(), tea.WithContext(cmd.Context()))
			if _, err := prog.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				return fmt.Errorf("failed to run pager: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().String("goto", "", "Open at a CFI, href, page number or percentage")
	return cmd
}
