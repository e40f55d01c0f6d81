// Package console is a line-oriented terminal front end: it prints snapshots and
// turns typed commands into game intents.
package console

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/rocketscienceinc/tictactoe-online/internal/entity"
	"github.com/rocketscienceinc/tictactoe-online/internal/usecase"
)

type styles struct {
	x      lipgloss.Style
	o      lipgloss.Style
	empty  lipgloss.Style
	winner lipgloss.Style
	board  lipgloss.Style
	status lipgloss.Style
	chat   lipgloss.Style
	muted  lipgloss.Style
}

func newStyles(renderer *lipgloss.Renderer) styles {
	pink := lipgloss.Color("#ff71ce")
	blue := lipgloss.Color("#01cdfe")
	mint := lipgloss.Color("#05ffa1")
	muted := lipgloss.Color("#9ca3d8")

	return styles{
		x:      renderer.NewStyle().Foreground(pink).Bold(true),
		o:      renderer.NewStyle().Foreground(blue).Bold(true),
		empty:  renderer.NewStyle().Foreground(muted),
		winner: renderer.NewStyle().Foreground(mint).Bold(true).Underline(true),
		board:  renderer.NewStyle().BorderStyle(lipgloss.RoundedBorder()).Padding(0, 1),
		status: renderer.NewStyle().Foreground(blue).Bold(true),
		chat:   renderer.NewStyle().Foreground(mint),
		muted:  renderer.NewStyle().Foreground(muted),
	}
}

// Renderer prints everything the game reports. It implements usecase.Listener.
type Renderer struct {
	mu     sync.Mutex
	out    io.Writer
	self   entity.Mark
	styles styles
}

// NewRenderer - self is the mark of the local participant, empty when both sides play here.
func NewRenderer(out io.Writer, self entity.Mark) *Renderer {
	return &Renderer{
		out:    out,
		self:   self,
		styles: newStyles(lipgloss.NewRenderer(out)),
	}
}

var _ usecase.Listener = (*Renderer)(nil)

func (that *Renderer) OnSnapshot(snapshot usecase.Snapshot) {
	that.write(that.Board(snapshot.State) + "\n" + that.Status(snapshot) + "\n")
}

func (that *Renderer) OnChat(msg entity.ChatMessage) {
	that.write(fmt.Sprintf("%s %s: %s\n",
		that.styles.muted.Render(clock(msg.Timestamp)),
		that.styles.chat.Render(msg.SenderName),
		msg.Text,
	))
}

func (that *Renderer) OnVoice(msg entity.VoiceMessage) {
	that.write(fmt.Sprintf("%s %s sent a voice message (%d bytes)\n",
		that.styles.muted.Render(clock(msg.Timestamp)),
		that.styles.chat.Render(msg.SenderName),
		len(msg.AudioBase64),
	))
}

// Message - prints a line that did not come from the game.
func (that *Renderer) Message(format string, args ...any) {
	that.write(fmt.Sprintf(format, args...) + "\n")
}

func (that *Renderer) write(text string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	_, _ = io.WriteString(that.out, text)
}

// Board - draws the grid. Empty cells show the number to type for them.
func (that *Renderer) Board(state *entity.GameState) string {
	var line []int
	if state.WinnerInfo != nil {
		line = state.WinnerInfo.Line
	}

	rows := make([]string, 0, 5)
	for row := 0; row < 3; row++ {
		cells := make([]string, 0, 3)
		for col := 0; col < 3; col++ {
			cell := row*3 + col
			cells = append(cells, that.cell(state.Board[cell], cell, slices.Contains(line, cell)))
		}

		rows = append(rows, strings.Join(cells, " │ "))
		if row < 2 {
			rows = append(rows, "──┼───┼──")
		}
	}

	return that.styles.board.Render(strings.Join(rows, "\n"))
}

func (that *Renderer) cell(mark entity.Mark, index int, winning bool) string {
	switch {
	case winning:
		return that.styles.winner.Render(string(mark))
	case mark == entity.PlayerX:
		return that.styles.x.Render(string(mark))
	case mark == entity.PlayerO:
		return that.styles.o.Render(string(mark))
	default:
		return that.styles.empty.Render(fmt.Sprint(index + 1))
	}
}

// Status - one line describing whose turn it is or how the game ended.
func (that *Renderer) Status(snapshot usecase.Snapshot) string {
	state := snapshot.State
	scores := fmt.Sprintf("X %d : %d O", snapshot.Scores.X, snapshot.Scores.O)

	var status string

	switch {
	case state.IsWaiting():
		status = "Waiting for opponent..."
	case state.IsFinished() && state.WinnerInfo != nil && state.WinnerInfo.Winner == entity.Draw:
		status = "It's a draw! Type reset to play again."
	case state.IsFinished() && state.WinnerInfo != nil:
		status = fmt.Sprintf("%s wins! Type reset to play again.", that.playerName(state, state.WinnerInfo.Winner))
	case snapshot.Thinking:
		status = fmt.Sprintf("%s is thinking...", that.playerName(state, state.CurrentPlayer))
	case that.self != "" && state.CurrentPlayer == that.self:
		status = "Your turn"
	default:
		status = fmt.Sprintf("%s's turn", that.playerName(state, state.CurrentPlayer))
	}

	return that.styles.status.Render(status) + "  " + that.styles.muted.Render(scores)
}

func (that *Renderer) playerName(state *entity.GameState, mark entity.Mark) string {
	if player := state.PlayerByMark(mark); player != nil && player.Name != "" {
		return fmt.Sprintf("%s (%s)", player.Name, mark)
	}

	return string(mark)
}

func clock(millis int64) string {
	return time.UnixMilli(millis).Format("15:04:05")
}
