package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/tendlist/tend/internal/cache"
	"github.com/tendlist/tend/internal/remote"
	"github.com/tendlist/tend/internal/suggest"
	"github.com/tendlist/tend/internal/todo"
)

// boardMode is what the board is currently asking the user for.
type boardMode int

const (
	modeList boardMode = iota
	modeAdd
	modeEdit
	modePrompt
	modePick
)

// Messages delivered back into the update loop.
type (
	storeChangedMsg struct{}
	watchClosedMsg  struct{}
	mutationDoneMsg struct{ err error }
	suggestionsMsg  struct {
		items []suggest.Suggestion
		err   error
	}
)

// Board is the interactive full-screen todo view. All data flows
// through the cache store; the board itself never talks to the network
// except to ask the suggestion service for candidates.
type Board struct {
	store   *cache.Store
	client  *remote.Client
	suggest *suggest.Service

	watch <-chan struct{}

	mode    boardMode
	filter  todo.Filter
	cursor  int
	input   textinput.Model
	spin    spinner.Model
	editID  string
	status  string
	width   int
	height  int

	picks  []suggest.Suggestion
	chosen map[int]bool
	pickAt int

	snap cache.Snapshot
}

// NewBoard creates the board model. suggestSvc may be nil when the AI
// feature is not configured; the prompt keybinding then reports that
// instead of crashing.
func NewBoard(store *cache.Store, client *remote.Client, suggestSvc *suggest.Service) *Board {
	input := textinput.New()
	input.CharLimit = todo.MaxTitleLen
	input.Width = 50

	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = accentStyle

	return &Board{
		store:   store,
		client:  client,
		suggest: suggestSvc,
		watch:   store.Watch(),
		filter:  todo.FilterAll,
		input:   input,
		spin:    spin,
		snap:    store.Snapshot(),
	}
}

// Run starts the board and blocks until the user quits.
func (b *Board) Run() error {
	_, err := tea.NewProgram(b, tea.WithAltScreen()).Run()
	return err
}

func (b *Board) Init() tea.Cmd {
	return tea.Batch(b.waitForChange(), b.spin.Tick, b.refresh())
}

// waitForChange blocks on the store's watch channel and reports one
// coalesced change signal. Re-armed after every delivery.
func (b *Board) waitForChange() tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-b.watch; !ok {
			return watchClosedMsg{}
		}
		return storeChangedMsg{}
	}
}

// refresh kicks a read so the first frame shows cached data while the
// fetch runs. Errors land in the snapshot, not here.
func (b *Board) refresh() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		b.store.Get(ctx)
		return nil
	}
}

func (b *Board) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		b.width, b.height = msg.Width, msg.Height
		return b, nil

	case storeChangedMsg:
		b.snap = b.store.Snapshot()
		b.clampCursor()
		return b, b.waitForChange()

	case watchClosedMsg:
		return b, tea.Quit

	case mutationDoneMsg:
		if msg.err != nil {
			b.status = RenderFail(msg.err.Error())
		} else {
			b.status = ""
		}
		return b, nil

	case suggestionsMsg:
		if msg.err != nil {
			b.mode = modeList
			b.status = RenderFail(msg.err.Error())
			return b, nil
		}
		if len(msg.items) == 0 {
			b.mode = modeList
			b.status = RenderDim("no suggestions for that prompt")
			return b, nil
		}
		b.picks = msg.items
		b.chosen = make(map[int]bool, len(msg.items))
		for i := range msg.items {
			b.chosen[i] = true
		}
		b.pickAt = 0
		b.mode = modePick
		return b, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		b.spin, cmd = b.spin.Update(msg)
		return b, cmd

	case tea.KeyMsg:
		return b.handleKey(msg)
	}
	return b, nil
}

func (b *Board) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch b.mode {
	case modeAdd, modeEdit, modePrompt:
		return b.handleInputKey(msg)
	case modePick:
		return b.handlePickKey(msg)
	}

	items := b.visible()
	switch msg.String() {
	case "q", "ctrl+c":
		return b, tea.Quit
	case "j", "down":
		if b.cursor < len(items)-1 {
			b.cursor++
		}
	case "k", "up":
		if b.cursor > 0 {
			b.cursor--
		}
	case "g":
		b.cursor = 0
	case "G":
		b.cursor = len(items) - 1
		if b.cursor < 0 {
			b.cursor = 0
		}
	case "f":
		b.filter = b.filter.Next()
		b.clampCursor()
	case "r":
		b.store.Invalidate()
	case "a":
		b.mode = modeAdd
		b.input.Placeholder = "new todo"
		b.input.SetValue("")
		b.input.Focus()
		return b, textinput.Blink
	case "e":
		if b.cursor < len(items) {
			item := items[b.cursor]
			b.mode = modeEdit
			b.editID = item.ID
			b.input.Placeholder = ""
			b.input.SetValue(item.Title)
			b.input.CursorEnd()
			b.input.Focus()
			return b, textinput.Blink
		}
	case " ", "x":
		if b.cursor < len(items) && !b.store.Pending(cache.MutationUpdate) {
			item := items[b.cursor]
			return b, b.mutate(cache.MutationUpdate, func(ctx context.Context) error {
				done := !item.Completed
				_, err := b.client.UpdateTodo(ctx, item.ID, todo.Patch{Completed: &done})
				return err
			})
		}
	case "d", "backspace":
		if b.cursor < len(items) && !b.store.Pending(cache.MutationDelete) {
			item := items[b.cursor]
			return b, b.mutate(cache.MutationDelete, func(ctx context.Context) error {
				return b.client.DeleteTodo(ctx, item.ID)
			})
		}
	case "s":
		if b.suggest == nil {
			b.status = RenderDim(suggest.ErrNotConfigured.Error())
			return b, nil
		}
		b.mode = modePrompt
		b.input.Placeholder = "what do you want to plan?"
		b.input.SetValue("")
		b.input.Focus()
		return b, textinput.Blink
	}
	return b, nil
}

func (b *Board) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		b.mode = modeList
		b.input.Blur()
		return b, nil
	case "enter":
		value := strings.TrimSpace(b.input.Value())
		mode := b.mode
		b.mode = modeList
		b.input.Blur()
		if value == "" {
			return b, nil
		}
		switch mode {
		case modeAdd:
			if b.store.Pending(cache.MutationCreate) {
				return b, nil
			}
			return b, b.mutate(cache.MutationCreate, func(ctx context.Context) error {
				_, err := b.client.CreateTodo(ctx, value)
				return err
			})
		case modeEdit:
			id := b.editID
			if b.store.Pending(cache.MutationUpdate) {
				return b, nil
			}
			return b, b.mutate(cache.MutationUpdate, func(ctx context.Context) error {
				_, err := b.client.UpdateTodo(ctx, id, todo.Patch{Title: &value})
				return err
			})
		case modePrompt:
			b.status = b.spin.View() + " asking for suggestions"
			return b, b.generate(value)
		}
		return b, nil
	}
	var cmd tea.Cmd
	b.input, cmd = b.input.Update(msg)
	return b, cmd
}

func (b *Board) handlePickKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "q":
		b.mode = modeList
		b.picks = nil
		return b, nil
	case "j", "down":
		if b.pickAt < len(b.picks)-1 {
			b.pickAt++
		}
	case "k", "up":
		if b.pickAt > 0 {
			b.pickAt--
		}
	case " ", "x":
		b.chosen[b.pickAt] = !b.chosen[b.pickAt]
	case "enter":
		accepted := make([]suggest.Suggestion, 0, len(b.picks))
		for i, item := range b.picks {
			if b.chosen[i] {
				accepted = append(accepted, item)
			}
		}
		b.mode = modeList
		b.picks = nil
		if len(accepted) == 0 {
			return b, nil
		}
		cmds := make([]tea.Cmd, 0, len(accepted))
		for _, item := range accepted {
			title := item.Title
			cmds = append(cmds, b.mutate(cache.MutationCreate, func(ctx context.Context) error {
				_, err := b.client.CreateTodo(ctx, title)
				return err
			}))
		}
		return b, tea.Batch(cmds...)
	}
	return b, nil
}

// mutate runs one write through the store off the update loop.
func (b *Board) mutate(kind cache.MutationKind, fn func(ctx context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return mutationDoneMsg{err: b.store.Mutate(ctx, kind, fn)}
	}
}

// generate asks the suggestion service off the update loop.
func (b *Board) generate(prompt string) tea.Cmd {
	titles := make([]string, 0, len(b.snap.Todos))
	for _, item := range b.snap.Todos {
		titles = append(titles, item.Title)
	}
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		items, err := b.suggest.Generate(ctx, prompt, titles)
		return suggestionsMsg{items: items, err: err}
	}
}

// visible is the cached list through the current filter.
func (b *Board) visible() []todo.Todo {
	return b.filter.Apply(b.snap.Todos)
}

func (b *Board) clampCursor() {
	n := len(b.visible())
	if b.cursor >= n {
		b.cursor = n - 1
	}
	if b.cursor < 0 {
		b.cursor = 0
	}
}

func (b *Board) View() string {
	var v strings.Builder

	title := "tend"
	if b.filter != todo.FilterAll {
		title += "  " + RenderDim("("+string(b.filter)+")")
	}
	v.WriteString(RenderTitle(title))
	if b.snap.Loading {
		v.WriteString("  " + b.spin.View())
	}
	v.WriteString("\n\n")

	if b.mode == modePick {
		v.WriteString("Add which suggestions?\n\n")
		for i, item := range b.picks {
			mark := GlyphOpen
			if b.chosen[i] {
				mark = RenderPass(GlyphDone)
			}
			line := fmt.Sprintf("%s %s", mark, item.Title)
			if i == b.pickAt {
				line = RenderAccent("> ") + line
			} else {
				line = "  " + line
			}
			v.WriteString(line + "\n")
			if item.Reason != "" {
				v.WriteString("     " + RenderDim(item.Reason) + "\n")
			}
		}
		v.WriteString("\n" + RenderDim("space toggle · enter add · esc cancel") + "\n")
		return v.String()
	}

	items := b.visible()
	switch {
	case !b.snap.HaveData && b.snap.Loading:
		v.WriteString(RenderDim("loading...") + "\n")
	case len(items) == 0:
		v.WriteString(RenderDim("nothing here") + "\n")
	default:
		for i, item := range items {
			glyph := GlyphOpen
			line := item.Title
			if item.Completed {
				glyph = RenderPass(GlyphDone)
				line = doneStyle.Render(line)
			}
			prefix := "  "
			if i == b.cursor && b.mode == modeList {
				prefix = RenderAccent("> ")
			}
			v.WriteString(prefix + glyph + " " + line + "\n")
		}
	}

	switch b.mode {
	case modeAdd:
		v.WriteString("\nadd: " + b.input.View() + "\n")
	case modeEdit:
		v.WriteString("\nedit: " + b.input.View() + "\n")
	case modePrompt:
		v.WriteString("\nsuggest: " + b.input.View() + "\n")
	}

	if b.snap.Err != nil {
		v.WriteString("\n" + RenderFail("offline: "+b.snap.Err.Error()) + "\n")
	}
	if b.status != "" {
		v.WriteString("\n" + b.status + "\n")
	}

	v.WriteString("\n" + RenderDim("a add · e edit · space done · d delete · f filter · s suggest · r refresh · q quit") + "\n")
	return v.String()
}
