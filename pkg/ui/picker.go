package ui

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nearbeam/nearbeam/internal/util"
)

// pickedMsg carries the confirmed selection out of the picker.
type pickedMsg struct {
	paths []string
}

type pickerMode int

const (
	pickerBrowse pickerMode = iota
	pickerInput
)

type pickerKeyMap struct {
	Up           key.Binding
	Down         key.Binding
	ToggleSelect key.Binding
	ToggleInput  key.Binding
	Confirm      key.Binding
}

var defaultPickerKeys = pickerKeyMap{
	Up:           key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "move up")),
	Down:         key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "move down")),
	ToggleSelect: key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "toggle select")),
	ToggleInput:  key.NewBinding(key.WithKeys("ctrl+p"), key.WithHelp("ctrl+p", "change directory")),
	Confirm:      key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "confirm")),
}

var (
	cursorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).SetString("> ")
	selectedMark   = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).SetString("[x] ")
	deselectedMark = lipgloss.NewStyle().Faint(true).SetString("[ ] ")
	dirStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("81"))
)

// picker is the interactive file selection screen shown when send is
// invoked without file arguments. It browses one directory at a time;
// directories are entered with the select key, files are toggled into
// the outgoing batch.
type picker struct {
	dir      string
	items    []fs.DirEntry
	selected map[string]struct{}
	cursor   int
	keys     pickerKeyMap
	mode     pickerMode
	input    textinput.Model
	loadErr  error
}

func newPicker() *picker {
	ti := textinput.New()
	ti.Placeholder = "directory to browse"
	ti.CharLimit = 256
	ti.Width = 60

	p := &picker{
		selected: make(map[string]struct{}),
		keys:     defaultPickerKeys,
		input:    ti,
	}
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	p.loadErr = p.load(wd)
	return p
}

// load reads dir and resets the cursor. Entries are sorted with
// directories first to match the usual file manager layout.
func (p *picker) load(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("invalid path %s: %w", dir, err)
	}
	items, err := os.ReadDir(abs)
	if err != nil {
		return fmt.Errorf("could not read %s: %w", abs, err)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].IsDir() != items[j].IsDir() {
			return items[i].IsDir()
		}
		return items[i].Name() < items[j].Name()
	})
	p.dir = abs
	p.items = items
	p.cursor = 0
	return nil
}

func (p *picker) update(msg tea.KeyMsg) tea.Cmd {
	if p.mode == pickerInput {
		return p.updateInput(msg)
	}
	switch {
	case key.Matches(msg, p.keys.Up):
		if p.cursor > 0 {
			p.cursor--
		}
	case key.Matches(msg, p.keys.Down):
		if p.cursor < len(p.items)-1 {
			p.cursor++
		}
	case key.Matches(msg, p.keys.ToggleInput):
		p.mode = pickerInput
		p.input.Focus()
		return textinput.Blink
	case key.Matches(msg, p.keys.ToggleSelect):
		if p.cursor >= len(p.items) {
			return nil
		}
		item := p.items[p.cursor]
		path := filepath.Join(p.dir, item.Name())
		if item.IsDir() {
			p.loadErr = p.load(path)
			return nil
		}
		if _, ok := p.selected[path]; ok {
			delete(p.selected, path)
		} else {
			p.selected[path] = struct{}{}
		}
	case key.Matches(msg, p.keys.Confirm):
		if len(p.selected) == 0 {
			return nil
		}
		paths := make([]string, 0, len(p.selected))
		for path := range p.selected {
			paths = append(paths, path)
		}
		sort.Strings(paths)
		return func() tea.Msg { return pickedMsg{paths: paths} }
	}
	return nil
}

func (p *picker) updateInput(msg tea.KeyMsg) tea.Cmd {
	if key.Matches(msg, p.keys.Confirm) {
		dir := p.input.Value()
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(p.dir, dir)
		}
		p.loadErr = p.load(dir)
		if p.loadErr == nil {
			p.mode = pickerBrowse
			p.input.Blur()
			p.input.Reset()
		}
		return nil
	}
	var cmd tea.Cmd
	p.input, cmd = p.input.Update(msg)
	return cmd
}

func (p *picker) view() string {
	var b strings.Builder
	b.WriteString("Select files to send\n")
	b.WriteString(dimStyle.Render(p.dir) + "\n\n")

	if p.mode == pickerInput {
		b.WriteString(p.input.View() + "\n")
	}
	if p.loadErr != nil {
		b.WriteString(errorStyle.Render(p.loadErr.Error()) + "\n")
	}

	for i, item := range p.items {
		if i == p.cursor {
			b.WriteString(cursorStyle.String())
		} else {
			b.WriteString("  ")
		}

		path := filepath.Join(p.dir, item.Name())
		if _, ok := p.selected[path]; ok {
			b.WriteString(selectedMark.String())
		} else {
			b.WriteString(deselectedMark.String())
		}

		name := item.Name()
		size := ""
		if item.IsDir() {
			name += "/"
			b.WriteString(dirStyle.Render(util.PadRight(name, 36)))
		} else {
			if info, err := item.Info(); err == nil {
				size = util.FormatSize(info.Size())
			}
			b.WriteString(util.PadRight(name, 36))
		}
		b.WriteString(dimStyle.Render(size) + "\n")
	}

	b.WriteString(dimStyle.Render(fmt.Sprintf(
		"\n%d selected  space: select/enter dir  ctrl+p: change dir  enter: confirm  q: quit",
		len(p.selected))))
	return b.String()
}
