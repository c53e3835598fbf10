package main

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/smallnest/dagrag/dag"
	"github.com/smallnest/dagrag/events"
	"github.com/smallnest/dagrag/executor"
	"github.com/smallnest/dagrag/internal/config"
)

var (
	watchDAGFile    string
	watchWorkflowID string

	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Execute a DAG and render its event stream live in a terminal UI",
		RunE:  runWatch,
	}
)

func init() {
	watchCmd.Flags().StringVar(&watchDAGFile, "dag", "", "path to a JSON []dag.Task file (required)")
	watchCmd.Flags().StringVar(&watchWorkflowID, "workflow-id", "watch", "workflow id to execute under")
	_ = watchCmd.MarkFlagRequired("dag")
}

var (
	watchTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	watchLayerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	watchErrorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	watchDoneStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
)

// watchModel renders a scrolling log of execution events as they arrive on
// evCh, grounded on stacklok-toolhive's RunWizardModel Init/Update/View
// shape adapted from a multi-step form into a single append-only log.
type watchModel struct {
	evCh  <-chan events.Event
	resCh <-chan executor.StreamResult
	lines []string
	done  bool
	err   error
}

type watchEventMsg events.Event
type watchDoneMsg executor.StreamResult

func waitForEvent(evCh <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-evCh
		if !ok {
			return nil
		}
		return watchEventMsg(ev)
	}
}

func waitForResult(resCh <-chan executor.StreamResult) tea.Cmd {
	return func() tea.Msg {
		return watchDoneMsg(<-resCh)
	}
}

func (m *watchModel) Init() tea.Cmd {
	return tea.Batch(waitForEvent(m.evCh), waitForResult(m.resCh))
}

func (m *watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			return m, tea.Quit
		}
	case watchEventMsg:
		m.lines = append(m.lines, fmt.Sprintf("%s layer=%d task=%s", events.Event(msg).Kind, events.Event(msg).LayerIndex, events.Event(msg).TaskID))
		return m, waitForEvent(m.evCh)
	case watchDoneMsg:
		m.done = true
		if executor.StreamResult(msg).Err != nil {
			m.err = executor.StreamResult(msg).Err
		}
		return m, tea.Quit
	}
	return m, nil
}

func (m *watchModel) View() string {
	var out string
	out += watchTitleStyle.Render("dagragctl watch") + "\n"
	for _, l := range m.lines {
		out += watchLayerStyle.Render(l) + "\n"
	}
	switch {
	case m.err != nil:
		out += watchErrorStyle.Render("failed: "+m.err.Error()) + "\n"
	case m.done:
		out += watchDoneStyle.Render("workflow completed") + "\n"
	default:
		out += "running... (q to quit)\n"
	}
	return out
}

func runWatch(cmd *cobra.Command, args []string) error {
	tasks, err := loadTasks(watchDAGFile)
	if err != nil {
		return err
	}
	d, err := dag.New(tasks)
	if err != nil {
		return fmt.Errorf("invalid dag: %w", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cpStore, err := buildCheckpointStore(checkpointPath)
	if err != nil {
		return fmt.Errorf("opening checkpoint store: %w", err)
	}
	exec, _, err := buildExecutor(cfg, cpStore, newLogger())
	if err != nil {
		return err
	}

	evCh, resCh := exec.ExecuteStream(cmd.Context(), d, watchWorkflowID)
	model := &watchModel{evCh: evCh, resCh: resCh}
	_, err = tea.NewProgram(model).Run()
	return err
}
