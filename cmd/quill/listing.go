package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/nugget/quill/internal/command"
	"github.com/nugget/quill/internal/memory"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	return tw
}

type commandInfo struct {
	Name           string   `json:"name"`
	Required       []string `json:"required"`
	Optional       []string `json:"optional"`
	VisibleToModel bool     `json:"visible_to_model"`
	Description    string   `json:"description"`
}

func commandsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "commands",
		Short: "List the commands the model may use",
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeCommands(cmd.OutOrStdout(), command.DefaultRegistry(), g.json())
		},
	}
}

func writeCommands(w io.Writer, reg *command.Registry, asJSON bool) error {
	var infos []commandInfo
	for _, s := range reg.Specs() {
		infos = append(infos, commandInfo{
			Name:           s.Name,
			Required:       nonNil(s.Required),
			Optional:       nonNil(s.Optional),
			VisibleToModel: s.VisibleToModel,
			Description:    s.Description,
		})
	}
	if asJSON {
		return printJSON(w, infos)
	}

	tw := newTable(w)
	tw.AppendHeader(table.Row{"Command", "Required", "Optional", "Results To Model"})
	for _, info := range infos {
		visible := ""
		if info.VisibleToModel {
			visible = "yes"
		}
		tw.AppendRow(table.Row{info.Name, strings.Join(info.Required, ", "), strings.Join(info.Optional, ", "), visible})
	}
	tw.Render()
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func convsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "convs",
		Short: "List saved conversations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(g.configPath)
			if err != nil {
				return err
			}
			store, err := memory.NewConversationStore(cfg.ConversationsDir)
			if err != nil {
				return err
			}
			names, err := store.List(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if g.json() {
				return printJSON(out, nonNil(names))
			}
			tw := newTable(out)
			tw.AppendHeader(table.Row{"Conversation"})
			for _, n := range names {
				tw.AppendRow(table.Row{n})
			}
			tw.Render()
			return nil
		},
	}
}

func openJournal(g *globalFlags) (*memory.Journal, error) {
	cfg, _, err := loadConfig(g.configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}
	return memory.OpenJournal(cfg.JournalPath)
}

func statsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show per-command call statistics from the journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := openJournal(g)
			if err != nil {
				return err
			}
			defer j.Close()

			stats, err := j.CommandStats(cmd.Context())
			if err != nil {
				return err
			}
			return writeStats(cmd.OutOrStdout(), stats, g.json())
		},
	}
}

func writeStats(w io.Writer, stats []memory.CommandStat, asJSON bool) error {
	if asJSON {
		type row struct {
			Command  string  `json:"command"`
			Calls    int     `json:"calls"`
			Failures int     `json:"failures"`
			AvgMS    float64 `json:"avg_ms"`
		}
		rows := make([]row, 0, len(stats))
		for _, s := range stats {
			rows = append(rows, row{s.Command, s.Calls, s.Failures, float64(s.AvgDuration) / float64(time.Millisecond)})
		}
		return printJSON(w, rows)
	}

	tw := newTable(w)
	tw.AppendHeader(table.Row{"Command", "Calls", "Failures", "Avg"})
	for _, s := range stats {
		tw.AppendRow(table.Row{s.Command, s.Calls, s.Failures, s.AvgDuration.Round(time.Microsecond)})
	}
	tw.Render()
	return nil
}

func historyCmd(g *globalFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <session-id>",
		Short: "Show the journaled turns of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := openJournal(g)
			if err != nil {
				return err
			}
			defer j.Close()

			turns, err := j.RecentTurns(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			if len(turns) == 0 {
				return fmt.Errorf("no turns recorded for session %s", args[0])
			}
			return writeHistory(cmd.OutOrStdout(), turns, g.json())
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of turns")
	return cmd
}

func writeHistory(w io.Writer, turns []memory.TurnRecord, asJSON bool) error {
	if asJSON {
		return printJSON(w, turns)
	}

	tw := newTable(w)
	tw.AppendHeader(table.Row{"Turn", "Time", "Input", "Reply", "Calls", "Errors"})
	for _, t := range turns {
		var calls []string
		for _, c := range t.Calls {
			mark := "ok"
			if !c.Success {
				mark = "failed"
			}
			calls = append(calls, c.Command+" "+mark)
		}
		tw.AppendRow(table.Row{
			t.Turn,
			t.CreatedAt.Local().Format(time.DateTime),
			truncate(t.Input, 40),
			truncate(t.UserMessage, 40),
			strings.Join(calls, "\n"),
			len(t.Errors),
		})
	}
	tw.Render()
	return nil
}

// truncate shortens s to at most maxLen runes, adding "..." when cut.
func truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
