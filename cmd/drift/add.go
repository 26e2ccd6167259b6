package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/driftsync/drift/internal/ui"
)

var addCmd = &cobra.Command{
	Use:     "add [title...]",
	GroupID: "todos",
	Short:   "Add a todo",
	Long: `Add a todo. The change is saved locally and queued for sync.

The due date accepts natural language:
  drift add "Call the dentist" --due tomorrow
  drift add Buy milk --due "friday at 5pm"

With no arguments, an interactive form opens.`,
	Run: func(cmd *cobra.Command, args []string) {
		title := strings.Join(args, " ")
		description, _ := cmd.Flags().GetString("desc")
		dueText, _ := cmd.Flags().GetString("due")

		if title == "" {
			if err := addForm(&title, &description, &dueText); err != nil {
				fatalf("%v", err)
			}
		}

		var dueAt *time.Time
		if strings.TrimSpace(dueText) != "" {
			parsed, err := parseDue(dueText)
			if err != nil {
				fatalf("%v", err)
			}
			dueAt = parsed
		}

		ctx := context.Background()
		a, err := openApp(ctx, nil)
		if err != nil {
			fatalf("%v", err)
		}
		defer a.Close()

		created, err := a.service.Create(ctx, title, description, dueAt)
		if err != nil {
			fatalf("%v", err)
		}

		fmt.Printf("%s Added %s (%s)\n", ui.RenderPass("✓"), created.Title, ui.RenderFaint(created.ID))
		if created.DueAt != nil {
			fmt.Printf("  due %s\n", created.DueTime().Format("Mon Jan 2 15:04"))
		}
		fmt.Printf("  %s\n", ui.RenderFaint("queued for sync"))
	},
}

// addForm collects the todo interactively.
func addForm(title, description, dueText *string) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Title").
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return fmt.Errorf("title cannot be empty")
					}
					return nil
				}).
				Value(title),
			huh.NewText().
				Title("Description").
				Lines(3).
				Value(description),
			huh.NewInput().
				Title("Due").
				Description("Natural language is fine: tomorrow, friday at 5pm, in 2 hours").
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return nil
					}
					_, err := parseDue(s)
					return err
				}).
				Value(dueText),
		),
	)
	return form.Run()
}

// parseDue turns natural-language text into a due time.
func parseDue(text string) (*time.Time, error) {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	result, err := w.Parse(text, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to parse due date %q: %w", text, err)
	}
	if result == nil {
		return nil, fmt.Errorf("could not understand due date %q", text)
	}
	return &result.Time, nil
}

func init() {
	addCmd.Flags().StringP("desc", "d", "", "Longer description")
	addCmd.Flags().String("due", "", "Due date (natural language)")
	rootCmd.AddCommand(addCmd)
}
