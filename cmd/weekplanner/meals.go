package main

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"weekplanner/internal/meals"
)

// These commands work on the meal file directly. A running server picks the
// change up through its file watcher.

var mealsCmd = &cobra.Command{
	Use:   "meals",
	Short: "Inspect and edit the meal plan",
}

var mealsJSON bool

var mealsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the current and next week",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		_, planner, err := newPlanner(cfg, clockwork.NewRealClock())
		if err != nil {
			return err
		}
		view, err := planner.Display()
		if err != nil {
			return err
		}
		if mealsJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(view)
		}
		for _, date := range slices.Sorted(maps.Keys(view.Meals)) {
			e := view.Meals[date]
			meal := "-"
			if e.Meal != nil {
				meal = *e.Meal
			}
			d, _ := meals.ParseDate(date)
			fmt.Fprintf(cmd.OutOrStdout(), "%s %-3s  %-12s %s\n", date, d.Weekday().String()[:3], e.CategoryName, meal)
		}
		return nil
	},
}

var mealsGenerateCmd = &cobra.Command{
	Use:   "generate [date]",
	Short: "Generate the week containing date (default: current and next week)",
	Args:  cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		clock := clockwork.NewRealClock()
		_, planner, err := newPlanner(cfg, clock)
		if err != nil {
			return err
		}
		if len(args) == 0 {
			return planner.EnsureWeeks()
		}
		day, err := parseDay(strings.Join(args, " "), clock.Now().In(cfg.Location()))
		if err != nil {
			return err
		}
		week, err := planner.GenerateWeek(day)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d days planned\n", meals.WeekKey(day), len(week))
		return nil
	},
}

var mealsCategory string

var mealsSetCmd = &cobra.Command{
	Use:   "set <date> <meal>",
	Short: "Set the meal for a date",
	Long: `Set the meal for a date. The date is YYYY-MM-DD or a phrase such as
"tomorrow" or "next friday". Without --category the category is the one
listing the meal, or the catch-all category.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		clock := clockwork.NewRealClock()
		_, planner, err := newPlanner(cfg, clock)
		if err != nil {
			return err
		}
		day, err := parseDay(args[0], clock.Now().In(cfg.Location()))
		if err != nil {
			return err
		}
		ch, err := planner.ChangeAssignment(meals.FormatDate(day), args[1], mealsCategory)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (%s)\n", ch.Date, ch.Meal, ch.Category)
		return nil
	},
}

var dateParser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// parseDay accepts YYYY-MM-DD or a natural-language date relative to now,
// and returns the civil date.
func parseDay(s string, now time.Time) (time.Time, error) {
	if d, err := meals.ParseDate(s); err == nil {
		return d, nil
	}
	r, err := dateParser.Parse(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("no date found in %q", s)
	}
	return meals.Civil(r.Time, now.Location()), nil
}

func init() {
	mealsShowCmd.Flags().BoolVar(&mealsJSON, "json", false, "Print JSON")
	mealsSetCmd.Flags().StringVar(&mealsCategory, "category", "", "Category id")
	mealsCmd.AddCommand(mealsShowCmd, mealsGenerateCmd, mealsSetCmd)
	rootCmd.AddCommand(mealsCmd)
}
