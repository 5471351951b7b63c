package orchestrator

import (
	"context"
	"time"

	appLog "weekplanner/internal/log"
	"weekplanner/internal/meals"
	"weekplanner/internal/store"
)

// Meal mutations publish meal-update before returning, and only on success.

// Meals returns the current and next week, generating them if needed.
func (o *Orchestrator) Meals(ctx context.Context) (meals.MealView, error) {
	return o.planner.Display()
}

// Categories lists the meal categories.
func (o *Orchestrator) Categories() []meals.CategoryInfo {
	return o.planner.Categories()
}

func (o *Orchestrator) mealsChanged(ctx context.Context, err error) error {
	if err != nil {
		return err
	}
	o.Invalidate(ctx, DomainMeals)
	return nil
}

// ChangeMeal overrides the meal for date.
func (o *Orchestrator) ChangeMeal(ctx context.Context, date, meal, category string) (meals.Change, error) {
	ch, err := o.planner.ChangeAssignment(date, meal, category)
	return ch, o.mealsChanged(ctx, err)
}

// GenerateWeek fills the week containing day if it is still empty.
func (o *Orchestrator) GenerateWeek(ctx context.Context, day time.Time) (map[string]store.Assignment, error) {
	week, err := o.planner.GenerateWeek(day)
	return week, o.mealsChanged(ctx, err)
}

func (o *Orchestrator) CreateCategory(ctx context.Context, id string, c store.Category) (meals.CategoryInfo, error) {
	info, err := o.planner.CreateCategory(id, c)
	return info, o.mealsChanged(ctx, err)
}

func (o *Orchestrator) UpdateCategory(ctx context.Context, id, name, emoji string) (meals.CategoryInfo, error) {
	info, err := o.planner.UpdateCategory(id, name, emoji)
	return info, o.mealsChanged(ctx, err)
}

func (o *Orchestrator) DeleteCategory(ctx context.Context, id string) error {
	return o.mealsChanged(ctx, o.planner.DeleteCategory(id))
}

func (o *Orchestrator) AddItem(ctx context.Context, id, item string) (meals.CategoryInfo, error) {
	info, err := o.planner.AddItem(id, item)
	return info, o.mealsChanged(ctx, err)
}

func (o *Orchestrator) RemoveItem(ctx context.Context, id, item string) (meals.CategoryInfo, error) {
	info, err := o.planner.RemoveItem(id, item)
	return info, o.mealsChanged(ctx, err)
}

func (o *Orchestrator) SetWeekdayMapping(ctx context.Context, mapping map[string]string) (map[string]string, error) {
	out, err := o.planner.SetWeekdayMapping(mapping)
	return out, o.mealsChanged(ctx, err)
}

func (o *Orchestrator) SetHistoryWeeks(ctx context.Context, weeks int) error {
	return o.mealsChanged(ctx, o.planner.SetHistoryWeeks(weeks))
}

// Rollover generates the current and next week ahead of display.
func (o *Orchestrator) Rollover(ctx context.Context) {
	if err := o.mealsChanged(ctx, o.planner.EnsureWeeks()); err != nil {
		appLog.Error("meal rollover failed", err)
		return
	}
	appLog.Info("meal rollover done")
}

// ExternalEdit installs a document that changed on disk outside the
// planner and announces it.
func (o *Orchestrator) ExternalEdit(ctx context.Context, doc store.Document) {
	o.planner.Replace(doc)
	appLog.Info("meal plan reloaded after external edit")
	o.Invalidate(ctx, DomainMeals)
}
