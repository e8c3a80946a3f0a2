package service

import (
	"fmt"
	"time"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"

	"github.com/aryan0dhankhar/farmorders/internal/domain"
	"github.com/aryan0dhankhar/farmorders/pkg/cache"
)

// OrderFilter narrows ListOrders. Empty fields do not filter.
type OrderFilter struct {
	Status    string // stored status or "overdue"
	Mine      bool   // orders the actor has progress on
	Available bool   // unfinished orders the actor has not accepted
	Expr      string // boolean expression over OrderEnv
}

// OrderEnv is the environment filter expressions are evaluated against,
// e.g. `overdue && totalOrdered > 100` or `"diamond" in blocks`
type OrderEnv struct {
	Status        string   `expr:"status"`
	DisplayStatus string   `expr:"displayStatus"`
	TotalOrdered  int      `expr:"totalOrdered"`
	AutoAssign    bool     `expr:"autoAssign"`
	ItemCount     int      `expr:"itemCount"`
	Assignees     int      `expr:"assignees"`
	Overdue       bool     `expr:"overdue"`
	Blocks        []string `expr:"blocks"`
	DaysLeft      int      `expr:"daysLeft"`
	Notes         string   `expr:"notes"`
}

func newOrderEnv(o *domain.Order, now time.Time) OrderEnv {
	blocks := make([]string, 0, len(o.Items))
	for _, item := range o.Items {
		blocks = append(blocks, item.BlockID)
	}
	return OrderEnv{
		Status:        string(o.Status),
		DisplayStatus: o.DisplayStatus(now),
		TotalOrdered:  o.TotalOrdered(),
		AutoAssign:    o.AutoAssign,
		ItemCount:     len(o.Items),
		Assignees:     len(o.Progress),
		Overdue:       o.IsOverdue(now),
		Blocks:        blocks,
		DaysLeft:      int(o.Deadline.Sub(domain.Day(now)).Hours() / 24),
		Notes:         o.Notes,
	}
}

const (
	programTTL  = 10 * time.Minute
	maxPrograms = 256
)

// exprFilters compiles filter expressions once and reuses the programs
type exprFilters struct {
	programs *cache.Cache[*exprvm.Program]
}

func newExprFilters() *exprFilters {
	return &exprFilters{programs: cache.NewBounded[*exprvm.Program](maxPrograms)}
}

func (f *exprFilters) compile(expression string) (*exprvm.Program, error) {
	return f.programs.Load(expression, programTTL, func() (*exprvm.Program, error) {
		program, err := exprlang.Compile(expression, exprlang.Env(OrderEnv{}), exprlang.AsBool())
		if err != nil {
			return nil, fmt.Errorf("%w: invalid filter expression: %v", domain.ErrBadArguments, err)
		}
		return program, nil
	})
}

func (f *exprFilters) match(program *exprvm.Program, env OrderEnv) (bool, error) {
	out, err := exprlang.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("%w: filter expression failed: %v", domain.ErrBadArguments, err)
	}
	ok, _ := out.(bool)
	return ok, nil
}

// matches applies every set field of filter to o
func (filter OrderFilter) matches(o *domain.Order, actor domain.Actor, now time.Time) bool {
	if filter.Status != "" {
		if filter.Status == domain.DisplayOverdue {
			if !o.IsOverdue(now) {
				return false
			}
		} else if string(o.Status) != filter.Status {
			return false
		}
	}
	if filter.Mine && o.ProgressFor(actor.UserID) == nil {
		return false
	}
	if filter.Available && (o.Status == domain.OrderCompleted || o.ProgressFor(actor.UserID) != nil) {
		return false
	}
	return true
}
