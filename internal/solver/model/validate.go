package model

import (
	"fmt"
	"strings"
)

// StructuralError reports a malformed problem. It is the only failure that
// crosses the solver boundary; search never starts on an invalid problem.
type StructuralError struct {
	Code    string
	Message string
	Action  string
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func structural(code, message, action string) *StructuralError {
	return &StructuralError{Code: code, Message: message, Action: action}
}

// StructuralErrors aggregates every check failure so callers can report all
// problems at once.
type StructuralErrors []*StructuralError

func (e StructuralErrors) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// Validate runs structural checks on a problem. A nil error means search may
// begin; jobs that turn out to be unassignable are not an error here.
func Validate(p *Problem) error {
	var errs StructuralErrors
	if err := checkTransport(p); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, checkJobs(p)...)
	errs = append(errs, checkFleet(p)...)
	errs = append(errs, checkRelations(p)...)
	if len(errs) == 0 {
		return nil
	}
	return errs
}

func checkTransport(p *Problem) *StructuralError {
	if p.Transport == nil {
		return structural("E1500", "problem has no transport oracle",
			"provide a distance/duration oracle")
	}
	return nil
}

func checkJobs(p *Problem) []*StructuralError {
	var errs []*StructuralError
	if len(p.Jobs) == 0 {
		errs = append(errs, structural("E1004", "plan has no jobs", "add at least one job"))
		return errs
	}
	seen := map[string]bool{}
	var dups, noPlace, badWindow []string
	for _, j := range p.Jobs {
		if seen[j.ID] {
			dups = append(dups, j.ID)
		}
		seen[j.ID] = true
		if len(j.Places) == 0 {
			noPlace = append(noPlace, j.ID)
		}
		for _, pl := range j.Places {
			for _, tw := range pl.Windows {
				if !tw.Valid() {
					badWindow = append(badWindow, j.ID)
				}
			}
		}
	}
	if len(dups) > 0 {
		errs = append(errs, structural("E1000",
			"duplicated job ids: "+strings.Join(dups, ", "),
			"remove jobs with the same ids"))
	}
	if len(noPlace) > 0 {
		errs = append(errs, structural("E1001",
			"jobs without places: "+strings.Join(noPlace, ", "),
			"give each job at least one place"))
	}
	if len(badWindow) > 0 {
		errs = append(errs, structural("E1003",
			"invalid time windows in jobs: "+strings.Join(dedup(badWindow), ", "),
			"make each window end no earlier than its start"))
	}
	return errs
}

func checkFleet(p *Problem) []*StructuralError {
	var errs []*StructuralError
	if len(p.Fleet.Vehicles) == 0 {
		errs = append(errs, structural("E1300", "fleet has no vehicles", "add at least one vehicle"))
		return errs
	}
	seen := map[string]bool{}
	var dups, noShift, badShift, badCap []string
	for _, v := range p.Fleet.Vehicles {
		if seen[v.ID] {
			dups = append(dups, v.ID)
		}
		seen[v.ID] = true
		if len(v.Shifts) == 0 {
			noShift = append(noShift, v.ID)
		}
		for _, sh := range v.Shifts {
			if !sh.Window.Valid() {
				badShift = append(badShift, v.ID)
			}
		}
		for _, c := range v.Capacity {
			if c < 0 {
				badCap = append(badCap, v.ID)
			}
		}
	}
	if len(dups) > 0 {
		errs = append(errs, structural("E1301",
			"duplicated vehicle ids: "+strings.Join(dups, ", "),
			"remove vehicles with the same ids"))
	}
	if len(noShift) > 0 {
		errs = append(errs, structural("E1302",
			"vehicles without shifts: "+strings.Join(noShift, ", "),
			"give each vehicle at least one shift"))
	}
	if len(badShift) > 0 {
		errs = append(errs, structural("E1303",
			"invalid shift windows on vehicles: "+strings.Join(dedup(badShift), ", "),
			"make each shift window end no earlier than its start"))
	}
	if len(badCap) > 0 {
		errs = append(errs, structural("E1304",
			"negative capacity on vehicles: "+strings.Join(dedup(badCap), ", "),
			"use non-negative capacity values"))
	}
	return errs
}

func checkRelations(p *Problem) []*StructuralError {
	var errs []*StructuralError
	jobIDs := map[string]bool{}
	for _, j := range p.Jobs {
		jobIDs[j.ID] = true
	}
	for i, rel := range p.Relations {
		if len(rel.Jobs) < 2 {
			errs = append(errs, structural("E1200",
				fmt.Sprintf("relation %d has fewer than two jobs", i),
				"relations must name at least two jobs"))
			continue
		}
		var unknown []string
		for _, id := range rel.Jobs {
			if !jobIDs[id] {
				unknown = append(unknown, id)
			}
		}
		if len(unknown) > 0 {
			errs = append(errs, structural("E1201",
				fmt.Sprintf("relation %d references unknown jobs: %s", i, strings.Join(unknown, ", ")),
				"reference only jobs present in the plan"))
		}
	}
	return errs
}

func dedup(ids []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
