package app

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"market-recap/internal/service"
)

// Plan prints the resolved stage order with each stage's dependencies.
func (a *App) Plan(w io.Writer) error {
	svc := service.New(service.Options{}, nil, nil, nil, a.base)
	plan, err := svc.Plan()
	if err != nil {
		return err
	}

	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "#\tStage\tDepends On")
	for i, name := range plan.Order() {
		deps, _ := plan.Dependencies(name)
		dependsOn := "-"
		if len(deps) > 0 {
			dependsOn = strings.Join(deps, ", ")
		}
		fmt.Fprintf(writer, "%d\t%s\t%s\n", i+1, name, dependsOn)
	}
	return writer.Flush()
}
