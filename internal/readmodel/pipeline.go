package readmodel

import "strings"

type stage struct {
	name  string
	query string
}

// pipeline composes named query stages into a single statement of chained
// CTEs. Each stage may read from the stages declared before it.
type pipeline struct {
	stages []stage
}

func newPipeline() *pipeline {
	return &pipeline{}
}

func (p *pipeline) Stage(name, query string) *pipeline {
	p.stages = append(p.stages, stage{name: name, query: strings.TrimSpace(query)})
	return p
}

// Select renders the pipeline with final as the outer query.
func (p *pipeline) Select(final string) string {
	final = strings.TrimSpace(final)
	if len(p.stages) == 0 {
		return final
	}

	var b strings.Builder
	b.WriteString("WITH ")
	for i, s := range p.stages {
		if i > 0 {
			b.WriteString(",\n")
		}
		b.WriteString(s.name)
		b.WriteString(" AS (\n")
		b.WriteString(s.query)
		b.WriteString("\n)")
	}
	b.WriteString("\n")
	b.WriteString(final)
	return b.String()
}
