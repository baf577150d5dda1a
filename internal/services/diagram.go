package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"agentdb/internal/models"
)

const (
	maxJunctionTableColumns = 6
	minJunctionTableFKs     = 2
)

type diagramEdge struct {
	from, to, kind string
}

// Diagram renders the agent's enriched schema as a Mermaid ER diagram.
func (s *MetadataService) Diagram(ctx context.Context, agentID uuid.UUID) (string, error) {
	schema, err := s.EnrichedSchema(ctx, agentID)
	if err != nil {
		return "", err
	}
	return GenerateMermaid(schema), nil
}

func GenerateMermaid(schema *models.EnrichedSchema) string {
	junctions := detectJunctionTables(schema)
	edges := diagramEdges(schema, junctions)

	var sb strings.Builder
	sb.WriteString("erDiagram\n")

	if len(edges) > 0 {
		seen := make(map[diagramEdge]bool)
		for _, e := range edges {
			if seen[e] {
				continue
			}
			seen[e] = true
			// Mermaid requires a label, an empty one hides it
			fmt.Fprintf(&sb, "    %s %s %s : \"\"\n", strings.ToUpper(e.from), e.kind, strings.ToUpper(e.to))
		}
		sb.WriteString("\n")
	}

	for _, t := range schema.Tables {
		fmt.Fprintf(&sb, "    %s {\n", strings.ToUpper(t.Name))
		for _, c := range t.Columns {
			annotations := ""
			if c.PrimaryKey {
				annotations = " PK"
			}
			if c.ForeignKey {
				annotations += " FK"
			}
			fmt.Fprintf(&sb, "        %s %s%s\n", simplifyDataType(c.Type), c.Name, annotations)
		}
		sb.WriteString("    }\n\n")
	}
	return sb.String()
}

func diagramEdges(schema *models.EnrichedSchema, junctions map[string]bool) []diagramEdge {
	unique := make(map[string]bool)
	for _, t := range schema.Tables {
		for _, c := range t.Columns {
			if c.Unique || (c.PrimaryKey && primaryKeyWidth(t) == 1) {
				unique[t.Name+"."+c.Name] = true
			}
		}
	}

	var edges []diagramEdge
	targets := make(map[string][]string)
	for _, r := range schema.Relationships {
		if junctions[r.SourceTable] {
			targets[r.SourceTable] = append(targets[r.SourceTable], r.TargetTable)
			continue
		}
		kind := "||--o{"
		if unique[r.SourceTable+"."+r.SourceColumn] {
			kind = "||--||"
		}
		// one side on the left: the referenced table
		edges = append(edges, diagramEdge{from: r.TargetTable, to: r.SourceTable, kind: kind})
	}

	for _, t := range schema.Tables {
		refs := targets[t.Name]
		for i := 0; i < len(refs); i++ {
			for j := i + 1; j < len(refs); j++ {
				edges = append(edges, diagramEdge{from: refs[i], to: refs[j], kind: "}o--o{"})
			}
		}
	}
	return edges
}

func primaryKeyWidth(t models.EnrichedTable) int {
	n := 0
	for _, c := range t.Columns {
		if c.PrimaryKey {
			n++
		}
	}
	return n
}

// detectJunctionTables finds tables whose primary key is made of at least two foreign keys.
func detectJunctionTables(schema *models.EnrichedSchema) map[string]bool {
	junctions := make(map[string]bool)
	for _, t := range schema.Tables {
		if len(t.Columns) > maxJunctionTableColumns {
			continue
		}
		fkInPK, fkOutsidePK := 0, false
		for _, c := range t.Columns {
			switch {
			case c.ForeignKey && c.PrimaryKey:
				fkInPK++
			case c.ForeignKey:
				fkOutsidePK = true
			}
		}
		if fkInPK >= minJunctionTableFKs && !fkOutsidePK {
			junctions[t.Name] = true
		}
	}
	return junctions
}

func simplifyDataType(dataType string) string {
	dt := strings.ToLower(dataType)

	switch {
	case dt == "integer", dt == "int":
		return "int"
	case strings.HasPrefix(dt, "character varying"), strings.HasPrefix(dt, "varchar"):
		return "varchar"
	case strings.HasPrefix(dt, "character"), strings.HasPrefix(dt, "char"):
		return "char"
	case strings.HasPrefix(dt, "timestamp without time zone"):
		return "timestamp"
	case strings.HasPrefix(dt, "timestamp with time zone"):
		return "timestamptz"
	case strings.HasPrefix(dt, "time without time zone"):
		return "time"
	case strings.HasPrefix(dt, "numeric"):
		return "numeric"
	case strings.HasPrefix(dt, "decimal"):
		return "decimal"
	case dt == "double precision":
		return "double"
	case strings.HasPrefix(dt, "array"), strings.HasSuffix(dt, "[]"):
		return "array"
	case strings.ContainsAny(dt, " (),"):
		// Mermaid attribute types must be a single word
		return strings.NewReplacer(" ", "_", "(", "_", ")", "", ",", "_").Replace(dt)
	default:
		return dt
	}
}
