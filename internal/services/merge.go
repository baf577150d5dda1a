package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"agentdb/internal/models"
	"agentdb/internal/repositories"
	"agentdb/internal/utils"
)

const defaultSchema = "public"

type columnRef struct {
	tableID  uuid.UUID
	columnID uuid.UUID
}

// resolver maps (schema, table, column) names to the ids written during one merge.
type resolver struct {
	tables  map[string]uuid.UUID
	byName  map[string]uuid.UUID // bare table name -> first table seen with it
	columns map[uuid.UUID]map[string]uuid.UUID
}

func newResolver() *resolver {
	return &resolver{
		tables:  make(map[string]uuid.UUID),
		byName:  make(map[string]uuid.UUID),
		columns: make(map[uuid.UUID]map[string]uuid.UUID),
	}
}

func qualified(schema, table string) string {
	return schema + "." + table
}

func (r *resolver) addTable(schema, name string, id uuid.UUID) {
	r.tables[qualified(schema, name)] = id
	if _, ok := r.byName[name]; !ok {
		r.byName[name] = id
	}
	if _, ok := r.columns[id]; !ok {
		r.columns[id] = make(map[string]uuid.UUID)
	}
}

func (r *resolver) addColumn(tableID uuid.UUID, column string, columnID uuid.UUID) {
	r.columns[tableID][column] = columnID
}

// column resolves a relationship endpoint. An empty schema matches the table by name alone.
func (r *resolver) column(schema, table, column string) (columnRef, bool) {
	var (
		tableID uuid.UUID
		ok      bool
	)
	if schema != "" {
		tableID, ok = r.tables[qualified(schema, table)]
	} else {
		tableID, ok = r.byName[table]
	}
	if !ok {
		return columnRef{}, false
	}
	columnID, ok := r.columns[tableID][column]
	if !ok {
		return columnRef{}, false
	}
	return columnRef{tableID: tableID, columnID: columnID}, true
}

// merge writes snap into store in the order tables, columns, relationships. The first failing
// write aborts the merge. With replace the agent's existing schema is removed first.
func merge(ctx context.Context, store repositories.MetadataStore, agentID uuid.UUID, snap *models.SchemaSnapshot, replace bool) (*models.SyncSummary, error) {
	if err := store.EnsureAgent(ctx, agentID); err != nil {
		return nil, fmt.Errorf("failed to register agent: %w", err)
	}
	if replace {
		if err := store.DeleteAgentSchema(ctx, agentID); err != nil {
			return nil, fmt.Errorf("failed to clear agent schema: %w", err)
		}
	}

	summary := &models.SyncSummary{}
	refs := newResolver()

	for _, st := range snap.Tables {
		schema := st.Schema
		if schema == "" {
			schema = defaultSchema
		}

		ext := st.External()
		ext.LastAnalyzedAt = snap.CapturedAt

		tableID, err := upsertTable(ctx, store, agentID, schema, st.Name, ext)
		if err != nil {
			return nil, err
		}
		refs.addTable(schema, st.Name, tableID)
		summary.TablesCount++

		for i, sc := range st.Columns {
			cext := sc.External()
			cext.OrdinalPosition = i + 1

			columnID, err := upsertColumn(ctx, store, agentID, tableID, sc.Name, cext)
			if err != nil {
				return nil, fmt.Errorf("table %s: %w", qualified(schema, st.Name), err)
			}
			refs.addColumn(tableID, sc.Name, columnID)
			summary.ColumnsCount++
		}
	}

	if !snap.RelationshipsComplete && !replace {
		summary.RelationshipsPreserved = true
		return summary, nil
	}

	if err := store.DeleteRelationships(ctx, agentID); err != nil {
		return nil, fmt.Errorf("failed to clear relationships: %w", err)
	}

	for _, sr := range snap.Relationships {
		src, ok := refs.column(sr.SourceSchema, sr.SourceTable, sr.SourceColumn)
		if !ok {
			summary.RelationshipsSkipped++
			continue
		}
		dst, ok := refs.column(sr.TargetSchema, sr.TargetTable, sr.TargetColumn)
		if !ok {
			summary.RelationshipsSkipped++
			continue
		}

		rel := &models.AgentRelationship{
			AgentID:          agentID,
			SourceTableID:    src.tableID,
			SourceColumnID:   src.columnID,
			TargetTableID:    dst.tableID,
			TargetColumnID:   dst.columnID,
			RelationshipType: sr.Type,
			IsActive:         true,

			OriginalConstraintName: utils.NilIfEmpty(sr.ConstraintName),
		}
		rel.Prepare()

		if err := store.InsertRelationship(ctx, rel); err != nil {
			return nil, fmt.Errorf("failed to insert relationship %s.%s -> %s.%s: %w",
				sr.SourceTable, sr.SourceColumn, sr.TargetTable, sr.TargetColumn, err)
		}
		summary.RelationshipsCount++
	}

	return summary, nil
}

func upsertTable(ctx context.Context, store repositories.MetadataStore, agentID uuid.UUID, schema, name string, ext models.TableExternal) (uuid.UUID, error) {
	existing, err := store.FindTable(ctx, agentID, schema, name)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to look up table %s: %w", qualified(schema, name), err)
	}
	if existing != nil {
		if err := store.UpdateTableExternal(ctx, existing.ID, ext); err != nil {
			return uuid.Nil, fmt.Errorf("failed to update table %s: %w", qualified(schema, name), err)
		}
		return existing.ID, nil
	}

	t := models.NewAgentTable(agentID, schema, name)
	t.ApplyExternal(ext)
	if err := store.InsertTable(ctx, t); err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert table %s: %w", qualified(schema, name), err)
	}
	return t.ID, nil
}

func upsertColumn(ctx context.Context, store repositories.MetadataStore, agentID, tableID uuid.UUID, name string, ext models.ColumnExternal) (uuid.UUID, error) {
	existing, err := store.FindColumn(ctx, tableID, name)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to look up column %s: %w", name, err)
	}
	if existing != nil {
		if err := store.UpdateColumnExternal(ctx, existing.ID, ext); err != nil {
			return uuid.Nil, fmt.Errorf("failed to update column %s: %w", name, err)
		}
		return existing.ID, nil
	}

	c := models.NewAgentColumn(agentID, tableID, name)
	c.ApplyExternal(ext)
	if err := store.InsertColumn(ctx, c); err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert column %s: %w", name, err)
	}
	return c.ID, nil
}
