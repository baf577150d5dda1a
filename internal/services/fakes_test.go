package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"agentdb/internal/external"
	"agentdb/internal/models"
	"agentdb/internal/repositories"
)

var errStore = errors.New("store unavailable")

// memoryStore is a non-transactional MetadataStore. failOn names a method that fails once it
// has been called failAfter times. WithTx counts overlapping calls and runs txHook, when set,
// before fn.
type memoryStore struct {
	mu        sync.Mutex
	agents    map[uuid.UUID]bool
	tables    []*models.AgentTable
	columns   []*models.AgentColumn
	rels      []models.AgentRelationship
	calls     map[string]int
	failOn    string
	failAfter int

	txHook  func()
	txCount int
	inTx    int
	maxInTx int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{agents: make(map[uuid.UUID]bool), calls: make(map[string]int)}
}

func (s *memoryStore) hit(method string) error {
	s.calls[method]++
	if method == s.failOn && s.calls[method] > s.failAfter {
		return errStore
	}
	return nil
}

func (s *memoryStore) WithTx(ctx context.Context, fn func(repositories.MetadataStore) error) error {
	s.mu.Lock()
	s.txCount++
	s.inTx++
	s.maxInTx = max(s.maxInTx, s.inTx)
	hook := s.txHook
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inTx--
		s.mu.Unlock()
	}()

	if hook != nil {
		hook()
	}
	return fn(s)
}

func (s *memoryStore) txStats() (count, maxInTx int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txCount, s.maxInTx
}

func (s *memoryStore) EnsureAgent(_ context.Context, agentID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.hit("EnsureAgent"); err != nil {
		return err
	}
	s.agents[agentID] = true
	return nil
}

func (s *memoryStore) FindTable(_ context.Context, agentID uuid.UUID, schema, name string) (*models.AgentTable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.hit("FindTable"); err != nil {
		return nil, err
	}
	for _, t := range s.tables {
		if t.AgentID == agentID && t.SchemaName == schema && t.TableName == name {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memoryStore) InsertTable(_ context.Context, t *models.AgentTable) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.hit("InsertTable"); err != nil {
		return err
	}
	cp := *t
	cp.CreatedAt, cp.UpdatedAt = time.Now(), time.Now()
	s.tables = append(s.tables, &cp)
	return nil
}

func (s *memoryStore) UpdateTableExternal(_ context.Context, tableID uuid.UUID, ext models.TableExternal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.hit("UpdateTableExternal"); err != nil {
		return err
	}
	for _, t := range s.tables {
		if t.ID == tableID {
			t.ApplyExternal(ext)
		}
	}
	return nil
}

func (s *memoryStore) FindColumn(_ context.Context, tableID uuid.UUID, name string) (*models.AgentColumn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.hit("FindColumn"); err != nil {
		return nil, err
	}
	for _, c := range s.columns {
		if c.TableID == tableID && c.ColumnName == name {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memoryStore) InsertColumn(_ context.Context, c *models.AgentColumn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.hit("InsertColumn"); err != nil {
		return err
	}
	cp := *c
	s.columns = append(s.columns, &cp)
	return nil
}

func (s *memoryStore) UpdateColumnExternal(_ context.Context, columnID uuid.UUID, ext models.ColumnExternal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.hit("UpdateColumnExternal"); err != nil {
		return err
	}
	for _, c := range s.columns {
		if c.ID == columnID {
			c.ApplyExternal(ext)
		}
	}
	return nil
}

func (s *memoryStore) DeleteRelationships(_ context.Context, agentID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.hit("DeleteRelationships"); err != nil {
		return err
	}
	kept := s.rels[:0]
	for _, r := range s.rels {
		if r.AgentID != agentID {
			kept = append(kept, r)
		}
	}
	s.rels = kept
	return nil
}

func (s *memoryStore) InsertRelationship(_ context.Context, r *models.AgentRelationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.hit("InsertRelationship"); err != nil {
		return err
	}
	s.rels = append(s.rels, *r)
	return nil
}

func (s *memoryStore) DeleteAgentSchema(_ context.Context, agentID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.hit("DeleteAgentSchema"); err != nil {
		return err
	}
	var tables []*models.AgentTable
	for _, t := range s.tables {
		if t.AgentID != agentID {
			tables = append(tables, t)
		}
	}
	var columns []*models.AgentColumn
	for _, c := range s.columns {
		if c.AgentID != agentID {
			columns = append(columns, c)
		}
	}
	var rels []models.AgentRelationship
	for _, r := range s.rels {
		if r.AgentID != agentID {
			rels = append(rels, r)
		}
	}
	s.tables, s.columns, s.rels = tables, columns, rels
	return nil
}

func (s *memoryStore) GetTable(_ context.Context, agentID, tableID uuid.UUID) (*models.AgentTable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tables {
		if t.AgentID == agentID && t.ID == tableID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memoryStore) GetColumn(_ context.Context, agentID, columnID uuid.UUID) (*models.AgentColumn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.columns {
		if c.AgentID == agentID && c.ID == columnID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memoryStore) UpdateTableMetadata(_ context.Context, agentID, tableID uuid.UUID, p models.TableMetadataPatch) (*models.AgentTable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.hit("UpdateTableMetadata"); err != nil {
		return nil, err
	}
	for _, t := range s.tables {
		if t.AgentID != agentID || t.ID != tableID {
			continue
		}
		if p.AdminDescription != nil {
			t.AdminDescription = p.AdminDescription
		}
		if p.SemanticHints != nil {
			t.SemanticHints = p.SemanticHints
		}
		if p.CustomPrompt != nil {
			t.CustomPrompt = p.CustomPrompt
		}
		if p.IsVisible != nil {
			t.IsVisible = *p.IsVisible
		}
		if p.IsQueryable != nil {
			t.IsQueryable = *p.IsQueryable
		}
		cp := *t
		return &cp, nil
	}
	return nil, nil
}

func (s *memoryStore) UpdateColumnMetadata(_ context.Context, agentID, columnID uuid.UUID, p models.ColumnMetadataPatch) (*models.AgentColumn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.hit("UpdateColumnMetadata"); err != nil {
		return nil, err
	}
	for _, c := range s.columns {
		if c.AgentID != agentID || c.ID != columnID {
			continue
		}
		if p.AdminDescription != nil {
			c.AdminDescription = p.AdminDescription
		}
		if p.SemanticHints != nil {
			c.SemanticHints = p.SemanticHints
		}
		if p.CustomPrompt != nil {
			c.CustomPrompt = p.CustomPrompt
		}
		if p.IsVisible != nil {
			c.IsVisible = *p.IsVisible
		}
		if p.IsQueryable != nil {
			c.IsQueryable = *p.IsQueryable
		}
		if p.IsSensitive != nil {
			c.IsSensitive = *p.IsSensitive
		}
		if p.SensitivityOverride != nil {
			c.SensitivityOverride = p.SensitivityOverride
		}
		if p.MaskingStrategyOverride != nil {
			c.MaskingStrategyOverride = p.MaskingStrategyOverride
		}
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (s *memoryStore) ListTables(_ context.Context, agentID uuid.UUID) ([]models.AgentTable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.hit("ListTables"); err != nil {
		return nil, err
	}
	var out []models.AgentTable
	for _, t := range s.tables {
		if t.AgentID == agentID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (s *memoryStore) ListColumns(_ context.Context, agentID uuid.UUID) ([]models.AgentColumn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.AgentColumn
	for _, c := range s.columns {
		if c.AgentID == agentID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (s *memoryStore) ListRelationships(_ context.Context, agentID uuid.UUID) ([]models.AgentRelationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.AgentRelationship
	for _, r := range s.rels {
		if r.AgentID == agentID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memoryStore) table(name string) *models.AgentTable {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tables {
		if t.TableName == name {
			cp := *t
			return &cp
		}
	}
	return nil
}

func (s *memoryStore) column(table, name string) *models.AgentColumn {
	t := s.table(table)
	if t == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.columns {
		if c.TableID == t.ID && c.ColumnName == name {
			cp := *c
			return &cp
		}
	}
	return nil
}

type memoryCache struct {
	mu        sync.Mutex
	data      map[string][]byte
	deleted   []string
	patterns  []string
	deleteErr error
	gets      int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: make(map[string][]byte)}
}

func (c *memoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memoryCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *memoryCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.deleteErr != nil {
		return c.deleteErr
	}
	for _, k := range keys {
		delete(c.data, k)
		c.deleted = append(c.deleted, k)
	}
	return nil
}

func (c *memoryCache) DeletePattern(_ context.Context, pattern string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.deleteErr != nil {
		return 0, c.deleteErr
	}
	c.patterns = append(c.patterns, pattern)
	prefix := strings.TrimSuffix(pattern, "*")
	n := 0
	for k := range c.data {
		if strings.HasPrefix(k, prefix) {
			delete(c.data, k)
			n++
		}
	}
	return n, nil
}

type memoryAudit struct {
	mu     sync.Mutex
	events []models.AuditEvent
	err    error
}

func (a *memoryAudit) Record(_ context.Context, e *models.AuditEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.events = append(a.events, *e)
	return nil
}

func (a *memoryAudit) ListByAgent(_ context.Context, agentID uuid.UUID, limit int) ([]models.AuditEvent, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := []models.AuditEvent{}
	for i := len(a.events) - 1; i >= 0 && len(out) < limit; i-- {
		if a.events[i].AgentID == agentID {
			out = append(out, a.events[i])
		}
	}
	return out, nil
}

// testPool answers queries through fn.
type testPool struct {
	dialect string
	pingErr error
	fn      func(sql string) (*models.QueryResult, error)
	mu      sync.Mutex
	queries []string
	closed  bool
}

func (p *testPool) Dialect() string { return p.dialect }

func (p *testPool) Query(_ context.Context, sql string, _ ...any) (*models.QueryResult, error) {
	p.mu.Lock()
	p.queries = append(p.queries, sql)
	p.mu.Unlock()
	if p.fn == nil {
		return &models.QueryResult{}, nil
	}
	return p.fn(sql)
}

func (p *testPool) Ping(context.Context) error { return p.pingErr }

func (p *testPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

type staticResolver struct {
	cred *models.ExternalCredential
	pool external.Pool
	err  error
}

func (r staticResolver) Pool(context.Context, uuid.UUID) (*models.ExternalCredential, external.Pool, error) {
	return r.cred, r.pool, r.err
}

type plainCodec struct{}

func (plainCodec) Encrypt(s string) (string, error) { return "enc:" + s, nil }

func (plainCodec) Decrypt(s string) (string, error) { return strings.TrimPrefix(s, "enc:"), nil }

func newTestPoolManager() *external.PoolManager {
	return external.NewPoolManager(plainCodec{}, 0, zap.NewNop())
}

// scriptedIntrospector returns snap or err. When release is set each call signals started and
// then waits for release to be closed.
type scriptedIntrospector struct {
	mu      sync.Mutex
	snap    *models.SchemaSnapshot
	err     error
	calls   int
	started chan struct{}
	release chan struct{}
}

func (i *scriptedIntrospector) FetchSchema(context.Context, external.Querier, *models.ExternalCredential) (*models.SchemaSnapshot, error) {
	i.mu.Lock()
	i.calls++
	snap, err, started, release := i.snap, i.err, i.started, i.release
	i.mu.Unlock()

	if release != nil {
		started <- struct{}{}
		<-release
	}
	if err != nil {
		return nil, err
	}
	cp := *snap
	return &cp, nil
}

func (i *scriptedIntrospector) callCount() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.calls
}

func strPtr(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }

func int64Ptr(n int64) *int64 { return &n }

// ordersSnapshot is a small shop schema: customers <- orders.
func ordersSnapshot() *models.SchemaSnapshot {
	captured := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	return &models.SchemaSnapshot{
		Tables: []models.SnapshotTable{
			{
				Schema:   "public",
				Name:     "customers",
				Comment:  strPtr("Registered customers"),
				RowCount: int64Ptr(120),
				Columns: []models.SnapshotColumn{
					{Name: "id", DataType: "integer", IsPrimaryKey: true, IsUnique: true, IsIndexed: true},
					{Name: "email", DataType: "character varying(255)", IsUnique: true},
				},
			},
			{
				Schema:  "public",
				Name:    "orders",
				Comment: strPtr("Customer orders"),
				Columns: []models.SnapshotColumn{
					{Name: "id", DataType: "integer", IsPrimaryKey: true},
					{Name: "customer_id", DataType: "integer", IsForeignKey: true, Nullable: false},
					{Name: "total", DataType: "numeric(10,2)", Nullable: true},
				},
			},
		},
		Relationships: []models.SnapshotRelationship{
			{
				SourceSchema: "public", SourceTable: "orders", SourceColumn: "customer_id",
				TargetSchema: "public", TargetTable: "customers", TargetColumn: "id",
				ConstraintName: "orders_customer_id_fkey", Type: models.RelationshipForeignKey,
			},
		},
		RelationshipsComplete: true,
		CapturedAt:            &captured,
	}
}
