package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/draftloom/draftloom/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB for advanced usage (e.g. event log).
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// --- Workflows ---

func (s *LibSQLStore) CreateWorkflow(ctx context.Context, wf *schema.Workflow) error {
	progress, err := json.Marshal(wf.Progress)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create workflow: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if wf.CreatedAt.IsZero() {
		wf.CreatedAt = now
	}
	wf.UpdatedAt = now

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO workflows (id, name, progress, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		wf.ID, nullStr(wf.Name), string(progress), wf.CreatedAt, wf.UpdatedAt,
	); err != nil {
		return fmt.Errorf("insert workflow: %w", err)
	}

	for i, node := range wf.Nodes {
		if err := insertNode(ctx, tx, wf.ID, i, &node); err != nil {
			return err
		}
	}
	for i, edge := range wf.Edges {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO edges (id, workflow_id, source, target, label, position) VALUES (?, ?, ?, ?, ?, ?)`,
			edge.ID, wf.ID, edge.Source, edge.Target, nullStr(edge.Label), i,
		); err != nil {
			return fmt.Errorf("insert edge %s: %w", edge.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create workflow: %w", err)
	}
	return nil
}

func insertNode(ctx context.Context, tx *sql.Tx, workflowID string, position int, node *schema.AgentNode) error {
	status := node.Status
	if status == "" {
		status = schema.NodeStatusIdle
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO nodes (workflow_id, node_id, position, agent_type, status, input, result, error, custom_prompt)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		workflowID, node.ID, position, string(node.AgentType), string(status),
		nullRaw(node.Input), nullRaw(node.Result), nullStr(node.Error), nullStr(node.CustomPrompt),
	); err != nil {
		return fmt.Errorf("insert node %s: %w", node.ID, err)
	}
	return nil
}

func (s *LibSQLStore) GetWorkflow(ctx context.Context, id string) (*schema.Workflow, error) {
	wf := &schema.Workflow{ID: id}
	var name sql.NullString
	var progress string
	err := s.db.QueryRowContext(ctx,
		`SELECT name, progress, created_at, updated_at FROM workflows WHERE id = ?`, id,
	).Scan(&name, &progress, &wf.CreatedAt, &wf.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("workflow", id)
	}
	if err != nil {
		return nil, err
	}
	wf.Name = name.String
	if err := json.Unmarshal([]byte(progress), &wf.Progress); err != nil {
		return nil, fmt.Errorf("unmarshal progress: %w", err)
	}

	nodes, err := s.ListNodeStates(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		wf.Nodes = append(wf.Nodes, *n)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source, target, label FROM edges WHERE workflow_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var e schema.Edge
		var label sql.NullString
		if err := rows.Scan(&e.ID, &e.Source, &e.Target, &label); err != nil {
			return nil, err
		}
		e.Label = label.String
		wf.Edges = append(wf.Edges, e)
	}
	return wf, rows.Err()
}

func (s *LibSQLStore) UpdateWorkflowProgress(ctx context.Context, id string, progress schema.WorkflowProgress) error {
	b, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE workflows SET progress = ?, updated_at = ? WHERE id = ?`,
		string(b), time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	return requireRow(res, "workflow", id)
}

func (s *LibSQLStore) ListWorkflows(ctx context.Context, limit int) ([]*schema.Workflow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM workflows ORDER BY updated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	workflows := make([]*schema.Workflow, 0, len(ids))
	for _, id := range ids {
		wf, err := s.GetWorkflow(ctx, id)
		if err != nil {
			return nil, err
		}
		workflows = append(workflows, wf)
	}
	return workflows, nil
}

func (s *LibSQLStore) DeleteWorkflow(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireRow(res, "workflow", id)
}

// --- Node state ---

func (s *LibSQLStore) UpsertNodeState(ctx context.Context, workflowID string, node *schema.AgentNode) error {
	// Position is preserved on conflict; new nodes get appended at the end.
	var next int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position), -1) + 1 FROM nodes WHERE workflow_id = ?`, workflowID,
	).Scan(&next); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO nodes (workflow_id, node_id, position, agent_type, status, input, result, error, custom_prompt)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(workflow_id, node_id) DO UPDATE SET
		   agent_type=excluded.agent_type, status=excluded.status, input=excluded.input,
		   result=excluded.result, error=excluded.error, custom_prompt=excluded.custom_prompt`,
		workflowID, node.ID, next, string(node.AgentType), string(node.Status),
		nullRaw(node.Input), nullRaw(node.Result), nullStr(node.Error), nullStr(node.CustomPrompt),
	)
	return err
}

func (s *LibSQLStore) GetNodeState(ctx context.Context, workflowID, nodeID string) (*schema.AgentNode, error) {
	node := &schema.AgentNode{ID: nodeID}
	var agentType, status string
	var input, result, errMsg, customPrompt sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT agent_type, status, input, result, error, custom_prompt
		 FROM nodes WHERE workflow_id = ? AND node_id = ?`, workflowID, nodeID,
	).Scan(&agentType, &status, &input, &result, &errMsg, &customPrompt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("node", nodeID)
	}
	if err != nil {
		return nil, err
	}
	node.AgentType = schema.AgentType(agentType)
	node.Status = schema.NodeStatus(status)
	node.Input = jsonOrNil(input)
	node.Result = jsonOrNil(result)
	node.Error = errMsg.String
	node.CustomPrompt = customPrompt.String
	return node, nil
}

func (s *LibSQLStore) ListNodeStates(ctx context.Context, workflowID string) ([]*schema.AgentNode, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT node_id, agent_type, status, input, result, error, custom_prompt
		 FROM nodes WHERE workflow_id = ? ORDER BY position`, workflowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var nodes []*schema.AgentNode
	for rows.Next() {
		node := &schema.AgentNode{}
		var agentType, status string
		var input, result, errMsg, customPrompt sql.NullString
		if err := rows.Scan(&node.ID, &agentType, &status, &input, &result, &errMsg, &customPrompt); err != nil {
			return nil, err
		}
		node.AgentType = schema.AgentType(agentType)
		node.Status = schema.NodeStatus(status)
		node.Input = jsonOrNil(input)
		node.Result = jsonOrNil(result)
		node.Error = errMsg.String
		node.CustomPrompt = customPrompt.String
		nodes = append(nodes, node)
	}
	return nodes, rows.Err()
}

// --- Events ---

func (s *LibSQLStore) GetEvents(ctx context.Context, workflowID string, since int64) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, workflow_id, node_id, event_type, payload, timestamp, sequence
		 FROM events WHERE workflow_id = ? AND sequence > ? ORDER BY sequence ASC`,
		workflowID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		e := &Event{}
		var nodeID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.WorkflowID, &nodeID, &e.Type, &payload, &e.Timestamp, &e.Sequence); err != nil {
			return nil, err
		}
		e.NodeID = nodeID.String
		e.Payload = jsonOrNil(payload)
		events = append(events, e)
	}
	return events, rows.Err()
}

// AppendEvent delegates to the EventLog sequence logic.
func (s *LibSQLStore) AppendEvent(ctx context.Context, event *Event) error {
	return NewEventLog(s).AppendEvent(ctx, event)
}

// --- Document versions ---

func (s *LibSQLStore) CreateVersion(ctx context.Context, v *DocumentVersion) error {
	stats, err := nullableJSON(v.Stats)
	if err != nil {
		return fmt.Errorf("marshal version stats: %w", err)
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO document_versions (id, workflow_id, content, message, stats, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		v.ID, v.WorkflowID, v.Content, nullStr(v.Message), stats, v.CreatedAt,
	)
	return err
}

func (s *LibSQLStore) ListVersions(ctx context.Context, workflowID string, limit int) ([]*DocumentVersion, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, workflow_id, content, message, stats, created_at
		 FROM document_versions WHERE workflow_id = ? ORDER BY created_at DESC LIMIT ?`,
		workflowID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []*DocumentVersion
	for rows.Next() {
		v := &DocumentVersion{}
		var message, stats sql.NullString
		if err := rows.Scan(&v.ID, &v.WorkflowID, &v.Content, &message, &stats, &v.CreatedAt); err != nil {
			return nil, err
		}
		v.Message = message.String
		v.Stats = jsonOrNil(stats)
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Secrets ---

func (s *LibSQLStore) StoreSecret(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO secrets (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value`,
		key, value,
	)
	return err
}

func (s *LibSQLStore) GetSecret(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM secrets WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("secret", key)
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (s *LibSQLStore) DeleteSecret(ctx context.Context, key string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM secrets WHERE key = ?`, key)
	if err != nil {
		return err
	}
	return requireRow(res, "secret", key)
}

func (s *LibSQLStore) ListSecrets(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM secrets ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// --- Helpers ---

func storeNotFound(kind, id string) error {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s not found: %s", kind, id)
}

func requireRow(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(kind, id)
	}
	return nil
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullRaw(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func nullableJSON(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("invalid JSON payload")
	}
	return string(raw), nil
}

func jsonOrNil(s sql.NullString) json.RawMessage {
	if !s.Valid || s.String == "" {
		return nil
	}
	return json.RawMessage(s.String)
}
