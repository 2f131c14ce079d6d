package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/BTreeMap/BotRouter/internal/models"
)

// dialect captures the differences between the SQL backends.
type dialect struct {
	name string
	// numbered rewrites ? placeholders to $1..$n
	numbered bool
	// returning uses INSERT ... RETURNING id instead of LastInsertId
	returning bool
}

var (
	sqliteDialect   = dialect{name: "sqlite3", returning: true}
	postgresDialect = dialect{name: "postgres", numbered: true, returning: true}
	mysqlDialect    = dialect{name: "mysql"}
)

// rebind rewrites ? placeholders for dialects using numbered parameters.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// sqlStore implements Store over database/sql. The SQLite, PostgreSQL and
// MySQL stores embed it and differ only in driver, pool and migrations.
type sqlStore struct {
	db      *sql.DB
	dialect dialect
}

// runMigrations executes a migration script one statement at a time so
// drivers without multi-statement support accept it.
func runMigrations(db *sql.DB, script string) error {
	for _, stmt := range strings.Split(script, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" || strings.HasPrefix(stmt, "--") && !strings.Contains(stmt, "\n") {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration statement failed: %w", err)
		}
	}
	return nil
}

func (s *sqlStore) exec(q queryer, query string, args ...any) (sql.Result, error) {
	return q.Exec(s.dialect.rebind(query), args...)
}

func (s *sqlStore) query(q queryer, query string, args ...any) (*sql.Rows, error) {
	return q.Query(s.dialect.rebind(query), args...)
}

func (s *sqlStore) queryRow(q queryer, query string, args ...any) *sql.Row {
	return q.QueryRow(s.dialect.rebind(query), args...)
}

// insert runs an INSERT and returns the new row id.
func (s *sqlStore) insert(q queryer, query string, args ...any) (int64, error) {
	if s.dialect.returning {
		var id int64
		if err := s.queryRow(q, query+" RETURNING id", args...).Scan(&id); err != nil {
			return 0, err
		}
		return id, nil
	}
	res, err := s.exec(q, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// update runs an UPDATE and reports ErrNotFound when no row changed.
func (s *sqlStore) update(q queryer, query string, args ...any) error {
	res, err := s.exec(q, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 && s.dialect.name != mysqlDialect.name {
		// MySQL reports zero affected rows when values are unchanged
		return ErrNotFound
	}
	return nil
}

func (s *sqlStore) Ping() error {
	return s.db.Ping()
}

func (s *sqlStore) Close() error {
	slog.Debug("sqlStore.Close: closing database", "dialect", s.dialect.name)
	return s.db.Close()
}

// ---- settings ----

const settingsColumns = `id, user_id, bot_name, bot_description, bot_welcome, bot_avatar,
	encrypted_openai_key, encrypted_mistral_key, encrypted_claude_key, current_provider,
	openai_model, mistral_model, claude_model, updated_at`

func (s *sqlStore) GetUserSettings(userID int64) (*models.Settings, error) {
	return s.getSettings(`SELECT `+settingsColumns+` FROM settings WHERE user_id = ? ORDER BY id LIMIT 1`, userID)
}

func (s *sqlStore) GetGlobalSettings() (*models.Settings, error) {
	return s.getSettings(`SELECT ` + settingsColumns + ` FROM settings WHERE user_id IS NULL ORDER BY id LIMIT 1`)
}

func (s *sqlStore) GetFirstSettings() (*models.Settings, error) {
	return s.getSettings(`SELECT ` + settingsColumns + ` FROM settings ORDER BY id LIMIT 1`)
}

func (s *sqlStore) getSettings(query string, args ...any) (*models.Settings, error) {
	row := s.queryRow(s.db, query, args...)
	st, err := scanSettings(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Error("sqlStore.getSettings: scan failed", "error", err)
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	return st, nil
}

func (s *sqlStore) SaveSettings(st *models.Settings) error {
	if err := st.Validate(); err != nil {
		return err
	}
	st.UpdatedAt = time.Now().UTC()
	args := []any{
		nullInt64(st.UserID), st.BotName, st.BotDescription, st.BotWelcome, st.BotAvatar,
		st.EncryptedOpenAIKey, st.EncryptedMistralKey, st.EncryptedClaudeKey, string(st.CurrentProvider),
		st.OpenAIModel, st.MistralModel, st.ClaudeModel, st.UpdatedAt.Unix(),
	}
	if st.ID == 0 {
		id, err := s.insert(s.db, `INSERT INTO settings (user_id, bot_name, bot_description, bot_welcome, bot_avatar,
			encrypted_openai_key, encrypted_mistral_key, encrypted_claude_key, current_provider,
			openai_model, mistral_model, claude_model, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
		if err != nil {
			slog.Error("sqlStore.SaveSettings: insert failed", "error", err)
			return fmt.Errorf("failed to insert settings: %w", err)
		}
		st.ID = id
		slog.Debug("sqlStore.SaveSettings: inserted", "id", id)
		return nil
	}
	err := s.update(s.db, `UPDATE settings SET user_id = ?, bot_name = ?, bot_description = ?, bot_welcome = ?, bot_avatar = ?,
		encrypted_openai_key = ?, encrypted_mistral_key = ?, encrypted_claude_key = ?, current_provider = ?,
		openai_model = ?, mistral_model = ?, claude_model = ?, updated_at = ? WHERE id = ?`, append(args, st.ID)...)
	if err != nil {
		slog.Error("sqlStore.SaveSettings: update failed", "error", err, "id", st.ID)
		return fmt.Errorf("failed to update settings %d: %w", st.ID, err)
	}
	return nil
}

// ---- bot responses and quick responses ----

const botResponsesColumns = `id, communication_style, language_level, personality_traits,
	welcome_message, goodbye_message, fallback_message, redirect_message,
	general_error, technical_error, invalid_data, service_unavailable,
	vocabulary, essential_templates, behavior_config`

func (s *sqlStore) GetBotResponses() (*models.BotResponses, error) {
	var (
		r                                 models.BotResponses
		traits, vocab, templates, behavior sql.NullString
	)
	err := s.queryRow(s.db, `SELECT `+botResponsesColumns+` FROM bot_responses ORDER BY id LIMIT 1`).Scan(
		&r.ID, &r.CommunicationStyle, &r.LanguageLevel, &traits,
		&r.WelcomeMessage, &r.GoodbyeMessage, &r.FallbackMessage, &r.RedirectMessage,
		&r.GeneralError, &r.TechnicalError, &r.InvalidData, &r.ServiceUnavailable,
		&vocab, &templates, &behavior,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Error("sqlStore.GetBotResponses: scan failed", "error", err)
		return nil, fmt.Errorf("failed to load bot responses: %w", err)
	}
	if err := decodeJSONColumns(
		jsonColumn{"personality_traits", traits, &r.PersonalityTraits},
		jsonColumn{"vocabulary", vocab, &r.Vocabulary},
		jsonColumn{"essential_templates", templates, &r.EssentialTemplates},
		jsonColumn{"behavior_config", behavior, &r.BehaviorConfig},
	); err != nil {
		slog.Error("sqlStore.GetBotResponses: decode failed", "error", err)
		return nil, err
	}
	return &r, nil
}

func (s *sqlStore) SaveBotResponses(r *models.BotResponses) error {
	traits, err := encodeJSON(r.PersonalityTraits)
	if err != nil {
		return err
	}
	vocab, err := encodeJSON(r.Vocabulary)
	if err != nil {
		return err
	}
	templates, err := encodeJSON(r.EssentialTemplates)
	if err != nil {
		return err
	}
	behavior, err := encodeJSON(r.BehaviorConfig)
	if err != nil {
		return err
	}
	args := []any{
		r.CommunicationStyle, r.LanguageLevel, traits,
		r.WelcomeMessage, r.GoodbyeMessage, r.FallbackMessage, r.RedirectMessage,
		r.GeneralError, r.TechnicalError, r.InvalidData, r.ServiceUnavailable,
		vocab, templates, behavior,
	}
	if r.ID == 0 {
		id, err := s.insert(s.db, `INSERT INTO bot_responses (communication_style, language_level, personality_traits,
			welcome_message, goodbye_message, fallback_message, redirect_message,
			general_error, technical_error, invalid_data, service_unavailable,
			vocabulary, essential_templates, behavior_config) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
		if err != nil {
			slog.Error("sqlStore.SaveBotResponses: insert failed", "error", err)
			return fmt.Errorf("failed to insert bot responses: %w", err)
		}
		r.ID = id
		return nil
	}
	if err := s.update(s.db, `UPDATE bot_responses SET communication_style = ?, language_level = ?, personality_traits = ?,
		welcome_message = ?, goodbye_message = ?, fallback_message = ?, redirect_message = ?,
		general_error = ?, technical_error = ?, invalid_data = ?, service_unavailable = ?,
		vocabulary = ?, essential_templates = ?, behavior_config = ? WHERE id = ?`, append(args, r.ID)...); err != nil {
		slog.Error("sqlStore.SaveBotResponses: update failed", "error", err, "id", r.ID)
		return fmt.Errorf("failed to update bot responses %d: %w", r.ID, err)
	}
	return nil
}

func (s *sqlStore) ListDefaultMessages() ([]models.DefaultMessage, error) {
	rows, err := s.query(s.db, `SELECT id, title, content, triggers FROM default_messages ORDER BY id`)
	if err != nil {
		slog.Error("sqlStore.ListDefaultMessages: query failed", "error", err)
		return nil, fmt.Errorf("failed to query default messages: %w", err)
	}
	defer rows.Close()

	var out []models.DefaultMessage
	for rows.Next() {
		var m models.DefaultMessage
		if err := rows.Scan(&m.ID, &m.Title, &m.Content, &m.Triggers); err != nil {
			return nil, fmt.Errorf("failed to scan default message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *sqlStore) CountDefaultMessages() (int, error) {
	var n int
	if err := s.queryRow(s.db, `SELECT COUNT(*) FROM default_messages`).Scan(&n); err != nil {
		slog.Error("sqlStore.CountDefaultMessages: query failed", "error", err)
		return 0, fmt.Errorf("failed to count default messages: %w", err)
	}
	return n, nil
}

func (s *sqlStore) SaveDefaultMessage(m *models.DefaultMessage) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if m.ID == 0 {
		id, err := s.insert(s.db, `INSERT INTO default_messages (title, content, triggers) VALUES (?, ?, ?)`, m.Title, m.Content, m.Triggers)
		if err != nil {
			slog.Error("sqlStore.SaveDefaultMessage: insert failed", "error", err)
			return fmt.Errorf("failed to insert default message: %w", err)
		}
		m.ID = id
		return nil
	}
	if err := s.update(s.db, `UPDATE default_messages SET title = ?, content = ?, triggers = ? WHERE id = ?`, m.Title, m.Content, m.Triggers, m.ID); err != nil {
		return fmt.Errorf("failed to update default message %d: %w", m.ID, err)
	}
	return nil
}

func (s *sqlStore) DeleteDefaultMessage(id int64) error {
	if _, err := s.exec(s.db, `DELETE FROM default_messages WHERE id = ?`, id); err != nil {
		slog.Error("sqlStore.DeleteDefaultMessage: delete failed", "error", err, "id", id)
		return fmt.Errorf("failed to delete default message %d: %w", id, err)
	}
	return nil
}

// ---- conversation flows ----

func (s *sqlStore) HasActiveFlows() (bool, error) {
	var n int
	if err := s.queryRow(s.db, `SELECT COUNT(*) FROM conversation_flows WHERE is_active = ?`, true).Scan(&n); err != nil {
		slog.Error("sqlStore.HasActiveFlows: query failed", "error", err)
		return false, fmt.Errorf("failed to count active flows: %w", err)
	}
	return n > 0, nil
}

func (s *sqlStore) ListActiveFlows() ([]models.ConversationFlow, error) {
	return s.listFlows(`SELECT id, name, description, is_active, flow_data, created_at FROM conversation_flows WHERE is_active = ? ORDER BY id`, true)
}

func (s *sqlStore) ListFlows() ([]models.ConversationFlow, error) {
	return s.listFlows(`SELECT id, name, description, is_active, flow_data, created_at FROM conversation_flows ORDER BY id`)
}

func (s *sqlStore) listFlows(query string, args ...any) ([]models.ConversationFlow, error) {
	rows, err := s.query(s.db, query, args...)
	if err != nil {
		slog.Error("sqlStore.listFlows: query failed", "error", err)
		return nil, fmt.Errorf("failed to query flows: %w", err)
	}
	defer rows.Close()

	var out []models.ConversationFlow
	for rows.Next() {
		f, err := scanFlow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *sqlStore) GetFlowGraph(flowID int64) (*models.FlowGraph, error) {
	row := s.queryRow(s.db, `SELECT id, name, description, is_active, flow_data, created_at FROM conversation_flows WHERE id = ?`, flowID)
	flow, err := scanFlow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		slog.Error("sqlStore.GetFlowGraph: flow scan failed", "error", err, "flowID", flowID)
		return nil, err
	}
	g := &models.FlowGraph{Flow: flow}

	rows, err := s.query(s.db, `SELECT id, flow_id, node_type, position_x, position_y, config FROM flow_nodes WHERE flow_id = ? ORDER BY id`, flowID)
	if err != nil {
		slog.Error("sqlStore.GetFlowGraph: node query failed", "error", err, "flowID", flowID)
		return nil, fmt.Errorf("failed to query flow nodes: %w", err)
	}
	for rows.Next() {
		var (
			n   models.FlowNode
			raw sql.NullString
		)
		if err := rows.Scan(&n.ID, &n.FlowID, &n.Type, &n.PositionX, &n.PositionY, &raw); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan flow node: %w", err)
		}
		cfg, err := models.DecodeNodeConfig(n.Type, []byte(raw.String))
		if err != nil {
			// keep the node so the walk can log and skip it
			slog.Warn("sqlStore.GetFlowGraph: undecodable node config", "error", err, "nodeID", n.ID)
		}
		n.Config = cfg
		g.Nodes = append(g.Nodes, n)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	crows, err := s.query(s.db, `SELECT id, source_node_id, target_node_id, condition_expr, priority FROM node_connections WHERE flow_id = ? ORDER BY priority, id`, flowID)
	if err != nil {
		slog.Error("sqlStore.GetFlowGraph: connection query failed", "error", err, "flowID", flowID)
		return nil, fmt.Errorf("failed to query node connections: %w", err)
	}
	defer crows.Close()
	for crows.Next() {
		var c models.NodeConnection
		if err := crows.Scan(&c.ID, &c.SourceNodeID, &c.TargetNodeID, &c.Condition, &c.Priority); err != nil {
			return nil, fmt.Errorf("failed to scan node connection: %w", err)
		}
		g.Connections = append(g.Connections, c)
	}
	return g, crows.Err()
}

func (s *sqlStore) SaveFlowGraph(g *models.FlowGraph) (err error) {
	if err := g.Validate(); err != nil {
		return err
	}
	flowData := string(g.Flow.FlowData)
	if flowData == "" {
		flowData = "{}"
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				slog.Error("sqlStore.SaveFlowGraph: rollback failed", "error", rbErr)
			}
		}
	}()

	if g.Flow.ID == 0 {
		if g.Flow.CreatedAt.IsZero() {
			g.Flow.CreatedAt = time.Now().UTC()
		}
		id, err := s.insert(tx, `INSERT INTO conversation_flows (name, description, is_active, flow_data, created_at) VALUES (?, ?, ?, ?, ?)`,
			g.Flow.Name, g.Flow.Description, g.Flow.IsActive, flowData, g.Flow.CreatedAt.Unix())
		if err != nil {
			slog.Error("sqlStore.SaveFlowGraph: flow insert failed", "error", err)
			return fmt.Errorf("failed to insert flow: %w", err)
		}
		g.Flow.ID = id
	} else {
		if err := s.update(tx, `UPDATE conversation_flows SET name = ?, description = ?, is_active = ?, flow_data = ? WHERE id = ?`,
			g.Flow.Name, g.Flow.Description, g.Flow.IsActive, flowData, g.Flow.ID); err != nil {
			return fmt.Errorf("failed to update flow %d: %w", g.Flow.ID, err)
		}
		if _, err := s.exec(tx, `DELETE FROM node_connections WHERE flow_id = ?`, g.Flow.ID); err != nil {
			return fmt.Errorf("failed to clear connections: %w", err)
		}
		if _, err := s.exec(tx, `DELETE FROM flow_nodes WHERE flow_id = ?`, g.Flow.ID); err != nil {
			return fmt.Errorf("failed to clear nodes: %w", err)
		}
	}

	idMap := make(map[int64]int64, len(g.Nodes))
	for i := range g.Nodes {
		n := &g.Nodes[i]
		cfg, err := json.Marshal(n.Config)
		if err != nil {
			return fmt.Errorf("failed to encode node config: %w", err)
		}
		newID, err := s.insert(tx, `INSERT INTO flow_nodes (flow_id, node_type, position_x, position_y, config) VALUES (?, ?, ?, ?, ?)`,
			g.Flow.ID, string(n.Type), n.PositionX, n.PositionY, string(cfg))
		if err != nil {
			slog.Error("sqlStore.SaveFlowGraph: node insert failed", "error", err)
			return fmt.Errorf("failed to insert flow node: %w", err)
		}
		idMap[n.ID] = newID
		n.ID = newID
		n.FlowID = g.Flow.ID
	}
	for i := range g.Connections {
		c := &g.Connections[i]
		c.SourceNodeID = idMap[c.SourceNodeID]
		c.TargetNodeID = idMap[c.TargetNodeID]
		newID, err := s.insert(tx, `INSERT INTO node_connections (flow_id, source_node_id, target_node_id, condition_expr, priority) VALUES (?, ?, ?, ?, ?)`,
			g.Flow.ID, c.SourceNodeID, c.TargetNodeID, c.Condition, c.Priority)
		if err != nil {
			slog.Error("sqlStore.SaveFlowGraph: connection insert failed", "error", err)
			return fmt.Errorf("failed to insert node connection: %w", err)
		}
		c.ID = newID
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit flow graph: %w", err)
	}
	slog.Debug("sqlStore.SaveFlowGraph: saved", "flowID", g.Flow.ID, "nodes", len(g.Nodes), "connections", len(g.Connections))
	return nil
}

func (s *sqlStore) SetFlowActive(flowID int64, active bool) error {
	if err := s.update(s.db, `UPDATE conversation_flows SET is_active = ? WHERE id = ?`, active, flowID); err != nil {
		return fmt.Errorf("failed to set flow %d active=%t: %w", flowID, active, err)
	}
	return nil
}

func (s *sqlStore) DeleteFlow(flowID int64) (err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	for _, q := range []string{
		`DELETE FROM node_connections WHERE flow_id = ?`,
		`DELETE FROM flow_nodes WHERE flow_id = ?`,
		`DELETE FROM conversation_flows WHERE id = ?`,
	} {
		if _, err = s.exec(tx, q, flowID); err != nil {
			slog.Error("sqlStore.DeleteFlow: delete failed", "error", err, "flowID", flowID)
			return fmt.Errorf("failed to delete flow %d: %w", flowID, err)
		}
	}
	return tx.Commit()
}

// ---- knowledge ----

func (s *sqlStore) ListCategories() ([]models.KnowledgeCategory, error) {
	rows, err := s.query(s.db, `SELECT id, name, description FROM knowledge_categories ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query categories: %w", err)
	}
	defer rows.Close()
	var out []models.KnowledgeCategory
	for rows.Next() {
		var c models.KnowledgeCategory
		if err := rows.Scan(&c.ID, &c.Name, &c.Description); err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *sqlStore) SaveCategory(c *models.KnowledgeCategory) error {
	if c.ID == 0 {
		id, err := s.insert(s.db, `INSERT INTO knowledge_categories (name, description) VALUES (?, ?)`, c.Name, c.Description)
		if err != nil {
			return fmt.Errorf("failed to insert category: %w", err)
		}
		c.ID = id
		return nil
	}
	return s.update(s.db, `UPDATE knowledge_categories SET name = ?, description = ? WHERE id = ?`, c.Name, c.Description, c.ID)
}

func (s *sqlStore) ListFAQs() ([]models.FAQ, error) {
	rows, err := s.query(s.db, `SELECT id, category_id, question, answer, keywords, priority FROM faqs ORDER BY priority DESC, id`)
	if err != nil {
		slog.Error("sqlStore.ListFAQs: query failed", "error", err)
		return nil, fmt.Errorf("failed to query faqs: %w", err)
	}
	defer rows.Close()
	var out []models.FAQ
	for rows.Next() {
		var (
			f        models.FAQ
			category sql.NullInt64
			keywords sql.NullString
		)
		if err := rows.Scan(&f.ID, &category, &f.Question, &f.Answer, &keywords, &f.Priority); err != nil {
			return nil, fmt.Errorf("failed to scan faq: %w", err)
		}
		f.CategoryID = int64Ptr(category)
		if err := decodeJSONColumns(jsonColumn{"keywords", keywords, &f.Keywords}); err != nil {
			slog.Warn("sqlStore.ListFAQs: ignoring malformed keywords", "error", err, "faqID", f.ID)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *sqlStore) SaveFAQ(f *models.FAQ) error {
	if err := f.Validate(); err != nil {
		return err
	}
	keywords, err := encodeJSON(f.Keywords)
	if err != nil {
		return err
	}
	if f.ID == 0 {
		id, err := s.insert(s.db, `INSERT INTO faqs (category_id, question, answer, keywords, priority) VALUES (?, ?, ?, ?, ?)`,
			nullInt64(f.CategoryID), f.Question, f.Answer, keywords, f.Priority)
		if err != nil {
			return fmt.Errorf("failed to insert faq: %w", err)
		}
		f.ID = id
		return nil
	}
	return s.update(s.db, `UPDATE faqs SET category_id = ?, question = ?, answer = ?, keywords = ?, priority = ? WHERE id = ?`,
		nullInt64(f.CategoryID), f.Question, f.Answer, keywords, f.Priority, f.ID)
}

func (s *sqlStore) ListDocuments() ([]models.Document, error) {
	rows, err := s.query(s.db, `SELECT id, category_id, title, filename, file_type, content, summary, status, created_at FROM documents ORDER BY id`)
	if err != nil {
		slog.Error("sqlStore.ListDocuments: query failed", "error", err)
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()
	var out []models.Document
	for rows.Next() {
		var (
			d        models.Document
			category sql.NullInt64
			created  int64
		)
		if err := rows.Scan(&d.ID, &category, &d.Title, &d.Filename, &d.FileType, &d.Content, &d.Summary, &d.Status, &created); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		d.CategoryID = int64Ptr(category)
		d.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *sqlStore) SaveDocument(d *models.Document) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	if d.Status == "" {
		d.Status = models.DocumentStatusPending
	}
	if d.ID == 0 {
		id, err := s.insert(s.db, `INSERT INTO documents (category_id, title, filename, file_type, content, summary, status, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			nullInt64(d.CategoryID), d.Title, d.Filename, d.FileType, d.Content, d.Summary, d.Status, d.CreatedAt.Unix())
		if err != nil {
			return fmt.Errorf("failed to insert document: %w", err)
		}
		d.ID = id
		return nil
	}
	return s.update(s.db, `UPDATE documents SET category_id = ?, title = ?, filename = ?, file_type = ?, content = ?, summary = ?, status = ? WHERE id = ?`,
		nullInt64(d.CategoryID), d.Title, d.Filename, d.FileType, d.Content, d.Summary, d.Status, d.ID)
}

func (s *sqlStore) ListActiveRules() ([]models.ResponseRule, error) {
	rows, err := s.query(s.db, `SELECT id, name, category_id, rule_conditions, response_template, priority, is_active
		FROM response_rules WHERE is_active = ? ORDER BY priority DESC, id`, true)
	if err != nil {
		slog.Error("sqlStore.ListActiveRules: query failed", "error", err)
		return nil, fmt.Errorf("failed to query response rules: %w", err)
	}
	defer rows.Close()
	var out []models.ResponseRule
	for rows.Next() {
		var (
			r          models.ResponseRule
			category   sql.NullInt64
			conditions sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Name, &category, &conditions, &r.ResponseTemplate, &r.Priority, &r.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan response rule: %w", err)
		}
		r.CategoryID = int64Ptr(category)
		if err := decodeJSONColumns(jsonColumn{"rule_conditions", conditions, &r.Conditions}); err != nil {
			slog.Warn("sqlStore.ListActiveRules: ignoring malformed conditions", "error", err, "ruleID", r.ID)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqlStore) SaveRule(r *models.ResponseRule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	conditions, err := encodeJSON(r.Conditions)
	if err != nil {
		return err
	}
	if r.ID == 0 {
		id, err := s.insert(s.db, `INSERT INTO response_rules (name, category_id, rule_conditions, response_template, priority, is_active) VALUES (?, ?, ?, ?, ?, ?)`,
			r.Name, nullInt64(r.CategoryID), conditions, r.ResponseTemplate, r.Priority, r.IsActive)
		if err != nil {
			return fmt.Errorf("failed to insert response rule: %w", err)
		}
		r.ID = id
		return nil
	}
	return s.update(s.db, `UPDATE response_rules SET name = ?, category_id = ?, rule_conditions = ?, response_template = ?, priority = ?, is_active = ? WHERE id = ?`,
		r.Name, nullInt64(r.CategoryID), conditions, r.ResponseTemplate, r.Priority, r.IsActive, r.ID)
}

// ---- usage ----

func (s *sqlStore) AddUsageLog(l models.UsageLog) error {
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	_, err := s.exec(s.db, `INSERT INTO api_usage_log (user_id, request_id, provider, model, tokens_used, request_duration, success, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.UserID, l.RequestID, string(l.Provider), l.Model, l.TokensUsed, l.RequestDuration, l.Success, l.ErrorMessage, l.CreatedAt.Unix())
	if err != nil {
		slog.Error("sqlStore.AddUsageLog: insert failed", "error", err, "userID", l.UserID)
		return fmt.Errorf("failed to insert usage log: %w", err)
	}
	return nil
}

func (s *sqlStore) ListUsageLogs(userID int64) ([]models.UsageLog, error) {
	rows, err := s.query(s.db, `SELECT id, user_id, request_id, provider, model, tokens_used, request_duration, success, error_message, created_at
		FROM api_usage_log WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage logs: %w", err)
	}
	defer rows.Close()
	var out []models.UsageLog
	for rows.Next() {
		var (
			l       models.UsageLog
			created int64
		)
		if err := rows.Scan(&l.ID, &l.UserID, &l.RequestID, &l.Provider, &l.Model, &l.TokensUsed, &l.RequestDuration, &l.Success, &l.ErrorMessage, &created); err != nil {
			return nil, fmt.Errorf("failed to scan usage log: %w", err)
		}
		l.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, l)
	}
	return out, rows.Err()
}
