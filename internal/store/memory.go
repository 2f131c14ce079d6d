package store

import (
	"sort"
	"sync"
	"time"

	"github.com/BTreeMap/BotRouter/internal/models"
)

// InMemoryStore is a simple in-memory Store used by tests and by the server
// when no database is configured.
type InMemoryStore struct {
	mu sync.RWMutex

	nextID int64

	settings     []models.Settings
	botResponses *models.BotResponses
	messages     []models.DefaultMessage
	flows        map[int64]*models.FlowGraph
	categories   []models.KnowledgeCategory
	faqs         []models.FAQ
	documents    []models.Document
	rules        []models.ResponseRule
	usage        []models.UsageLog
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{flows: make(map[int64]*models.FlowGraph)}
}

func (s *InMemoryStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *InMemoryStore) Ping() error  { return nil }
func (s *InMemoryStore) Close() error { return nil }

// ---- settings ----

func (s *InMemoryStore) GetUserSettings(userID int64) (*models.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.settings {
		if u := s.settings[i].UserID; u != nil && *u == userID {
			cp := s.settings[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *InMemoryStore) GetGlobalSettings() (*models.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.settings {
		if s.settings[i].UserID == nil {
			cp := s.settings[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *InMemoryStore) GetFirstSettings() (*models.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.settings) == 0 {
		return nil, nil
	}
	cp := s.settings[0]
	return &cp, nil
}

func (s *InMemoryStore) SaveSettings(st *models.Settings) error {
	if err := st.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st.UpdatedAt = time.Now().UTC()
	if st.ID == 0 {
		st.ID = s.id()
		s.settings = append(s.settings, *st)
		return nil
	}
	for i := range s.settings {
		if s.settings[i].ID == st.ID {
			s.settings[i] = *st
			return nil
		}
	}
	return ErrNotFound
}

// ---- responses ----

func (s *InMemoryStore) GetBotResponses() (*models.BotResponses, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.botResponses == nil {
		return nil, nil
	}
	cp := *s.botResponses
	return &cp, nil
}

func (s *InMemoryStore) SaveBotResponses(r *models.BotResponses) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == 0 {
		r.ID = s.id()
	}
	cp := *r
	s.botResponses = &cp
	return nil
}

func (s *InMemoryStore) ListDefaultMessages() ([]models.DefaultMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.DefaultMessage(nil), s.messages...), nil
}

func (s *InMemoryStore) CountDefaultMessages() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages), nil
}

func (s *InMemoryStore) SaveDefaultMessage(m *models.DefaultMessage) error {
	if err := m.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == 0 {
		m.ID = s.id()
		s.messages = append(s.messages, *m)
		return nil
	}
	for i := range s.messages {
		if s.messages[i].ID == m.ID {
			s.messages[i] = *m
			return nil
		}
	}
	return ErrNotFound
}

func (s *InMemoryStore) DeleteDefaultMessage(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		if s.messages[i].ID == id {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			return nil
		}
	}
	return nil
}

// ---- flows ----

func (s *InMemoryStore) HasActiveFlows() (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, g := range s.flows {
		if g.Flow.IsActive {
			return true, nil
		}
	}
	return false, nil
}

func (s *InMemoryStore) ListActiveFlows() ([]models.ConversationFlow, error) {
	all, _ := s.ListFlows()
	var out []models.ConversationFlow
	for _, f := range all {
		if f.IsActive {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *InMemoryStore) ListFlows() ([]models.ConversationFlow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ConversationFlow, 0, len(s.flows))
	for _, g := range s.flows {
		out = append(out, g.Flow)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemoryStore) GetFlowGraph(flowID int64) (*models.FlowGraph, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.flows[flowID]
	if !ok {
		return nil, nil
	}
	cp := models.FlowGraph{
		Flow:        g.Flow,
		Nodes:       append([]models.FlowNode(nil), g.Nodes...),
		Connections: append([]models.NodeConnection(nil), g.Connections...),
	}
	sort.SliceStable(cp.Connections, func(i, j int) bool {
		return cp.Connections[i].Priority < cp.Connections[j].Priority
	})
	return &cp, nil
}

func (s *InMemoryStore) SaveFlowGraph(g *models.FlowGraph) error {
	if err := g.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if g.Flow.ID == 0 {
		g.Flow.ID = s.id()
		if g.Flow.CreatedAt.IsZero() {
			g.Flow.CreatedAt = time.Now().UTC()
		}
	} else if _, ok := s.flows[g.Flow.ID]; !ok {
		return ErrNotFound
	}
	idMap := make(map[int64]int64, len(g.Nodes))
	for i := range g.Nodes {
		newID := s.id()
		idMap[g.Nodes[i].ID] = newID
		g.Nodes[i].ID = newID
		g.Nodes[i].FlowID = g.Flow.ID
	}
	for i := range g.Connections {
		g.Connections[i].ID = s.id()
		g.Connections[i].SourceNodeID = idMap[g.Connections[i].SourceNodeID]
		g.Connections[i].TargetNodeID = idMap[g.Connections[i].TargetNodeID]
	}
	s.flows[g.Flow.ID] = &models.FlowGraph{
		Flow:        g.Flow,
		Nodes:       append([]models.FlowNode(nil), g.Nodes...),
		Connections: append([]models.NodeConnection(nil), g.Connections...),
	}
	return nil
}

func (s *InMemoryStore) SetFlowActive(flowID int64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.flows[flowID]
	if !ok {
		return ErrNotFound
	}
	g.Flow.IsActive = active
	return nil
}

func (s *InMemoryStore) DeleteFlow(flowID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.flows, flowID)
	return nil
}

// ---- knowledge ----

func (s *InMemoryStore) ListCategories() ([]models.KnowledgeCategory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.KnowledgeCategory(nil), s.categories...), nil
}

func (s *InMemoryStore) SaveCategory(c *models.KnowledgeCategory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == 0 {
		c.ID = s.id()
		s.categories = append(s.categories, *c)
		return nil
	}
	for i := range s.categories {
		if s.categories[i].ID == c.ID {
			s.categories[i] = *c
			return nil
		}
	}
	return ErrNotFound
}

func (s *InMemoryStore) ListFAQs() ([]models.FAQ, error) {
	s.mu.RLock()
	out := append([]models.FAQ(nil), s.faqs...)
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out, nil
}

func (s *InMemoryStore) SaveFAQ(f *models.FAQ) error {
	if err := f.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if f.ID == 0 {
		f.ID = s.id()
		s.faqs = append(s.faqs, *f)
		return nil
	}
	for i := range s.faqs {
		if s.faqs[i].ID == f.ID {
			s.faqs[i] = *f
			return nil
		}
	}
	return ErrNotFound
}

func (s *InMemoryStore) ListDocuments() ([]models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Document(nil), s.documents...), nil
}

func (s *InMemoryStore) SaveDocument(d *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.Status == "" {
		d.Status = models.DocumentStatusPending
	}
	if d.ID == 0 {
		d.ID = s.id()
		if d.CreatedAt.IsZero() {
			d.CreatedAt = time.Now().UTC()
		}
		s.documents = append(s.documents, *d)
		return nil
	}
	for i := range s.documents {
		if s.documents[i].ID == d.ID {
			s.documents[i] = *d
			return nil
		}
	}
	return ErrNotFound
}

func (s *InMemoryStore) ListActiveRules() ([]models.ResponseRule, error) {
	s.mu.RLock()
	var out []models.ResponseRule
	for _, r := range s.rules {
		if r.IsActive {
			out = append(out, r)
		}
	}
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out, nil
}

func (s *InMemoryStore) SaveRule(r *models.ResponseRule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == 0 {
		r.ID = s.id()
		s.rules = append(s.rules, *r)
		return nil
	}
	for i := range s.rules {
		if s.rules[i].ID == r.ID {
			s.rules[i] = *r
			return nil
		}
	}
	return ErrNotFound
}

// ---- usage ----

func (s *InMemoryStore) AddUsageLog(l models.UsageLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l.ID = s.id()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	s.usage = append(s.usage, l)
	return nil
}

func (s *InMemoryStore) ListUsageLogs(userID int64) ([]models.UsageLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.UsageLog
	for _, l := range s.usage {
		if l.UserID == userID {
			out = append(out, l)
		}
	}
	return out, nil
}
