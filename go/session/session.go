// Package session persists cross-invocation working state: the current
// focus, which agents are active, and the audit trail of searches and
// decisions made during a session.
package session

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/infolead/router/go/statefile"
	log "github.com/sirupsen/logrus"
)

// SearchRecord is one logged search. Exact query matches are
// deduplicated; semantic similarity is out of scope here.
type SearchRecord struct {
	Query       string   `json:"query"`
	Timestamp   string   `json:"timestamp"`
	Agent       string   `json:"agent,omitempty"`
	ResultCount int      `json:"result_count"`
	Files       []string `json:"files,omitempty"`
}

// DecisionRecord is one logged decision with its rationale.
type DecisionRecord struct {
	Decision     string   `json:"decision"`
	Rationale    string   `json:"rationale"`
	Alternatives []string `json:"alternatives,omitempty"`
	Timestamp    string   `json:"timestamp"`
}

// State is the persisted session document.
type State struct {
	Focus           string           `json:"focus,omitempty"`
	ActiveAgents    []string         `json:"active_agents,omitempty"`
	SearchRecords   []SearchRecord   `json:"search_records,omitempty"`
	DecisionRecords []DecisionRecord `json:"decision_records,omitempty"`
	LastUpdated     string           `json:"last_updated"`
}

// Config parameterizes a Manager.
type Config struct {
	// StatePath locates session-state.json.
	StatePath string
	// TTL bounds record age; expired records are pruned on every write.
	TTL time.Duration
	// Lock bounds state file acquisition.
	Lock statefile.Config
	// Now is injectable for tests.
	Now func() time.Time
}

type Manager struct {
	cfg Config
}

func NewManager(cfg Config) (*Manager, error) {
	if cfg.StatePath == "" {
		return nil, fmt.Errorf("missing StatePath")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * 24 * time.Hour
	}
	if cfg.Lock == (statefile.Config{}) {
		cfg.Lock = statefile.DefaultConfig()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{cfg: cfg}, nil
}

func (m *Manager) withState(fn func(*State)) error {
	var lease, err = statefile.AcquireExclusive(m.cfg.StatePath, m.cfg.Lock, true)
	if err != nil {
		return fmt.Errorf("locking session state: %w", err)
	}
	defer lease.Release()

	var s State
	if err = statefile.LoadJSON(m.cfg.StatePath, &s); err != nil && !os.IsNotExist(err) {
		log.WithFields(log.Fields{"path": m.cfg.StatePath, "err": err}).
			Warn("session state unreadable, starting fresh")
		s = State{}
	}
	fn(&s)
	m.prune(&s)
	s.LastUpdated = m.cfg.Now().UTC().Format(time.RFC3339)
	return statefile.SaveJSON(m.cfg.StatePath, s)
}

// prune drops records older than the TTL.
func (m *Manager) prune(s *State) {
	var cutoff = m.cfg.Now().UTC().Add(-m.cfg.TTL)
	var keepSearch = s.SearchRecords[:0]
	for _, r := range s.SearchRecords {
		if at, err := time.Parse(time.RFC3339, r.Timestamp); err == nil && at.After(cutoff) {
			keepSearch = append(keepSearch, r)
		}
	}
	s.SearchRecords = keepSearch

	var keepDecision = s.DecisionRecords[:0]
	for _, r := range s.DecisionRecords {
		if at, err := time.Parse(time.RFC3339, r.Timestamp); err == nil && at.After(cutoff) {
			keepDecision = append(keepDecision, r)
		}
	}
	s.DecisionRecords = keepDecision
}

// SetFocus replaces the session's current focus.
func (m *Manager) SetFocus(focus string) error {
	return m.withState(func(s *State) { s.Focus = strings.TrimSpace(focus) })
}

// ActivateAgent adds |agent| to the active set.
func (m *Manager) ActivateAgent(agent string) error {
	return m.withState(func(s *State) {
		for _, a := range s.ActiveAgents {
			if a == agent {
				return
			}
		}
		s.ActiveAgents = append(s.ActiveAgents, agent)
		sort.Strings(s.ActiveAgents)
	})
}

// DeactivateAgent removes |agent| from the active set.
func (m *Manager) DeactivateAgent(agent string) error {
	return m.withState(func(s *State) {
		for i, a := range s.ActiveAgents {
			if a == agent {
				s.ActiveAgents = append(s.ActiveAgents[:i], s.ActiveAgents[i+1:]...)
				return
			}
		}
	})
}

// RecordSearch logs a search, replacing any record with the same exact
// query. Returns true if the query was already present.
func (m *Manager) RecordSearch(record SearchRecord) (duplicate bool, err error) {
	err = m.withState(func(s *State) {
		if record.Timestamp == "" {
			record.Timestamp = m.cfg.Now().UTC().Format(time.RFC3339)
		}
		for i, r := range s.SearchRecords {
			if r.Query == record.Query {
				s.SearchRecords[i] = record
				duplicate = true
				return
			}
		}
		s.SearchRecords = append(s.SearchRecords, record)
	})
	return duplicate, err
}

// RecordDecision appends a decision record.
func (m *Manager) RecordDecision(record DecisionRecord) error {
	if strings.TrimSpace(record.Decision) == "" {
		return fmt.Errorf("decision text is required")
	}
	return m.withState(func(s *State) {
		if record.Timestamp == "" {
			record.Timestamp = m.cfg.Now().UTC().Format(time.RFC3339)
		}
		s.DecisionRecords = append(s.DecisionRecords, record)
	})
}

// Snapshot reads the session state under a shared lock.
func (m *Manager) Snapshot() (State, error) {
	var lease, err = statefile.AcquireShared(m.cfg.StatePath, m.cfg.Lock)
	if err != nil {
		if os.IsNotExist(err) {
			return State{}, nil
		}
		return State{}, fmt.Errorf("reading session state: %w", err)
	}
	defer lease.Release()

	var s State
	if err = statefile.LoadJSON(m.cfg.StatePath, &s); err != nil && !os.IsNotExist(err) {
		return State{}, fmt.Errorf("reading session state: %w", err)
	}
	return s, nil
}

// Prune removes expired records without other changes.
func (m *Manager) Prune() error {
	return m.withState(func(*State) {})
}
