package quiz

import (
	"context"
	"sync"
	"time"
)

// memoryStore keeps everything in maps. It backs offline mode and tests.
// WithTx runs the callback against a deep copy of the state and swaps the
// copy in only on success, matching the SQL store's rollback semantics.
type memoryStore struct {
	mu sync.RWMutex
	st *memState
}

type memState struct {
	quizzes  map[string]Quiz
	rules    map[string][]Rule       // quizID -> ordered rules
	scales   map[string][]ScaleRow   // quizID -> ordered rows
	attempts map[string]Attempt      // attemptID -> attempt
	order    map[string][]string     // quizID -> attemptIDs in creation order
	selected map[string][]SelectedQuestion
	grants   map[string][]AccessGrant
}

func newMemState() *memState {
	return &memState{
		quizzes:  map[string]Quiz{},
		rules:    map[string][]Rule{},
		scales:   map[string][]ScaleRow{},
		attempts: map[string]Attempt{},
		order:    map[string][]string{},
		selected: map[string][]SelectedQuestion{},
		grants:   map[string][]AccessGrant{},
	}
}

func NewInMemoryStore() Store {
	return &memoryStore{st: newMemState()}
}

func (st *memState) clone() *memState {
	c := newMemState()
	for k, v := range st.quizzes {
		c.quizzes[k] = v
	}
	for k, v := range st.rules {
		c.rules[k] = append([]Rule(nil), v...)
	}
	for k, v := range st.scales {
		c.scales[k] = append([]ScaleRow(nil), v...)
	}
	for k, v := range st.attempts {
		c.attempts[k] = v
	}
	for k, v := range st.order {
		c.order[k] = append([]string(nil), v...)
	}
	for k, v := range st.selected {
		qs := make([]SelectedQuestion, len(v))
		for i, sq := range v {
			sq.Response = append([]string(nil), sq.Response...)
			qs[i] = sq
		}
		c.selected[k] = qs
	}
	for k, v := range st.grants {
		gs := make([]AccessGrant, len(v))
		for i, g := range v {
			g.UserIDs = append([]string(nil), g.UserIDs...)
			gs[i] = g
		}
		c.grants[k] = gs
	}
	return c
}

func (m *memoryStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &memoryStore{st: m.st.clone()}
	if err := fn(tx); err != nil {
		return err
	}
	m.st = tx.st
	return nil
}

/* ---- quizzes ---- */

func (m *memoryStore) CreateQuiz(_ context.Context, q *Quiz) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.quizzes[q.ID] = *q
	return nil
}

func (m *memoryStore) GetQuiz(_ context.Context, id string) (Quiz, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.st.quizzes[id]
	if !ok || q.DeletedAt != nil {
		return Quiz{}, ErrNotFound
	}
	return q, nil
}

func (m *memoryStore) UpdateQuiz(_ context.Context, q *Quiz) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.st.quizzes[q.ID]; !ok {
		return ErrNotFound
	}
	m.st.quizzes[q.ID] = *q
	return nil
}

func (m *memoryStore) DeleteQuiz(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.st.quizzes[id]
	if !ok {
		return ErrNotFound
	}
	q.DeletedAt = &at
	m.st.quizzes[id] = q
	return nil
}

/* ---- rules ---- */

func (m *memoryStore) AddRule(_ context.Context, r *Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.rules[r.QuizID] = append(m.st.rules[r.QuizID], *r)
	return nil
}

func (m *memoryStore) Rules(_ context.Context, quizID string) ([]Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Rule(nil), m.st.rules[quizID]...), nil
}

func (m *memoryStore) UpdateRulePoints(_ context.Context, quizID, ruleID string, points int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rules := m.st.rules[quizID]
	for i := range rules {
		if rules[i].ID == ruleID {
			rules[i].Points = points
			return nil
		}
	}
	return ErrNotFound
}

func (m *memoryStore) DeleteRule(_ context.Context, quizID, ruleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rules := m.st.rules[quizID]
	for i := range rules {
		if rules[i].ID == ruleID {
			m.st.rules[quizID] = append(rules[:i], rules[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (m *memoryStore) DeleteAllRules(_ context.Context, quizID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.st.rules, quizID)
	return nil
}

/* ---- grading scale ---- */

func (m *memoryStore) ScaleRows(_ context.Context, quizID string) ([]ScaleRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]ScaleRow(nil), m.st.scales[quizID]...), nil
}

func (m *memoryStore) ScaleRowCount(_ context.Context, quizID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.st.scales[quizID]), nil
}

func (m *memoryStore) DeleteScaleRows(_ context.Context, quizID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.st.scales, quizID)
	return nil
}

func (m *memoryStore) InsertScaleRows(_ context.Context, quizID string, rows []ScaleRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.scales[quizID] = append(m.st.scales[quizID], rows...)
	return nil
}

/* ---- attempts ---- */

func (m *memoryStore) CreateAttempt(_ context.Context, a *Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Mirror of the SQL partial unique index: one live IN_PROGRESS attempt
	// per actor per quiz.
	if a.Status == StatusInProgress {
		for _, id := range m.st.order[a.QuizID] {
			ex := m.st.attempts[id]
			if ex.ActorID == a.ActorID && ex.Status == StatusInProgress && ex.DeletedAt == nil {
				return ErrActiveAttemptExists
			}
		}
	}
	m.st.attempts[a.ID] = *a
	m.st.order[a.QuizID] = append(m.st.order[a.QuizID], a.ID)
	return nil
}

func (m *memoryStore) GetAttempt(_ context.Context, id string) (Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.st.attempts[id]
	if !ok || a.DeletedAt != nil {
		return Attempt{}, ErrNotFound
	}
	return a, nil
}

func (m *memoryStore) UpdateAttempt(_ context.Context, a *Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.st.attempts[a.ID]; !ok {
		return ErrNotFound
	}
	m.st.attempts[a.ID] = *a
	return nil
}

func (m *memoryStore) match(a Attempt, f AttemptFilter) bool {
	if a.DeletedAt != nil && !f.IncludeDeleted {
		return false
	}
	if f.ActorID != "" && a.ActorID != f.ActorID {
		return false
	}
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	return true
}

func (m *memoryStore) Attempts(_ context.Context, quizID string, f AttemptFilter) ([]Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Attempt
	for _, id := range m.st.order[quizID] {
		if a := m.st.attempts[id]; m.match(a, f) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memoryStore) CountAttempts(ctx context.Context, quizID string, f AttemptFilter) (int, error) {
	list, err := m.Attempts(ctx, quizID, f)
	return len(list), err
}

func (m *memoryStore) SoftDeleteAttempts(_ context.Context, quizID string, actorIDs []string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	actors := map[string]bool{}
	for _, id := range actorIDs {
		actors[id] = true
	}
	for _, id := range m.st.order[quizID] {
		a := m.st.attempts[id]
		if actors[a.ActorID] && a.DeletedAt == nil {
			a.DeletedAt = &at
			m.st.attempts[id] = a
		}
	}
	return nil
}

/* ---- selected questions ---- */

func (m *memoryStore) InsertSelectedQuestions(_ context.Context, qs []SelectedQuestion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sq := range qs {
		m.st.selected[sq.AttemptID] = append(m.st.selected[sq.AttemptID], sq)
	}
	return nil
}

func (m *memoryStore) SelectedQuestions(_ context.Context, attemptID string) ([]SelectedQuestion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]SelectedQuestion(nil), m.st.selected[attemptID]...), nil
}

func (m *memoryStore) UpdateSelectedQuestion(_ context.Context, sq *SelectedQuestion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.st.selected[sq.AttemptID]
	for i := range list {
		if list[i].ID == sq.ID {
			list[i] = *sq
			return nil
		}
	}
	return ErrNotFound
}

/* ---- access grants ---- */

func (m *memoryStore) AddGrant(_ context.Context, g *AccessGrant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.grants[g.QuizID] = append(m.st.grants[g.QuizID], *g)
	return nil
}

func (m *memoryStore) Grants(_ context.Context, quizID string) ([]AccessGrant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]AccessGrant(nil), m.st.grants[quizID]...), nil
}

func (m *memoryStore) RevokeGrant(_ context.Context, quizID, grantID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	grants := m.st.grants[quizID]
	for i := range grants {
		if grants[i].ID == grantID {
			grants[i].RevokedAt = &at
			return nil
		}
	}
	return ErrNotFound
}

func (m *memoryStore) DeleteAllGrants(_ context.Context, quizID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.st.grants, quizID)
	return nil
}

func (m *memoryStore) AddGrantUser(_ context.Context, grantID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for quizID := range m.st.grants {
		grants := m.st.grants[quizID]
		for i := range grants {
			if grants[i].ID == grantID {
				grants[i].UserIDs = append(grants[i].UserIDs, userID)
				return nil
			}
		}
	}
	return ErrNotFound
}

func (m *memoryStore) RemoveGrantUser(_ context.Context, grantID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for quizID := range m.st.grants {
		grants := m.st.grants[quizID]
		for i := range grants {
			if grants[i].ID != grantID {
				continue
			}
			for j, id := range grants[i].UserIDs {
				if id == userID {
					grants[i].UserIDs = append(grants[i].UserIDs[:j], grants[i].UserIDs[j+1:]...)
					return nil
				}
			}
			return ErrNotFound
		}
	}
	return ErrNotFound
}
