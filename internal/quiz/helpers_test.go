package quiz

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/eduforge/assess/internal/cache"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type fakeBank struct {
	kind      Kind
	questions []Question
}

type fakeBanks struct {
	banks     map[string]*fakeBank
	questions map[string]Question
}

func newFakeBanks() *fakeBanks {
	return &fakeBanks{banks: map[string]*fakeBank{}, questions: map[string]Question{}}
}

func (f *fakeBanks) addBank(id string, kind Kind) {
	f.banks[id] = &fakeBank{kind: kind}
}

func (f *fakeBanks) addQuestion(bankID, id, typ string, key ...string) {
	q := Question{ID: id, BankID: bankID, Kind: KindTest, Type: typ, AnswerKey: key}
	if bankID != "" {
		b := f.banks[bankID]
		q.Kind = b.kind
		b.questions = append(b.questions, q)
	}
	f.questions[id] = q
}

func (f *fakeBanks) GetQuestion(_ context.Context, id string) (Question, error) {
	q, ok := f.questions[id]
	if !ok {
		return Question{}, ErrNotFound
	}
	return q, nil
}

func (f *fakeBanks) QuestionsInBank(_ context.Context, bankID string) ([]Question, error) {
	b, ok := f.banks[bankID]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]Question(nil), b.questions...), nil
}

func (f *fakeBanks) ActiveCountInBank(_ context.Context, bankID string) (int, error) {
	b, ok := f.banks[bankID]
	if !ok {
		return 0, ErrNotFound
	}
	return len(b.questions), nil
}

func (f *fakeBanks) BankKind(_ context.Context, bankID string) (Kind, error) {
	b, ok := f.banks[bankID]
	if !ok {
		return "", ErrNotFound
	}
	return b.kind, nil
}

type fakeOrgs struct {
	members map[string]map[string]string // orgID -> actorID -> roleID
	cards   map[string]map[string]bool   // actorID -> cardTemplateID
}

func newFakeOrgs() *fakeOrgs {
	return &fakeOrgs{members: map[string]map[string]string{}, cards: map[string]map[string]bool{}}
}

func (f *fakeOrgs) addMember(orgID, actorID, roleID string) {
	if f.members[orgID] == nil {
		f.members[orgID] = map[string]string{}
	}
	f.members[orgID][actorID] = roleID
}

func (f *fakeOrgs) addCard(actorID, cardTemplateID string) {
	if f.cards[actorID] == nil {
		f.cards[actorID] = map[string]bool{}
	}
	f.cards[actorID][cardTemplateID] = true
}

func (f *fakeOrgs) IsMember(_ context.Context, orgID, actorID string) (bool, error) {
	_, ok := f.members[orgID][actorID]
	return ok, nil
}

func (f *fakeOrgs) HasRole(_ context.Context, orgID, actorID, roleID string) (bool, error) {
	r, ok := f.members[orgID][actorID]
	return ok && r == roleID, nil
}

func (f *fakeOrgs) HoldsCard(_ context.Context, actorID, cardTemplateID string) (bool, error) {
	return f.cards[actorID][cardTemplateID], nil
}

type fakeGradebook struct {
	entries map[string]string // actorID|lessonID -> ref
	fail    map[string]error  // actorID -> forced error
	next    int
}

func newFakeGradebook() *fakeGradebook {
	return &fakeGradebook{entries: map[string]string{}, fail: map[string]error{}}
}

func (f *fakeGradebook) GetOrCreate(_ context.Context, actorID, lessonID string) (string, error) {
	if err := f.fail[actorID]; err != nil {
		return "", err
	}
	k := actorID + "|" + lessonID
	if ref, ok := f.entries[k]; ok {
		return ref, nil
	}
	f.next++
	ref := fmt.Sprintf("gb-%d", f.next)
	f.entries[k] = ref
	return ref, nil
}

type fakeEvents struct {
	appended []string // "typ key"
}

func (f *fakeEvents) Append(_ context.Context, typ, key, _ string) error {
	f.appended = append(f.appended, typ+" "+key)
	return nil
}

type testEnv struct {
	svc    *Service
	store  Store
	banks  *fakeBanks
	orgs   *fakeOrgs
	gb     *fakeGradebook
	events *fakeEvents
	cache  cache.Cache
}

func newTestEnv(t *testing.T, opts ...ServiceOption) *testEnv {
	t.Helper()
	env := &testEnv{
		store:  NewInMemoryStore(),
		banks:  newFakeBanks(),
		orgs:   newFakeOrgs(),
		gb:     newFakeGradebook(),
		events: &fakeEvents{},
		cache:  cache.NewMemory(),
	}
	opts = append([]ServiceOption{
		WithClock(func() time.Time { return testNow }),
		WithRand(rand.New(rand.NewSource(1))),
	}, opts...)
	env.svc = NewService(env.store, env.banks, env.orgs, env.gb, env.events, env.cache, opts...)
	return env
}

func (e *testEnv) createQuiz(t *testing.T, mutate func(*QuizInput)) Quiz {
	t.Helper()
	in := QuizInput{
		Kind:            KindTest,
		Title:           "midterm",
		AvailableFrom:   testNow.Add(-time.Hour),
		AvailableUntil:  testNow.Add(time.Hour),
		LeadTimeMinutes: 30,
		PassingScore:    8,
	}
	if mutate != nil {
		mutate(&in)
	}
	q, err := e.svc.CreateQuiz(context.Background(), "teacher-1", in)
	if err != nil {
		t.Fatalf("create quiz: %v", err)
	}
	return q
}
