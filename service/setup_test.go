package service

import (
	"context"
	"crypto/ed25519"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/asmb123/voting-workshop-bhu/cache"
	"github.com/asmb123/voting-workshop-bhu/config"
	"github.com/asmb123/voting-workshop-bhu/database"
	"github.com/asmb123/voting-workshop-bhu/identity"
	"github.com/asmb123/voting-workshop-bhu/ledger"
	"github.com/asmb123/voting-workshop-bhu/mq"
)

const testNow = 1_700_000_000

// testEnv bundles a service wired to an in-memory SQLite store.
type testEnv struct {
	svc       VotingService
	clock     *ledger.ManualClock
	published *recordingPublisher
}

func setupService(t *testing.T, policy config.WindowPolicy) *testEnv {
	t.Helper()
	db, err := database.Open(config.DatabaseConfig{
		Driver:     "sqlite",
		SQLitePath: "file:" + uuid.NewString() + "?mode=memory&cache=shared",
		LogLevel:   "silent",
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })

	clock := ledger.NewManualClock(testNow)
	rt := ledger.NewRuntime(db, cache.NewLocalLockService(), clock, nil)
	pub := &recordingPublisher{}
	return &testEnv{
		svc:       NewVotingService(rt, nil, pub, policy, nil),
		clock:     clock,
		published: pub,
	}
}

func newIdentity(t *testing.T) identity.Identity {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	id, err := identity.FromPublicKey(pub)
	require.NoError(t, err)
	return id
}

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []mq.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev mq.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) types() []mq.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]mq.EventType, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

func (p *recordingPublisher) last() mq.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events[len(p.events)-1]
}
